package handler

import (
	"strconv"

	"payvia/internal/adapter/http/dto"
	"payvia/internal/adapter/http/middleware"
	"payvia/internal/core/domain"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"
	"payvia/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccountHandler handles balance, deposit, transfer and history endpoints.
type AccountHandler struct {
	ledgerSvc  ports.LedgerService
	historySvc ports.HistoryService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledgerSvc ports.LedgerService, historySvc ports.HistoryService) *AccountHandler {
	return &AccountHandler{ledgerSvc: ledgerSvc, historySvc: historySvc}
}

// callerAccount resolves the authenticated user's account.
func (h *AccountHandler) callerAccount(c *gin.Context) (*domain.Account, bool) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return nil, false
	}
	acct, err := h.ledgerSvc.AccountForUser(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return acct, true
}

// GetAccount handles GET /api/v1/accounts/me.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	acct, ok := h.callerAccount(c)
	if !ok {
		return
	}
	response.OK(c, dto.ToAccountResponse(acct))
}

// GetBalance handles GET /api/v1/accounts/me/balance.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	acct, ok := h.callerAccount(c)
	if !ok {
		return
	}

	balance, err := h.ledgerSvc.Balance(c.Request.Context(), acct.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		Available: balance.Available.String(),
		Reserved:  balance.Reserved.String(),
		Currency:  acct.Currency,
	})
}

// Deposit handles POST /api/v1/accounts/me/deposit.
func (h *AccountHandler) Deposit(c *gin.Context) {
	acct, ok := h.callerAccount(c)
	if !ok {
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := dto.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	entry, err := h.ledgerSvc.Deposit(c.Request.Context(), acct.ID, amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToEntryResponse(entry))
}

// Transfer handles POST /api/v1/transfers. The authenticated user's account
// is always the debit side.
func (h *AccountHandler) Transfer(c *gin.Context) {
	acct, ok := h.callerAccount(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	toID, err := uuid.Parse(req.ToAccountID)
	if err != nil {
		response.Error(c, apperror.Validation("to_account_id must be a UUID"))
		return
	}
	amount, err := dto.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	entries, err := h.ledgerSvc.Transfer(c.Request.Context(), acct.ID, toID, amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, dto.ToEntryResponse(&entries[i]))
	}
	response.Created(c, out)
}

// History handles GET /api/v1/accounts/me/history.
func (h *AccountHandler) History(c *gin.Context) {
	acct, ok := h.callerAccount(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	result, err := h.historySvc.List(c.Request.Context(), acct.ID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToHistoryResponse(result))
}
