package handler

import (
	"payvia/internal/adapter/http/dto"
	"payvia/internal/adapter/http/middleware"
	"payvia/internal/core/domain"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"
	"payvia/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SettlementHandler handles quote and settlement lifecycle endpoints.
type SettlementHandler struct {
	settlementSvc ports.SettlementService
	quoteSvc      ports.QuoteService
	ledgerSvc     ports.LedgerService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementSvc ports.SettlementService, quoteSvc ports.QuoteService, ledgerSvc ports.LedgerService) *SettlementHandler {
	return &SettlementHandler{
		settlementSvc: settlementSvc,
		quoteSvc:      quoteSvc,
		ledgerSvc:     ledgerSvc,
	}
}

// Quote handles POST /api/v1/settlements/quote. Quoting is read-only and
// never touches the ledger.
func (h *SettlementHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := dto.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	quote, err := h.quoteSvc.Quote(amount, req.ChannelID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToQuoteResponse(quote))
}

// Create handles POST /api/v1/settlements.
func (h *SettlementHandler) Create(c *gin.Context) {
	acct, ok := h.callerAccount(c)
	if !ok {
		return
	}

	var req dto.CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := dto.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	result, err := h.settlementSvc.ReserveAndQuote(c.Request.Context(), ports.SettlementInput{
		AccountID:   acct.ID,
		Kind:        domain.SettlementKind(req.Kind),
		Amount:      amount,
		ChannelID:   req.ChannelID,
		Destination: req.Destination,
		BillType:    req.BillType,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToSettlementResponse(result))
}

// Get handles GET /api/v1/settlements/:id.
func (h *SettlementHandler) Get(c *gin.Context) {
	req, ok := h.ownedRequest(c)
	if !ok {
		return
	}
	response.OK(c, dto.ToSettlementResponse(req))
}

// Dispatch handles POST /api/v1/settlements/:id/dispatch. Re-dispatching a
// request that already went out replays the original outcome.
func (h *SettlementHandler) Dispatch(c *gin.Context) {
	req, ok := h.ownedRequest(c)
	if !ok {
		return
	}

	result, err := h.settlementSvc.Dispatch(c.Request.Context(), req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, dto.ToSettlementResponse(result))
}

// Cancel handles POST /api/v1/settlements/:id/cancel.
func (h *SettlementHandler) Cancel(c *gin.Context) {
	req, ok := h.ownedRequest(c)
	if !ok {
		return
	}

	result, err := h.settlementSvc.Cancel(c.Request.Context(), req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToSettlementResponse(result))
}

// Poll handles POST /api/v1/settlements/:id/poll — a manual status refresh.
func (h *SettlementHandler) Poll(c *gin.Context) {
	req, ok := h.ownedRequest(c)
	if !ok {
		return
	}

	result, err := h.settlementSvc.PollStatus(c.Request.Context(), req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToSettlementResponse(result))
}

func (h *SettlementHandler) callerAccount(c *gin.Context) (*domain.Account, bool) {
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

// ownedRequest loads the :id settlement request and rejects access by anyone
// but the owning account's user.
func (h *SettlementHandler) ownedRequest(c *gin.Context) (*domain.SettlementRequest, bool) {
	acct, ok := h.callerAccount(c)
	if !ok {
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("id must be a UUID"))
		return nil, false
	}

	req, err := h.settlementSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if req.AccountID != acct.ID {
		response.Error(c, apperror.ErrForbidden())
		return nil, false
	}
	return req, true
}
