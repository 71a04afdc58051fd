package dto

import (
	"payvia/internal/core/domain"
	"payvia/internal/core/ports"

	"github.com/shopspring/decimal"
)

// Amounts travel as strings on the wire so clients never lose precision to
// float encoding.

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Phone    string `json:"phone" binding:"required,ug_phone"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Phone     string `json:"phone"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// DepositRequest is the request body for crediting an account.
type DepositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// TransferRequest is the request body for an internal transfer.
type TransferRequest struct {
	ToAccountID string `json:"to_account_id" binding:"required,uuid"`
	Amount      string `json:"amount" binding:"required"`
}

// QuoteRequest is the request body for a fee/rate quote.
type QuoteRequest struct {
	Amount    string `json:"amount" binding:"required"`
	ChannelID string `json:"channel_id" binding:"required"`
}

// QuoteResponse is the response body for a quote.
type QuoteResponse struct {
	ChannelID    string `json:"channel_id"`
	Fee          string `json:"fee"`
	PayoutAmount string `json:"payout_amount"`
	Currency     string `json:"currency"`
	Rate         string `json:"rate"`
}

// CreateSettlementRequest is the request body for creating a withdrawal or
// bill payment.
type CreateSettlementRequest struct {
	Kind        string `json:"kind" binding:"required,oneof=WITHDRAWAL BILL_PAYMENT"`
	Amount      string `json:"amount" binding:"required"`
	ChannelID   string `json:"channel_id" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	BillType    string `json:"bill_type,omitempty"`
}

// SettlementResponse is the wire form of a settlement request.
type SettlementResponse struct {
	ID             string  `json:"id"`
	AccountID      string  `json:"account_id"`
	Kind           string  `json:"kind"`
	Amount         string  `json:"amount"`
	ChannelID      string  `json:"channel_id"`
	Destination    string  `json:"destination"`
	BillType       string  `json:"bill_type,omitempty"`
	Fee            string  `json:"fee"`
	PayoutAmount   string  `json:"payout_amount"`
	PayoutCurrency string  `json:"payout_currency"`
	Rate           string  `json:"rate"`
	State          string  `json:"state"`
	ProviderRef    string  `json:"provider_ref,omitempty"`
	FailureReason  string  `json:"failure_reason,omitempty"`
	CreatedAt      string  `json:"created_at"`
	DispatchedAt   *string `json:"dispatched_at,omitempty"`
	ResolvedAt     *string `json:"resolved_at,omitempty"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	Available string `json:"available"`
	Reserved  string `json:"reserved"`
	Currency  string `json:"currency"`
}

// AccountResponse is the wire form of an account.
type AccountResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Reserved  string `json:"reserved"`
	Status    string `json:"status"`
}

// EntryResponse is the wire form of a ledger entry.
type EntryResponse struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	CorrelationID *string `json:"correlation_id,omitempty"`
	Counterpart   *string `json:"counterpart,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// HistoryItemResponse is one record of the merged history view.
type HistoryItemResponse struct {
	Type       string              `json:"type"`
	Timestamp  string              `json:"timestamp"`
	Entry      *EntryResponse      `json:"entry,omitempty"`
	Settlement *SettlementResponse `json:"settlement,omitempty"`
}

// HistoryResponse wraps the paginated merged history.
type HistoryResponse struct {
	Items      []HistoryItemResponse `json:"items"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
	HasNext    bool                  `json:"has_next"`
	HasPrev    bool                  `json:"has_prev"`
}

// ParseAmount parses a wire amount. The empty string and non-numeric input
// fail; range checks belong to the services.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// ToAccountResponse converts a domain account.
func ToAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID.String(),
		UserID:    a.UserID.String(),
		Currency:  a.Currency,
		Available: a.Available.String(),
		Reserved:  a.Reserved.String(),
		Status:    string(a.Status),
	}
}

// ToEntryResponse converts a domain ledger entry.
func ToEntryResponse(e *domain.LedgerEntry) EntryResponse {
	resp := EntryResponse{
		ID:        e.ID.String(),
		Kind:      string(e.Kind),
		Amount:    e.Amount.String(),
		Currency:  e.Currency,
		CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if e.CorrelationID != nil {
		s := e.CorrelationID.String()
		resp.CorrelationID = &s
	}
	if e.Counterpart != nil {
		s := e.Counterpart.String()
		resp.Counterpart = &s
	}
	return resp
}

// ToSettlementResponse converts a domain settlement request.
func ToSettlementResponse(r *domain.SettlementRequest) SettlementResponse {
	resp := SettlementResponse{
		ID:             r.ID.String(),
		AccountID:      r.AccountID.String(),
		Kind:           string(r.Kind),
		Amount:         r.Amount.String(),
		ChannelID:      r.ChannelID,
		Destination:    r.Destination,
		BillType:       r.BillType,
		Fee:            r.Fee.String(),
		PayoutAmount:   r.PayoutAmount.String(),
		PayoutCurrency: r.PayoutCurrency,
		Rate:           r.Rate.String(),
		State:          string(r.State),
		ProviderRef:    r.ProviderRef,
		FailureReason:  r.FailureReason,
		CreatedAt:      r.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if r.DispatchedAt != nil {
		s := r.DispatchedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		resp.DispatchedAt = &s
	}
	if r.ResolvedAt != nil {
		s := r.ResolvedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		resp.ResolvedAt = &s
	}
	return resp
}

// ToQuoteResponse converts a domain quote.
func ToQuoteResponse(q *domain.ProviderQuote) QuoteResponse {
	return QuoteResponse{
		ChannelID:    q.ChannelID,
		Fee:          q.Fee.String(),
		PayoutAmount: q.PayoutAmount.String(),
		Currency:     q.Currency,
		Rate:         q.Rate.String(),
	}
}

// ToHistoryResponse converts a merged history page.
func ToHistoryResponse(p *ports.HistoryPage) HistoryResponse {
	items := make([]HistoryItemResponse, 0, len(p.Items))
	for _, it := range p.Items {
		item := HistoryItemResponse{
			Type:      string(it.Type),
			Timestamp: it.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}
		if it.Entry != nil {
			e := ToEntryResponse(it.Entry)
			item.Entry = &e
		}
		if it.Settlement != nil {
			s := ToSettlementResponse(it.Settlement)
			item.Settlement = &s
		}
		items = append(items, item)
	}
	return HistoryResponse{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext,
		HasPrev:    p.HasPrev,
	}
}
