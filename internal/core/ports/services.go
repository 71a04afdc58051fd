package ports

import (
	"context"
	"time"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=services.go -destination=mocks/service_mocks.go -package=mocks

// --- Ledger ---

// Balance is a point-in-time read of an account's balance pair.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
}

// LedgerService maintains authoritative balances. All mutating operations are
// serialized per account; operations on different accounts run in parallel.
type LedgerService interface {
	OpenAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	AccountForUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.Reservation, error)
	Commit(ctx context.Context, reservationID uuid.UUID) error
	Release(ctx context.Context, reservationID uuid.UUID) error
	Transfer(ctx context.Context, fromAccount, toAccount uuid.UUID, amount decimal.Decimal) ([]domain.LedgerEntry, error)
	Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.LedgerEntry, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*Balance, error)
	Entries(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error)
}

// --- Quoting ---

// QuoteService is the deterministic fee and conversion calculator. It never
// touches the ledger; identical inputs always yield identical quotes.
type QuoteService interface {
	Quote(amount decimal.Decimal, channelID string) (*domain.ProviderQuote, error)
}

// --- Settlement orchestration ---

// SettlementInput holds validated input for creating a settlement request.
type SettlementInput struct {
	AccountID   uuid.UUID
	Kind        domain.SettlementKind
	Amount      decimal.Decimal
	ChannelID   string
	Destination string
	BillType    string
}

// SettlementService drives withdrawals and bill payments through their
// lifecycle: reserve and quote, dispatch to a provider, poll status, cancel.
type SettlementService interface {
	ReserveAndQuote(ctx context.Context, input SettlementInput) (*domain.SettlementRequest, error)
	Dispatch(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRequest, error)
	PollStatus(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRequest, error)
	Cancel(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRequest, error)
	Get(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRequest, error)
}

// DispatchCache is the fast-path idempotency layer for dispatch calls
// (Redis-backed in production). Get returns nil, nil on a miss.
type DispatchCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- History ---

// HistoryItemType tags merged history records.
type HistoryItemType string

const (
	HistoryItemEntry      HistoryItemType = "LEDGER_ENTRY"
	HistoryItemSettlement HistoryItemType = "SETTLEMENT_REQUEST"
)

// HistoryItem is one record in the merged per-account view. Exactly one of
// Entry or Settlement is set, matching Type.
type HistoryItem struct {
	Type       HistoryItemType           `json:"type"`
	Timestamp  time.Time                 `json:"timestamp"`
	Entry      *domain.LedgerEntry       `json:"entry,omitempty"`
	Settlement *domain.SettlementRequest `json:"settlement,omitempty"`
}

// HistoryPage is one page of the merged, time-descending view.
type HistoryPage struct {
	Items      []HistoryItem `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
}

// HistoryService reads from ledger and settlement records; it never mutates them.
type HistoryService interface {
	List(ctx context.Context, accountID uuid.UUID, page, pageSize int) (*HistoryPage, error)
}

// --- Users (auth) ---

// RegisterResult is returned once at registration.
type RegisterResult struct {
	User    *domain.User    `json:"user"`
	Account *domain.Account `json:"account"`
}

// UserService handles registration, login and verification.
type UserService interface {
	Register(ctx context.Context, phone, password string) (*RegisterResult, error)
	Login(ctx context.Context, phone, password string) (string, time.Time, error) // token, expiry, error
	Verify(ctx context.Context, userID uuid.UUID) error
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, phone string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Phone  string
}
