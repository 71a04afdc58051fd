package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StablecoinCurrency is the single unit all ledger balances are held in.
const StablecoinCurrency = "USDC"

// AccountStatus represents the lifecycle of an account.
// Closed accounts keep their entries; they are never hard-deleted.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// Account holds a user's stablecoin balance. Available and Reserved are both
// non-negative at all times; funds move between them only through ledger entries.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Status    AccountStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsActive returns true if the account can take new operations.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Total returns available + reserved.
func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.Reserved)
}
