package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger sentinel errors. Services translate these into the coded API taxonomy;
// storage adapters return them so callers can rely on errors.Is.
var (
	ErrInsufficientFunds  = errors.New("insufficient available balance")
	ErrUnknownReservation = errors.New("reservation unknown or already resolved")
	ErrAccountNotFound    = errors.New("account not found")
)

// EntryKind is the kind of balance movement a ledger entry records.
type EntryKind string

const (
	EntryKindDeposit     EntryKind = "DEPOSIT"
	EntryKindTransferOut EntryKind = "TRANSFER_OUT"
	EntryKindTransferIn  EntryKind = "TRANSFER_IN"
	EntryKindReserve     EntryKind = "RESERVE"
	EntryKindRelease     EntryKind = "RELEASE"
	EntryKindCommit      EntryKind = "COMMIT"
)

// LedgerEntry is an immutable, append-only record of one balance-affecting
// operation. An account's {available, reserved} pair must always equal the
// fold of its entries.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Kind          EntryKind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CorrelationID *uuid.UUID      `json:"correlation_id,omitempty"` // reservation id, or transfer pair id
	Counterpart   *uuid.UUID      `json:"counterpart,omitempty"`    // other account for transfers
	CreatedAt     time.Time       `json:"created_at"`
}

// ReservationStatus tracks how a reservation was resolved.
type ReservationStatus string

const (
	ReservationStatusOpen      ReservationStatus = "OPEN"
	ReservationStatusCommitted ReservationStatus = "COMMITTED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
)

// Reservation earmarks funds for an in-flight settlement. It is resolved
// exactly once, by commit or release.
type Reservation struct {
	ID         uuid.UUID         `json:"id"`
	AccountID  uuid.UUID         `json:"account_id"`
	Amount     decimal.Decimal   `json:"amount"`
	Status     ReservationStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// IsOpen returns true when the reservation has not been committed or released.
func (r *Reservation) IsOpen() bool {
	return r.Status == ReservationStatusOpen
}
