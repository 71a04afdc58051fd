package ports

import (
	"context"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=stores.go -destination=mocks/store_mocks.go -package=mocks

// LedgerStore persists accounts, reservations and the append-only entry log.
// Each Apply* method is atomic: balance mutations and entry appends land
// together or not at all. Serialization of check-then-act per account is the
// LedgerService's job; stores only guarantee write atomicity.
type LedgerStore interface {
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetAccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// ApplyReserve moves entry.Amount from available to reserved and records
	// the open reservation alongside the reserve entry.
	ApplyReserve(ctx context.Context, r *domain.Reservation, entry *domain.LedgerEntry) error

	// GetReservation returns the reservation regardless of status, or
	// domain.ErrUnknownReservation.
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)

	// ResolveReservation flips an open reservation to committed or released,
	// applies the balance effect and appends the entry. A reservation that is
	// missing or already resolved yields domain.ErrUnknownReservation — this is
	// what makes commit/release exactly-once.
	ResolveReservation(ctx context.Context, id uuid.UUID, outcome domain.ReservationStatus, entry *domain.LedgerEntry) (*domain.Reservation, error)

	// ApplyTransfer writes the debit/credit entry pair and both balance
	// changes atomically.
	ApplyTransfer(ctx context.Context, out, in *domain.LedgerEntry) error

	ApplyDeposit(ctx context.Context, entry *domain.LedgerEntry) error

	// ListEntries returns all entries for an account ordered oldest first.
	ListEntries(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error)
}

// SettlementStore persists settlement requests. Records are never deleted.
type SettlementStore interface {
	Create(ctx context.Context, r *domain.SettlementRequest) error
	Get(ctx context.Context, id uuid.UUID) (*domain.SettlementRequest, error)

	// Update persists r guarded by the state the caller read (optimistic
	// check); a mismatch means a concurrent transition won and the update is
	// rejected.
	Update(ctx context.Context, r *domain.SettlementRequest, prev domain.SettlementState) error

	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.SettlementRequest, error)
	ListByState(ctx context.Context, state domain.SettlementState) ([]domain.SettlementRequest, error)
}

// UserRepository persists wallet holders.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	SetVerified(ctx context.Context, id uuid.UUID) error
}
