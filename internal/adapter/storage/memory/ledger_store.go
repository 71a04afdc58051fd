// Package memory provides the in-process storage binding. It backs local
// development and the integration suite; the postgres package is the
// production binding behind the same ports.
package memory

import (
	"context"
	"sync"
	"time"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
)

// LedgerStore implements ports.LedgerStore in memory. Every method takes the
// store lock for its full duration, which gives the same write atomicity the
// postgres binding gets from transactions.
type LedgerStore struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*domain.Account
	byUser       map[uuid.UUID]uuid.UUID
	reservations map[uuid.UUID]*domain.Reservation
	entries      map[uuid.UUID][]domain.LedgerEntry
}

// NewLedgerStore creates an empty in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		accounts:     make(map[uuid.UUID]*domain.Account),
		byUser:       make(map[uuid.UUID]uuid.UUID),
		reservations: make(map[uuid.UUID]*domain.Reservation),
		entries:      make(map[uuid.UUID][]domain.LedgerEntry),
	}
}

func (s *LedgerStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
	s.byUser[a.UserID] = a.ID
	return nil
}

func (s *LedgerStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *LedgerStore) GetAccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

func (s *LedgerStore) ApplyReserve(ctx context.Context, r *domain.Reservation, entry *domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[r.AccountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Available = a.Available.Sub(r.Amount)
	a.Reserved = a.Reserved.Add(r.Amount)
	a.UpdatedAt = entry.CreatedAt

	cp := *r
	s.reservations[r.ID] = &cp
	s.entries[r.AccountID] = append(s.entries[r.AccountID], *entry)
	return nil
}

func (s *LedgerStore) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrUnknownReservation
	}
	cp := *r
	return &cp, nil
}

func (s *LedgerStore) ResolveReservation(ctx context.Context, id uuid.UUID, outcome domain.ReservationStatus, entry *domain.LedgerEntry) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || !r.IsOpen() {
		return nil, domain.ErrUnknownReservation
	}
	a, ok := s.accounts[r.AccountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	a.Reserved = a.Reserved.Sub(r.Amount)
	if outcome == domain.ReservationStatusReleased {
		a.Available = a.Available.Add(r.Amount)
	}
	a.UpdatedAt = entry.CreatedAt

	now := time.Now().UTC()
	r.Status = outcome
	r.ResolvedAt = &now
	s.entries[r.AccountID] = append(s.entries[r.AccountID], *entry)

	cp := *r
	return &cp, nil
}

func (s *LedgerStore) ApplyTransfer(ctx context.Context, out, in *domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.accounts[out.AccountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	dst, ok := s.accounts[in.AccountID]
	if !ok {
		return domain.ErrAccountNotFound
	}

	// Entry amounts are signed: the debit entry is negative.
	src.Available = src.Available.Add(out.Amount)
	dst.Available = dst.Available.Add(in.Amount)
	src.UpdatedAt = out.CreatedAt
	dst.UpdatedAt = in.CreatedAt

	s.entries[out.AccountID] = append(s.entries[out.AccountID], *out)
	s.entries[in.AccountID] = append(s.entries[in.AccountID], *in)
	return nil
}

func (s *LedgerStore) ApplyDeposit(ctx context.Context, entry *domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[entry.AccountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Available = a.Available.Add(entry.Amount)
	a.UpdatedAt = entry.CreatedAt
	s.entries[entry.AccountID] = append(s.entries[entry.AccountID], *entry)
	return nil
}

func (s *LedgerStore) ListEntries(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.entries[accountID]
	out := make([]domain.LedgerEntry, len(src))
	copy(out, src)
	return out, nil
}
