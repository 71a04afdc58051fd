package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
)

// SettlementStore implements ports.SettlementStore in memory.
type SettlementStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*domain.SettlementRequest
}

// NewSettlementStore creates an empty in-memory settlement store.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{requests: make(map[uuid.UUID]*domain.SettlementRequest)}
}

func (s *SettlementStore) Create(ctx context.Context, r *domain.SettlementRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return fmt.Errorf("settlement request %s already exists", r.ID)
	}
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *SettlementStore) Get(ctx context.Context, id uuid.UUID) (*domain.SettlementRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// Update applies r only if the stored state still equals prev. Losing the
// optimistic check means a concurrent transition already happened.
func (s *SettlementStore) Update(ctx context.Context, r *domain.SettlementRequest, prev domain.SettlementState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[r.ID]
	if !ok {
		return fmt.Errorf("settlement request %s not found", r.ID)
	}
	if stored.State != prev {
		return fmt.Errorf("settlement request %s state is %s, expected %s", r.ID, stored.State, prev)
	}
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *SettlementStore) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.SettlementRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SettlementRequest
	for _, r := range s.requests {
		if r.AccountID == accountID {
			out = append(out, *r)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *SettlementStore) ListByState(ctx context.Context, state domain.SettlementState) ([]domain.SettlementRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SettlementRequest
	for _, r := range s.requests {
		if r.State == state {
			out = append(out, *r)
		}
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(rs []domain.SettlementRequest) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
