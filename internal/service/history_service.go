package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"payvia/internal/core/ports"
	"payvia/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HistoryServiceImpl implements ports.HistoryService. It merges ledger
// entries and settlement requests into one time-descending view. It only ever
// reads; pagination over a changing account is allowed to shift between
// calls.
type HistoryServiceImpl struct {
	ledger      ports.LedgerStore
	settlements ports.SettlementStore
	log         zerolog.Logger
}

// NewHistoryService creates a new HistoryServiceImpl.
func NewHistoryService(ledger ports.LedgerStore, settlements ports.SettlementStore, log zerolog.Logger) *HistoryServiceImpl {
	return &HistoryServiceImpl{ledger: ledger, settlements: settlements, log: log}
}

// List returns one page of the merged history, newest first. Records sharing
// a timestamp order by id so the sequence is stable across calls.
func (s *HistoryServiceImpl) List(ctx context.Context, accountID uuid.UUID, page, pageSize int) (*ports.HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, apperror.ErrNotFound("account")
	}

	entries, err := s.ledger.ListEntries(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list entries: %w", err))
	}
	requests, err := s.settlements.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list settlements: %w", err))
	}

	items := make([]ports.HistoryItem, 0, len(entries)+len(requests))
	for i := range entries {
		e := entries[i]
		items = append(items, ports.HistoryItem{
			Type:      ports.HistoryItemEntry,
			Timestamp: e.CreatedAt,
			Entry:     &e,
		})
	}
	for i := range requests {
		r := requests[i]
		items = append(items, ports.HistoryItem{
			Type:       ports.HistoryItemSettlement,
			Timestamp:  r.CreatedAt,
			Settlement: &r,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return bytes.Compare(itemID(items[i]), itemID(items[j])) > 0
	})

	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &ports.HistoryPage{
		Items:      items[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasNext:    end < total,
		HasPrev:    page > 1 && start > 0,
	}, nil
}

func itemID(it ports.HistoryItem) []byte {
	if it.Entry != nil {
		return it.Entry.ID[:]
	}
	return it.Settlement.ID[:]
}
