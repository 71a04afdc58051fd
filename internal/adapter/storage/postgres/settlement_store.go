package postgres

import (
	"context"
	"errors"
	"fmt"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SettlementStore implements ports.SettlementStore. Updates carry the state
// the caller read as an optimistic guard; a concurrent transition makes the
// UPDATE match zero rows.
type SettlementStore struct {
	pool Pool
}

// NewSettlementStore creates a new PostgreSQL-backed SettlementStore.
func NewSettlementStore(pool Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

const settlementColumns = `id, account_id, kind, amount, channel_id, destination, bill_type,
	fee, payout_amount, payout_currency, rate, reservation_id, state, provider_ref,
	failure_reason, poll_attempts, created_at, dispatched_at, acknowledged_at, resolved_at`

func scanSettlement(row pgx.Row) (*domain.SettlementRequest, error) {
	r := &domain.SettlementRequest{}
	err := row.Scan(
		&r.ID, &r.AccountID, &r.Kind, &r.Amount, &r.ChannelID, &r.Destination, &r.BillType,
		&r.Fee, &r.PayoutAmount, &r.PayoutCurrency, &r.Rate, &r.ReservationID, &r.State,
		&r.ProviderRef, &r.FailureReason, &r.PollAttempts,
		&r.CreatedAt, &r.DispatchedAt, &r.AcknowledgedAt, &r.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Create inserts a new settlement request.
func (s *SettlementStore) Create(ctx context.Context, r *domain.SettlementRequest) error {
	query := `INSERT INTO settlement_requests (` + settlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.AccountID, r.Kind, r.Amount, r.ChannelID, r.Destination, r.BillType,
		r.Fee, r.PayoutAmount, r.PayoutCurrency, r.Rate, r.ReservationID, r.State,
		r.ProviderRef, r.FailureReason, r.PollAttempts,
		r.CreatedAt, r.DispatchedAt, r.AcknowledgedAt, r.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement request: %w", err)
	}
	return nil
}

// Get fetches a settlement request by ID. Returns nil, nil if absent.
func (s *SettlementStore) Get(ctx context.Context, id uuid.UUID) (*domain.SettlementRequest, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlement_requests WHERE id = $1`

	r, err := scanSettlement(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settlement request: %w", err)
	}
	return r, nil
}

// Update persists the request guarded by the state the caller read.
func (s *SettlementStore) Update(ctx context.Context, r *domain.SettlementRequest, prev domain.SettlementState) error {
	query := `UPDATE settlement_requests SET
		state = $1, provider_ref = $2, failure_reason = $3, poll_attempts = $4,
		dispatched_at = $5, acknowledged_at = $6, resolved_at = $7
		WHERE id = $8 AND state = $9`

	tag, err := s.pool.Exec(ctx, query,
		r.State, r.ProviderRef, r.FailureReason, r.PollAttempts,
		r.DispatchedAt, r.AcknowledgedAt, r.ResolvedAt,
		r.ID, prev,
	)
	if err != nil {
		return fmt.Errorf("update settlement request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settlement request %s: state is no longer %s", r.ID, prev)
	}
	return nil
}

// ListByAccount returns all requests for an account, oldest first.
func (s *SettlementStore) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.SettlementRequest, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlement_requests
		WHERE account_id = $1 ORDER BY created_at ASC, id ASC`
	return s.list(ctx, query, accountID)
}

// ListByState returns all requests in a given state, oldest first.
func (s *SettlementStore) ListByState(ctx context.Context, state domain.SettlementState) ([]domain.SettlementRequest, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlement_requests
		WHERE state = $1 ORDER BY created_at ASC, id ASC`
	return s.list(ctx, query, state)
}

func (s *SettlementStore) list(ctx context.Context, query string, arg any) ([]domain.SettlementRequest, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list settlement requests: %w", err)
	}
	defer rows.Close()

	var out []domain.SettlementRequest
	for rows.Next() {
		r, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement request: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement requests: %w", err)
	}
	return out, nil
}
