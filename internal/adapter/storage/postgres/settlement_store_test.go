package postgres

import (
	"context"
	"testing"
	"time"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSettlement() *domain.SettlementRequest {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.SettlementRequest{
		ID:             uuid.New(),
		AccountID:      uuid.New(),
		Kind:           domain.SettlementKindWithdrawal,
		Amount:         decimal.NewFromInt(100),
		ChannelID:      "mtn_momo",
		Destination:    "256772123456",
		Fee:            decimal.NewFromInt(1),
		PayoutAmount:   decimal.NewFromInt(376200),
		PayoutCurrency: "UGX",
		Rate:           decimal.NewFromInt(3800),
		ReservationID:  uuid.New(),
		State:          domain.SettlementStatePending,
		CreatedAt:      now,
	}
}

func settlementRow(r *domain.SettlementRequest) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "account_id", "kind", "amount", "channel_id", "destination", "bill_type",
		"fee", "payout_amount", "payout_currency", "rate", "reservation_id", "state",
		"provider_ref", "failure_reason", "poll_attempts",
		"created_at", "dispatched_at", "acknowledged_at", "resolved_at",
	}).AddRow(
		r.ID, r.AccountID, r.Kind, r.Amount, r.ChannelID, r.Destination, r.BillType,
		r.Fee, r.PayoutAmount, r.PayoutCurrency, r.Rate, r.ReservationID, r.State,
		r.ProviderRef, r.FailureReason, r.PollAttempts,
		r.CreatedAt, r.DispatchedAt, r.AcknowledgedAt, r.ResolvedAt,
	)
}

func TestSettlementStore_CreateAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSettlementStore(mock)
	r := newTestSettlement()

	mock.ExpectExec("INSERT INTO settlement_requests").
		WithArgs(r.ID, r.AccountID, r.Kind, r.Amount, r.ChannelID, r.Destination, r.BillType,
			r.Fee, r.PayoutAmount, r.PayoutCurrency, r.Rate, r.ReservationID, r.State,
			r.ProviderRef, r.FailureReason, r.PollAttempts,
			r.CreatedAt, r.DispatchedAt, r.AcknowledgedAt, r.ResolvedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), r))

	mock.ExpectQuery("SELECT .+ FROM settlement_requests WHERE id").
		WithArgs(r.ID).
		WillReturnRows(settlementRow(r))

	got, err := store.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, domain.SettlementStatePending, got.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementStore_Get_MissReturnsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSettlementStore(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM settlement_requests WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := store.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSettlementStore_Update_OptimisticGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSettlementStore(mock)
	r := newTestSettlement()
	now := time.Now().UTC()
	r.State = domain.SettlementStateDispatched
	r.ProviderRef = "mtn-ref-1"
	r.DispatchedAt = &now

	// Guard matches: one row updated.
	mock.ExpectExec("UPDATE settlement_requests SET").
		WithArgs(r.State, r.ProviderRef, r.FailureReason, r.PollAttempts,
			r.DispatchedAt, r.AcknowledgedAt, r.ResolvedAt,
			r.ID, domain.SettlementStatePending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Update(context.Background(), r, domain.SettlementStatePending))

	// Guard mismatch: zero rows, update rejected.
	mock.ExpectExec("UPDATE settlement_requests SET").
		WithArgs(r.State, r.ProviderRef, r.FailureReason, r.PollAttempts,
			r.DispatchedAt, r.AcknowledgedAt, r.ResolvedAt,
			r.ID, domain.SettlementStatePending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Update(context.Background(), r, domain.SettlementStatePending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer PENDING")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementStore_ListByState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSettlementStore(mock)
	r1, r2 := newTestSettlement(), newTestSettlement()
	r1.State, r2.State = domain.SettlementStateDispatched, domain.SettlementStateDispatched

	rows := settlementRow(r1)
	rows.AddRow(
		r2.ID, r2.AccountID, r2.Kind, r2.Amount, r2.ChannelID, r2.Destination, r2.BillType,
		r2.Fee, r2.PayoutAmount, r2.PayoutCurrency, r2.Rate, r2.ReservationID, r2.State,
		r2.ProviderRef, r2.FailureReason, r2.PollAttempts,
		r2.CreatedAt, r2.DispatchedAt, r2.AcknowledgedAt, r2.ResolvedAt,
	)

	mock.ExpectQuery("SELECT .+ FROM settlement_requests").
		WithArgs(domain.SettlementStateDispatched).
		WillReturnRows(rows)

	got, err := store.ListByState(context.Background(), domain.SettlementStateDispatched)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
