package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"payvia/internal/adapter/storage/memory"
	"payvia/internal/core/domain"
	"payvia/internal/core/ports"
	"payvia/internal/core/ports/mocks"
	"payvia/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeRegistry resolves a fixed adapter set without a network in sight.
type fakeRegistry struct {
	adapters map[string]ports.ProviderAdapter
}

func (r *fakeRegistry) Adapter(channelID string) (ports.ProviderAdapter, bool) {
	a, ok := r.adapters[channelID]
	return a, ok
}

func (r *fakeRegistry) ChannelIDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// fakeCache is an in-memory ports.DispatchCache.
type fakeCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{items: make(map[string][]byte)} }

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[key], nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

type settlementTestDeps struct {
	svc     *SettlementServiceImpl
	ledger  *LedgerServiceImpl
	store   *memory.SettlementStore
	adapter *mocks.MockProviderAdapter
	cache   *fakeCache
	acct    *domain.Account
	ctrl    *gomock.Controller
}

func setupSettlementService(t *testing.T) *settlementTestDeps {
	t.Helper()
	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockProviderAdapter(ctrl)
	ledgerStore := memory.NewLedgerStore()
	ledger := NewLedgerService(ledgerStore, zerolog.Nop())
	store := memory.NewSettlementStore()
	cache := newFakeCache()
	registry := &fakeRegistry{adapters: map[string]ports.ProviderAdapter{
		"mtn_momo": adapter,
		"bank":     adapter,
	}}

	svc := NewSettlementService(store, ledger, testQuoteService(), registry, cache, 2, zerolog.Nop())

	acct, err := ledger.OpenAccount(context.Background(), uuid.New())
	require.NoError(t, err)
	_, err = ledger.Deposit(context.Background(), acct.ID, decimal.NewFromInt(1000))
	require.NoError(t, err)

	return &settlementTestDeps{
		svc:     svc,
		ledger:  ledger,
		store:   store,
		adapter: adapter,
		cache:   cache,
		acct:    acct,
		ctrl:    ctrl,
	}
}

func withdrawalInput(acct uuid.UUID) ports.SettlementInput {
	return ports.SettlementInput{
		AccountID:   acct,
		Kind:        domain.SettlementKindWithdrawal,
		Amount:      decimal.NewFromInt(100),
		ChannelID:   "mtn_momo",
		Destination: "256772123456",
	}
}

func (d *settlementTestDeps) balance(t *testing.T) *ports.Balance {
	t.Helper()
	bal, err := d.ledger.Balance(context.Background(), d.acct.ID)
	require.NoError(t, err)
	return bal
}

// ==================== ReserveAndQuote ====================

func TestSettlementService_ReserveAndQuote_Success(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	d.adapter.EXPECT().ValidateDestination("256772123456").Return(true)

	req, err := d.svc.ReserveAndQuote(context.Background(), withdrawalInput(d.acct.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatePending, req.State)
	assert.True(t, req.Fee.Equal(dec("1")))
	assert.True(t, req.PayoutAmount.Equal(dec("376200"))) // (100-1)*3800
	assert.Equal(t, "UGX", req.PayoutCurrency)
	assert.NotEqual(t, uuid.Nil, req.ReservationID)

	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("900")))
	assert.True(t, bal.Reserved.Equal(dec("100")))
}

func TestSettlementService_ReserveAndQuote_UnsupportedChannel(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	input := withdrawalInput(d.acct.ID)
	input.ChannelID = "western_union"
	_, err := d.svc.ReserveAndQuote(context.Background(), input)
	assert.Equal(t, "STL_001", appCode(t, err))

	// Validation precedes any ledger mutation.
	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestSettlementService_ReserveAndQuote_InvalidDestination(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	d.adapter.EXPECT().ValidateDestination("not-a-msisdn").Return(false)

	input := withdrawalInput(d.acct.ID)
	input.Destination = "not-a-msisdn"
	_, err := d.svc.ReserveAndQuote(context.Background(), input)
	assert.Equal(t, "STL_002", appCode(t, err))

	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestSettlementService_ReserveAndQuote_InsufficientFunds(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	d.adapter.EXPECT().ValidateDestination(gomock.Any()).Return(true)

	input := withdrawalInput(d.acct.ID)
	input.Amount = decimal.NewFromInt(1001)
	_, err := d.svc.ReserveAndQuote(context.Background(), input)
	assert.Equal(t, "LED_001", appCode(t, err))

	// The refused attempt is recorded as a terminal request holding no
	// reservation, and the balance is untouched.
	requests, err := d.store.ListByAccount(context.Background(), d.acct.ID)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, domain.SettlementStateFailed, requests[0].State)
	assert.Equal(t, "insufficient funds", requests[0].FailureReason)
	assert.Equal(t, uuid.Nil, requests[0].ReservationID)
	require.NotNil(t, requests[0].ResolvedAt)

	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestSettlementService_ReserveAndQuote_BillPaymentNeedsBillType(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	d.adapter.EXPECT().ValidateDestination(gomock.Any()).Return(true).AnyTimes()

	input := withdrawalInput(d.acct.ID)
	input.Kind = domain.SettlementKindBillPayment
	_, err := d.svc.ReserveAndQuote(context.Background(), input)
	assert.Equal(t, "SYS_002", appCode(t, err))

	input.BillType = "yaka_electricity"
	req, err := d.svc.ReserveAndQuote(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "yaka_electricity", req.BillType)
}

// ==================== Dispatch ====================

func (d *settlementTestDeps) createPending(t *testing.T) *domain.SettlementRequest {
	t.Helper()
	d.adapter.EXPECT().ValidateDestination(gomock.Any()).Return(true)
	req, err := d.svc.ReserveAndQuote(context.Background(), withdrawalInput(d.acct.ID))
	require.NoError(t, err)
	return req
}

func TestSettlementService_Dispatch_Success(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)

	d.adapter.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, send ports.SendRequest) (string, error) {
			// The request id is the idempotency key handed to the provider.
			assert.Equal(t, req.ID, send.RequestID)
			assert.Equal(t, "256772123456", send.Destination)
			assert.True(t, send.Amount.Equal(req.PayoutAmount))
			assert.Equal(t, "UGX", send.Currency)
			return "mtn-ref-001", nil
		})

	dispatched, err := d.svc.Dispatch(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateDispatched, dispatched.State)
	assert.Equal(t, "mtn-ref-001", dispatched.ProviderRef)
	assert.NotNil(t, dispatched.DispatchedAt)

	// Funds stay reserved until the provider confirms.
	bal := d.balance(t)
	assert.True(t, bal.Reserved.Equal(dec("100")))
}

func TestSettlementService_Dispatch_Idempotent(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)

	d.adapter.EXPECT().Send(gomock.Any(), gomock.Any()).Return("mtn-ref-002", nil).Times(1)

	first, err := d.svc.Dispatch(context.Background(), req.ID)
	require.NoError(t, err)

	// The retry must replay the outcome, not send again.
	second, err := d.svc.Dispatch(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ProviderRef, second.ProviderRef)
	assert.Equal(t, domain.SettlementStateDispatched, second.State)
}

func TestSettlementService_Dispatch_RetriesTransientFailure(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)

	gomock.InOrder(
		d.adapter.EXPECT().Send(gomock.Any(), gomock.Any()).
			Return("", apperror.ErrProviderUnavailable(assert.AnError)),
		d.adapter.EXPECT().Send(gomock.Any(), gomock.Any()).
			Return("mtn-ref-003", nil),
	)

	dispatched, err := d.svc.Dispatch(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "mtn-ref-003", dispatched.ProviderRef)
}

func TestSettlementService_Dispatch_RejectedFailsAndReleases(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)

	d.adapter.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return("", apperror.ErrProviderRejected("destination account blocked"))

	_, err := d.svc.Dispatch(context.Background(), req.ID)
	require.Error(t, err)
	assert.Equal(t, "PRV_002", appCode(t, err))

	got, err := d.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateFailed, got.State)
	assert.NotEmpty(t, got.FailureReason)

	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestSettlementService_Dispatch_UnavailableFailsAndReleases(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)

	d.adapter.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return("", apperror.ErrProviderUnavailable(assert.AnError)).
		Times(3) // initial attempt plus 2 retries

	_, err := d.svc.Dispatch(context.Background(), req.ID)
	require.Error(t, err)
	assert.Equal(t, "PRV_001", appCode(t, err))

	// Exhausted retries end the request; nothing stays reserved behind it.
	got, err := d.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateFailed, got.State)
	assert.Equal(t, "provider unreachable, dispatch retries exhausted", got.FailureReason)

	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestSettlementService_Dispatch_ReplayReflectsPolledOutcome(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)
	d.dispatch(t, req, "mtn-ref-010")

	d.adapter.EXPECT().CheckStatus(gomock.Any(), "mtn-ref-010").
		Return(ports.ProviderStatusSuccess, nil)
	polled, err := d.svc.PollStatus(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SettlementStateCompleted, polled.State)

	// A repeat dispatch replays the outcome as it stands now, not the
	// snapshot taken when the send went out.
	replayed, err := d.svc.Dispatch(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateCompleted, replayed.State)
}

func TestSettlementService_Dispatch_CancelledRequest(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)

	_, err := d.svc.Cancel(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = d.svc.Dispatch(context.Background(), req.ID)
	require.Error(t, err)
	assert.Equal(t, "STL_004", appCode(t, err))
}

// ==================== PollStatus ====================

func (d *settlementTestDeps) dispatch(t *testing.T, req *domain.SettlementRequest, ref string) *domain.SettlementRequest {
	t.Helper()
	d.adapter.EXPECT().Send(gomock.Any(), gomock.Any()).Return(ref, nil)
	dispatched, err := d.svc.Dispatch(context.Background(), req.ID)
	require.NoError(t, err)
	return dispatched
}

func TestSettlementService_PollStatus_PendingMovesToProcessing(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.dispatch(t, d.createPending(t), "ref-a")

	d.adapter.EXPECT().CheckStatus(gomock.Any(), "ref-a").Return(ports.ProviderStatusPending, nil)

	polled, err := d.svc.PollStatus(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateProcessing, polled.State)
	assert.NotNil(t, polled.AcknowledgedAt)
}

func TestSettlementService_PollStatus_SuccessCommits(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.dispatch(t, d.createPending(t), "ref-b")

	d.adapter.EXPECT().CheckStatus(gomock.Any(), "ref-b").Return(ports.ProviderStatusSuccess, nil)

	polled, err := d.svc.PollStatus(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateCompleted, polled.State)
	assert.NotNil(t, polled.ResolvedAt)

	// The reserved 100 USDC is permanently deducted.
	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("900")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestSettlementService_PollStatus_FailureReleases(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.dispatch(t, d.createPending(t), "ref-c")

	d.adapter.EXPECT().CheckStatus(gomock.Any(), "ref-c").Return(ports.ProviderStatusFailure, nil)

	polled, err := d.svc.PollStatus(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateFailed, polled.State)

	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestSettlementService_PollStatus_TerminalIsNoop(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.dispatch(t, d.createPending(t), "ref-d")

	d.adapter.EXPECT().CheckStatus(gomock.Any(), "ref-d").Return(ports.ProviderStatusSuccess, nil).Times(1)

	_, err := d.svc.PollStatus(context.Background(), req.ID)
	require.NoError(t, err)

	// Polling a completed request never calls the provider again.
	polled, err := d.svc.PollStatus(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateCompleted, polled.State)

	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("900")))
}

func TestSettlementService_PollStatus_ProviderErrorCountsAttempt(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.dispatch(t, d.createPending(t), "ref-e")

	d.adapter.EXPECT().CheckStatus(gomock.Any(), "ref-e").
		Return(ports.ProviderStatus(""), apperror.ErrProviderUnavailable(assert.AnError))

	_, err := d.svc.PollStatus(context.Background(), req.ID)
	require.Error(t, err)

	got, _ := d.svc.Get(context.Background(), req.ID)
	assert.Equal(t, 1, got.PollAttempts)
	assert.Equal(t, domain.SettlementStateDispatched, got.State)
}

// ==================== Cancel ====================

func TestSettlementService_Cancel_PendingReleasesFunds(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)

	cancelled, err := d.svc.Cancel(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateCancelled, cancelled.State)
	assert.NotNil(t, cancelled.ResolvedAt)

	bal := d.balance(t)
	assert.True(t, bal.Available.Equal(dec("1000")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestSettlementService_Cancel_DispatchedRefused(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.dispatch(t, d.createPending(t), "ref-f")

	_, err := d.svc.Cancel(context.Background(), req.ID)
	require.Error(t, err)
	assert.Equal(t, "STL_003", appCode(t, err))

	// The in-flight money is untouched.
	bal := d.balance(t)
	assert.True(t, bal.Reserved.Equal(dec("100")))
}

func TestSettlementService_Cancel_TerminalRefused(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()
	req := d.createPending(t)

	_, err := d.svc.Cancel(context.Background(), req.ID)
	require.NoError(t, err)

	_, err = d.svc.Cancel(context.Background(), req.ID)
	require.Error(t, err)
	assert.Equal(t, "STL_004", appCode(t, err))
}
