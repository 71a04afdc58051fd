package memory

import (
	"context"
	"testing"
	"time"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(t *testing.T, store *LedgerStore, available int64) *domain.Account {
	t.Helper()
	a := &domain.Account{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Currency:  domain.StablecoinCurrency,
		Available: decimal.NewFromInt(available),
		Reserved:  decimal.Zero,
		Status:    domain.AccountStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return a
}

func TestLedgerStore_ReserveMovesBalance(t *testing.T) {
	store := NewLedgerStore()
	acct := newAccount(t, store, 100)

	res := &domain.Reservation{
		ID:        uuid.New(),
		AccountID: acct.ID,
		Amount:    decimal.NewFromInt(40),
		Status:    domain.ReservationStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: acct.ID,
		Kind:      domain.EntryKindReserve,
		Amount:    decimal.NewFromInt(-40),
		Currency:  acct.Currency,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.ApplyReserve(context.Background(), res, entry))

	got, err := store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(decimal.NewFromInt(60)))
	assert.True(t, got.Reserved.Equal(decimal.NewFromInt(40)))
	assert.True(t, got.Total().Equal(decimal.NewFromInt(100)))
}

func TestLedgerStore_ResolveReservation_ExactlyOnce(t *testing.T) {
	store := NewLedgerStore()
	acct := newAccount(t, store, 100)

	res := &domain.Reservation{
		ID:        uuid.New(),
		AccountID: acct.ID,
		Amount:    decimal.NewFromInt(30),
		Status:    domain.ReservationStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	reserveEntry := &domain.LedgerEntry{
		ID: uuid.New(), AccountID: acct.ID, Kind: domain.EntryKindReserve,
		Amount: decimal.NewFromInt(-30), Currency: acct.Currency, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.ApplyReserve(context.Background(), res, reserveEntry))

	releaseEntry := &domain.LedgerEntry{
		ID: uuid.New(), AccountID: acct.ID, Kind: domain.EntryKindRelease,
		Amount: decimal.NewFromInt(30), Currency: acct.Currency, CreatedAt: time.Now().UTC(),
	}
	resolved, err := store.ResolveReservation(context.Background(), res.ID, domain.ReservationStatusReleased, releaseEntry)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusReleased, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	// Second resolve of the same reservation must fail.
	_, err = store.ResolveReservation(context.Background(), res.ID, domain.ReservationStatusCommitted, releaseEntry)
	assert.ErrorIs(t, err, domain.ErrUnknownReservation)

	got, err := store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.Reserved.IsZero())
}

func TestLedgerStore_CommitDeductsReserved(t *testing.T) {
	store := NewLedgerStore()
	acct := newAccount(t, store, 50)

	res := &domain.Reservation{
		ID: uuid.New(), AccountID: acct.ID, Amount: decimal.NewFromInt(50),
		Status: domain.ReservationStatusOpen, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.ApplyReserve(context.Background(), res, &domain.LedgerEntry{
		ID: uuid.New(), AccountID: acct.ID, Kind: domain.EntryKindReserve,
		Amount: decimal.NewFromInt(-50), Currency: acct.Currency, CreatedAt: time.Now().UTC(),
	}))

	_, err := store.ResolveReservation(context.Background(), res.ID, domain.ReservationStatusCommitted, &domain.LedgerEntry{
		ID: uuid.New(), AccountID: acct.ID, Kind: domain.EntryKindCommit,
		Amount: decimal.NewFromInt(-50), Currency: acct.Currency, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	got, err := store.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Available.IsZero())
	assert.True(t, got.Reserved.IsZero())
}

func TestLedgerStore_TransferWritesBothSides(t *testing.T) {
	store := NewLedgerStore()
	src := newAccount(t, store, 80)
	dst := newAccount(t, store, 5)

	correlation := uuid.New()
	out := &domain.LedgerEntry{
		ID: uuid.New(), AccountID: src.ID, Kind: domain.EntryKindTransferOut,
		Amount: decimal.NewFromInt(-25), Currency: src.Currency,
		CorrelationID: &correlation, Counterpart: &dst.ID, CreatedAt: time.Now().UTC(),
	}
	in := &domain.LedgerEntry{
		ID: uuid.New(), AccountID: dst.ID, Kind: domain.EntryKindTransferIn,
		Amount: decimal.NewFromInt(25), Currency: dst.Currency,
		CorrelationID: &correlation, Counterpart: &src.ID, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.ApplyTransfer(context.Background(), out, in))

	gotSrc, _ := store.GetAccount(context.Background(), src.ID)
	gotDst, _ := store.GetAccount(context.Background(), dst.ID)
	assert.True(t, gotSrc.Available.Equal(decimal.NewFromInt(55)))
	assert.True(t, gotDst.Available.Equal(decimal.NewFromInt(30)))

	srcEntries, _ := store.ListEntries(context.Background(), src.ID)
	dstEntries, _ := store.ListEntries(context.Background(), dst.ID)
	require.Len(t, srcEntries, 1)
	require.Len(t, dstEntries, 1)
	assert.Equal(t, correlation, *srcEntries[0].CorrelationID)
	assert.Equal(t, correlation, *dstEntries[0].CorrelationID)
}

func TestLedgerStore_GetAccount_NotFound(t *testing.T) {
	store := NewLedgerStore()
	_, err := store.GetAccount(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestSettlementStore_UpdateRejectsStaleState(t *testing.T) {
	store := NewSettlementStore()
	req := &domain.SettlementRequest{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		Kind:      domain.SettlementKindWithdrawal,
		Amount:    decimal.NewFromInt(10),
		ChannelID: "mtn_momo",
		State:     domain.SettlementStatePending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), req))

	dispatched := *req
	require.NoError(t, dispatched.Transition(domain.SettlementStateDispatched, time.Now().UTC()))
	require.NoError(t, store.Update(context.Background(), &dispatched, domain.SettlementStatePending))

	// A writer that still believes the request is pending loses.
	cancelled := *req
	_ = cancelled.Transition(domain.SettlementStateCancelled, time.Now().UTC())
	err := store.Update(context.Background(), &cancelled, domain.SettlementStatePending)
	assert.Error(t, err)

	got, err := store.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStateDispatched, got.State)
}

func TestSettlementStore_ListByState(t *testing.T) {
	store := NewSettlementStore()
	acct := uuid.New()
	for i, state := range []domain.SettlementState{
		domain.SettlementStatePending,
		domain.SettlementStateDispatched,
		domain.SettlementStateDispatched,
	} {
		req := &domain.SettlementRequest{
			ID:        uuid.New(),
			AccountID: acct,
			Kind:      domain.SettlementKindWithdrawal,
			Amount:    decimal.NewFromInt(int64(i + 1)),
			ChannelID: "bank",
			State:     state,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, store.Create(context.Background(), req))
	}

	dispatched, err := store.ListByState(context.Background(), domain.SettlementStateDispatched)
	require.NoError(t, err)
	assert.Len(t, dispatched, 2)

	all, err := store.ListByAccount(context.Background(), acct)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUserRepository_PhoneUniqueness(t *testing.T) {
	repo := NewUserRepository()
	u := &domain.User{ID: uuid.New(), Phone: "256772123456", PasswordHash: "x", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(context.Background(), u))

	dup := &domain.User{ID: uuid.New(), Phone: "256772123456", PasswordHash: "y", CreatedAt: time.Now().UTC()}
	assert.Error(t, repo.Create(context.Background(), dup))

	got, err := repo.GetByPhone(context.Background(), "256772123456")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	missing, err := repo.GetByPhone(context.Background(), "256700000000")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.SetVerified(context.Background(), u.ID))
	verified, _ := repo.GetByID(context.Background(), u.ID)
	assert.True(t, verified.Verified)
}
