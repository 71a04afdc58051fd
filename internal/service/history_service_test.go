package service

import (
	"context"
	"testing"
	"time"

	"payvia/internal/adapter/storage/memory"
	"payvia/internal/core/domain"
	"payvia/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type historyTestDeps struct {
	svc         *HistoryServiceImpl
	ledgerStore *memory.LedgerStore
	setStore    *memory.SettlementStore
	acct        *domain.Account
}

func setupHistoryService(t *testing.T) *historyTestDeps {
	t.Helper()
	ledgerStore := memory.NewLedgerStore()
	setStore := memory.NewSettlementStore()

	acct := &domain.Account{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Currency:  domain.StablecoinCurrency,
		Available: decimal.NewFromInt(1000),
		Status:    domain.AccountStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, ledgerStore.CreateAccount(context.Background(), acct))

	return &historyTestDeps{
		svc:         NewHistoryService(ledgerStore, setStore, zerolog.Nop()),
		ledgerStore: ledgerStore,
		setStore:    setStore,
		acct:        acct,
	}
}

func (d *historyTestDeps) addEntry(t *testing.T, at time.Time) *domain.LedgerEntry {
	t.Helper()
	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: d.acct.ID,
		Kind:      domain.EntryKindDeposit,
		Amount:    decimal.NewFromInt(10),
		Currency:  domain.StablecoinCurrency,
		CreatedAt: at,
	}
	require.NoError(t, d.ledgerStore.ApplyDeposit(context.Background(), entry))
	return entry
}

func (d *historyTestDeps) addSettlement(t *testing.T, at time.Time) *domain.SettlementRequest {
	t.Helper()
	req := &domain.SettlementRequest{
		ID:        uuid.New(),
		AccountID: d.acct.ID,
		Kind:      domain.SettlementKindWithdrawal,
		Amount:    decimal.NewFromInt(50),
		ChannelID: "mtn_momo",
		State:     domain.SettlementStatePending,
		CreatedAt: at,
	}
	require.NoError(t, d.setStore.Create(context.Background(), req))
	return req
}

func TestHistoryService_MergesBothSourcesNewestFirst(t *testing.T) {
	d := setupHistoryService(t)
	base := time.Now().UTC()

	oldest := d.addEntry(t, base.Add(-3*time.Hour))
	middle := d.addSettlement(t, base.Add(-2*time.Hour))
	newest := d.addEntry(t, base.Add(-1*time.Hour))

	page, err := d.svc.List(context.Background(), d.acct.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	assert.Equal(t, ports.HistoryItemEntry, page.Items[0].Type)
	assert.Equal(t, newest.ID, page.Items[0].Entry.ID)
	assert.Equal(t, ports.HistoryItemSettlement, page.Items[1].Type)
	assert.Equal(t, middle.ID, page.Items[1].Settlement.ID)
	assert.Equal(t, oldest.ID, page.Items[2].Entry.ID)
}

func TestHistoryService_TimestampTieBreaksById(t *testing.T) {
	d := setupHistoryService(t)
	at := time.Now().UTC().Truncate(time.Second)

	d.addEntry(t, at)
	d.addEntry(t, at)
	d.addSettlement(t, at)

	first, err := d.svc.List(context.Background(), d.acct.ID, 1, 10)
	require.NoError(t, err)
	second, err := d.svc.List(context.Background(), d.acct.ID, 1, 10)
	require.NoError(t, err)

	require.Len(t, first.Items, 3)
	for i := range first.Items {
		assert.Equal(t, itemID(first.Items[i]), itemID(second.Items[i]), "ordering must be stable across calls")
	}
}

func TestHistoryService_Pagination(t *testing.T) {
	d := setupHistoryService(t)
	base := time.Now().UTC()
	for i := 0; i < 7; i++ {
		d.addEntry(t, base.Add(time.Duration(i)*time.Minute))
	}

	page1, err := d.svc.List(context.Background(), d.acct.ID, 1, 3)
	require.NoError(t, err)
	assert.Len(t, page1.Items, 3)
	assert.Equal(t, 3, page1.TotalPages)
	assert.True(t, page1.HasNext)
	assert.False(t, page1.HasPrev)

	page3, err := d.svc.List(context.Background(), d.acct.ID, 3, 3)
	require.NoError(t, err)
	assert.Len(t, page3.Items, 1)
	assert.False(t, page3.HasNext)
	assert.True(t, page3.HasPrev)

	// No overlaps and no gaps across the three pages.
	seen := make(map[string]bool)
	for p := 1; p <= 3; p++ {
		page, err := d.svc.List(context.Background(), d.acct.ID, p, 3)
		require.NoError(t, err)
		for _, it := range page.Items {
			key := string(itemID(it))
			assert.False(t, seen[key], "item appeared on two pages")
			seen[key] = true
		}
	}
	assert.Len(t, seen, 7)
}

func TestHistoryService_PageBeyondEndIsEmpty(t *testing.T) {
	d := setupHistoryService(t)
	d.addEntry(t, time.Now().UTC())

	page, err := d.svc.List(context.Background(), d.acct.ID, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestHistoryService_EmptyAccount(t *testing.T) {
	d := setupHistoryService(t)

	page, err := d.svc.List(context.Background(), d.acct.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasNext)
}

func TestHistoryService_UnknownAccount(t *testing.T) {
	d := setupHistoryService(t)

	_, err := d.svc.List(context.Background(), uuid.New(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, "LED_004", appCode(t, err))
}

func TestHistoryService_ClampsPageSize(t *testing.T) {
	d := setupHistoryService(t)
	d.addEntry(t, time.Now().UTC())

	page, err := d.svc.List(context.Background(), d.acct.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, defaultPageSize, page.PageSize)

	page, err = d.svc.List(context.Background(), d.acct.ID, 1, 10_000)
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.PageSize)
}
