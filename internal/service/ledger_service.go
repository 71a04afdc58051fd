package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"payvia/internal/core/domain"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const lockStripes = 64

// accountLocks serializes mutating ledger operations per account. Locks are
// striped by account id hash, so unrelated accounts rarely contend and the
// lock table stays bounded.
type accountLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *accountLocks) stripe(id uuid.UUID) int {
	h := fnv.New32a()
	h.Write(id[:])
	return int(h.Sum32() % lockStripes)
}

func (l *accountLocks) Lock(id uuid.UUID) func() {
	i := l.stripe(id)
	l.stripes[i].Lock()
	return l.stripes[i].Unlock
}

// LockPair acquires the stripes for both accounts in index order, so two
// concurrent transfers between the same pair can never deadlock.
func (l *accountLocks) LockPair(a, b uuid.UUID) func() {
	i, j := l.stripe(a), l.stripe(b)
	if i == j {
		l.stripes[i].Lock()
		return l.stripes[i].Unlock
	}
	if i > j {
		i, j = j, i
	}
	l.stripes[i].Lock()
	l.stripes[j].Lock()
	first, second := i, j
	return func() {
		l.stripes[second].Unlock()
		l.stripes[first].Unlock()
	}
}

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	store ports.LedgerStore
	locks accountLocks
	log   zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(store ports.LedgerStore, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{store: store, log: log}
}

// OpenAccount creates a zero-balance stablecoin account for a user.
func (s *LedgerServiceImpl) OpenAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	now := time.Now().UTC()
	acct := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  domain.StablecoinCurrency,
		Available: decimal.Zero,
		Reserved:  decimal.Zero,
		Status:    domain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create account: %w", err))
	}
	s.log.Info().Str("account_id", acct.ID.String()).Str("user_id", userID.String()).Msg("account opened")
	return acct, nil
}

func (s *LedgerServiceImpl) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, s.mapStoreErr(err, "get account")
	}
	return acct, nil
}

func (s *LedgerServiceImpl) AccountForUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	acct, err := s.store.GetAccountByUser(ctx, userID)
	if err != nil {
		return nil, s.mapStoreErr(err, "get account by user")
	}
	return acct, nil
}

// Reserve moves amount from available to reserved. The full check-then-act
// runs under the account lock so two competing reservations can never both
// pass the balance check.
func (s *LedgerServiceImpl) Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.Reservation, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, s.mapStoreErr(err, "reserve")
	}
	if !acct.IsActive() {
		return nil, apperror.ErrAccountClosed()
	}
	if acct.Available.LessThan(amount) {
		return nil, apperror.ErrInsufficientFunds(acct.Available, amount)
	}

	now := time.Now().UTC()
	res := &domain.Reservation{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount,
		Status:    domain.ReservationStatusOpen,
		CreatedAt: now,
	}
	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     accountID,
		Kind:          domain.EntryKindReserve,
		Amount:        amount.Neg(),
		Currency:      acct.Currency,
		CorrelationID: &res.ID,
		CreatedAt:     now,
	}
	if err := s.store.ApplyReserve(ctx, res, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("apply reserve: %w", err))
	}

	s.log.Info().
		Str("account_id", accountID.String()).
		Str("reservation_id", res.ID.String()).
		Str("amount", amount.String()).
		Msg("funds reserved")
	return res, nil
}

// Commit permanently deducts a reserved amount. Committing a reservation that
// is unknown or already resolved fails with UnknownReservation, which makes
// commit exactly-once under retries.
func (s *LedgerServiceImpl) Commit(ctx context.Context, reservationID uuid.UUID) error {
	return s.resolve(ctx, reservationID, domain.ReservationStatusCommitted)
}

// Release returns a reserved amount to available. Same exactly-once contract
// as Commit.
func (s *LedgerServiceImpl) Release(ctx context.Context, reservationID uuid.UUID) error {
	return s.resolve(ctx, reservationID, domain.ReservationStatusReleased)
}

func (s *LedgerServiceImpl) resolve(ctx context.Context, reservationID uuid.UUID, outcome domain.ReservationStatus) error {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return s.mapStoreErr(err, "resolve reservation")
	}

	unlock := s.locks.Lock(res.AccountID)
	defer unlock()

	kind := domain.EntryKindCommit
	amount := res.Amount.Neg()
	if outcome == domain.ReservationStatusReleased {
		kind = domain.EntryKindRelease
		amount = res.Amount
	}
	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     res.AccountID,
		Kind:          kind,
		Amount:        amount,
		Currency:      domain.StablecoinCurrency,
		CorrelationID: &res.ID,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.store.ResolveReservation(ctx, reservationID, outcome, entry); err != nil {
		return s.mapStoreErr(err, "resolve reservation")
	}

	s.log.Info().
		Str("reservation_id", reservationID.String()).
		Str("outcome", string(outcome)).
		Msg("reservation resolved")
	return nil
}

// Transfer atomically moves amount between two internal accounts. Both stripes
// are held for the duration so the debit check and the double-entry write are
// one serialized step.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, fromAccount, toAccount uuid.UUID, amount decimal.Decimal) ([]domain.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}
	if fromAccount == toAccount {
		return nil, apperror.Validation("cannot transfer to the same account")
	}

	unlock := s.locks.LockPair(fromAccount, toAccount)
	defer unlock()

	src, err := s.store.GetAccount(ctx, fromAccount)
	if err != nil {
		return nil, s.mapStoreErr(err, "transfer source")
	}
	dst, err := s.store.GetAccount(ctx, toAccount)
	if err != nil {
		return nil, s.mapStoreErr(err, "transfer destination")
	}
	if !src.IsActive() || !dst.IsActive() {
		return nil, apperror.ErrAccountClosed()
	}
	if src.Available.LessThan(amount) {
		return nil, apperror.ErrInsufficientFunds(src.Available, amount)
	}

	now := time.Now().UTC()
	correlation := uuid.New()
	out := domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     fromAccount,
		Kind:          domain.EntryKindTransferOut,
		Amount:        amount.Neg(),
		Currency:      src.Currency,
		CorrelationID: &correlation,
		Counterpart:   &toAccount,
		CreatedAt:     now,
	}
	in := domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     toAccount,
		Kind:          domain.EntryKindTransferIn,
		Amount:        amount,
		Currency:      dst.Currency,
		CorrelationID: &correlation,
		Counterpart:   &fromAccount,
		CreatedAt:     now,
	}
	if err := s.store.ApplyTransfer(ctx, &out, &in); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("apply transfer: %w", err))
	}

	s.log.Info().
		Str("from", fromAccount.String()).
		Str("to", toAccount.String()).
		Str("amount", amount.String()).
		Msg("transfer applied")
	return []domain.LedgerEntry{out, in}, nil
}

// Deposit credits available balance.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, s.mapStoreErr(err, "deposit")
	}
	if !acct.IsActive() {
		return nil, apperror.ErrAccountClosed()
	}

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      domain.EntryKindDeposit,
		Amount:    amount,
		Currency:  acct.Currency,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.ApplyDeposit(ctx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("apply deposit: %w", err))
	}

	s.log.Info().
		Str("account_id", accountID.String()).
		Str("amount", amount.String()).
		Msg("deposit applied")
	return entry, nil
}

func (s *LedgerServiceImpl) Balance(ctx context.Context, accountID uuid.UUID) (*ports.Balance, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, s.mapStoreErr(err, "balance")
	}
	return &ports.Balance{Available: acct.Available, Reserved: acct.Reserved}, nil
}

func (s *LedgerServiceImpl) Entries(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, s.mapStoreErr(err, "entries")
	}
	entries, err := s.store.ListEntries(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list entries: %w", err))
	}
	return entries, nil
}

func (s *LedgerServiceImpl) mapStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return apperror.ErrNotFound("account")
	case errors.Is(err, domain.ErrUnknownReservation):
		return apperror.ErrUnknownReservation()
	default:
		return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
	}
}
