package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerStore implements ports.LedgerStore. Balance mutations and entry
// appends run inside one transaction per Apply* call; the resolve query's
// status guard is what makes reservation resolution exactly-once under
// concurrent retries.
type LedgerStore struct {
	pool Pool
}

// NewLedgerStore creates a new PostgreSQL-backed LedgerStore.
func NewLedgerStore(pool Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const accountColumns = `id, user_id, currency, available, reserved, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(&a.ID, &a.UserID, &a.Currency, &a.Available, &a.Reserved,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

// CreateAccount inserts a new account.
func (s *LedgerStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (id, user_id, currency, available, reserved, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.UserID, a.Currency, a.Available, a.Reserved,
		a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount fetches an account by ID.
func (s *LedgerStore) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.pool.QueryRow(ctx, query, id))
}

// GetAccountByUser fetches the account owned by a user.
func (s *LedgerStore) GetAccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	return scanAccount(s.pool.QueryRow(ctx, query, userID))
}

// ApplyReserve moves the reservation amount from available to reserved and
// records the open reservation alongside its ledger entry.
func (s *LedgerStore) ApplyReserve(ctx context.Context, r *domain.Reservation, entry *domain.LedgerEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET available = available - $1, reserved = reserved + $1, updated_at = NOW()
		 WHERE id = $2`,
		r.Amount, r.AccountID,
	)
	if err != nil {
		return fmt.Errorf("reserve balance update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reservations (id, account_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.AccountID, r.Amount, r.Status, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	if err := insertEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetReservation fetches a reservation regardless of status.
func (s *LedgerStore) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	query := `SELECT id, account_id, amount, status, created_at, resolved_at
		FROM reservations WHERE id = $1`

	r := &domain.Reservation{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.AccountID, &r.Amount, &r.Status, &r.CreatedAt, &r.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownReservation
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// ResolveReservation flips an open reservation to committed or released and
// applies the balance effect. The status guard in the UPDATE makes a second
// resolve observe zero affected rows and fail with ErrUnknownReservation.
func (s *LedgerStore) ResolveReservation(ctx context.Context, id uuid.UUID, outcome domain.ReservationStatus, entry *domain.LedgerEntry) (*domain.Reservation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin resolve: %w", err)
	}
	defer tx.Rollback(ctx)

	resolvedAt := time.Now().UTC()
	r := &domain.Reservation{}
	err = tx.QueryRow(ctx,
		`UPDATE reservations SET status = $1, resolved_at = $2
		 WHERE id = $3 AND status = $4
		 RETURNING id, account_id, amount, status, created_at, resolved_at`,
		outcome, resolvedAt, id, domain.ReservationStatusOpen,
	).Scan(&r.ID, &r.AccountID, &r.Amount, &r.Status, &r.CreatedAt, &r.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownReservation
		}
		return nil, fmt.Errorf("resolve reservation: %w", err)
	}

	var balanceQuery string
	switch outcome {
	case domain.ReservationStatusCommitted:
		balanceQuery = `UPDATE accounts SET reserved = reserved - $1, updated_at = NOW() WHERE id = $2`
	case domain.ReservationStatusReleased:
		balanceQuery = `UPDATE accounts SET reserved = reserved - $1, available = available + $1, updated_at = NOW() WHERE id = $2`
	default:
		return nil, fmt.Errorf("invalid reservation outcome %q", outcome)
	}
	if _, err := tx.Exec(ctx, balanceQuery, r.Amount, r.AccountID); err != nil {
		return nil, fmt.Errorf("resolve balance update: %w", err)
	}

	if err := insertEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// ApplyTransfer writes the debit/credit entry pair and both balance changes
// atomically. Entry amounts are signed; each is added to its account's
// available balance.
func (s *LedgerStore) ApplyTransfer(ctx context.Context, out, in *domain.LedgerEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, entry := range []*domain.LedgerEntry{out, in} {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET available = available + $1, updated_at = NOW() WHERE id = $2`,
			entry.Amount, entry.AccountID,
		)
		if err != nil {
			return fmt.Errorf("transfer balance update: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAccountNotFound
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ApplyDeposit credits an account and appends the deposit entry.
func (s *LedgerStore) ApplyDeposit(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin deposit: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET available = available + $1, updated_at = NOW() WHERE id = $2`,
		entry.Amount, entry.AccountID,
	)
	if err != nil {
		return fmt.Errorf("deposit balance update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	if err := insertEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListEntries returns all entries for an account ordered oldest first.
func (s *LedgerStore) ListEntries(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT id, account_id, kind, amount, currency, correlation_id, counterpart, created_at
		FROM ledger_entries WHERE account_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.Currency,
			&e.CorrelationID, &e.Counterpart, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, account_id, kind, amount, currency, correlation_id, counterpart, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AccountID, e.Kind, e.Amount, e.Currency,
		e.CorrelationID, e.Counterpart, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}
