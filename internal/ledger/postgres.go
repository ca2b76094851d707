package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallet balances and their journal in PostgreSQL.
// Balances are versioned; every commit is a compare-and-swap on the version column.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed wallet store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureAccount inserts a zero balance for the customer if none exists.
func (s *PostgresStore) EnsureAccount(ctx context.Context, customerID string) (bool, error) {
	id, err := uuid.Parse(customerID)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	cmd, err := tx.Exec(ctx, `INSERT INTO wallet_balances (customer_id, available, pending, version, updated_at)
        VALUES ($1, 0, 0, 1, $2)
        ON CONFLICT (customer_id) DO NOTHING`, id, now)
	if err != nil {
		return false, fmt.Errorf("ensure wallet: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	if err := insertEntry(ctx, tx, Entry{
		ID:             ulid.Make().String(),
		CustomerID:     customerID,
		Kind:           KindInitialize,
		AvailableDelta: decimal.Zero,
		PendingDelta:   decimal.Zero,
		AvailableAfter: decimal.Zero,
		PendingAfter:   decimal.Zero,
		CreatedAt:      now,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Balance returns the stored balance, or a zero balance with Version 0 when none exists.
func (s *PostgresStore) Balance(ctx context.Context, customerID string) (Balance, error) {
	id, err := uuid.Parse(customerID)
	if err != nil {
		return Balance{}, err
	}
	const query = `SELECT available::text, pending::text, version, updated_at
        FROM wallet_balances WHERE customer_id = $1`
	var (
		available, pending string
		b                  Balance
	)
	if err := s.db.QueryRow(ctx, query, id).Scan(&available, &pending, &b.Version, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{Available: decimal.Zero, Pending: decimal.Zero}, nil
		}
		return Balance{}, err
	}
	b.Available = parseAmount(available)
	b.Pending = parseAmount(pending)
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

// Commit writes next if the stored version matches expectedVersion and records entry.
func (s *PostgresStore) Commit(ctx context.Context, customerID string, expectedVersion int64, next Balance, entry Entry) (Balance, error) {
	if next.Pending.IsNegative() {
		return Balance{}, ErrNegativeBalance
	}
	id, err := uuid.Parse(customerID)
	if err != nil {
		return Balance{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Balance{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	stored := Balance{Available: next.Available, Pending: next.Pending, Version: expectedVersion + 1, UpdatedAt: now}

	if expectedVersion == 0 {
		cmd, err := tx.Exec(ctx, `INSERT INTO wallet_balances (customer_id, available, pending, version, updated_at)
            VALUES ($1, $2::numeric, $3::numeric, 1, $4)
            ON CONFLICT (customer_id) DO NOTHING`, id, next.Available.String(), next.Pending.String(), now)
		if err != nil {
			return Balance{}, fmt.Errorf("insert wallet: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return Balance{}, ErrVersionConflict
		}
	} else {
		cmd, err := tx.Exec(ctx, `UPDATE wallet_balances
            SET available = $1::numeric, pending = $2::numeric, version = version + 1, updated_at = $3
            WHERE customer_id = $4 AND version = $5`,
			next.Available.String(), next.Pending.String(), now, id, expectedVersion)
		if err != nil {
			return Balance{}, fmt.Errorf("update wallet: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return Balance{}, ErrVersionConflict
		}
	}

	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	entry.CustomerID = customerID
	entry.AvailableAfter = stored.Available
	entry.PendingAfter = stored.Pending
	entry.CreatedAt = now
	if err := insertEntry(ctx, tx, entry); err != nil {
		return Balance{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Balance{}, err
	}
	return stored, nil
}

// Entries returns the most recent journal entries for a customer, newest first.
func (s *PostgresStore) Entries(ctx context.Context, customerID string, limit int) ([]Entry, error) {
	id, err := uuid.Parse(customerID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, kind, reference, available_delta::text, pending_delta::text,
            available_after::text, pending_after::text, created_at
        FROM wallet_entries WHERE customer_id = $1
        ORDER BY id DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                            Entry
			availDelta, pendDelta, availAfter, pendAfter string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Reference, &availDelta, &pendDelta, &availAfter, &pendAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CustomerID = customerID
		e.AvailableDelta = parseAmount(availDelta)
		e.PendingDelta = parseAmount(pendDelta)
		e.AvailableAfter = parseAmount(availAfter)
		e.PendingAfter = parseAmount(pendAfter)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindEntry returns the newest journal entry of kind tagged with reference.
func (s *PostgresStore) FindEntry(ctx context.Context, customerID, kind, reference string) (Entry, bool, error) {
	id, err := uuid.Parse(customerID)
	if err != nil {
		return Entry{}, false, err
	}
	var (
		e                                            Entry
		availDelta, pendDelta, availAfter, pendAfter string
	)
	err = s.db.QueryRow(ctx, `SELECT id, kind, reference, available_delta::text, pending_delta::text,
            available_after::text, pending_after::text, created_at
        FROM wallet_entries WHERE customer_id = $1 AND kind = $2 AND reference = $3
        ORDER BY id DESC LIMIT 1`, id, kind, reference).
		Scan(&e.ID, &e.Kind, &e.Reference, &availDelta, &pendDelta, &availAfter, &pendAfter, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e.CustomerID = customerID
	e.AvailableDelta = parseAmount(availDelta)
	e.PendingDelta = parseAmount(pendDelta)
	e.AvailableAfter = parseAmount(availAfter)
	e.PendingAfter = parseAmount(pendAfter)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, true, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, e Entry) error {
	id, err := uuid.Parse(e.CustomerID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO wallet_entries (id, customer_id, kind, reference, available_delta, pending_delta,
            available_after, pending_after, created_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9)`,
		e.ID, id, e.Kind, e.Reference, e.AvailableDelta.String(), e.PendingDelta.String(),
		e.AvailableAfter.String(), e.PendingAfter.String(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet entry: %w", err)
	}
	return nil
}

// parseAmount treats anything that is not a number as zero.
func parseAmount(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
