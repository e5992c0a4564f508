package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ultima-ai/ultima-broker/internal/ledger"
)

// Ensure Store implements ledger.Store.
var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db             *sql.DB
	defaultBalance int64
}

// New opens a PostgreSQL-backed ledger store using the provided DSN and
// connection pool settings.
func New(dsn string, defaultBalance int64, maxOpen, maxIdle, lifetimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}

	s := &Store{db: db, defaultBalance: defaultBalance}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id TEXT PRIMARY KEY,
	balance BIGINT NOT NULL CHECK(balance >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensure(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO accounts(user_id, balance) VALUES($1, $2)
ON CONFLICT (user_id) DO NOTHING`, userID, s.defaultBalance)
	return err
}

// Balance returns the user's current balance.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("user id required")
	}
	if err := s.ensure(ctx, userID); err != nil {
		return 0, fmt.Errorf("ensure account: %w", err)
	}
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Deduct subtracts amount iff the balance covers it, as a single
// conditional UPDATE so concurrent deductions serialise on the row.
func (s *Store) Deduct(ctx context.Context, userID string, amount int64) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, errors.New("user id required")
	}
	if amount < 0 {
		return false, errors.New("deduct amount must be non-negative")
	}
	if err := s.ensure(ctx, userID); err != nil {
		return false, fmt.Errorf("ensure account: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE accounts
SET balance = balance - $1, updated_at = NOW()
WHERE user_id = $2 AND balance >= $1`, amount, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Credit adds amount to the user's balance.
func (s *Store) Credit(ctx context.Context, userID string, amount int64) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id required")
	}
	if amount < 0 {
		return errors.New("credit amount must be non-negative")
	}
	if err := s.ensure(ctx, userID); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE accounts
SET balance = balance + $1, updated_at = NOW()
WHERE user_id = $2`, amount, userID)
	return err
}
