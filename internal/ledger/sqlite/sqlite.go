package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/ultima-ai/ultima-broker/internal/ledger"
)

// Ensure Store implements ledger.Store.
var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db             *sql.DB
	defaultBalance int64
}

// New opens (or creates) a SQLite store at the given path. Unseen accounts
// start at defaultBalance on first touch.
func New(path string, defaultBalance int64) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
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
	balance INTEGER NOT NULL CHECK(balance >= 0),
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
INSERT INTO accounts(user_id, balance) VALUES(?, ?)
ON CONFLICT(user_id) DO NOTHING`, userID, s.defaultBalance)
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
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Deduct subtracts amount iff the balance covers it. The conditional UPDATE
// makes the check-and-decrement a single atomic statement.
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
SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ? AND balance >= ?`, amount, userID, amount)
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
SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ?`, amount, userID)
	return err
}
