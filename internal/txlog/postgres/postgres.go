package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// register postgres driver
	_ "github.com/lib/pq"

	"github.com/ultima-ai/ultima-broker/internal/txlog"
)

// Ensure Store implements txlog.Store.
var _ txlog.Store = (*Store)(nil)

// Store implements txlog.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed transaction log using the provided DSN.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
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

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	seq BIGSERIAL PRIMARY KEY,
	id UUID NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('deduction','credit','purchase','generation_recorded')),
	amount BIGINT NOT NULL,
	description TEXT,
	metadata JSONB NOT NULL DEFAULT '{}',
	hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_seq ON transactions(user_id, seq);
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

// Record finalizes and inserts a new transaction.
func (s *Store) Record(ctx context.Context, tx txlog.Transaction) (txlog.Transaction, error) {
	prepared, err := txlog.Prepare(tx)
	if err != nil {
		return txlog.Transaction{}, err
	}
	metadata, err := json.Marshal(prepared.Metadata)
	if err != nil {
		return txlog.Transaction{}, fmt.Errorf("encode metadata: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
INSERT INTO transactions(id, user_id, kind, amount, description, metadata, hash, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING seq`,
		prepared.ID,
		prepared.UserID,
		string(prepared.Kind),
		prepared.Amount,
		prepared.Description,
		string(metadata),
		prepared.Hash,
		prepared.CreatedAt,
	).Scan(&prepared.Seq)
	if err != nil {
		return txlog.Transaction{}, err
	}
	return prepared, nil
}

// History returns the user's transactions in insertion order.
func (s *Store) History(ctx context.Context, userID string) ([]txlog.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, id, user_id, kind, amount, description, metadata, hash, created_at
FROM transactions
WHERE user_id = $1
ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []txlog.Transaction
	for rows.Next() {
		var tx txlog.Transaction
		var kind string
		var metadata []byte
		if err := rows.Scan(&tx.Seq, &tx.ID, &tx.UserID, &kind, &tx.Amount, &tx.Description, &metadata, &tx.Hash, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Kind = txlog.Kind(kind)
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", tx.ID, err)
		}
		entries = append(entries, tx)
	}
	return entries, rows.Err()
}
