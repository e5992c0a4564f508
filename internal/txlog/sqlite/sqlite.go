package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/ultima-ai/ultima-broker/internal/txlog"
)

// Ensure Store implements txlog.Store.
var _ txlog.Store = (*Store)(nil)

// Store implements txlog.Store backed by SQLite. The autoincrement row id
// doubles as the sequence number, giving a total insertion order.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite transaction log at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create txlog directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
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
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('deduction','credit','purchase','generation_recorded')),
	amount INTEGER NOT NULL,
	description TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	hash TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
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
	res, err := s.db.ExecContext(ctx, `
INSERT INTO transactions(id, user_id, kind, amount, description, metadata, hash, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		prepared.ID,
		prepared.UserID,
		string(prepared.Kind),
		prepared.Amount,
		prepared.Description,
		string(metadata),
		prepared.Hash,
		prepared.CreatedAt,
	)
	if err != nil {
		return txlog.Transaction{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return txlog.Transaction{}, err
	}
	prepared.Seq = seq
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
WHERE user_id = ?
ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []txlog.Transaction
	for rows.Next() {
		var tx txlog.Transaction
		var kind, metadata string
		if err := rows.Scan(&tx.Seq, &tx.ID, &tx.UserID, &kind, &tx.Amount, &tx.Description, &metadata, &tx.Hash, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Kind = txlog.Kind(kind)
		if err := json.Unmarshal([]byte(metadata), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", tx.ID, err)
		}
		entries = append(entries, tx)
	}
	return entries, rows.Err()
}
