package memory

import (
	"context"
	"sync"

	"github.com/ultima-ai/ultima-broker/internal/txlog"
)

// Ensure Store implements txlog.Store.
var _ txlog.Store = (*Store)(nil)

// Store implements txlog.Store with an in-process append-only slice.
type Store struct {
	mu      sync.Mutex
	entries []txlog.Transaction
	nextSeq int64
}

// New creates an empty in-memory transaction log.
func New() *Store {
	return &Store{nextSeq: 1}
}

// Record finalizes and appends the transaction.
func (s *Store) Record(ctx context.Context, tx txlog.Transaction) (txlog.Transaction, error) {
	prepared, err := txlog.Prepare(tx)
	if err != nil {
		return txlog.Transaction{}, err
	}
	s.mu.Lock()
	prepared.Seq = s.nextSeq
	s.nextSeq++
	s.entries = append(s.entries, prepared)
	s.mu.Unlock()
	return prepared, nil
}

// History returns the user's transactions in insertion order.
func (s *Store) History(ctx context.Context, userID string) ([]txlog.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []txlog.Transaction
	for _, tx := range s.entries {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
