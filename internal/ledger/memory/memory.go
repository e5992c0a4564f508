package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ultima-ai/ultima-broker/internal/ledger"
)

// Ensure Store implements ledger.Store.
var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store with an in-process map. Suitable for
// single-instance deployments and tests; balances do not survive restarts.
type Store struct {
	mu             sync.Mutex
	balances       map[string]int64
	defaultBalance int64
}

// New creates an empty in-memory store. Unseen accounts start at
// defaultBalance on first touch.
func New(defaultBalance int64) *Store {
	return &Store{
		balances:       make(map[string]int64),
		defaultBalance: defaultBalance,
	}
}

// ensureLocked creates the account at the default balance if absent.
// Callers must hold s.mu.
func (s *Store) ensureLocked(userID string) int64 {
	if b, ok := s.balances[userID]; ok {
		return b
	}
	s.balances[userID] = s.defaultBalance
	return s.defaultBalance
}

// Balance returns the user's current balance.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("user id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID), nil
}

// Deduct subtracts amount iff the balance covers it.
func (s *Store) Deduct(ctx context.Context, userID string, amount int64) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, errors.New("user id required")
	}
	if amount < 0 {
		return false, errors.New("deduct amount must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.ensureLocked(userID)
	if balance < amount {
		return false, nil
	}
	s.balances[userID] = balance - amount
	return true, nil
}

// Credit adds amount to the user's balance.
func (s *Store) Credit(ctx context.Context, userID string, amount int64) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id required")
	}
	if amount < 0 {
		return errors.New("credit amount must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = s.ensureLocked(userID) + amount
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
