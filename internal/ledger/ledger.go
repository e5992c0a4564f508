package ledger

import "context"

// Store defines persistence behaviour for per-user token balances.
//
// Deduct carries the only concurrency contract in this package: the balance
// check and the decrement must be atomic per user, so two concurrent
// deductions can never both succeed against insufficient funds. Credit must
// be applied exactly once but needs no ordering relative to deductions.
type Store interface {
	// Balance returns the current balance for the user. An account that has
	// never been touched reads as the store's configured default balance.
	Balance(ctx context.Context, userID string) (int64, error)

	// Deduct atomically subtracts amount iff the balance covers it. It
	// reports false, with the balance unchanged, when funds are
	// insufficient. amount must be >= 0.
	Deduct(ctx context.Context, userID string, amount int64) (bool, error)

	// Credit adds amount to the balance, creating the account first if
	// absent. amount must be >= 0.
	Credit(ctx context.Context, userID string, amount int64) error

	Close() error
}
