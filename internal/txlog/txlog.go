package txlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a transaction.
type Kind string

const (
	KindDeduction  Kind = "deduction"
	KindCredit     Kind = "credit"
	KindPurchase   Kind = "purchase"
	KindGeneration Kind = "generation_recorded"
)

// maxMetadataValueLen bounds stored metadata values; longer values are
// truncated before hashing and storage.
const maxMetadataValueLen = 256

// Transaction is an immutable audit record of a balance-affecting or
// billable event. Once recorded it is never mutated or deleted.
type Transaction struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	UserID      string            `json:"user_id"`
	Kind        Kind              `json:"kind"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Store defines persistence behaviour for the transaction log. Record must
// be safe under concurrent writers; Seq provides the total insertion order.
type Store interface {
	// Record finalizes the transaction (ID, timestamp, normalized
	// metadata, content hash, sequence number) and appends it.
	Record(ctx context.Context, tx Transaction) (Transaction, error)

	// History returns all transactions for the user in insertion order.
	History(ctx context.Context, userID string) ([]Transaction, error)

	Close() error
}

// ValidKind reports whether k is one of the recognised transaction kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindDeduction, KindCredit, KindPurchase, KindGeneration:
		return true
	}
	return false
}

// Prepare validates and finalizes a transaction before storage: it assigns
// an ID and timestamp when absent, truncates metadata values, and computes
// the content hash. Stores call this from Record; Seq is assigned by the
// store afterwards.
func Prepare(tx Transaction) (Transaction, error) {
	if strings.TrimSpace(tx.UserID) == "" {
		return Transaction{}, fmt.Errorf("transaction requires user id")
	}
	if !ValidKind(tx.Kind) {
		return Transaction{}, fmt.Errorf("invalid transaction kind %q", tx.Kind)
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Metadata = normalizeMetadata(tx.Metadata)
	tx.Hash = ComputeHash(tx)
	return tx, nil
}

// ComputeHash returns the SHA-256 content hash over a canonical encoding of
// the transaction's fields. Map keys are emitted sorted, so the hash is
// deterministic for identical field values (timestamp included). It is an
// audit fingerprint, not a security credential.
func ComputeHash(tx Transaction) string {
	canonical := map[string]any{
		"timestamp":   tx.CreatedAt.UnixNano(),
		"user_id":     tx.UserID,
		"kind":        string(tx.Kind),
		"amount":      tx.Amount,
		"description": tx.Description,
		"metadata":    normalizeMetadata(tx.Metadata),
	}
	// encoding/json sorts map keys, giving a stable byte sequence.
	encoded, err := json.Marshal(canonical)
	if err != nil {
		// Only unmarshalable values can fail here, and the canonical map
		// holds none.
		panic(fmt.Sprintf("txlog: canonical encoding failed: %v", err))
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func normalizeMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		if len(v) > maxMetadataValueLen {
			v = v[:maxMetadataValueLen]
		}
		out[k] = v
	}
	return out
}

// TruncateForMetadata shortens free-form text so request summaries fit the
// metadata value bound.
func TruncateForMetadata(s string) string {
	if len(s) > maxMetadataValueLen {
		return s[:maxMetadataValueLen]
	}
	return s
}
