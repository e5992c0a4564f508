package txlog

import (
	"strings"
	"testing"
	"time"
)

func TestComputeHashDeterministic(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	tx := Transaction{
		UserID:      "alice",
		Kind:        KindDeduction,
		Amount:      5,
		Description: "chat",
		Metadata:    map[string]string{"model": "llama3-8b-8192", "request": "hello"},
		CreatedAt:   created,
	}

	first := ComputeHash(tx)
	second := ComputeHash(tx)
	if first != second {
		t.Fatalf("hash not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", first)
	}
}

func TestComputeHashVariesByTimestamp(t *testing.T) {
	tx := Transaction{
		UserID:      "alice",
		Kind:        KindDeduction,
		Amount:      5,
		Description: "chat",
		CreatedAt:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	later := tx
	later.CreatedAt = tx.CreatedAt.Add(time.Nanosecond)

	if ComputeHash(tx) == ComputeHash(later) {
		t.Fatalf("identical fields at different timestamps must hash differently")
	}
}

func TestComputeHashVariesByFields(t *testing.T) {
	base := Transaction{
		UserID:      "alice",
		Kind:        KindDeduction,
		Amount:      5,
		Description: "chat",
		CreatedAt:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	tests := []struct {
		name   string
		mutate func(tx *Transaction)
	}{
		{"amount", func(tx *Transaction) { tx.Amount = 6 }},
		{"kind", func(tx *Transaction) { tx.Kind = KindCredit }},
		{"user", func(tx *Transaction) { tx.UserID = "bob" }},
		{"description", func(tx *Transaction) { tx.Description = "code" }},
		{"metadata", func(tx *Transaction) { tx.Metadata = map[string]string{"k": "v"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := base
			tt.mutate(&mutated)
			if ComputeHash(base) == ComputeHash(mutated) {
				t.Fatalf("changing %s did not change the hash", tt.name)
			}
		})
	}
}

func TestPrepareValidatesAndTruncates(t *testing.T) {
	if _, err := Prepare(Transaction{Kind: KindCredit}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := Prepare(Transaction{UserID: "alice", Kind: "refund"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}

	long := strings.Repeat("x", 1000)
	prepared, err := Prepare(Transaction{
		UserID:   "alice",
		Kind:     KindGeneration,
		Metadata: map[string]string{"reply": long},
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := len(prepared.Metadata["reply"]); got != 256 {
		t.Fatalf("expected metadata value truncated to 256, got %d", got)
	}
	if prepared.ID == "" || prepared.Hash == "" || prepared.CreatedAt.IsZero() {
		t.Fatalf("Prepare did not finalize transaction: %+v", prepared)
	}
}
