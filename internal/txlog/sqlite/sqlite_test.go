package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ultima-ai/ultima-broker/internal/txlog"
)

func TestRecordAndHistory(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "txlog.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	first, err := store.Record(ctx, txlog.Transaction{
		UserID:      "alice",
		Kind:        txlog.KindDeduction,
		Amount:      5,
		Description: "chat",
		Metadata:    map[string]string{"model": "llama3-8b-8192"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	second, err := store.Record(ctx, txlog.Transaction{
		UserID:      "alice",
		Kind:        txlog.KindGeneration,
		Amount:      0,
		Description: "chat",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected increasing seq, got %d then %d", first.Seq, second.Seq)
	}

	history, err := store.History(ctx, "alice")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Hash != first.Hash {
		t.Fatalf("hash mismatch after round trip: %s vs %s", history[0].Hash, first.Hash)
	}
	if history[0].Metadata["model"] != "llama3-8b-8192" {
		t.Fatalf("metadata lost: %+v", history[0].Metadata)
	}
}

func TestRecordValidation(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "txlog.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Record(context.Background(), txlog.Transaction{Kind: txlog.KindCredit}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := store.Record(context.Background(), txlog.Transaction{UserID: "x", Kind: "bogus"}); err == nil {
		t.Fatalf("expected error for invalid kind")
	}
}
