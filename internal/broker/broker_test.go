package broker

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/ultima-ai/ultima-broker/internal/generator"
	ledgermem "github.com/ultima-ai/ultima-broker/internal/ledger/memory"
	"github.com/ultima-ai/ultima-broker/internal/pricing"
	"github.com/ultima-ai/ultima-broker/internal/txlog"
	txlogmem "github.com/ultima-ai/ultima-broker/internal/txlog/memory"
)

// spyGenerator counts calls and returns a canned result or error.
type spyGenerator struct {
	calls   int
	lastReq generator.Request
	result  generator.Result
	err     error
}

func (s *spyGenerator) Generate(ctx context.Context, req generator.Request) (generator.Result, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return generator.Result{}, s.err
	}
	return s.result, nil
}

type fixture struct {
	broker *Broker
	ledger *ledgermem.Store
	txs    *txlogmem.Store
	gen    *spyGenerator
}

func newFixture(defaultBalance int64, cfg Config) *fixture {
	l := ledgermem.New(defaultBalance)
	txs := txlogmem.New()
	gen := &spyGenerator{result: generator.Result{Text: "generated reply", Model: "llama3-8b-8192"}}
	if cfg.Model == "" {
		cfg.Model = "llama3-8b-8192"
	}
	b := New(l, txs, pricing.Default(), gen, cfg)
	b.SetLogger(log.New(io.Discard, "", 0))
	return &fixture{broker: b, ledger: l, txs: txs, gen: gen}
}

func TestChatDeductsAndRecords(t *testing.T) {
	f := newFixture(1000, Config{RefundOnFailure: true})
	ctx := context.Background()

	completion, err := f.broker.Chat(ctx, "alice", "hello", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if completion.Text != "generated reply" {
		t.Fatalf("unexpected text %q", completion.Text)
	}
	if completion.Balance != 995 {
		t.Fatalf("expected balance 995 after chat cost 5, got %d", completion.Balance)
	}
	if completion.Cost != 5 {
		t.Fatalf("expected cost 5, got %d", completion.Cost)
	}

	history, err := f.txs.History(ctx, "alice")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(history))
	}
	if history[0].Kind != txlog.KindDeduction || history[0].Amount != 5 {
		t.Fatalf("unexpected deduction entry %+v", history[0])
	}
	if history[1].Kind != txlog.KindGeneration || history[1].Amount != 0 {
		t.Fatalf("unexpected generation entry %+v", history[1])
	}
	if history[0].Hash != completion.DeductionHash || history[1].Hash != completion.GenerationHash {
		t.Fatalf("completion hashes do not match log")
	}
	if f.gen.lastReq.SystemPrompt == "" {
		t.Fatalf("chat request missing system prompt")
	}
}

func TestInsufficientBalanceShortCircuits(t *testing.T) {
	f := newFixture(3, Config{})
	ctx := context.Background()

	_, err := f.broker.Chat(ctx, "bob", "hello", nil)
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if insufficient.Required != 5 || insufficient.Available != 3 {
		t.Fatalf("unexpected amounts %+v", insufficient)
	}
	if f.gen.calls != 0 {
		t.Fatalf("generator must not be invoked on refusal, got %d calls", f.gen.calls)
	}
	if balance, _ := f.ledger.Balance(ctx, "bob"); balance != 3 {
		t.Fatalf("balance must be unchanged, got %d", balance)
	}
	history, _ := f.txs.History(ctx, "bob")
	if len(history) != 0 {
		t.Fatalf("no transaction may be recorded on refusal, got %d", len(history))
	}
}

func TestUnknownOperation(t *testing.T) {
	f := newFixture(1000, Config{})
	_, err := f.broker.Complete(context.Background(), "alice", "image_generation", generator.Request{
		UserMessage: "draw", Model: "m",
	})
	if !errors.Is(err, pricing.ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if f.gen.calls != 0 {
		t.Fatalf("generator must not be invoked for unknown operation")
	}
}

func TestPurchaseCreditsAndRecords(t *testing.T) {
	f := newFixture(0, Config{})
	ctx := context.Background()

	result, err := f.broker.Purchase(ctx, "carol", "starter")
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if result.Balance != 1000 || result.TokensAdded != 1000 {
		t.Fatalf("unexpected result %+v", result)
	}

	history, _ := f.txs.History(ctx, "carol")
	if len(history) != 1 {
		t.Fatalf("expected 1 purchase transaction, got %d", len(history))
	}
	tx := history[0]
	if tx.Kind != txlog.KindPurchase || tx.Amount != 1000 {
		t.Fatalf("unexpected purchase entry %+v", tx)
	}
	if tx.Metadata["package"] != "starter" || tx.Metadata["price"] != "0.99" {
		t.Fatalf("purchase metadata incomplete: %+v", tx.Metadata)
	}
}

func TestPurchaseUnknownPackage(t *testing.T) {
	f := newFixture(0, Config{})
	_, err := f.broker.Purchase(context.Background(), "carol", "ultimate")
	if !errors.Is(err, pricing.ErrUnknownPackage) {
		t.Fatalf("expected ErrUnknownPackage, got %v", err)
	}
	if balance, _ := f.ledger.Balance(context.Background(), "carol"); balance != 0 {
		t.Fatalf("balance must be unchanged, got %d", balance)
	}
}

func TestGenerationFailureRefunds(t *testing.T) {
	f := newFixture(1000, Config{RefundOnFailure: true})
	f.gen.err = &generator.RequestError{Provider: "groq", StatusCode: 503, Message: "upstream down"}
	ctx := context.Background()

	_, err := f.broker.Chat(ctx, "dave", "hello", nil)
	var reqErr *generator.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}

	if balance, _ := f.ledger.Balance(ctx, "dave"); balance != 1000 {
		t.Fatalf("expected refunded balance 1000, got %d", balance)
	}
	history, _ := f.txs.History(ctx, "dave")
	// deduction, generation_recorded (with the error), refund credit
	if len(history) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(history))
	}
	if history[1].Kind != txlog.KindGeneration || !strings.Contains(history[1].Metadata["error"], "upstream down") {
		t.Fatalf("generation failure not captured: %+v", history[1])
	}
	if history[2].Kind != txlog.KindCredit || history[2].Amount != 5 {
		t.Fatalf("expected refund credit of 5: %+v", history[2])
	}
}

func TestGenerationFailureKeepsChargeWhenRefundDisabled(t *testing.T) {
	f := newFixture(1000, Config{RefundOnFailure: false})
	f.gen.err = &generator.RequestError{Provider: "groq", Message: "boom"}
	ctx := context.Background()

	if _, err := f.broker.Chat(ctx, "erin", "hello", nil); err == nil {
		t.Fatalf("expected generation error")
	}
	if balance, _ := f.ledger.Balance(ctx, "erin"); balance != 995 {
		t.Fatalf("expected charge retained (995), got %d", balance)
	}
	history, _ := f.txs.History(ctx, "erin")
	if len(history) != 2 {
		t.Fatalf("expected deduction and generation record only, got %d", len(history))
	}
}

func TestSuggestionOperationsUseTheirCosts(t *testing.T) {
	f := newFixture(1000, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() (Completion, error)
		cost int64
	}{
		{"code", func() (Completion, error) {
			return f.broker.SuggestCode(ctx, "frank", "package main", "add error handling")
		}, 50},
		{"tool", func() (Completion, error) {
			return f.broker.SuggestTool(ctx, "frank", "fetch a URL")
		}, 75},
		{"prompt", func() (Completion, error) {
			return f.broker.SuggestPrompt(ctx, "frank")
		}, 25},
	}
	expected := int64(1000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completion, err := tt.call()
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			expected -= tt.cost
			if completion.Cost != tt.cost {
				t.Fatalf("expected cost %d, got %d", tt.cost, completion.Cost)
			}
			if completion.Balance != expected {
				t.Fatalf("expected balance %d, got %d", expected, completion.Balance)
			}
		})
	}
}

func TestSetSystemPromptFlowsIntoChat(t *testing.T) {
	f := newFixture(1000, Config{})
	f.broker.SetSystemPrompt("terse mode")

	if _, err := f.broker.Chat(context.Background(), "gail", "hi", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if f.gen.lastReq.SystemPrompt != "terse mode" {
		t.Fatalf("updated system prompt not used: %q", f.gen.lastReq.SystemPrompt)
	}
}
