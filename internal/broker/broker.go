package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/ultima-ai/ultima-broker/internal/generator"
	"github.com/ultima-ai/ultima-broker/internal/ledger"
	"github.com/ultima-ai/ultima-broker/internal/pricing"
	"github.com/ultima-ai/ultima-broker/internal/prompts"
	"github.com/ultima-ai/ultima-broker/internal/scoring"
	"github.com/ultima-ai/ultima-broker/internal/txlog"
)

// InsufficientBalanceError reports a deduction the user cannot afford. It
// carries both amounts so a client can prompt a purchase.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, available %d", e.Required, e.Available)
}

// PaymentProcessor charges real money for a package purchase and returns a
// payment reference for the audit trail.
type PaymentProcessor interface {
	Charge(ctx context.Context, userID string, amountUSD float64, description string) (string, error)
}

// Config holds generation defaults and billing policy.
type Config struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// RefundOnFailure credits the deduction back when the provider call
	// fails hard. A successful generation keeps the charge regardless of
	// content.
	RefundOnFailure bool
}

// Broker orchestrates one billable operation: cost lookup, atomic
// deduction, provider call, and transaction recording. The ledger is never
// locked across the provider call; the deduction completes before the
// generator is invoked.
type Broker struct {
	ledger   ledger.Store
	txs      txlog.Store
	pricing  *pricing.Table
	gen      generator.Client
	payments PaymentProcessor
	cfg      Config
	logger   *log.Logger

	promptMu     sync.RWMutex
	systemPrompt string
}

// New creates a Broker. payments may be nil, in which case purchases credit
// tokens without charging money.
func New(l ledger.Store, txs txlog.Store, table *pricing.Table, gen generator.Client, cfg Config) *Broker {
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompts.DefaultSystemPrompt
	}
	return &Broker{
		ledger:       l,
		txs:          txs,
		pricing:      table,
		gen:          gen,
		cfg:          cfg,
		systemPrompt: systemPrompt,
		logger:       log.New(log.Writer(), "[broker] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// SetLogger overrides the default logger; nil keeps the current logger.
func (b *Broker) SetLogger(logger *log.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// SetPayments attaches an optional payment processor for purchases.
func (b *Broker) SetPayments(p PaymentProcessor) {
	b.payments = p
}

func (b *Broker) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

// SystemPrompt returns the current system prompt.
func (b *Broker) SystemPrompt() string {
	b.promptMu.RLock()
	defer b.promptMu.RUnlock()
	return b.systemPrompt
}

// SetSystemPrompt replaces the system prompt for subsequent operations.
func (b *Broker) SetSystemPrompt(prompt string) {
	b.promptMu.Lock()
	b.systemPrompt = prompt
	b.promptMu.Unlock()
}

// Completion is the outcome of a successful billable generation.
type Completion struct {
	Text           string `json:"text"`
	Model          string `json:"model"`
	Score          int    `json:"score"`
	Cost           int64  `json:"cost"`
	Balance        int64  `json:"balance"`
	DeductionHash  string `json:"deduction_hash"`
	GenerationHash string `json:"generation_hash"`
}

// Complete performs one billable generation for the user: look up the cost,
// deduct it, call the provider, and record both transactions. On
// insufficient balance it returns *InsufficientBalanceError without ever
// invoking the provider.
func (b *Broker) Complete(ctx context.Context, userID string, op pricing.Operation, req generator.Request) (Completion, error) {
	cost, err := b.pricing.CostOf(op)
	if err != nil {
		b.logf("complete op=%s user=%s error: %v", op, userID, err)
		return Completion{}, err
	}

	ok, err := b.ledger.Deduct(ctx, userID, cost)
	if err != nil {
		return Completion{}, fmt.Errorf("deduct %d from %s: %w", cost, userID, err)
	}
	if !ok {
		available, balErr := b.ledger.Balance(ctx, userID)
		if balErr != nil {
			return Completion{}, fmt.Errorf("read balance for %s: %w", userID, balErr)
		}
		b.logf("complete op=%s user=%s refused required=%d available=%d", op, userID, cost, available)
		return Completion{}, &InsufficientBalanceError{Required: cost, Available: available}
	}

	deduction, err := b.txs.Record(ctx, txlog.Transaction{
		UserID:      userID,
		Kind:        txlog.KindDeduction,
		Amount:      cost,
		Description: string(op),
		Metadata: map[string]string{
			"model":   req.Model,
			"request": txlog.TruncateForMetadata(req.UserMessage),
		},
	})
	if err != nil {
		// The deduction must not stand without its audit record; undo it.
		if creditErr := b.ledger.Credit(ctx, userID, cost); creditErr != nil {
			b.logf("complete op=%s user=%s unrecorded deduction could not be reversed: %v", op, userID, creditErr)
		}
		return Completion{}, fmt.Errorf("record deduction for %s: %w", userID, err)
	}
	b.logf("complete op=%s user=%s deducted=%d tx=%s", op, userID, cost, deduction.Hash)

	// The deduction is settled; the ledger holds no lock while the
	// provider call is in flight.
	result, genErr := b.gen.Generate(ctx, req)

	genMeta := map[string]string{"operation": string(op), "model": req.Model}
	if genErr != nil {
		genMeta["error"] = txlog.TruncateForMetadata(genErr.Error())
	} else {
		genMeta["model"] = result.Model
		genMeta["reply"] = txlog.TruncateForMetadata(result.Text)
		genMeta["score"] = strconv.Itoa(scoring.Score(result.Text))
	}
	generation, recErr := b.txs.Record(ctx, txlog.Transaction{
		UserID:      userID,
		Kind:        txlog.KindGeneration,
		Amount:      0,
		Description: string(op),
		Metadata:    genMeta,
	})
	if recErr != nil {
		b.logf("complete op=%s user=%s generation record failed: %v", op, userID, recErr)
	}

	if genErr != nil {
		if b.cfg.RefundOnFailure {
			if err := b.refund(ctx, userID, cost, op); err != nil {
				b.logf("complete op=%s user=%s refund failed: %v", op, userID, err)
			}
		}
		b.logf("complete op=%s user=%s generation failed: %v", op, userID, genErr)
		return Completion{}, genErr
	}

	balance, err := b.ledger.Balance(ctx, userID)
	if err != nil {
		return Completion{}, fmt.Errorf("read balance for %s: %w", userID, err)
	}
	b.logf("complete op=%s user=%s success balance=%d", op, userID, balance)
	return Completion{
		Text:           result.Text,
		Model:          result.Model,
		Score:          scoring.Score(result.Text),
		Cost:           cost,
		Balance:        balance,
		DeductionHash:  deduction.Hash,
		GenerationHash: generation.Hash,
	}, nil
}

func (b *Broker) refund(ctx context.Context, userID string, amount int64, op pricing.Operation) error {
	if err := b.ledger.Credit(ctx, userID, amount); err != nil {
		return fmt.Errorf("credit refund: %w", err)
	}
	_, err := b.txs.Record(ctx, txlog.Transaction{
		UserID:      userID,
		Kind:        txlog.KindCredit,
		Amount:      amount,
		Description: "refund: " + string(op),
	})
	if err != nil {
		return fmt.Errorf("record refund: %w", err)
	}
	return nil
}

// Chat performs one chat turn with the current system prompt.
func (b *Broker) Chat(ctx context.Context, userID, message string, history []generator.Message) (Completion, error) {
	return b.Complete(ctx, userID, pricing.OpChat, generator.Request{
		SystemPrompt: b.SystemPrompt(),
		History:      history,
		UserMessage:  message,
		Model:        b.cfg.Model,
		Temperature:  b.cfg.Temperature,
		MaxTokens:    b.cfg.MaxTokens,
	})
}

// SuggestCode asks for a code change suggestion against the given content.
func (b *Broker) SuggestCode(ctx context.Context, userID, fileContent, changeDescription string) (Completion, error) {
	return b.Complete(ctx, userID, pricing.OpCodeSuggestion, generator.Request{
		UserMessage: prompts.CodeSuggestion(fileContent, changeDescription),
		Model:       b.cfg.Model,
		Temperature: 0.3,
		MaxTokens:   b.cfg.MaxTokens,
	})
}

// SuggestTool asks for a tool design for the described capability.
func (b *Broker) SuggestTool(ctx context.Context, userID, description string) (Completion, error) {
	return b.Complete(ctx, userID, pricing.OpToolSuggestion, generator.Request{
		UserMessage: prompts.ToolSuggestion(description),
		Model:       b.cfg.Model,
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	})
}

// SuggestPrompt asks for a refinement of the current system prompt.
func (b *Broker) SuggestPrompt(ctx context.Context, userID string) (Completion, error) {
	return b.Complete(ctx, userID, pricing.OpPromptSuggestion, generator.Request{
		UserMessage: prompts.PromptSuggestion(b.SystemPrompt()),
		Model:       b.cfg.Model,
		Temperature: b.cfg.Temperature,
		MaxTokens:   512,
	})
}

// PurchaseResult is the outcome of a package purchase.
type PurchaseResult struct {
	Package     string  `json:"package"`
	TokensAdded int64   `json:"tokens_added"`
	Price       float64 `json:"price"`
	Balance     int64   `json:"new_balance"`
	Hash        string  `json:"transaction_hash"`
	PaymentRef  string  `json:"payment_ref,omitempty"`
}

// Purchase credits a purchasable package to the user. When a payment
// processor is attached, the charge happens before any tokens are credited
// and its reference lands in the purchase transaction.
func (b *Broker) Purchase(ctx context.Context, userID, packageName string) (PurchaseResult, error) {
	pkg, err := b.pricing.PriceOf(packageName)
	if err != nil {
		b.logf("purchase user=%s package=%s error: %v", userID, packageName, err)
		return PurchaseResult{}, err
	}

	paymentRef := ""
	if b.payments != nil {
		paymentRef, err = b.payments.Charge(ctx, userID, pkg.Price, "token package "+packageName)
		if err != nil {
			return PurchaseResult{}, fmt.Errorf("charge for package %s: %w", packageName, err)
		}
	}

	if err := b.ledger.Credit(ctx, userID, pkg.Tokens); err != nil {
		return PurchaseResult{}, fmt.Errorf("credit %d to %s: %w", pkg.Tokens, userID, err)
	}

	metadata := map[string]string{
		"package": packageName,
		"price":   strconv.FormatFloat(pkg.Price, 'f', 2, 64),
	}
	if paymentRef != "" {
		metadata["payment_ref"] = paymentRef
	}
	tx, err := b.txs.Record(ctx, txlog.Transaction{
		UserID:      userID,
		Kind:        txlog.KindPurchase,
		Amount:      pkg.Tokens,
		Description: "purchase: " + packageName,
		Metadata:    metadata,
	})
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("record purchase for %s: %w", userID, err)
	}

	balance, err := b.ledger.Balance(ctx, userID)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("read balance for %s: %w", userID, err)
	}
	b.logf("purchase user=%s package=%s tokens=%d balance=%d", userID, packageName, pkg.Tokens, balance)
	return PurchaseResult{
		Package:     packageName,
		TokensAdded: pkg.Tokens,
		Price:       pkg.Price,
		Balance:     balance,
		Hash:        tx.Hash,
		PaymentRef:  paymentRef,
	}, nil
}

// Balance returns the user's current token balance.
func (b *Broker) Balance(ctx context.Context, userID string) (int64, error) {
	return b.ledger.Balance(ctx, userID)
}

// History returns the user's transactions in insertion order.
func (b *Broker) History(ctx context.Context, userID string) ([]txlog.Transaction, error) {
	return b.txs.History(ctx, userID)
}

// Pricing returns the live pricing table.
func (b *Broker) Pricing() *pricing.Table {
	return b.pricing
}

// IsClientError reports whether err is caller-correctable rather than a
// server fault.
func IsClientError(err error) bool {
	var insufficient *InsufficientBalanceError
	return errors.As(err, &insufficient) ||
		errors.Is(err, pricing.ErrUnknownOperation) ||
		errors.Is(err, pricing.ErrUnknownPackage)
}
