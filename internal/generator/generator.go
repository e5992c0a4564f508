package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured indicates a provider adapter is missing required
// configuration (typically the API credential). Constructors return it so
// startup fails fast rather than at first paid request.
var ErrNotConfigured = errors.New("generator not configured")

// RequestError is a typed provider-side failure: rate limit, network error,
// non-2xx status, or a malformed response. It is retryable from the
// caller's point of view and never carries credentials.
type RequestError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Message is a single role-tagged conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one structured conversation to send to a provider: system
// prompt first, ordered history, then the new user message.
type Request struct {
	SystemPrompt string
	History      []Message
	UserMessage  string

	// Caller-supplied generation parameters; adapters pass them through
	// rather than hardcoding per backend.
	Model       string
	Temperature float64
	MaxTokens   int
}

// Usage reports provider token accounting when available.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Result is the generated text for a request.
type Result struct {
	Text  string
	Model string
	Usage Usage
}

// Client adapts one external text-generation backend. Implementations are
// pure adapters: no retries, no caching, no token accounting.
type Client interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Validate checks the parts of a request every backend requires.
func (r Request) Validate() error {
	if strings.TrimSpace(r.UserMessage) == "" {
		return errors.New("generator: empty user message")
	}
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("generator: model required")
	}
	return nil
}

// WireMessages flattens the request into provider wire order: system prompt
// first, history in original order, the new user message last.
func (r Request) WireMessages() []Message {
	msgs := make([]Message, 0, len(r.History)+2)
	if strings.TrimSpace(r.SystemPrompt) != "" {
		msgs = append(msgs, Message{Role: "system", Content: r.SystemPrompt})
	}
	msgs = append(msgs, r.History...)
	msgs = append(msgs, Message{Role: "user", Content: r.UserMessage})
	return msgs
}
