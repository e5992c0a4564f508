package loopback

import (
	"context"
	"strings"

	"github.com/ultima-ai/ultima-broker/internal/generator"
)

// Ensure Client implements generator.Client.
var _ generator.Client = (*Client)(nil)

// Client echoes the new user message back to the caller. Used for tests and
// for running the broker without any provider credentials.
type Client struct{}

// New creates a loopback client.
func New() *Client {
	return &Client{}
}

// Generate fabricates a deterministic completion.
func (c *Client) Generate(ctx context.Context, req generator.Request) (generator.Result, error) {
	if err := req.Validate(); err != nil {
		return generator.Result{}, err
	}
	reply := "[loopback] " + strings.TrimSpace(req.UserMessage)
	return generator.Result{
		Text:  reply,
		Model: req.Model,
		Usage: generator.Usage{
			PromptTokens:     int64(len(req.WireMessages()) * 10),
			CompletionTokens: int64(len(reply) / 4),
		},
	}, nil
}
