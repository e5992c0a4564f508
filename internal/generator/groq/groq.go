package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ultima-ai/ultima-broker/internal/generator"
)

// Ensure Client implements generator.Client.
var _ generator.Client = (*Client)(nil)

// Client sends conversation requests to the Groq chat completions API
// (OpenAI-compatible wire format).
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the Groq adapter.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.groq.com/openai/v1
	RequestTimeout time.Duration
}

// New creates a Groq client. A missing API key is a configuration error.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("groq: api key required: %w", generator.ErrNotConfigured)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []generator.Message `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message generator.Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends one chat completion request.
func (c *Client) Generate(ctx context.Context, req generator.Request) (generator.Result, error) {
	if err := req.Validate(); err != nil {
		return generator.Result{}, err
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.WireMessages(),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return generator.Result{}, fmt.Errorf("groq: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return generator.Result{}, fmt.Errorf("groq: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generator.Result{}, &generator.RequestError{Provider: "groq", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return generator.Result{}, &generator.RequestError{Provider: "groq", Message: "read response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		message := strings.TrimSpace(string(respBody))
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			message = errResp.Error.Message
		}
		return generator.Result{}, &generator.RequestError{Provider: "groq", StatusCode: resp.StatusCode, Message: message}
	}

	var completion chatResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return generator.Result{}, &generator.RequestError{Provider: "groq", Message: "unmarshal response: " + err.Error()}
	}
	if len(completion.Choices) == 0 {
		return generator.Result{}, &generator.RequestError{Provider: "groq", Message: "response contained no choices"}
	}

	model := completion.Model
	if model == "" {
		model = req.Model
	}
	return generator.Result{
		Text:  completion.Choices[0].Message.Content,
		Model: model,
		Usage: generator.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}
