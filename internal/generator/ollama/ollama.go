package ollama

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

// Client sends conversation requests to a local Ollama inference server.
// No credential is required; the server is addressed by base URL only.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the Ollama adapter.
type Config struct {
	BaseURL        string // optional, defaults to http://localhost:11434
	RequestTimeout time.Duration
}

// New creates an Ollama client.
func New(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		// Local models can be slow to load on first request.
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model    string              `json:"model"`
	Messages []generator.Message `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  chatOptions         `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model   string            `json:"model"`
	Message generator.Message `json:"message"`
	Error   string            `json:"error,omitempty"`

	PromptEvalCount int64 `json:"prompt_eval_count"`
	EvalCount       int64 `json:"eval_count"`
}

// Generate sends one /api/chat request.
func (c *Client) Generate(ctx context.Context, req generator.Request) (generator.Result, error) {
	if err := req.Validate(); err != nil {
		return generator.Result{}, err
	}

	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: req.WireMessages(),
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return generator.Result{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return generator.Result{}, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generator.Result{}, &generator.RequestError{Provider: "ollama", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return generator.Result{}, &generator.RequestError{Provider: "ollama", Message: "read response: " + err.Error()}
	}

	var completion chatResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		if resp.StatusCode != http.StatusOK {
			return generator.Result{}, &generator.RequestError{Provider: "ollama", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return generator.Result{}, &generator.RequestError{Provider: "ollama", Message: "unmarshal response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK || completion.Error != "" {
		message := completion.Error
		if message == "" {
			message = strings.TrimSpace(string(respBody))
		}
		return generator.Result{}, &generator.RequestError{Provider: "ollama", StatusCode: resp.StatusCode, Message: message}
	}

	model := completion.Model
	if model == "" {
		model = req.Model
	}
	return generator.Result{
		Text:  completion.Message.Content,
		Model: model,
		Usage: generator.Usage{
			PromptTokens:     completion.PromptEvalCount,
			CompletionTokens: completion.EvalCount,
		},
	}, nil
}
