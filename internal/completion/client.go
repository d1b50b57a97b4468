// Package completion implements the CompletionClient against any
// OpenAI-compatible /chat/completions endpoint, blocking and streamed.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

const defaultEndpoint = "https://api.openai.com/v1"

// Client calls an OpenAI-compatible chat completion API.
type Client struct {
	apiKey      string
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	client      *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithEndpoint sets the API base URL (e.g. for proxies or Azure gateways).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithMaxTokens caps the answer length.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithTimeout bounds a blocking Complete call. Streams are bounded by
// their context only.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a completion client for model.
func New(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		endpoint:    defaultEndpoint,
		model:       model,
		maxTokens:   500,
		temperature: 0.3,
		timeout:     60 * time.Second,
		client:      &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ contracts.CompletionClient = (*Client)(nil)

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// ── Wire format ─────────────────────────────────────────────

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Temperature float64              `json:"temperature"`
	Stream      bool                 `json:"stream,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// ── Blocking ────────────────────────────────────────────────

// Complete sends prompt and waits for the whole answer.
func (c *Client) Complete(ctx context.Context, prompt models.Prompt) (*models.Completion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	httpResp, err := c.post(ctx, prompt, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("completion: decode response: %w: %w", models.ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion: empty choices: %w", models.ErrUnavailable)
	}

	out := &models.Completion{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		Usage: models.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}

	log.Debug().
		Str("model", c.model).
		Int64("tokens", out.Usage.TotalTokens).
		Str("finish_reason", out.FinishReason).
		Dur("elapsed", time.Since(start)).
		Msg("Completion finished")
	return out, nil
}

// ── Streaming ───────────────────────────────────────────────

// CompleteStream starts a streamed completion. The response body stays open
// until the returned stream is closed.
func (c *Client) CompleteStream(ctx context.Context, prompt models.Prompt) (contracts.ChunkStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	httpResp, err := c.post(streamCtx, prompt, true)
	if err != nil {
		cancel()
		return nil, err
	}
	return newSSEStream(httpResp.Body, cancel), nil
}

// ── HTTP ────────────────────────────────────────────────────

func (c *Client) post(ctx context.Context, prompt models.Prompt, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    prompt.Messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("completion: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("completion: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion: request failed: %w", classifyTransport(err))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("completion: status %d: %w: %s", resp.StatusCode, classifyStatus(resp.StatusCode), respBody)
	}
	return resp, nil
}

// classifyStatus maps a provider status code onto the provider error classes.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return models.ErrRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return models.ErrTimeout
	default:
		return models.ErrUnavailable
	}
}

func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", models.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", models.ErrUnavailable, err)
}
