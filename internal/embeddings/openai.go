package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/embeddings"

// openAIModelDims are the native output sizes of the OpenAI models.
var openAIModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIDriver embeds queries with the OpenAI /embeddings API.
type OpenAIDriver struct {
	apiKey     string
	model      string
	endpoint   string
	dimensions int
	shortened  bool // request sends "dimensions"
	batchSize  int
	client     *http.Client
}

// OpenAIOption configures the OpenAI driver.
type OpenAIOption func(*OpenAIDriver)

// WithOpenAIEndpoint sets a custom API endpoint (e.g. for proxies).
func WithOpenAIEndpoint(endpoint string) OpenAIOption {
	return func(d *OpenAIDriver) {
		if endpoint != "" {
			d.endpoint = endpoint
		}
	}
}

// WithOpenAIDimensions asks a text-embedding-3 model for shortened vectors,
// so the output matches an index built at that size. Zero keeps the native size.
func WithOpenAIDimensions(n int) OpenAIOption {
	return func(d *OpenAIDriver) {
		if n > 0 {
			d.dimensions = n
			d.shortened = true
		}
	}
}

// WithOpenAIBatchSize sets the max texts per Embed call.
func WithOpenAIBatchSize(size int) OpenAIOption {
	return func(d *OpenAIDriver) { d.batchSize = size }
}

// WithOpenAITimeout sets the per-request HTTP timeout.
func WithOpenAITimeout(timeout time.Duration) OpenAIOption {
	return func(d *OpenAIDriver) {
		if timeout > 0 {
			d.client.Timeout = timeout
		}
	}
}

// NewOpenAIDriver creates an OpenAI embedding driver. Unknown models are
// assumed to produce 1536-dimensional vectors.
func NewOpenAIDriver(apiKey, model string, opts ...OpenAIOption) *OpenAIDriver {
	dims, ok := openAIModelDims[model]
	if !ok {
		dims = 1536
	}
	d := &OpenAIDriver{
		apiKey:     apiKey,
		model:      model,
		endpoint:   defaultOpenAIEndpoint,
		dimensions: dims,
		batchSize:  2048,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OpenAIDriver) Kind() string      { return "openai" }
func (d *OpenAIDriver) Dimensions() int   { return d.dimensions }
func (d *OpenAIDriver) MaxBatchSize() int { return d.batchSize }

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order.
func (d *OpenAIDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(texts), d.batchSize)
	}

	in := openAIEmbedRequest{Input: texts, Model: d.model}
	if d.shortened {
		in.Dimensions = d.dimensions
	}
	var out openAIEmbedResponse
	if err := postJSON(ctx, d.client, d.Kind(), d.endpoint, d.apiKey, in, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai embed: %w: %s (%s)", models.ErrUnavailable, out.Error.Message, out.Error.Type)
	}

	// The API may return items out of order; Index is authoritative.
	vectors := make([][]float64, len(texts))
	for _, item := range out.Data {
		if item.Index >= 0 && item.Index < len(vectors) {
			vectors[item.Index] = item.Embedding
		}
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("openai embed: missing embedding for input %d: %w", i, models.ErrUnavailable)
		}
	}
	return vectors, nil
}

// HealthCheck embeds a probe string, which also verifies the API key.
func (d *OpenAIDriver) HealthCheck(ctx context.Context) error {
	_, err := d.Embed(ctx, []string{"health check"})
	return err
}
