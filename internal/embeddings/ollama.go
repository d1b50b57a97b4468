package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// ollamaModelDims maps model families to their output size. Tags after
// ":" are ignored. Unknown models fall back to 768.
var ollamaModelDims = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
	"bge-m3":            1024,
}

// OllamaDriver embeds queries with a local or sidecar Ollama server.
type OllamaDriver struct {
	baseURL    string
	model      string
	dimensions int
	batchSize  int
	client     *http.Client
}

// OllamaOption configures the Ollama driver.
type OllamaOption func(*OllamaDriver)

// WithOllamaBatchSize sets the max texts per Embed call.
func WithOllamaBatchSize(size int) OllamaOption {
	return func(d *OllamaDriver) { d.batchSize = size }
}

// WithOllamaTimeout sets the per-request HTTP timeout.
func WithOllamaTimeout(timeout time.Duration) OllamaOption {
	return func(d *OllamaDriver) {
		if timeout > 0 {
			d.client.Timeout = timeout
		}
	}
}

// NewOllamaDriver creates an Ollama embedding driver for baseURL
// (default http://localhost:11434).
func NewOllamaDriver(baseURL, model string, opts ...OllamaOption) *OllamaDriver {
	if baseURL == "" {
		baseURL = defaultOllamaEndpoint
	}
	family, _, _ := strings.Cut(model, ":")
	dims, ok := ollamaModelDims[family]
	if !ok {
		dims = 768
	}

	d := &OllamaDriver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dims,
		batchSize:  512,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OllamaDriver) Kind() string      { return "ollama" }
func (d *OllamaDriver) Dimensions() int   { return d.dimensions }
func (d *OllamaDriver) MaxBatchSize() int { return d.batchSize }

// Embed calls /api/embed, which takes the whole batch in one request.
func (d *OllamaDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(texts), d.batchSize)
	}

	in := struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: d.model, Input: texts}
	var out struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := postJSON(ctx, d.client, d.Kind(), d.baseURL+"/api/embed", "", in, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d embeddings, got %d: %w", len(texts), len(out.Embeddings), models.ErrUnavailable)
	}
	return out.Embeddings, nil
}

// HealthCheck embeds a probe string, which also verifies the model is pulled.
func (d *OllamaDriver) HealthCheck(ctx context.Context) error {
	_, err := d.Embed(ctx, []string{"health check"})
	return err
}
