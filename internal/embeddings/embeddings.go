// Package embeddings turns a user query into the vector the passage index
// is searched with. OpenAI and Ollama drivers are provided.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/agentoven/agentoven/chat-gateway/internal/config"
	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

var (
	_ contracts.EmbeddingDriver = (*OpenAIDriver)(nil)
	_ contracts.EmbeddingDriver = (*OllamaDriver)(nil)
)

// New builds the driver selected by cfg.EmbeddingProvider. apiKey is only
// used by the OpenAI driver.
func New(cfg config.RetrievalConfig, apiKey string) (contracts.EmbeddingDriver, error) {
	var driver contracts.EmbeddingDriver
	switch cfg.EmbeddingProvider {
	case "", "openai":
		driver = NewOpenAIDriver(apiKey, cfg.EmbeddingModel,
			WithOpenAIEndpoint(cfg.EmbeddingURL),
			WithOpenAIDimensions(cfg.EmbeddingDimensions),
			WithOpenAITimeout(cfg.Timeout),
		)
	case "ollama":
		driver = NewOllamaDriver(cfg.EmbeddingURL, cfg.EmbeddingModel,
			WithOllamaTimeout(cfg.Timeout),
		)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}

	log.Info().
		Str("kind", driver.Kind()).
		Str("model", cfg.EmbeddingModel).
		Int("dims", driver.Dimensions()).
		Msg("Embedding driver configured")
	return driver, nil
}

// EmbedQuery embeds a single text.
func EmbedQuery(ctx context.Context, driver contracts.EmbeddingDriver, text string) ([]float64, error) {
	vectors, err := driver.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%s returned no embedding: %w", driver.Kind(), models.ErrUnavailable)
	}
	return vectors[0], nil
}

// postJSON sends in to url and decodes a 200 response into out. Every
// failure wraps one of the provider error classes.
func postJSON(ctx context.Context, client *http.Client, provider, url, apiKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s embed: marshal request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s embed: create request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s embed: %w", provider, classifyTransport(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s embed: read response: %w", provider, classifyTransport(err))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s embed: status %d: %w: %s", provider, resp.StatusCode, classifyStatus(resp.StatusCode), truncate(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s embed: unmarshal response: %w: %w", provider, models.ErrUnavailable, err)
	}
	return nil
}

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

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
