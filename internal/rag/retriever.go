// Package rag retrieves the passages a chat answer is grounded on: brand
// detection, query embedding, filtered vector search and prompt context
// formatting.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/internal/embeddings"
	"github.com/agentoven/agentoven/chat-gateway/internal/telemetry"
	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTopK is the number of passages returned per query.
const DefaultTopK = 3

const unknown = "unknown"

// Retriever implements contracts.RetrievalClient over an embedding driver
// and a vector store.
type Retriever struct {
	embeddings contracts.EmbeddingDriver
	vectorDB   contracts.VectorStoreDriver
	topK       int
	timeout    time.Duration
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets how many passages Search returns.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithTimeout bounds one Search call, embedding included.
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.timeout = d }
}

// NewRetriever creates a retriever.
func NewRetriever(emb contracts.EmbeddingDriver, vs contracts.VectorStoreDriver, opts ...Option) *Retriever {
	r := &Retriever{
		embeddings: emb,
		vectorDB:   vs,
		topK:       DefaultTopK,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ contracts.RetrievalClient = (*Retriever)(nil)

// Search embeds query and returns the closest passages of the brand the
// query mentions.
func (r *Retriever) Search(ctx context.Context, query string) ([]models.Passage, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	brand := DetectBrand(query)
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "rag.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.brand", brand),
		attribute.Int("rag.top_k", r.topK),
		attribute.String("rag.vector_store", r.vectorDB.Kind()),
	)

	start := time.Now()
	passages, err := r.search(ctx, query, brand)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("brand", brand).Dur("elapsed", time.Since(start)).Msg("Retrieval failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("rag.results", len(passages)))
	log.Info().
		Str("brand", brand).
		Int("results", len(passages)).
		Dur("elapsed", time.Since(start)).
		Msg("Retrieval complete")
	return passages, nil
}

func (r *Retriever) search(ctx context.Context, query, brand string) ([]models.Passage, error) {
	vector, err := embeddings.EmbedQuery(ctx, r.embeddings, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", classify(err))
	}

	results, err := r.vectorDB.Search(ctx, vector, r.topK, map[string]string{"brand": brand})
	if err != nil {
		return nil, fmt.Errorf("retrieval: %s search: %w", r.vectorDB.Kind(), classify(err))
	}

	passages := make([]models.Passage, 0, len(results))
	for _, res := range results {
		passages = append(passages, toPassage(res))
	}
	return passages, nil
}

// toPassage reads the passage fields out of vector metadata.
func toPassage(res models.SearchResult) models.Passage {
	meta := res.Doc.Metadata
	text := meta["text"]
	if text == "" {
		text = res.Doc.Content
	}
	return models.Passage{
		ID:      res.Doc.ID,
		Text:    text,
		Brand:   orDefault(meta["brand"], unknown),
		DocType: orDefault(meta["doc_type"], unknown),
		URL:     meta["url"],
		Score:   res.Score,
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// classify makes sure err carries one of the provider error classes.
func classify(err error) error {
	switch {
	case errors.Is(err, models.ErrUnavailable), errors.Is(err, models.ErrTimeout), errors.Is(err, models.ErrRateLimited):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", models.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", models.ErrUnavailable, err)
	}
}
