// Package contracts defines the service interfaces for the chat gateway.
//
// The orchestrator, quota enforcer and response cache depend only on these
// interfaces. Concrete implementations live in internal/ and are selected
// in the wiring code (pkg/server) from configuration, so tests can swap any
// of them for an in-memory fake.
package contracts

import (
	"context"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

// ── Counter Store ───────────────────────────────────────────

// CounterStore is the shared, atomic counter backend behind quota enforcement.
// Implementations: internal/store.RedisCounterStore, internal/store.MemoryCounterStore
type CounterStore interface {
	// IncrementWithExpiry atomically increments key and returns the new value
	// together with the time left in its window. The expiry is set only when
	// the key is created, so windows never slide.
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)

	// Get reads a counter without changing it. found is false for absent or
	// expired keys.
	Get(ctx context.Context, key string) (value int64, ttl time.Duration, found bool, err error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// ── Key/Value ───────────────────────────────────────────────

// KV is the byte store behind the response cache.
// Implementations: internal/store.RedisKV, internal/store.MemoryKV
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ── Retrieval ───────────────────────────────────────────────

// RetrievalClient returns the passages most relevant to a query.
// Errors wrap models.ErrUnavailable or models.ErrTimeout.
// Implementation: internal/rag.Retriever
type RetrievalClient interface {
	Search(ctx context.Context, query string) ([]models.Passage, error)
}

// EmbeddingDriver turns text into vectors for similarity search.
// Implementations: internal/embeddings.OpenAIDriver, internal/embeddings.OllamaDriver
type EmbeddingDriver interface {
	Kind() string
	Dimensions() int
	MaxBatchSize() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	HealthCheck(ctx context.Context) error
}

// VectorStoreDriver runs filtered nearest-neighbour search.
// Implementations: internal/vectorstore.PineconeStore, PgvectorStore, EmbeddedStore
type VectorStoreDriver interface {
	Kind() string
	Search(ctx context.Context, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error)
	HealthCheck(ctx context.Context) error
}

// ── Completion ──────────────────────────────────────────────

// CompletionClient calls the language model.
// Errors wrap models.ErrUnavailable, models.ErrTimeout or models.ErrRateLimited.
// Implementation: internal/completion.Client
type CompletionClient interface {
	Complete(ctx context.Context, prompt models.Prompt) (*models.Completion, error)

	// CompleteStream starts a streamed completion. The caller must Close the
	// returned stream on every path.
	CompleteStream(ctx context.Context, prompt models.Prompt) (ChunkStream, error)
}

// ChunkStream is a finite, pull-based sequence of answer chunks.
// Next returns io.EOF after the last chunk. Close releases the upstream
// connection, is safe to call more than once, and makes any blocked Next
// return promptly.
type ChunkStream interface {
	Next(ctx context.Context) (models.Chunk, error)
	Close() error
}
