// Package vectorstore provides the similarity search backends behind
// retrieval: Pinecone (managed), pgvector (self-hosted) and an in-memory
// store for development.
package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agentoven/agentoven/chat-gateway/internal/config"
	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
)

var (
	_ contracts.VectorStoreDriver = (*EmbeddedStore)(nil)
	_ contracts.VectorStoreDriver = (*PgvectorStore)(nil)
	_ contracts.VectorStoreDriver = (*PineconeStore)(nil)
)

// New opens the backend selected by cfg.VectorStore. dimensions sizes the
// pgvector table. The returned close func is never nil.
func New(ctx context.Context, cfg config.RetrievalConfig, dimensions int) (contracts.VectorStoreDriver, func() error, error) {
	switch cfg.VectorStore {
	case "pinecone":
		s, err := NewPineconeStore(ctx, PineconeConfig{
			APIKey:    cfg.PineconeAPIKey,
			IndexName: cfg.PineconeIndex,
			Namespace: cfg.PineconeNamespace,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "pgvector":
		if cfg.PgvectorURL == "" {
			return nil, nil, fmt.Errorf("PGVECTOR_URL is required for the pgvector store")
		}
		s, err := NewPgvectorStore(ctx, cfg.PgvectorURL, cfg.PgvectorTable, dimensions)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil

	case "", "embedded":
		return NewEmbeddedStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
}

// stringifyMetadata flattens decoded JSON metadata into strings. Whole
// numbers print without a fraction.
func stringifyMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
