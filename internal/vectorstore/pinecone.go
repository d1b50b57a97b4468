package vectorstore

import (
	"context"
	"fmt"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig holds the settings for a Pinecone index.
type PineconeConfig struct {
	APIKey    string
	IndexName string
	Namespace string
	// Host overrides the control plane host (defaults to https://api.pinecone.io).
	Host string
}

// PineconeStore queries a managed Pinecone index. The index host is resolved
// once at construction and the data plane connection is reused.
type PineconeStore struct {
	client    *pinecone.Client
	conn      *pinecone.IndexConnection
	indexName string
}

// NewPineconeStore resolves the index host and opens a connection to it.
func NewPineconeStore(ctx context.Context, cfg PineconeConfig) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("index name is required for Pinecone")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	index, err := client.DescribeIndex(ctx, cfg.IndexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %s: %w", cfg.IndexName, err)
	}

	conn, err := client.Index(pinecone.NewIndexConnParams{
		Host:      index.Host,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}

	log.Info().
		Str("index", cfg.IndexName).
		Str("namespace", cfg.Namespace).
		Msg("Pinecone vector store connected")
	return &PineconeStore{client: client, conn: conn, indexName: cfg.IndexName}, nil
}

func (s *PineconeStore) Kind() string { return "pinecone" }

// Search runs a filtered similarity query. Filter entries become an
// equality metadata filter.
func (s *PineconeStore) Search(ctx context.Context, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error) {
	var metadataFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		fields := make(map[string]any, len(filter))
		for k, v := range filter {
			fields[k] = v
		}
		var err error
		metadataFilter, err = structpb.NewStruct(fields)
		if err != nil {
			return nil, fmt.Errorf("failed to convert filter: %w", err)
		}
	}

	resp, err := s.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          toFloat32(vector),
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Pinecone: %w", err)
	}
	return convertMatches(resp.Matches), nil
}

// HealthCheck describes the index through the control plane.
func (s *PineconeStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.DescribeIndex(ctx, s.indexName); err != nil {
		return fmt.Errorf("pinecone describe index: %w", err)
	}
	return nil
}

// Close releases the data plane connection.
func (s *PineconeStore) Close() error {
	return s.conn.Close()
}

func convertMatches(matches []*pinecone.ScoredVector) []models.SearchResult {
	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.Vector == nil {
			continue
		}
		doc := models.VectorDoc{ID: m.Vector.Id}
		if m.Vector.Metadata != nil {
			doc.Metadata = stringifyMetadata(m.Vector.Metadata.AsMap())
			doc.Content = doc.Metadata["text"]
		}
		results = append(results, models.SearchResult{Doc: doc, Score: float64(m.Score)})
	}
	return results
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
