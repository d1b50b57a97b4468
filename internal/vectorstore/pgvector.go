package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PgvectorStore searches a passage table in PostgreSQL with the pgvector
// extension. Passages are written by the ingestion job; the gateway only reads.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	table      string // sanitized identifier
	dimensions int
}

// NewPgvectorStore connects to connURL and makes sure the passage table exists.
func NewPgvectorStore(ctx context.Context, connURL, table string, dimensions int) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{
		pool:       pool,
		table:      pgx.Identifier{table}.Sanitize(),
		dimensions: dimensions,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Str("table", table).Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS %[1]s (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL DEFAULT '',
			metadata   JSONB NOT NULL DEFAULT '{}',
			vector     vector(%[2]d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, s.table, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string { return "pgvector" }

// Search returns the topK passages by cosine similarity whose metadata
// matches every filter entry.
func (s *PgvectorStore) Search(ctx context.Context, vector []float64, topK int, filter map[string]string) ([]models.SearchResult, error) {
	query, args := buildSearchQuery(s.table, vector, topK, filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var (
			doc      models.VectorDoc
			metadata map[string]any
			score    float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &doc.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		doc.Metadata = stringifyMetadata(metadata)
		results = append(results, models.SearchResult{Doc: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector rows: %w", err)
	}
	return results, nil
}

func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}

// buildSearchQuery renders the similarity query. Filter keys are sorted so
// the statement text is stable for the prepared statement cache.
func buildSearchQuery(table string, vector []float64, topK int, filter map[string]string) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT id, content, metadata, created_at, 1 - (vector <=> $1) AS score FROM %s`, table)

	args := []any{pgvectorArray(vector)}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "metadata->>$%d = $%d", len(args)+1, len(args)+2)
		args = append(args, k, filter[k])
	}

	fmt.Fprintf(&sb, " ORDER BY vector <=> $1 LIMIT $%d", len(args)+1)
	args = append(args, topK)
	return sb.String(), args
}

// pgvectorArray converts a float64 slice to pgvector's text format: [1,2.5,3]
func pgvectorArray(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}
