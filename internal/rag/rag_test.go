package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentoven/chat-gateway/internal/vectorstore"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

func TestDetectBrand(t *testing.T) {
	cases := map[string]string{
		"Pepsi ürünleri nelerdir?":         "pepsi",
		"GOLF dondurma çeşitleri":          "golf",
		"lipon ice tea fiyatı":             "lipton",
		"doganay şalgam suyu":              "doğanay",
		"şirketiniz hakkında bilgi ver":    DefaultBrand,
		"pepsinin şekersiz versiyonu":      DefaultBrand,
		"":                                 DefaultBrand,
		"erikli ve pınar hangisi daha iyi": "erikli",
	}
	for query, want := range cases {
		assert.Equal(t, want, DetectBrand(query), query)
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 100.0, similarity("pepsi", "pepsi"), 1e-9)
	assert.InDelta(t, 200.0*5/11, similarity("lipon", "lipton"), 1e-9)
	assert.InDelta(t, 0.0, similarity("xyz", "golf"), 1e-9)
	// Runes, not bytes.
	assert.InDelta(t, 100.0, similarity("yedigün", "yedigün"), 1e-9)
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]models.Passage{
		{Text: "Pepsi Max şekersizdir.", Brand: "pepsi", URL: "https://example.com/max", Score: 0.912},
		{Text: "Pepsi Twist limonludur.", Brand: "pepsi", Score: 0.5},
	})

	want := "[Kaynak 1] (Skor: 0.91)\nMarka: pepsi\nİçerik: Pepsi Max şekersizdir.\nURL: https://example.com/max" +
		"\n\n---\n\n" +
		"[Kaynak 2] (Skor: 0.50)\nMarka: pepsi\nİçerik: Pepsi Twist limonludur."
	assert.Equal(t, want, got)
	assert.Equal(t, NoContext, FormatContext(nil))
}

func TestExtractSources(t *testing.T) {
	got := ExtractSources([]models.Passage{
		{URL: "https://a"}, {URL: ""}, {URL: "https://b"}, {URL: "https://a"},
	})
	assert.Equal(t, []string{"https://a", "https://b"}, got)
	assert.Empty(t, ExtractSources(nil))
	assert.NotNil(t, ExtractSources(nil))
}

// ── Retriever ───────────────────────────────────────────────

type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) Kind() string      { return "fake" }
func (f *fakeEmbedder) Dimensions() int   { return len(f.vector) }
func (f *fakeEmbedder) MaxBatchSize() int { return 16 }
func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}
func (f *fakeEmbedder) HealthCheck(context.Context) error { return nil }

type failingStore struct{ err error }

func (f failingStore) Kind() string { return "failing" }
func (f failingStore) Search(context.Context, []float64, int, map[string]string) ([]models.SearchResult, error) {
	return nil, f.err
}
func (f failingStore) HealthCheck(context.Context) error { return f.err }

func seededStore(t *testing.T) *vectorstore.EmbeddedStore {
	t.Helper()
	s := vectorstore.NewEmbeddedStore()
	docs := []models.VectorDoc{
		{ID: "p1", Vector: []float64{1, 0}, Metadata: map[string]string{"text": "Pepsi Max", "brand": "pepsi", "doc_type": "product", "url": "https://example.com/pepsi-max"}},
		{ID: "p2", Vector: []float64{0.9, 0.1}, Metadata: map[string]string{"text": "Pepsi Twist", "brand": "pepsi"}},
		{ID: "p3", Vector: []float64{0.8, 0.2}, Metadata: map[string]string{"text": "Pepsi Light", "brand": "pepsi", "url": "https://example.com/pepsi-light"}},
		{ID: "p4", Vector: []float64{0.1, 0.9}, Metadata: map[string]string{"text": "Pepsi Cherry", "brand": "pepsi"}},
		{ID: "l1", Vector: []float64{1, 0}, Metadata: map[string]string{"text": "Lipton", "brand": "lipton"}},
	}
	require.NoError(t, s.Upsert(context.Background(), docs))
	return s
}

func TestRetriever_FiltersByDetectedBrand(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float64{1, 0}}, seededStore(t))

	passages, err := r.Search(context.Background(), "Pepsi ürünleri nelerdir?")
	require.NoError(t, err)
	require.Len(t, passages, DefaultTopK)

	assert.Equal(t, "p1", passages[0].ID)
	assert.Equal(t, "Pepsi Max", passages[0].Text)
	assert.Equal(t, "product", passages[0].DocType)
	assert.Equal(t, "https://example.com/pepsi-max", passages[0].URL)
	assert.Equal(t, "unknown", passages[1].DocType)
	for _, p := range passages {
		assert.Equal(t, "pepsi", p.Brand)
	}
}

func TestRetriever_NoBrandFindsNothing(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float64{1, 0}}, seededStore(t), WithTopK(5))

	passages, err := r.Search(context.Background(), "merhaba")
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetriever_ErrorClasses(t *testing.T) {
	ctx := context.Background()

	r := NewRetriever(&fakeEmbedder{err: models.ErrRateLimited}, seededStore(t))
	_, err := r.Search(ctx, "pepsi")
	assert.ErrorIs(t, err, models.ErrRateLimited)

	r = NewRetriever(&fakeEmbedder{vector: []float64{1, 0}}, failingStore{err: errors.New("connection refused")})
	_, err = r.Search(ctx, "pepsi")
	assert.ErrorIs(t, err, models.ErrUnavailable)

	r = NewRetriever(&fakeEmbedder{vector: []float64{1, 0}}, failingStore{err: context.DeadlineExceeded}, WithTimeout(time.Second))
	_, err = r.Search(ctx, "pepsi")
	assert.ErrorIs(t, err, models.ErrTimeout)
}
