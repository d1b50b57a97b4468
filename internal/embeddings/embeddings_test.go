package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentoven/chat-gateway/internal/config"
	"github.com/agentoven/agentoven/chat-gateway/internal/embeddings"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

func TestOpenAIDriver_ReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		assert.Equal(t, "text-embedding-3-small", req.Model)

		w.Write([]byte(`{"data":[{"index":1,"embedding":[0.2,0.2]},{"index":0,"embedding":[0.1,0.1]}]}`))
	}))
	defer srv.Close()

	d := embeddings.NewOpenAIDriver("sk-test", "text-embedding-3-small", embeddings.WithOpenAIEndpoint(srv.URL))
	assert.Equal(t, 1536, d.Dimensions())

	vecs, err := d.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.1}, {0.2, 0.2}}, vecs)
}

func TestOpenAIDriver_ErrorClasses(t *testing.T) {
	cases := map[int]error{
		http.StatusTooManyRequests:     models.ErrRateLimited,
		http.StatusInternalServerError: models.ErrUnavailable,
		http.StatusGatewayTimeout:      models.ErrTimeout,
	}
	for status, want := range cases {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			d := embeddings.NewOpenAIDriver("k", "m", embeddings.WithOpenAIEndpoint(srv.URL))
			_, err := d.Embed(context.Background(), []string{"x"})
			assert.ErrorIs(t, err, want)
		})
	}
}

func TestOpenAIDriver_MissingEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	d := embeddings.NewOpenAIDriver("k", "m", embeddings.WithOpenAIEndpoint(srv.URL))
	_, err := d.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, models.ErrUnavailable)
}

func TestOpenAIDriver_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	d := embeddings.NewOpenAIDriver("k", "m",
		embeddings.WithOpenAIEndpoint(srv.URL),
		embeddings.WithOpenAITimeout(50*time.Millisecond),
	)
	_, err := d.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, models.ErrTimeout)
}

func TestOpenAIDriver_BatchLimit(t *testing.T) {
	d := embeddings.NewOpenAIDriver("k", "m", embeddings.WithOpenAIBatchSize(1))
	_, err := d.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestOllamaDriver_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	}))
	defer srv.Close()

	d := embeddings.NewOllamaDriver(srv.URL, "all-minilm")
	assert.Equal(t, 384, d.Dimensions())

	vec, err := embeddings.EmbedQuery(context.Background(), d, "pepsi")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, vec)
}

func TestOllamaDriver_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	_, err := embeddings.NewOllamaDriver(srv.URL, "nomic-embed-text").Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, models.ErrUnavailable)
}

func TestNew_SelectsProvider(t *testing.T) {
	d, err := embeddings.New(config.RetrievalConfig{EmbeddingProvider: "ollama", EmbeddingModel: "mxbai-embed-large"}, "")
	require.NoError(t, err)
	assert.Equal(t, "ollama", d.Kind())
	assert.Equal(t, 1024, d.Dimensions())

	d, err = embeddings.New(config.RetrievalConfig{EmbeddingModel: "text-embedding-3-large"}, "k")
	require.NoError(t, err)
	assert.Equal(t, "openai", d.Kind())
	assert.Equal(t, 3072, d.Dimensions())

	_, err = embeddings.New(config.RetrievalConfig{EmbeddingProvider: "word2vec"}, "")
	assert.Error(t, err)
}

func TestOpenAIDriver_ShortenedDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Dimensions int `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 512, req.Dimensions)
		w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	d := embeddings.NewOpenAIDriver("k", "text-embedding-3-large",
		embeddings.WithOpenAIEndpoint(srv.URL),
		embeddings.WithOpenAIDimensions(512),
	)
	assert.Equal(t, 512, d.Dimensions())

	_, err := d.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
}

func TestOllamaDriver_TaggedModelDims(t *testing.T) {
	assert.Equal(t, 384, embeddings.NewOllamaDriver("", "all-minilm:l6-v2").Dimensions())
	assert.Equal(t, 768, embeddings.NewOllamaDriver("", "unknown-model").Dimensions())
}
