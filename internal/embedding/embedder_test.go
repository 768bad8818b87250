package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcorpus/regrag/internal/config"
)

func TestOpenAIEmbedderBatch(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		type item struct {
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Embedding: []float64{float64(i), 0.5, 0.25}}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(config.EmbeddingConfig{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		Model:     "text-embedding-3-small",
		Timeout:   5 * time.Second,
		BatchSize: 2,
	})

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0, 0.5, 0.25}, vectors[0])
	// 3 texts with batch size 2 means two requests.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIEmbedderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(config.EmbeddingConfig{
		BaseURL: server.URL,
		APIKey:  "k",
		Model:   "text-embedding-3-small",
		Timeout: 5 * time.Second,
	})

	_, err := embedder.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOllamaEmbedderCaches(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float64{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(config.EmbeddingConfig{
		BaseURL: server.URL,
		Model:   "nomic-embed-text",
		Timeout: 5 * time.Second,
	})

	first, err := embedder.Embed(context.Background(), "same text")
	require.NoError(t, err)
	second, err := embedder.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewFromConfig(t *testing.T) {
	openai := NewFromConfig(config.EmbeddingConfig{BaseURL: "https://api.openai.com/v1", Model: "text-embedding-3-small"})
	assert.IsType(t, &OpenAIEmbedder{}, openai)

	ollama := NewFromConfig(config.EmbeddingConfig{BaseURL: "http://localhost:11434", Model: "nomic-embed-text"})
	assert.IsType(t, &OllamaEmbedder{}, ollama)
}

func TestDimensionFor(t *testing.T) {
	dim, err := dimensionFor("nomic-embed-text", 0)
	require.NoError(t, err)
	assert.Equal(t, 768, dim)

	dim, err = dimensionFor("anything", 512)
	require.NoError(t, err)
	assert.Equal(t, 512, dim)

	_, err = dimensionFor("unknown-model", 0)
	assert.Error(t, err)
}
