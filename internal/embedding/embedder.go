// Package embedding provides embedding model clients for chunk and query
// vectorization. Supports Ollama and OpenAI-compatible endpoints.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lexcorpus/regrag/internal/config"
)

// Embedder generates vector embeddings for document and query text.
type Embedder interface {
	// Name returns the model identifier.
	Name() string
	// Dimension returns the embedding dimension.
	Dimension() int
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewFromConfig builds an embedder for the configured endpoint. OpenAI-style
// endpoints are recognized by a /v1 suffix or an API key; everything else is
// treated as an Ollama server.
func NewFromConfig(cfg config.EmbeddingConfig) Embedder {
	if strings.HasSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1") || cfg.APIKey != "" {
		return NewOpenAIEmbedder(cfg)
	}
	return NewOllamaEmbedder(cfg)
}

// Cache is a bounded in-memory embedding cache keyed by input text. Repeated
// indexing of identical chunk text skips the embedding call entirely.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]float32
	maxSize int
}

// NewCache creates a cache holding at most maxSize embeddings.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &Cache{
		entries: make(map[string][]float32),
		maxSize: maxSize,
	}
}

// Get returns a cached embedding for the text, if present.
func (c *Cache) Get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[text]
	return v, ok
}

// Set stores an embedding. A full cache is cleared rather than evicted
// entry-by-entry; indexing workloads are bursty and rarely revisit old keys.
func (c *Cache) Set(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.entries = make(map[string][]float32)
	}
	c.entries[text] = vector
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func dimensionFor(model string, configured int) (int, error) {
	if configured > 0 {
		return configured, nil
	}
	switch model {
	case "nomic-embed-text", "text-embedding-ada-002":
		return 768, nil
	case "text-embedding-3-small":
		return 1536, nil
	case "text-embedding-3-large":
		return 3072, nil
	case "mxbai-embed-large":
		return 1024, nil
	case "all-minilm":
		return 384, nil
	}
	return 0, fmt.Errorf("unknown embedding dimension for model %q", model)
}
