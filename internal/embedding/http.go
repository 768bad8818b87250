package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lexcorpus/regrag/internal/config"
)

// OllamaEmbedder calls an Ollama server's embeddings endpoint.
type OllamaEmbedder struct {
	cfg        config.EmbeddingConfig
	httpClient *http.Client
	dimension  int
	cache      *Cache
}

// NewOllamaEmbedder creates an embedder against an Ollama server.
func NewOllamaEmbedder(cfg config.EmbeddingConfig) *OllamaEmbedder {
	dim, err := dimensionFor(cfg.Model, cfg.Dimension)
	if err != nil {
		dim = 768
	}
	return &OllamaEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dimension:  dim,
		cache:      NewCache(0),
	}
}

func (m *OllamaEmbedder) Name() string {
	return fmt.Sprintf("ollama/%s", m.cfg.Model)
}

func (m *OllamaEmbedder) Dimension() int {
	return m.dimension
}

func (m *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := m.cache.Get(text); ok {
		return cached, nil
	}

	reqBody := map[string]interface{}{
		"model":  m.cfg.Model,
		"prompt": text,
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := postJSON(ctx, m.httpClient, m.cfg.BaseURL+"/api/embeddings", "", reqBody, &result); err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}

	vector := toFloat32(result.Embedding)
	m.cache.Set(text, vector)
	return vector, nil
}

// EmbedBatch embeds texts sequentially; the Ollama embeddings endpoint takes
// one prompt per request.
func (m *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := m.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	cfg        config.EmbeddingConfig
	httpClient *http.Client
	dimension  int
	cache      *Cache
}

// NewOpenAIEmbedder creates an embedder against an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	dim, err := dimensionFor(cfg.Model, cfg.Dimension)
	if err != nil {
		dim = 1536
	}
	return &OpenAIEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dimension:  dim,
		cache:      NewCache(0),
	}
}

func (m *OpenAIEmbedder) Name() string {
	return fmt.Sprintf("openai/%s", m.cfg.Model)
}

func (m *OpenAIEmbedder) Dimension() int {
	return m.dimension
}

func (m *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := m.cache.Get(text); ok {
		return cached, nil
	}

	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	m.cache.Set(text, vectors[0])
	return vectors[0], nil
}

func (m *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	batchSize := m.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		reqBody := map[string]interface{}{
			"input": texts[start:end],
			"model": m.cfg.Model,
		}

		var result struct {
			Data []struct {
				Embedding []float64 `json:"embedding"`
			} `json:"data"`
		}
		if err := postJSON(ctx, m.httpClient, m.cfg.BaseURL+"/embeddings", m.cfg.APIKey, reqBody, &result); err != nil {
			return nil, fmt.Errorf("embedding batch failed: %w", err)
		}
		if len(result.Data) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", end-start, len(result.Data))
		}

		for _, item := range result.Data {
			vectors = append(vectors, toFloat32(item.Embedding))
		}
	}

	return vectors, nil
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
