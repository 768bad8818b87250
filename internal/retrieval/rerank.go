package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/lexcorpus/regrag/internal/config"
)

// CrossEncoderReranker reorders the top candidates with a cross-encoder
// relevance model. Its score replaces the upstream hybrid or hierarchical
// score outright; once invoked, the reranker is authoritative.
type CrossEncoderReranker struct {
	cfg        config.RerankerConfig
	httpClient *http.Client
	logger     *logrus.Logger
	disabled   bool
}

// NewCrossEncoderReranker creates the reranker and probes the endpoint once.
// A failed probe disables the stage for the process lifetime; the
// orchestrator then skips it entirely instead of retrying per query.
func NewCrossEncoderReranker(ctx context.Context, cfg config.RerankerConfig, logger *logrus.Logger) *CrossEncoderReranker {
	if logger == nil {
		logger = logrus.New()
	}

	r := &CrossEncoderReranker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}

	if cfg.Endpoint == "" {
		r.disabled = true
		logger.Info("Reranker endpoint not configured, reranking disabled")
		return r
	}

	if err := r.probe(ctx); err != nil {
		r.disabled = true
		logger.WithError(err).Warn("Reranker model unavailable at startup, reranking disabled for process lifetime")
	}
	return r
}

// Enabled reports whether the reranking stage should run.
func (r *CrossEncoderReranker) Enabled() bool {
	return !r.disabled
}

func (r *CrossEncoderReranker) probe(ctx context.Context) error {
	_, err := r.scoreBatch(ctx, "probe", []string{"probe"})
	return err
}

// Rerank scores (query, chunk text) pairs and returns the top n by the
// model's relevance score. A per-call failure keeps the upstream order.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, nodes []RetrievedNode, topN int) []RetrievedNode {
	if r.disabled || len(nodes) == 0 {
		return nodes
	}

	batchSize := r.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	reranked := make([]RetrievedNode, len(nodes))
	copy(reranked, nodes)

	for start := 0; start < len(reranked); start += batchSize {
		end := start + batchSize
		if end > len(reranked) {
			end = len(reranked)
		}

		texts := make([]string, end-start)
		for i, node := range reranked[start:end] {
			texts[i] = node.Chunk.Text
		}

		scores, err := r.scoreBatch(ctx, query, texts)
		if err != nil || len(scores) != end-start {
			r.logger.WithError(err).Warn("Rerank batch failed, keeping upstream order")
			return nodes
		}
		for i := range scores {
			reranked[start+i].Score = scores[i]
		}
	}

	sortNodes(reranked)
	if topN > 0 && len(reranked) > topN {
		reranked = reranked[:topN]
	}
	return reranked
}

func (r *CrossEncoderReranker) scoreBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	pairs := make([][2]string, len(texts))
	for i, text := range texts {
		pairs[i] = [2]string{query, text}
	}

	reqBody := map[string]interface{}{
		"model": r.cfg.Model,
		"pairs": pairs,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Scores, nil
}
