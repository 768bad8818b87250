// Package vectorstore wraps the Qdrant HTTP API for collection management,
// point upserts, similarity search, and filtered deletion.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client talks to a Qdrant server over its REST API.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a Qdrant client.
func NewClient(config *Config, logger *logrus.Logger) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("vector store config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// HealthCheck verifies the server is reachable. The root endpoint is used
// because newer Qdrant versions dropped /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := c.config.URL + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// CreateCollection creates a vector collection.
func (c *Client) CreateCollection(ctx context.Context, config *CollectionConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid collection config: %w", err)
	}

	reqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     config.VectorSize,
			"distance": string(config.Distance),
		},
	}

	if _, err := c.doRequest(ctx, http.MethodPut, "/collections/"+config.Name, reqBody); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	c.logger.WithField("collection", config.Name).Info("Collection created")
	return nil
}

// CollectionExists checks whether a collection exists.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	if _, err := c.doRequest(ctx, http.MethodGet, "/collections/"+name, nil); err != nil {
		return false, nil
	}
	return true, nil
}

// DeleteCollection removes a collection and all its points.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if _, err := c.doRequest(ctx, http.MethodDelete, "/collections/"+name, nil); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	c.logger.WithField("collection", name).Info("Collection deleted")
	return nil
}

// Point is a vector point with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Vector  []float32              `json:"vector,omitempty"`
}

// UpsertPoints inserts or overwrites points. Points without an ID get a
// generated UUID; a point upserted twice with the same ID is overwritten.
func (c *Client) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	for i := range points {
		if points[i].ID == "" {
			points[i].ID = uuid.New().String()
		}
	}

	reqBody := map[string]interface{}{"points": points}
	if _, err := c.doRequest(ctx, http.MethodPut, "/collections/"+collection+"/points", reqBody); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection": collection,
		"count":      len(points),
	}).Debug("Points upserted")
	return nil
}

// Search performs a similarity search and returns raw scores.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, params *SearchParams) ([]ScoredPoint, error) {
	if params == nil {
		params = DefaultSearchParams()
	}

	reqBody := map[string]interface{}{
		"vector":       vector,
		"limit":        params.Limit,
		"offset":       params.Offset,
		"with_payload": params.WithPayload,
		"with_vector":  params.WithVectors,
	}
	if params.ScoreThreshold > 0 {
		reqBody["score_threshold"] = params.ScoreThreshold
	}
	if params.Filter != nil {
		reqBody["filter"] = params.Filter
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/search", reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var response struct {
		Result []ScoredPoint `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return response.Result, nil
}

// Scroll pages through points matching a filter.
func (c *Client) Scroll(ctx context.Context, collection string, limit int, offset *string, filter map[string]interface{}) ([]Point, *string, error) {
	reqBody := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if offset != nil {
		reqBody["offset"] = *offset
	}
	if filter != nil {
		reqBody["filter"] = filter
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scroll points: %w", err)
	}

	var response struct {
		Result struct {
			NextPageOffset *string `json:"next_page_offset"`
			Points         []Point `json:"points"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return response.Result.Points, response.Result.NextPageOffset, nil
}

// DeleteByFilter removes every point whose payload matches the filter.
func (c *Client) DeleteByFilter(ctx context.Context, collection string, filter map[string]interface{}) error {
	reqBody := map[string]interface{}{"filter": filter}
	if _, err := c.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/delete", reqBody); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	c.logger.WithField("collection", collection).Debug("Points deleted by filter")
	return nil
}

// CountPoints returns the exact number of points matching a filter.
func (c *Client) CountPoints(ctx context.Context, collection string, filter map[string]interface{}) (int64, error) {
	reqBody := map[string]interface{}{"exact": true}
	if filter != nil {
		reqBody["filter"] = filter
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/count", reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}

	var response struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	return response.Result.Count, nil
}
