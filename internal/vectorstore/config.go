package vectorstore

import (
	"fmt"
	"strings"
	"time"
)

// Distance is the similarity metric for a collection.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// Config holds connection settings for the Qdrant server.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Validate checks the config for usability.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("vector store URL is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("vector store URL must be http(s): %q", c.URL)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// CollectionConfig describes a collection to create.
type CollectionConfig struct {
	Name       string
	VectorSize int
	Distance   Distance
}

// Validate checks the collection config.
func (c *CollectionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.VectorSize)
	}
	if c.Distance == "" {
		c.Distance = DistanceCosine
	}
	return nil
}

// SearchParams controls a similarity search.
type SearchParams struct {
	Limit          int
	Offset         int
	ScoreThreshold float32
	WithPayload    bool
	WithVectors    bool
	Filter         map[string]interface{}
}

// DefaultSearchParams returns sensible search defaults.
func DefaultSearchParams() *SearchParams {
	return &SearchParams{
		Limit:       10,
		WithPayload: true,
	}
}
