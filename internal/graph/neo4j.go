package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/lexcorpus/regrag/internal/config"
)

// Neo4jStore implements Store against a Neo4j document-structure graph.
// Chunks are (:Chunk {doc_id, chunk_index, text}) nodes linked to their
// section via [:PART_OF] -> (:Section).
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *logrus.Logger
}

// NewNeo4jStore connects to Neo4j with the configured credentials.
func NewNeo4jStore(cfg config.Neo4jConfig, logger *logrus.Logger) (*Neo4jStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	return &Neo4jStore{
		driver:   driver,
		database: cfg.Database,
		logger:   logger,
	}, nil
}

const chunkContextQuery = `
MATCH (c:Chunk {doc_id: $doc_id, chunk_index: $chunk_index})-[:PART_OF]->(s:Section)
OPTIONAL MATCH (sib:Chunk)-[:PART_OF]->(s)
WHERE sib.chunk_index <> c.chunk_index
  AND abs(sib.chunk_index - c.chunk_index) <= $window
RETURN s.doc_id AS section_doc_id,
       s.chunk_index AS section_chunk_index,
       s.text AS section_text,
       collect({doc_id: sib.doc_id, chunk_index: sib.chunk_index, text: sib.text}) AS siblings
`

// ChunkContext returns the parent section and same-parent siblings within
// the positional window.
func (s *Neo4jStore) ChunkContext(ctx context.Context, docID string, chunkIndex, window int) (*Context, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer func() { _ = session.Close(ctx) }()

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, chunkContextQuery, map[string]any{
			"doc_id":      docID,
			"chunk_index": chunkIndex,
			"window":      window,
		})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("chunk context query failed: %w", err)
	}
	if len(records) == 0 {
		return &Context{}, nil
	}

	record := records[0]
	out := &Context{}

	if parentDoc, ok := record.Get("section_doc_id"); ok && parentDoc != nil {
		parent := &Node{DocID: asString(parentDoc)}
		if idx, ok := record.Get("section_chunk_index"); ok {
			parent.ChunkIndex = asInt(idx)
		}
		if text, ok := record.Get("section_text"); ok {
			parent.Text = asString(text)
		}
		out.Parent = parent
	}

	if raw, ok := record.Get("siblings"); ok {
		if items, ok := raw.([]any); ok {
			for _, item := range items {
				props, ok := item.(map[string]any)
				if !ok || props["doc_id"] == nil {
					continue
				}
				node := Node{
					DocID:      asString(props["doc_id"]),
					ChunkIndex: asInt(props["chunk_index"]),
					Text:       asString(props["text"]),
				}
				distance := node.ChunkIndex - chunkIndex
				if distance < 0 {
					distance = -distance
				}
				out.Siblings = append(out.Siblings, Sibling{Node: node, Distance: distance})
			}
		}
	}

	return out, nil
}

// Available verifies Neo4j connectivity.
func (s *Neo4jStore) Available(ctx context.Context) bool {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		s.logger.WithError(err).Debug("Neo4j unavailable")
		return false
	}
	return true
}

// Close shuts down the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
