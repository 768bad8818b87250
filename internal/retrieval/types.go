// Package retrieval implements the hybrid, hierarchy-aware, hypothesis-
// augmented retrieval pipeline for the regulatory document corpus.
package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

// Chunk is one retrievable unit of document text. Chunks are produced by the
// ingestion pipeline and read-only here.
type Chunk struct {
	ChunkID    string                 `json:"chunk_id"`
	DocID      string                 `json:"doc_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Text       string                 `json:"text"`
	Language   string                 `json:"language"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Key returns the chunk's logical identity. Deduplication always works on
// this key, never on vector point IDs: a chunk's direct point and a question
// point resolving to it are the same logical node.
func (c Chunk) Key() ChunkKey {
	return ChunkKey{DocID: c.DocID, ChunkIndex: c.ChunkIndex}
}

// ChunkKey identifies a chunk by document and position.
type ChunkKey struct {
	DocID      string
	ChunkIndex int
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s_chunk_%d", k.DocID, k.ChunkIndex)
}

// Source tags describe how a node entered the result set.
const (
	SourceVector       = "vector"
	SourceKeyword      = "keyword"
	SourceBoth         = "both"
	SourceHierarchical = "hierarchical"
	SourceDirect       = "direct"
	SourceQuestion     = "question"
)

// RetrievedNode is a per-query, in-memory result record. Score semantics
// depend on the stage that produced it: raw cosine similarity, weighted
// hybrid score, hierarchy-boosted score, or reranker score.
type RetrievedNode struct {
	Chunk  Chunk   `json:"chunk"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

// mergeSources combines two source tags without duplicating components.
func mergeSources(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	seen := make(map[string]struct{})
	var parts []string
	for _, tag := range append(strings.Split(a, "+"), strings.Split(b, "+")...) {
		if _, dup := seen[tag]; dup || tag == "" {
			continue
		}
		seen[tag] = struct{}{}
		parts = append(parts, tag)
	}
	return strings.Join(parts, "+")
}

// RetrievalResult is the single well-typed shape every pipeline stage
// returns, so stages compose without runtime shape inspection.
type RetrievalResult struct {
	Nodes []RetrievedNode `json:"nodes"`
}

// sortNodes orders nodes by score descending with a deterministic key-based
// tie-break, so fixed inputs always produce the same ordering.
func sortNodes(nodes []RetrievedNode) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Score != nodes[j].Score {
			return nodes[i].Score > nodes[j].Score
		}
		ki, kj := nodes[i].Chunk.Key(), nodes[j].Chunk.Key()
		if ki.DocID != kj.DocID {
			return ki.DocID < kj.DocID
		}
		return ki.ChunkIndex < kj.ChunkIndex
	})
}

// Payload keys for points stored in the vector collections.
const (
	payloadText              = "text"
	payloadDocID             = "doc_id"
	payloadChunkID           = "chunk_id"
	payloadChunkIndex        = "chunk_index"
	payloadLanguage          = "language"
	payloadMetadata          = "metadata"
	payloadIsQuestion        = "is_question"
	payloadQuestionText      = "question_text"
	payloadQuestionIndex     = "question_index"
	payloadParentChunkID     = "parent_chunk_id"
	payloadOriginalChunkText = "original_chunk_text"
)

// ScoredChunk is the external result shape surfaced to callers.
type ScoredChunk struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score"`
	DocID    string                 `json:"doc_id"`
	ChunkID  string                 `json:"chunk_id"`
	Source   string                 `json:"source"`
}

// Status values used in structured results crossing the service boundary.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RetrieveResponse is the structured result of a retrieval call. Errors are
// reported via Status/Message so routers can translate directly to HTTP
// responses.
type RetrieveResponse struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Language string        `json:"language,omitempty"`
	Results  []ScoredChunk `json:"results"`
}

// IndexResult summarizes one document-indexing run.
type IndexResult struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	DocID         string `json:"doc_id"`
	Language      string `json:"language,omitempty"`
	VectorCount   int    `json:"vector_count"`
	QuestionCount int    `json:"question_count"`
	FailedChunks  int    `json:"failed_chunks,omitempty"`
}

func toScoredChunks(nodes []RetrievedNode) []ScoredChunk {
	out := make([]ScoredChunk, len(nodes))
	for i, node := range nodes {
		out[i] = ScoredChunk{
			Text:     node.Chunk.Text,
			Metadata: node.Chunk.Metadata,
			Score:    node.Score,
			DocID:    node.Chunk.DocID,
			ChunkID:  node.Chunk.ChunkID,
			Source:   node.Source,
		}
	}
	return out
}
