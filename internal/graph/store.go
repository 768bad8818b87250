// Package graph provides access to the document-structure graph used for
// hierarchical context expansion.
package graph

import "context"

// Node is a structural neighbor of a retrieved chunk.
type Node struct {
	DocID      string
	ChunkIndex int
	Text       string
	Metadata   map[string]interface{}
}

// Sibling is a chunk sharing the same parent section, with its positional
// distance from the reference chunk.
type Sibling struct {
	Node
	Distance int
}

// Context is the structural neighborhood of one chunk: its parent section
// and positionally close siblings under the same parent.
type Context struct {
	Parent   *Node
	Siblings []Sibling
}

// Store answers structural queries against the document hierarchy.
type Store interface {
	// ChunkContext returns the parent section and siblings within the given
	// positional window for one chunk.
	ChunkContext(ctx context.Context, docID string, chunkIndex, window int) (*Context, error)
	// Available reports whether the graph backend is reachable; expansion is
	// skipped entirely when it is not.
	Available(ctx context.Context) bool
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
