package retrieval

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/lexcorpus/regrag/internal/graph"
)

// HierarchyExpander augments an initial result set with structurally related
// chunks: each node's parent section and positionally close siblings under
// the same parent. Expansion is an enhancement, never a requirement — any
// failure returns the initial set unchanged.
type HierarchyExpander struct {
	store         graph.Store
	contextWindow int
	parentBoost   float64
	siblingBoost  float64
	logger        *logrus.Logger
}

// NewHierarchyExpander creates an expander over the given graph store.
func NewHierarchyExpander(store graph.Store, contextWindow int, parentBoost, siblingBoost float64, logger *logrus.Logger) *HierarchyExpander {
	if logger == nil {
		logger = logrus.New()
	}
	if contextWindow <= 0 {
		contextWindow = 2
	}
	return &HierarchyExpander{
		store:         store,
		contextWindow: contextWindow,
		parentBoost:   parentBoost,
		siblingBoost:  siblingBoost,
		logger:        logger,
	}
}

// Expand adds previously unseen parent and sibling chunks with boosted but
// capped scores. A context node's score is the maximum over its contributing
// relationships, never the sum: summing would let heavily cross-referenced
// sections dominate every query. Directly retrieved nodes are never demoted.
func (h *HierarchyExpander) Expand(ctx context.Context, initial []RetrievedNode) []RetrievedNode {
	if len(initial) < 2 {
		return initial
	}
	if h.store == nil || !h.store.Available(ctx) {
		h.logger.Debug("Graph store unavailable, skipping hierarchy expansion")
		return initial
	}

	direct := make(map[ChunkKey]struct{}, len(initial))
	for _, node := range initial {
		direct[node.Chunk.Key()] = struct{}{}
	}

	added := make(map[ChunkKey]*RetrievedNode)

	for _, node := range initial {
		neighborhood, err := h.store.ChunkContext(ctx, node.Chunk.DocID, node.Chunk.ChunkIndex, h.contextWindow)
		if err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"doc_id":      node.Chunk.DocID,
				"chunk_index": node.Chunk.ChunkIndex,
			}).Warn("Hierarchy lookup failed for node")
			continue
		}

		if neighborhood.Parent != nil {
			h.boost(added, direct, *neighborhood.Parent, node.Score*h.parentBoost, node.Chunk.Language)
		}

		for _, sibling := range neighborhood.Siblings {
			if sibling.Distance > h.contextWindow {
				continue
			}
			decay := 1 - float64(sibling.Distance)/float64(h.contextWindow+1)
			h.boost(added, direct, sibling.Node, node.Score*h.siblingBoost*decay, node.Chunk.Language)
		}
	}

	if len(added) == 0 {
		return initial
	}

	expanded := make([]RetrievedNode, 0, len(initial)+len(added))
	expanded = append(expanded, initial...)
	for _, node := range added {
		expanded = append(expanded, *node)
	}
	sortNodes(expanded)

	h.logger.WithFields(logrus.Fields{
		"initial": len(initial),
		"added":   len(added),
	}).Debug("Hierarchy expansion completed")
	return expanded
}

// boost records a context node with the max of its current score and the new
// contribution. Nodes already retrieved directly are left untouched.
func (h *HierarchyExpander) boost(added map[ChunkKey]*RetrievedNode, direct map[ChunkKey]struct{}, node graph.Node, score float64, lang string) {
	key := ChunkKey{DocID: node.DocID, ChunkIndex: node.ChunkIndex}
	if _, isDirect := direct[key]; isDirect {
		return
	}

	if existing, ok := added[key]; ok {
		if score > existing.Score {
			existing.Score = score
		}
		return
	}

	added[key] = &RetrievedNode{
		Chunk: Chunk{
			ChunkID:    key.String(),
			DocID:      node.DocID,
			ChunkIndex: node.ChunkIndex,
			Text:       node.Text,
			Language:   lang,
			Metadata:   node.Metadata,
		},
		Score:  score,
		Source: SourceHierarchical,
	}
}
