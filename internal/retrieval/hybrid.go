package retrieval

import (
	"math"
	"strings"

	"github.com/sirupsen/logrus"
)

// MergeWeighted fuses vector and keyword results into one ranked list.
//
// This is rank fusion, not a calibrated probability: combined scores are
// comparable only within a single merge call, never across queries or across
// differently weighted configurations. Weights that do not sum to 1 are
// renormalized with a warning rather than silently clamped.
func MergeWeighted(vectorResults, keywordResults []RetrievedNode, vectorWeight, keywordWeight float64, logger *logrus.Logger) []RetrievedNode {
	if logger == nil {
		logger = logrus.New()
	}

	total := vectorWeight + keywordWeight
	if total <= 0 {
		logger.Warn("Non-positive hybrid weights supplied, falling back to equal weighting")
		vectorWeight, keywordWeight = 0.5, 0.5
	} else if math.Abs(total-1.0) > 1e-9 {
		logger.WithFields(logrus.Fields{
			"vector_weight":  vectorWeight,
			"keyword_weight": keywordWeight,
		}).Warn("Hybrid weights do not sum to 1, renormalizing")
		vectorWeight /= total
		keywordWeight /= total
	}

	merged := make(map[ChunkKey]*RetrievedNode, len(vectorResults)+len(keywordResults))

	for _, node := range vectorResults {
		key := node.Chunk.Key()
		weighted := node.Score * vectorWeight
		// A direct chunk hit and a question hit resolving to the same chunk
		// both arrive here; collapse them now so neither contribution is
		// lost. Higher score wins, both sources are recorded.
		if existing, ok := merged[key]; ok {
			if weighted > existing.Score {
				existing.Score = weighted
			}
			existing.Source = mergeSources(existing.Source, node.Source)
			if node.Source != SourceQuestion && strings.Contains(existing.Source, SourceQuestion) {
				existing.Chunk = node.Chunk
			}
			continue
		}
		entry := node
		entry.Score = weighted
		merged[key] = &entry
	}

	for _, node := range keywordResults {
		key := node.Chunk.Key()
		if existing, ok := merged[key]; ok {
			existing.Score += node.Score * keywordWeight
			if existing.Source == SourceVector {
				existing.Source = SourceBoth
			} else {
				existing.Source = mergeSources(existing.Source, SourceKeyword)
			}
			continue
		}
		entry := node
		entry.Score = node.Score * keywordWeight
		entry.Source = SourceKeyword
		merged[key] = &entry
	}

	nodes := make([]RetrievedNode, 0, len(merged))
	for _, entry := range merged {
		nodes = append(nodes, *entry)
	}
	sortNodes(nodes)
	return nodes
}
