package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lexcorpus/regrag/internal/embedding"
	"github.com/lexcorpus/regrag/internal/vectorstore"
)

// VectorClient is the slice of the Qdrant client the retrieval core uses.
type VectorClient interface {
	CreateCollection(ctx context.Context, config *vectorstore.CollectionConfig) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	UpsertPoints(ctx context.Context, collection string, points []vectorstore.Point) error
	Search(ctx context.Context, collection string, vector []float32, params *vectorstore.SearchParams) ([]vectorstore.ScoredPoint, error)
	Scroll(ctx context.Context, collection string, limit int, offset *string, filter map[string]interface{}) ([]vectorstore.Point, *string, error)
	DeleteByFilter(ctx context.Context, collection string, filter map[string]interface{}) error
	CountPoints(ctx context.Context, collection string, filter map[string]interface{}) (int64, error)
}

// VectorIndex owns one logical collection per language: it embeds chunk
// text, upserts points, searches, and deletes by document.
type VectorIndex struct {
	client     VectorClient
	embedder   embedding.Embedder
	collection string
	language   string
	logger     *logrus.Logger
}

// NewVectorIndex creates the adapter for one language collection.
func NewVectorIndex(client VectorClient, embedder embedding.Embedder, collection, language string, logger *logrus.Logger) *VectorIndex {
	if logger == nil {
		logger = logrus.New()
	}
	return &VectorIndex{
		client:     client,
		embedder:   embedder,
		collection: collection,
		language:   language,
		logger:     logger,
	}
}

// Collection returns the collection name this index writes to.
func (v *VectorIndex) Collection() string {
	return v.collection
}

// EnsureCollection creates the language collection when missing.
func (v *VectorIndex) EnsureCollection(ctx context.Context) error {
	exists, err := v.client.CollectionExists(ctx, v.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	cfg := &vectorstore.CollectionConfig{
		Name:       v.collection,
		VectorSize: v.embedder.Dimension(),
		Distance:   vectorstore.DistanceCosine,
	}
	if err := v.client.CreateCollection(ctx, cfg); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// IndexChunks embeds chunks in batch and upserts them, keyed by chunk_id so
// re-indexing overwrites instead of duplicating. Individual embedding
// failures skip that chunk; a total embedding outage aborts the call, since
// partial uncommitted state would corrupt later deletion by doc_id.
func (v *VectorIndex) IndexChunks(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Batch path failed; retry chunk-by-chunk so one bad input does not
		// sink the document.
		vectors = make([][]float32, len(chunks))
		failed := 0
		for i, text := range texts {
			vec, embedErr := v.embedder.Embed(ctx, text)
			if embedErr != nil {
				v.logger.WithError(embedErr).WithField("chunk_id", chunks[i].ChunkID).Warn("Chunk embedding failed, skipping")
				failed++
				continue
			}
			vectors[i] = vec
		}
		if failed == len(chunks) {
			return 0, fmt.Errorf("embedding service unavailable: %w", err)
		}
	}

	points := make([]vectorstore.Point, 0, len(chunks))
	for i, chunk := range chunks {
		if vectors[i] == nil {
			continue
		}
		points = append(points, vectorstore.Point{
			ID:      pointID(chunk.ChunkID),
			Vector:  vectors[i],
			Payload: chunkPayload(chunk),
		})
	}

	if err := v.client.UpsertPoints(ctx, v.collection, points); err != nil {
		return 0, fmt.Errorf("failed to upsert chunks: %w", err)
	}

	v.logger.WithFields(logrus.Fields{
		"collection": v.collection,
		"count":      len(points),
	}).Debug("Chunks indexed")
	return len(points), nil
}

// IndexQuestionPoints upserts pre-embedded hypothetical question points.
func (v *VectorIndex) IndexQuestionPoints(ctx context.Context, points []vectorstore.Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	if err := v.client.UpsertPoints(ctx, v.collection, points); err != nil {
		return 0, fmt.Errorf("failed to upsert question points: %w", err)
	}
	return len(points), nil
}

// Search runs an approximate nearest-neighbor query and returns nodes with
// raw, unnormalized cosine scores. Question points are resolved to their
// parent chunk here; deduplication happens downstream.
func (v *VectorIndex) Search(ctx context.Context, queryVector []float32, topK int, filter map[string]interface{}) ([]RetrievedNode, error) {
	params := &vectorstore.SearchParams{
		Limit:       topK,
		WithPayload: true,
		Filter:      filter,
	}

	points, err := v.client.Search(ctx, v.collection, queryVector, params)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	nodes := make([]RetrievedNode, 0, len(points))
	for _, point := range points {
		nodes = append(nodes, pointToNode(point, v.language))
	}
	return nodes, nil
}

// EmbedQuery produces the query embedding for this language's model.
func (v *VectorIndex) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return v.embedder.Embed(ctx, query)
}

// AllChunks scrolls the full collection and returns the unique chunk set.
// Question points alias back to their parent chunk text, so the keyword
// index built from this set searches over chunk content only.
func (v *VectorIndex) AllChunks(ctx context.Context) ([]Chunk, error) {
	var chunks []Chunk
	seen := make(map[ChunkKey]struct{})

	var offset *string
	for {
		points, next, err := v.client.Scroll(ctx, v.collection, 256, offset, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to scroll collection: %w", err)
		}
		for _, point := range points {
			chunk := payloadToChunk(point.Payload, v.language)
			if chunk.DocID == "" && chunk.Text == "" {
				continue
			}
			key := chunk.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			chunks = append(chunks, chunk)
		}
		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}

	return chunks, nil
}

// DeleteDocument removes every point belonging to the document, across both
// chunk and question point kinds, including points whose doc_id only appears
// under the legacy nested metadata key. Returns the number of points
// removed; zero is not an error.
func (v *VectorIndex) DeleteDocument(ctx context.Context, docID string) (int64, error) {
	filter := map[string]interface{}{
		"should": []map[string]interface{}{
			{"key": payloadDocID, "match": map[string]interface{}{"value": docID}},
			// Older indexed data nested doc_id under metadata.
			{"key": payloadMetadata + "." + payloadDocID, "match": map[string]interface{}{"value": docID}},
		},
	}

	count, err := v.client.CountPoints(ctx, v.collection, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count document points: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := v.client.DeleteByFilter(ctx, v.collection, filter); err != nil {
		return 0, fmt.Errorf("failed to delete document points: %w", err)
	}

	v.logger.WithFields(logrus.Fields{
		"collection": v.collection,
		"doc_id":     docID,
		"count":      count,
	}).Info("Document points deleted")
	return count, nil
}

// CountQuestions returns the number of question points for a document, or
// for the whole collection when docID is empty.
func (v *VectorIndex) CountQuestions(ctx context.Context, docID string) (int64, error) {
	must := []map[string]interface{}{
		{"key": payloadIsQuestion, "match": map[string]interface{}{"value": true}},
	}
	if docID != "" {
		must = append(must, map[string]interface{}{
			"key": payloadDocID, "match": map[string]interface{}{"value": docID},
		})
	}
	return v.client.CountPoints(ctx, v.collection, map[string]interface{}{"must": must})
}

func chunkPayload(chunk Chunk) map[string]interface{} {
	payload := map[string]interface{}{
		payloadText:       chunk.Text,
		payloadDocID:      chunk.DocID,
		payloadChunkID:    chunk.ChunkID,
		payloadChunkIndex: chunk.ChunkIndex,
		payloadLanguage:   chunk.Language,
		payloadIsQuestion: false,
	}
	if len(chunk.Metadata) > 0 {
		payload[payloadMetadata] = chunk.Metadata
	}
	return payload
}

// pointToNode converts a search hit into a RetrievedNode. Points flagged
// is_question are rewritten to their parent chunk: the question embedding
// matched, but the chunk text is what gets surfaced.
func pointToNode(point vectorstore.ScoredPoint, language string) RetrievedNode {
	chunk := payloadToChunk(point.Payload, language)
	source := SourceVector
	if isQuestion, _ := point.Payload[payloadIsQuestion].(bool); isQuestion {
		source = SourceQuestion
	}
	return RetrievedNode{
		Chunk:  chunk,
		Score:  float64(point.Score),
		Source: source,
	}
}

func payloadToChunk(payload map[string]interface{}, language string) Chunk {
	chunk := Chunk{Language: language}

	if isQuestion, _ := payload[payloadIsQuestion].(bool); isQuestion {
		chunk.Text, _ = payload[payloadOriginalChunkText].(string)
		chunk.ChunkID, _ = payload[payloadParentChunkID].(string)
	} else {
		chunk.Text, _ = payload[payloadText].(string)
		chunk.ChunkID, _ = payload[payloadChunkID].(string)
	}

	chunk.DocID, _ = payload[payloadDocID].(string)
	chunk.ChunkIndex = payloadInt(payload[payloadChunkIndex])
	if lang, ok := payload[payloadLanguage].(string); ok && lang != "" {
		chunk.Language = lang
	}
	if metadata, ok := payload[payloadMetadata].(map[string]interface{}); ok {
		chunk.Metadata = metadata
	}
	return chunk
}

func payloadInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// pointID derives a deterministic point UUID from a chunk or question
// identifier, making upserts idempotent.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}
