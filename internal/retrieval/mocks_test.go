package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/lexcorpus/regrag/internal/graph"
	"github.com/lexcorpus/regrag/internal/vectorstore"
)

// fakeEmbedder produces deterministic vectors derived from the input text so
// identical texts always embed identically.
type fakeEmbedder struct {
	dim     int
	failAll bool
	failOn  map[string]bool
	mu      sync.Mutex
	calls   int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, failOn: make(map[string]bool)}
}

func (f *fakeEmbedder) Name() string   { return "fake-embedder" }
func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.failAll || f.failOn[text] {
		return nil, fmt.Errorf("embedding failed for %q", text)
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)]) / 255.0
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failAll {
		return nil, fmt.Errorf("batch embedding failed")
	}
	for _, text := range texts {
		if f.failOn[text] {
			return nil, fmt.Errorf("batch embedding failed")
		}
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// fakeProvider is a canned LLM completion provider.
type fakeProvider struct {
	response string
	err      error
}

func (p *fakeProvider) Complete(context.Context, string) (string, error) {
	return p.response, p.err
}

// fakeVectorClient is an in-memory stand-in for the Qdrant client. Search
// returns a preset result list; storage operations track state for
// assertions.
type fakeVectorClient struct {
	mu            sync.Mutex
	collections   map[string]bool
	points        map[string][]vectorstore.Point
	searchResults []vectorstore.ScoredPoint
	searchErr     error
	scrollErr     error
	createErr     error
	upsertErr     error
	// upsertFailTimes makes the next N upserts fail, then recover.
	upsertFailTimes int
	searchCalls     int
	deleteCalls     int
}

func newFakeVectorClient() *fakeVectorClient {
	return &fakeVectorClient{
		collections: make(map[string]bool),
		points:      make(map[string][]vectorstore.Point),
	}
}

func (c *fakeVectorClient) CreateCollection(_ context.Context, cfg *vectorstore.CollectionConfig) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections[cfg.Name] = true
	return nil
}

func (c *fakeVectorClient) CollectionExists(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collections[name], nil
}

func (c *fakeVectorClient) UpsertPoints(_ context.Context, collection string, points []vectorstore.Point) error {
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upsertFailTimes > 0 {
		c.upsertFailTimes--
		return fmt.Errorf("upsert temporarily unavailable")
	}

	existing := c.points[collection]
	for _, incoming := range points {
		replaced := false
		for i, p := range existing {
			if p.ID == incoming.ID {
				existing[i] = incoming
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, incoming)
		}
	}
	c.points[collection] = existing
	return nil
}

func (c *fakeVectorClient) Search(context.Context, string, []float32, *vectorstore.SearchParams) ([]vectorstore.ScoredPoint, error) {
	c.mu.Lock()
	c.searchCalls++
	c.mu.Unlock()
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.searchResults, nil
}

func (c *fakeVectorClient) Scroll(_ context.Context, collection string, limit int, offset *string, _ map[string]interface{}) ([]vectorstore.Point, *string, error) {
	if c.scrollErr != nil {
		return nil, nil, c.scrollErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.points[collection]
	start := 0
	if offset != nil {
		fmt.Sscanf(*offset, "%d", &start)
	}
	if start >= len(all) {
		return nil, nil, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]
	if end >= len(all) {
		return page, nil, nil
	}
	next := fmt.Sprintf("%d", end)
	return page, &next, nil
}

func (c *fakeVectorClient) DeleteByFilter(_ context.Context, collection string, filter map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteCalls++

	docID := filterDocID(filter)
	kept := c.points[collection][:0]
	for _, p := range c.points[collection] {
		if payloadDocIDOf(p.Payload) != docID {
			kept = append(kept, p)
		}
	}
	c.points[collection] = kept
	return nil
}

func (c *fakeVectorClient) CountPoints(_ context.Context, collection string, filter map[string]interface{}) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docID := filterDocID(filter)
	wantQuestion, filterQuestion := filterIsQuestion(filter)
	var count int64
	for _, p := range c.points[collection] {
		if docID != "" && payloadDocIDOf(p.Payload) != docID {
			continue
		}
		if filterQuestion {
			isQuestion, _ := p.Payload[payloadIsQuestion].(bool)
			if isQuestion != wantQuestion {
				continue
			}
		}
		count++
	}
	return count, nil
}

func filterDocID(filter map[string]interface{}) string {
	clauses, _ := filter["should"].([]map[string]interface{})
	if clauses == nil {
		if must, ok := filter["must"].([]map[string]interface{}); ok {
			clauses = must
		}
	}
	for _, clause := range clauses {
		if clause["key"] == payloadDocID {
			if match, ok := clause["match"].(map[string]interface{}); ok {
				if v, ok := match["value"].(string); ok {
					return v
				}
			}
		}
	}
	return ""
}

func filterIsQuestion(filter map[string]interface{}) (bool, bool) {
	must, _ := filter["must"].([]map[string]interface{})
	for _, clause := range must {
		if clause["key"] == payloadIsQuestion {
			if match, ok := clause["match"].(map[string]interface{}); ok {
				if v, ok := match["value"].(bool); ok {
					return v, true
				}
			}
		}
	}
	return false, false
}

func payloadDocIDOf(payload map[string]interface{}) string {
	v, _ := payload[payloadDocID].(string)
	return v
}

// fakeGraphStore serves canned chunk neighborhoods.
type fakeGraphStore struct {
	available bool
	contexts  map[ChunkKey]*graph.Context
	err       error
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{
		available: true,
		contexts:  make(map[ChunkKey]*graph.Context),
	}
}

func (s *fakeGraphStore) ChunkContext(_ context.Context, docID string, chunkIndex, _ int) (*graph.Context, error) {
	if s.err != nil {
		return nil, s.err
	}
	if ctx, ok := s.contexts[ChunkKey{DocID: docID, ChunkIndex: chunkIndex}]; ok {
		return ctx, nil
	}
	return &graph.Context{}, nil
}

func (s *fakeGraphStore) Available(context.Context) bool { return s.available }
func (s *fakeGraphStore) Close(context.Context) error    { return nil }

func testChunk(docID string, index int, text string) Chunk {
	key := ChunkKey{DocID: docID, ChunkIndex: index}
	return Chunk{
		ChunkID:    key.String(),
		DocID:      docID,
		ChunkIndex: index,
		Text:       text,
		Language:   "en",
	}
}

func testNode(docID string, index int, score float64, source string) RetrievedNode {
	return RetrievedNode{
		Chunk:  testChunk(docID, index, fmt.Sprintf("text for %s chunk %d", docID, index)),
		Score:  score,
		Source: source,
	}
}
