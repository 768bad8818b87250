package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcorpus/regrag/internal/config"
	"github.com/lexcorpus/regrag/internal/graph"
	"github.com/lexcorpus/regrag/internal/language"
	"github.com/lexcorpus/regrag/internal/vectorstore"
)

type orchestratorFixture struct {
	cfg    *config.Config
	client *fakeVectorClient
	store  *fakeGraphStore
	orch   *Orchestrator
}

func newOrchestratorFixture(t *testing.T, cache *QueryCache) *orchestratorFixture {
	t.Helper()
	cfg := testConfig()
	client := newFakeVectorClient()
	store := newFakeGraphStore()
	registry := NewRegistry(cfg, client, newFakeEmbedder(8), nil)
	detector := language.NewDetector(cfg.Language.Default, nil)
	if cache == nil {
		cache = NewQueryCache(nil, 0, nil)
	}

	return &orchestratorFixture{
		cfg:    cfg,
		client: client,
		store:  store,
		orch:   NewOrchestrator(cfg, registry, detector, store, nil, cache, nil, nil),
	}
}

func (f *orchestratorFixture) seedEnglish(t *testing.T, n int) {
	t.Helper()
	seedCorpus(t, f.client, "regdocs_en", n)
}

func scoredPoint(docID string, index int, score float32, text string) vectorstore.ScoredPoint {
	return vectorstore.ScoredPoint{
		Score: score,
		Payload: map[string]interface{}{
			payloadText:       text,
			payloadDocID:      docID,
			payloadChunkID:    fmt.Sprintf("%s_chunk_%d", docID, index),
			payloadChunkIndex: float64(index),
			payloadIsQuestion: false,
		},
	}
}

func TestOrchestratorRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects empty query", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: ""})
		assert.Equal(t, StatusError, resp.Status)
	})

	t.Run("rejects malformed filters", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		resp := f.orch.Retrieve(ctx, RetrieveRequest{
			Query:   "valid query",
			Filters: Filters{"year": map[string]interface{}{"operator": "between", "value": 1}},
		})
		assert.Equal(t, StatusError, resp.Status)
		assert.Contains(t, resp.Message, "unsupported operator")
	})

	t.Run("hybrid retrieval merges vector and keyword hits", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.seedEnglish(t, 6)
		f.client.searchResults = []vectorstore.ScoredPoint{
			scoredPoint("seed", 0, 0.9, "regulatory obligation clause number 0 about data retention"),
			scoredPoint("other", 0, 0.7, "unrelated provision text"),
		}

		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: "data retention obligation", Language: "en"})
		require.Equal(t, StatusSuccess, resp.Status)
		assert.Equal(t, "en", resp.Language)
		require.NotEmpty(t, resp.Results)

		// seed_chunk_0 matches both channels and must rank first.
		assert.Equal(t, "seed_chunk_0", resp.Results[0].ChunkID)
		assert.Equal(t, SourceBoth, resp.Results[0].Source)
	})

	t.Run("vector-only when corpus is too small for keywords", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.seedEnglish(t, 3)
		f.client.searchResults = []vectorstore.ScoredPoint{
			scoredPoint("seed", 0, 0.8, "a clause"),
		}

		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: "clause", Language: "en"})
		require.Equal(t, StatusSuccess, resp.Status)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, SourceVector, resp.Results[0].Source)
	})

	t.Run("vector search failure degrades to keyword results", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.seedEnglish(t, 6)
		f.client.searchErr = assert.AnError

		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: "data retention", Language: "en"})
		require.Equal(t, StatusSuccess, resp.Status)
		require.NotEmpty(t, resp.Results)
		for _, r := range resp.Results {
			assert.Equal(t, SourceKeyword, r.Source)
		}
	})

	t.Run("hierarchy expansion adds context chunks", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.seedEnglish(t, 6)
		f.client.searchResults = []vectorstore.ScoredPoint{
			scoredPoint("seed", 2, 0.9, "clause two"),
			scoredPoint("seed", 4, 0.8, "clause four"),
		}
		f.store.contexts[ChunkKey{DocID: "seed", ChunkIndex: 2}] = &graph.Context{
			Parent: &graph.Node{DocID: "seed", ChunkIndex: 0, Text: "section heading"},
		}

		// Query terms outside the corpus vocabulary, so the parent chunk is
		// not already a direct keyword hit.
		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: "breach notification deadline", Language: "en"})
		require.Equal(t, StatusSuccess, resp.Status)

		var foundParent bool
		for _, r := range resp.Results {
			if r.ChunkID == "seed_chunk_0" && r.Source == SourceHierarchical {
				foundParent = true
			}
		}
		assert.True(t, foundParent)
	})

	t.Run("graph disabled by config skips expansion", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.cfg.Retrieval.EnableGraph = false
		f.seedEnglish(t, 6)
		f.client.searchResults = []vectorstore.ScoredPoint{
			scoredPoint("seed", 2, 0.9, "clause two"),
			scoredPoint("seed", 4, 0.8, "clause four"),
		}
		f.store.contexts[ChunkKey{DocID: "seed", ChunkIndex: 2}] = &graph.Context{
			Parent: &graph.Node{DocID: "seed", ChunkIndex: 0, Text: "section heading"},
		}

		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: "clause", Language: "en"})
		for _, r := range resp.Results {
			assert.NotEqual(t, SourceHierarchical, r.Source)
		}
	})

	t.Run("filters exclude non-matching results", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.seedEnglish(t, 6)
		gdpr := scoredPoint("seed", 0, 0.9, "gdpr clause")
		gdpr.Payload[payloadMetadata] = map[string]interface{}{"category": "gdpr"}
		aml := scoredPoint("other", 0, 0.8, "aml clause")
		aml.Payload[payloadMetadata] = map[string]interface{}{"category": "aml"}
		f.client.searchResults = []vectorstore.ScoredPoint{gdpr, aml}

		resp := f.orch.Retrieve(ctx, RetrieveRequest{
			Query:    "clause",
			Language: "en",
			Filters:  Filters{"category": "gdpr"},
		})
		require.Equal(t, StatusSuccess, resp.Status)
		for _, r := range resp.Results {
			assert.NotEqual(t, "other_chunk_0", r.ChunkID)
		}
	})

	t.Run("question hits collapse into their parent chunk", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.seedEnglish(t, 3)
		direct := scoredPoint("seed", 1, 0.6, "clause one text")
		question := vectorstore.ScoredPoint{
			Score: 0.9,
			Payload: map[string]interface{}{
				payloadIsQuestion:        true,
				payloadQuestionText:      "What does clause one say?",
				payloadParentChunkID:     "seed_chunk_1",
				payloadOriginalChunkText: "clause one text",
				payloadDocID:             "seed",
				payloadChunkIndex:        float64(1),
			},
		}
		f.client.searchResults = []vectorstore.ScoredPoint{direct, question}

		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: "clause one", Language: "en"})
		require.Equal(t, StatusSuccess, resp.Status)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "seed_chunk_1", resp.Results[0].ChunkID)
		assert.Contains(t, resp.Results[0].Source, SourceQuestion)
	})

	t.Run("unsupported requested language falls back to detection", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.seedEnglish(t, 3)
		f.client.searchResults = []vectorstore.ScoredPoint{
			scoredPoint("seed", 0, 0.8, "a clause"),
		}

		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: "what are the record keeping requirements", Language: "zz"})
		require.Equal(t, StatusSuccess, resp.Status)
		assert.Equal(t, "en", resp.Language)
	})

	t.Run("respects top k", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.seedEnglish(t, 3)
		points := make([]vectorstore.ScoredPoint, 5)
		for i := range points {
			points[i] = scoredPoint("seed", i, float32(0.9)-float32(i)*0.1, fmt.Sprintf("clause %d", i))
		}
		f.client.searchResults = points

		resp := f.orch.Retrieve(ctx, RetrieveRequest{Query: "clause", Language: "en", TopK: 2})
		require.Equal(t, StatusSuccess, resp.Status)
		assert.Len(t, resp.Results, 2)
	})
}

func TestOrchestratorCaching(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	cache := NewQueryCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, nil)

	f := newOrchestratorFixture(t, cache)
	f.seedEnglish(t, 3)
	f.client.searchResults = []vectorstore.ScoredPoint{
		scoredPoint("seed", 0, 0.8, "a clause"),
	}

	first := f.orch.Retrieve(ctx, RetrieveRequest{Query: "clause", Language: "en"})
	require.Equal(t, StatusSuccess, first.Status)
	searchesAfterFirst := f.client.searchCalls

	second := f.orch.Retrieve(ctx, RetrieveRequest{Query: "clause", Language: "en"})
	require.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, first.Results, second.Results)
	// Served from cache, no new backend search.
	assert.Equal(t, searchesAfterFirst, f.client.searchCalls)
}

func TestOrchestratorEnsureLanguageInitialized(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	require.NoError(t, f.orch.EnsureLanguageInitialized(context.Background(), "de"))
	assert.True(t, f.client.collections["regdocs_de"])

	assert.Error(t, f.orch.EnsureLanguageInitialized(context.Background(), "xx"))
}
