package retrieval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcorpus/regrag/internal/language"
)

func englishSettings(t *testing.T) language.Settings {
	t.Helper()
	settings, ok := language.SettingsFor("en")
	require.True(t, ok)
	return settings
}

func TestNewKeywordIndex(t *testing.T) {
	t.Run("returns nil below minimum corpus", func(t *testing.T) {
		chunks := []Chunk{
			testChunk("doc1", 0, "data protection obligations"),
			testChunk("doc1", 1, "processing of personal data"),
			testChunk("doc1", 2, "supervisory authority powers"),
		}
		idx := NewKeywordIndex(chunks, englishSettings(t), 0, nil)
		assert.Nil(t, idx)
	})

	t.Run("builds at minimum corpus", func(t *testing.T) {
		chunks := make([]Chunk, MinKeywordCorpus)
		for i := range chunks {
			chunks[i] = testChunk("doc1", i, fmt.Sprintf("regulatory clause number %d", i))
		}
		idx := NewKeywordIndex(chunks, englishSettings(t), 0, nil)
		require.NotNil(t, idx)
		assert.Equal(t, MinKeywordCorpus, idx.Size())
	})

	t.Run("honors a configured corpus floor", func(t *testing.T) {
		chunks := []Chunk{
			testChunk("doc1", 0, "data protection obligations"),
			testChunk("doc1", 1, "processing of personal data"),
		}
		assert.Nil(t, NewKeywordIndex(chunks, englishSettings(t), 3, nil))

		chunks = append(chunks, testChunk("doc1", 2, "supervisory authority powers"))
		idx := NewKeywordIndex(chunks, englishSettings(t), 3, nil)
		require.NotNil(t, idx)
		assert.Equal(t, 3, idx.Size())
	})

	t.Run("counts duplicate chunk identities once", func(t *testing.T) {
		chunks := []Chunk{
			testChunk("doc1", 0, "first"),
			testChunk("doc1", 0, "first again"),
			testChunk("doc1", 1, "second"),
			testChunk("doc1", 2, "third"),
			testChunk("doc1", 3, "fourth"),
		}
		// Four unique identities, below the minimum of five.
		assert.Nil(t, NewKeywordIndex(chunks, englishSettings(t), 0, nil))
	})
}

func TestKeywordSearch(t *testing.T) {
	chunks := []Chunk{
		testChunk("doc1", 0, "The controller shall implement appropriate safeguards for personal data."),
		testChunk("doc1", 1, "Penalties apply when a processor violates retention requirements."),
		testChunk("doc2", 0, "Data transfers to third countries require adequacy decisions."),
		testChunk("doc2", 1, "The supervisory authority may impose administrative fines."),
		testChunk("doc3", 0, "Breach notification must happen within seventy two hours."),
	}
	idx := NewKeywordIndex(chunks, englishSettings(t), 0, nil)
	require.NotNil(t, idx)

	t.Run("ranks term matches first", func(t *testing.T) {
		results := idx.Search("breach notification deadline", 5)
		require.NotEmpty(t, results)
		assert.Equal(t, ChunkKey{DocID: "doc3", ChunkIndex: 0}, results[0].Chunk.Key())
		assert.Equal(t, SourceKeyword, results[0].Source)
		assert.Greater(t, results[0].Score, 0.0)
	})

	t.Run("stemming matches inflected forms", func(t *testing.T) {
		// "violated" stems to the same root as "violates" in the indexed text.
		results := idx.Search("violated retention", 5)
		require.NotEmpty(t, results)
		assert.Equal(t, ChunkKey{DocID: "doc1", ChunkIndex: 1}, results[0].Chunk.Key())
	})

	t.Run("stopword-only query returns nothing", func(t *testing.T) {
		assert.Empty(t, idx.Search("the a an of", 5))
	})

	t.Run("respects top k", func(t *testing.T) {
		results := idx.Search("data", 1)
		assert.Len(t, results, 1)
	})

	t.Run("unknown terms return nothing", func(t *testing.T) {
		assert.Empty(t, idx.Search("zymurgy", 5))
	})
}
