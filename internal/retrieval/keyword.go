package retrieval

import (
	"math"
	"strings"

	"github.com/kljensen/snowball"
	"github.com/sirupsen/logrus"

	"github.com/lexcorpus/regrag/internal/language"
)

// MinKeywordCorpus is the default floor for the chunk count a keyword index
// will build from. Below the floor, BM25 statistics are meaningless and
// callers degrade to vector-only search.
const MinKeywordCorpus = 5

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// KeywordIndex is a BM25 index over chunk content for one language. Scores
// are on a term-overlap scale with no numeric relationship to cosine
// similarity; only the hybrid merge makes them comparable, and only within
// one merge call.
type KeywordIndex struct {
	settings   language.Settings
	chunks     map[ChunkKey]Chunk
	termFreqs  map[ChunkKey]map[string]int
	docFreqs   map[string]int
	docLengths map[ChunkKey]int
	avgDocLen  float64
	totalDocs  int
}

// NewKeywordIndex builds a BM25 index from the chunk set. Question texts are
// never indexed; the chunk set already aliases them back to chunk content.
// Returns nil when fewer than minCorpus unique chunks exist (MinKeywordCorpus
// when minCorpus is not positive), which callers must treat as "keyword
// search unavailable for this language".
func NewKeywordIndex(chunks []Chunk, settings language.Settings, minCorpus int, logger *logrus.Logger) *KeywordIndex {
	if logger == nil {
		logger = logrus.New()
	}
	if minCorpus <= 0 {
		minCorpus = MinKeywordCorpus
	}

	unique := make(map[ChunkKey]Chunk, len(chunks))
	for _, chunk := range chunks {
		unique[chunk.Key()] = chunk
	}

	if len(unique) < minCorpus {
		logger.WithFields(logrus.Fields{
			"language": settings.Code,
			"chunks":   len(unique),
			"minimum":  minCorpus,
		}).Info("Corpus too small for keyword index, degrading to vector-only")
		return nil
	}

	idx := &KeywordIndex{
		settings:   settings,
		chunks:     unique,
		termFreqs:  make(map[ChunkKey]map[string]int),
		docFreqs:   make(map[string]int),
		docLengths: make(map[ChunkKey]int),
	}

	totalLen := 0
	for key, chunk := range unique {
		terms := idx.tokenize(chunk.Text)
		idx.termFreqs[key] = make(map[string]int)
		idx.docLengths[key] = len(terms)
		totalLen += len(terms)

		seen := make(map[string]struct{})
		for _, term := range terms {
			idx.termFreqs[key][term]++
			if _, dup := seen[term]; !dup {
				idx.docFreqs[term]++
				seen[term] = struct{}{}
			}
		}
	}

	idx.totalDocs = len(unique)
	idx.avgDocLen = float64(totalLen) / float64(idx.totalDocs)

	logger.WithFields(logrus.Fields{
		"language": settings.Code,
		"chunks":   idx.totalDocs,
		"terms":    len(idx.docFreqs),
	}).Debug("Keyword index built")
	return idx
}

// Size returns the number of indexed chunks.
func (idx *KeywordIndex) Size() int {
	return idx.totalDocs
}

// Search returns the top-k chunks by BM25 score, tagged as keyword hits.
func (idx *KeywordIndex) Search(query string, topK int) []RetrievedNode {
	queryTerms := idx.tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	scores := make(map[ChunkKey]float64)
	for _, term := range queryTerms {
		df, exists := idx.docFreqs[term]
		if !exists {
			continue
		}
		idf := math.Log((float64(idx.totalDocs)-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for key, freqs := range idx.termFreqs {
			tf, ok := freqs[term]
			if !ok {
				continue
			}
			docLen := float64(idx.docLengths[key])
			norm := float64(tf) * (bm25K1 + 1) /
				(float64(tf) + bm25K1*(1-bm25B+bm25B*docLen/idx.avgDocLen))
			scores[key] += idf * norm
		}
	}

	nodes := make([]RetrievedNode, 0, len(scores))
	for key, score := range scores {
		nodes = append(nodes, RetrievedNode{
			Chunk:  idx.chunks[key],
			Score:  score,
			Source: SourceKeyword,
		})
	}
	sortNodes(nodes)

	if len(nodes) > topK {
		nodes = nodes[:topK]
	}
	return nodes
}

// tokenize lowercases, strips punctuation, drops stopwords, and stems when a
// stemmer exists for the language.
func (idx *KeywordIndex) tokenize(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.Trim(word, ".,!?;:\"'()[]{}#$%&*+-/<>=@\\^_`|~")
		if cleaned == "" {
			continue
		}
		if _, stop := idx.settings.Stopwords[cleaned]; stop {
			continue
		}
		if idx.settings.StemmerLanguage != "" {
			if stemmed, err := snowball.Stem(cleaned, idx.settings.StemmerLanguage, false); err == nil {
				cleaned = stemmed
			}
		}
		tokens = append(tokens, cleaned)
	}
	return tokens
}
