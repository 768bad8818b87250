package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lexcorpus/regrag/internal/embedding"
	"github.com/lexcorpus/regrag/internal/llm"
	"github.com/lexcorpus/regrag/internal/vectorstore"
)

const questionPrompt = `Generate exactly %d short, fact-focused questions that the following text answers.
Write one question per line with no numbering, no bullets, and no commentary.

Text:
%s`

// QuestionGenerator produces hypothetical questions for chunks. Embedding a
// question and storing the chunk text behind it is the core trick: queries
// phrased as questions match question vectors far better than dense prose,
// while the prose is what gets returned.
type QuestionGenerator struct {
	provider llm.Provider
	logger   *logrus.Logger
}

// NewQuestionGenerator creates a generator over the completion provider.
func NewQuestionGenerator(provider llm.Provider, logger *logrus.Logger) *QuestionGenerator {
	if logger == nil {
		logger = logrus.New()
	}
	return &QuestionGenerator{provider: provider, logger: logger}
}

// Generate asks the LLM for n single-line questions about the chunk text.
// Output is parsed defensively: split on newlines, blanks and list markers
// dropped. Any failure returns a single generic fallback question derived
// from the chunk's opening, so every chunk gets at least one question vector.
func (g *QuestionGenerator) Generate(ctx context.Context, chunkText string, n int) []string {
	if n <= 0 {
		n = 3
	}

	raw, err := g.provider.Complete(ctx, fmt.Sprintf(questionPrompt, n, chunkText))
	if err != nil {
		g.logger.WithError(err).Warn("Question generation failed, using fallback question")
		return []string{fallbackQuestion(chunkText)}
	}

	questions := parseQuestionLines(raw, n)
	if len(questions) == 0 {
		g.logger.Warn("Question generation returned no usable lines, using fallback question")
		return []string{fallbackQuestion(chunkText)}
	}
	return questions
}

func parseQuestionLines(raw string, limit int) []string {
	var questions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.-)* \t")
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if len(questions) == limit {
			break
		}
	}
	return questions
}

func fallbackQuestion(chunkText string) string {
	snippet := strings.TrimSpace(chunkText)
	// Truncate on runes so multibyte text is never cut mid-character.
	if runes := []rune(snippet); len(runes) > 50 {
		snippet = string(runes[:50])
	}
	return fmt.Sprintf("What does this passage say about %s?", snippet)
}

// BuildQuestionPoints embeds each question text and packages points whose
// payloads carry the parent chunk's text and identity. The question text is
// what gets embedded; the chunk text is what gets stored.
func BuildQuestionPoints(ctx context.Context, embedder embedding.Embedder, chunk Chunk, questions []string) ([]vectorstore.Point, error) {
	points := make([]vectorstore.Point, 0, len(questions))
	for i, question := range questions {
		vector, err := embedder.Embed(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("failed to embed question %d: %w", i, err)
		}
		points = append(points, vectorstore.Point{
			ID:     pointID(fmt.Sprintf("%s_q%d", chunk.ChunkID, i)),
			Vector: vector,
			Payload: map[string]interface{}{
				payloadIsQuestion:        true,
				payloadQuestionText:      question,
				payloadQuestionIndex:     i,
				payloadParentChunkID:     chunk.ChunkID,
				payloadOriginalChunkText: chunk.Text,
				payloadDocID:             chunk.DocID,
				payloadChunkIndex:        chunk.ChunkIndex,
				payloadLanguage:          chunk.Language,
			},
		})
	}
	return points, nil
}

// Deduplicate collapses nodes sharing a chunk identity into one node per
// (doc_id, chunk_index). When a question match and a direct chunk match
// resolve to the same chunk, the higher score wins and both contributing
// sources are recorded. Ordering of the survivors is score-descending.
func Deduplicate(nodes []RetrievedNode) []RetrievedNode {
	merged := make(map[ChunkKey]*RetrievedNode, len(nodes))
	order := make([]ChunkKey, 0, len(nodes))

	for _, node := range nodes {
		key := node.Chunk.Key()
		existing, ok := merged[key]
		if !ok {
			entry := node
			merged[key] = &entry
			order = append(order, key)
			continue
		}

		existing.Source = mergeSources(existing.Source, node.Source)
		if node.Score > existing.Score {
			existing.Score = node.Score
		}
		// Prefer the direct chunk's text and ID; a question point's
		// denormalized copy may trail edits.
		if node.Source != SourceQuestion && strings.Contains(existing.Source, SourceQuestion) {
			existing.Chunk = node.Chunk
		}
	}

	out := make([]RetrievedNode, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	sortNodes(out)
	return out
}
