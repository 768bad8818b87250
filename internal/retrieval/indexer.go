package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lexcorpus/regrag/internal/config"
	"github.com/lexcorpus/regrag/internal/embedding"
	"github.com/lexcorpus/regrag/internal/language"
	"github.com/lexcorpus/regrag/internal/metrics"
)

// Indexer writes documents into the per-language vector collections: chunk
// vectors plus hypothetical question vectors, then keyword index and cache
// maintenance.
type Indexer struct {
	cfg       *config.Config
	registry  *Registry
	embedder  embedding.Embedder
	questions *QuestionGenerator
	detector  *language.Detector
	cache     *QueryCache
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

// NewIndexer wires the indexing pipeline.
func NewIndexer(cfg *config.Config, registry *Registry, embedder embedding.Embedder, questions *QuestionGenerator, detector *language.Detector, cache *QueryCache, m *metrics.Metrics, logger *logrus.Logger) *Indexer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Indexer{
		cfg:       cfg,
		registry:  registry,
		embedder:  embedder,
		questions: questions,
		detector:  detector,
		cache:     cache,
		metrics:   m,
		logger:    logger,
	}
}

// IndexDocument indexes a document's chunks into the language collection.
// Chunks are processed concurrently with a bounded worker pool; a failed
// chunk is logged and skipped so one bad chunk never aborts the document.
// The language is detected from content when not supplied.
func (ix *Indexer) IndexDocument(ctx context.Context, docID string, texts []string, lang string, metadata map[string]interface{}) (*IndexResult, error) {
	if docID == "" {
		return nil, fmt.Errorf("doc_id must not be empty")
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("document %s has no chunks", docID)
	}

	if lang == "" {
		detection := ix.detector.Detect(strings.Join(texts, "\n"))
		lang = detection.Code
		ix.logger.WithFields(logrus.Fields{
			"doc_id":     docID,
			"language":   lang,
			"confidence": detection.Confidence,
		}).Info("Document language detected")
	}
	if !language.IsSupported(lang) {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}

	set, err := ix.registry.Get(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare language %s: %w", lang, err)
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		key := ChunkKey{DocID: docID, ChunkIndex: i}
		chunks[i] = Chunk{
			ChunkID:    key.String(),
			DocID:      docID,
			ChunkIndex: i,
			Text:       text,
			Language:   lang,
			Metadata:   metadata,
		}
	}

	var (
		mu        sync.Mutex
		vectors   int
		questions int
		failed    int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ix.cfg.Indexing.MaxWorkers)

	for _, chunk := range chunks {
		chunk := chunk
		group.Go(func() error {
			v, q, chunkErr := ix.indexChunk(groupCtx, set, chunk)

			mu.Lock()
			defer mu.Unlock()
			if chunkErr != nil {
				failed++
				ix.logger.WithError(chunkErr).WithField("chunk_id", chunk.ChunkID).Warn("Chunk indexing failed, skipping")
				if ix.metrics != nil {
					ix.metrics.IndexingFailures.WithLabelValues("chunk").Inc()
				}
				// Per-chunk failures never cancel the group.
				return nil
			}
			vectors += v
			questions += q
			return nil
		})
	}
	// Only context cancellation surfaces here.
	if err := group.Wait(); err != nil {
		return nil, err
	}

	if vectors == 0 {
		return &IndexResult{
			Status:       StatusError,
			Message:      "no chunks could be indexed",
			DocID:        docID,
			Language:     lang,
			FailedChunks: failed,
		}, fmt.Errorf("document %s: all %d chunks failed", docID, len(chunks))
	}

	// Report the question count the store actually holds. Re-indexing
	// overwrites points, so the in-flight tally can overstate it.
	if stored, countErr := set.Vector.CountQuestions(ctx, docID); countErr != nil {
		ix.logger.WithError(countErr).WithField("doc_id", docID).Warn("Question count lookup failed, reporting in-flight count")
	} else {
		questions = int(stored)
	}

	if err := ix.registry.RebuildKeyword(ctx, lang); err != nil {
		ix.logger.WithError(err).WithField("language", lang).Warn("Keyword index rebuild failed after indexing")
	}
	ix.cache.InvalidateLanguage(ctx, lang)

	if ix.metrics != nil {
		ix.metrics.ChunksIndexed.WithLabelValues(lang).Add(float64(vectors))
		ix.metrics.QuestionsIndexed.WithLabelValues(lang).Add(float64(questions))
	}

	ix.logger.WithFields(logrus.Fields{
		"doc_id":    docID,
		"language":  lang,
		"vectors":   vectors,
		"questions": questions,
		"failed":    failed,
	}).Info("Document indexed")

	return &IndexResult{
		Status:        StatusSuccess,
		DocID:         docID,
		Language:      lang,
		VectorCount:   vectors,
		QuestionCount: questions,
		FailedChunks:  failed,
	}, nil
}

// indexChunk writes one chunk vector plus its hypothetical question vectors.
// A failed first attempt gets one spaced retry, since embedding backends shed
// load in bursts. The chunk vector is committed even when question generation
// fails; the chunk stays findable by direct similarity either way.
func (ix *Indexer) indexChunk(ctx context.Context, set *ResourceSet, chunk Chunk) (int, int, error) {
	indexed, err := set.Vector.IndexChunks(ctx, []Chunk{chunk})
	if err != nil {
		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		case <-time.After(ix.cfg.Indexing.EmbedRetryInterval):
		}
		ix.logger.WithError(err).WithField("chunk_id", chunk.ChunkID).Debug("Retrying chunk indexing")
		indexed, err = set.Vector.IndexChunks(ctx, []Chunk{chunk})
		if err != nil {
			return 0, 0, err
		}
	}

	generated := ix.questions.Generate(ctx, chunk.Text, ix.cfg.Indexing.QuestionsPerChunk)
	points, err := BuildQuestionPoints(ctx, ix.embedder, chunk, generated)
	if err != nil {
		ix.logger.WithError(err).WithField("chunk_id", chunk.ChunkID).Warn("Question embedding failed, chunk indexed without questions")
		return indexed, 0, nil
	}

	questionCount, err := set.Vector.IndexQuestionPoints(ctx, points)
	if err != nil {
		ix.logger.WithError(err).WithField("chunk_id", chunk.ChunkID).Warn("Question upsert failed, chunk indexed without questions")
		return indexed, 0, nil
	}
	return indexed, questionCount, nil
}

// DeleteDocument removes all of a document's points, then rebuilds the
// keyword index and drops cached queries for each affected language. An
// empty lang sweeps every configured language, since callers do not know
// which collection a document landed in. Deleting an absent document
// succeeds with a zero count.
func (ix *Indexer) DeleteDocument(ctx context.Context, docID, lang string) (int64, error) {
	if lang != "" {
		if !language.IsSupported(lang) {
			return 0, fmt.Errorf("unsupported language %q", lang)
		}
		return ix.deleteFromLanguage(ctx, docID, lang)
	}

	var (
		total   int64
		lastErr error
	)
	for _, code := range ix.cfg.Language.Supported {
		if !language.IsSupported(code) {
			continue
		}
		deleted, err := ix.deleteFromLanguage(ctx, docID, code)
		if err != nil {
			ix.logger.WithError(err).WithFields(logrus.Fields{
				"doc_id":   docID,
				"language": code,
			}).Warn("Document deletion failed for language, continuing sweep")
			lastErr = err
			continue
		}
		total += deleted
	}
	if total == 0 && lastErr != nil {
		return 0, lastErr
	}
	return total, nil
}

func (ix *Indexer) deleteFromLanguage(ctx context.Context, docID, lang string) (int64, error) {
	set, err := ix.registry.Get(ctx, lang)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare language %s: %w", lang, err)
	}

	deleted, err := set.Vector.DeleteDocument(ctx, docID)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		if err := ix.registry.RebuildKeyword(ctx, lang); err != nil {
			ix.logger.WithError(err).WithField("language", lang).Warn("Keyword index rebuild failed after deletion")
		}
		ix.cache.InvalidateLanguage(ctx, lang)
		if ix.metrics != nil {
			ix.metrics.PointsDeleted.WithLabelValues(lang).Add(float64(deleted))
		}
	}
	return deleted, nil
}
