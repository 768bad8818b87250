package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lexcorpus/regrag/internal/config"
	"github.com/lexcorpus/regrag/internal/graph"
	"github.com/lexcorpus/regrag/internal/language"
	"github.com/lexcorpus/regrag/internal/metrics"
)

// RetrieveRequest carries one retrieval call's parameters.
type RetrieveRequest struct {
	Query    string  `json:"query" binding:"required"`
	TopK     int     `json:"top_k"`
	Language string  `json:"language"`
	Filters  Filters `json:"filters"`
}

// Orchestrator runs the retrieval pipeline: language resolution, mode
// selection, hybrid search, hierarchy expansion, dedup, optional rerank,
// and metadata filtering. Every stage degrades rather than fails: a broken
// enhancement never takes down basic vector search.
type Orchestrator struct {
	cfg      *config.Config
	registry *Registry
	detector *language.Detector
	expander *HierarchyExpander
	graph    graph.Store
	reranker *CrossEncoderReranker
	cache    *QueryCache
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewOrchestrator wires the pipeline. Graph store, reranker, and cache may
// each be nil or disabled; the pipeline adapts per query.
func NewOrchestrator(cfg *config.Config, registry *Registry, detector *language.Detector, store graph.Store, reranker *CrossEncoderReranker, cache *QueryCache, m *metrics.Metrics, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		detector: detector,
		expander: NewHierarchyExpander(store, cfg.Retrieval.ContextWindow, cfg.Retrieval.ParentBoost, cfg.Retrieval.SiblingBoost, logger),
		graph:    store,
		reranker: reranker,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// Retrieve answers one query. The response always has Status set; pipeline
// degradation is reported through the selected mode and logs, not errors.
func (o *Orchestrator) Retrieve(ctx context.Context, req RetrieveRequest) *RetrieveResponse {
	started := time.Now()

	if req.Query == "" {
		return &RetrieveResponse{Status: StatusError, Message: "query must not be empty", Results: []ScoredChunk{}}
	}
	if err := ValidateFilters(req.Filters); err != nil {
		return &RetrieveResponse{Status: StatusError, Message: err.Error(), Results: []ScoredChunk{}}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = o.cfg.Retrieval.TopK
	}

	lang := o.resolveLanguage(req)

	if resp, hit := o.cache.Get(ctx, lang, req.Query, topK, req.Filters); hit {
		if o.metrics != nil {
			o.metrics.CacheHits.Inc()
		}
		return resp
	}
	if o.cache.Enabled() && o.metrics != nil {
		o.metrics.CacheMisses.Inc()
	}

	set, err := o.resources(ctx, lang)
	if err != nil {
		o.logger.WithError(err).WithField("language", lang).Error("Language resources unavailable")
		if o.metrics != nil {
			o.metrics.RetrievalErrors.WithLabelValues("resources").Inc()
		}
		return &RetrieveResponse{Status: StatusError, Message: "retrieval backend unavailable", Language: lang, Results: []ScoredChunk{}}
	}
	lang = set.Settings.Code

	mode := set.Mode(o.graphEnabled(ctx))
	if !o.cfg.Retrieval.EnableHybrid {
		mode = ModeVectorOnly
	}
	nodes := o.runPipeline(ctx, req.Query, topK, set, mode)

	nodes = Deduplicate(nodes)

	if o.reranker != nil && o.reranker.Enabled() {
		nodes = o.reranker.Rerank(ctx, req.Query, nodes, o.cfg.Retrieval.RerankTopN)
	}

	nodes = ApplyFilters(nodes, req.Filters)
	if len(nodes) > topK {
		nodes = nodes[:topK]
	}

	resp := &RetrieveResponse{
		Status:   StatusSuccess,
		Language: lang,
		Results:  toScoredChunks(nodes),
	}

	o.cache.Set(ctx, lang, req.Query, topK, req.Filters, resp)

	if o.metrics != nil {
		o.metrics.RetrievalDuration.WithLabelValues(lang, mode).Observe(time.Since(started).Seconds())
		o.metrics.RetrievalResults.WithLabelValues(lang).Observe(float64(len(resp.Results)))
	}
	o.logger.WithFields(logrus.Fields{
		"language": lang,
		"mode":     mode,
		"results":  len(resp.Results),
		"took":     time.Since(started),
	}).Debug("Retrieval completed")
	return resp
}

// runPipeline executes the search stages for the selected mode, degrading a
// step at a time when a stage fails.
func (o *Orchestrator) runPipeline(ctx context.Context, query string, topK int, set *ResourceSet, mode string) []RetrievedNode {
	// Over-retrieve so dedup, filtering, and reranking have candidates to
	// discard without starving the final top-k.
	fetchK := topK * o.cfg.Retrieval.PreRetrieveMul
	if fetchK < topK {
		fetchK = topK
	}

	queryVector, err := set.Vector.EmbedQuery(ctx, query)
	if err != nil {
		o.logger.WithError(err).Error("Query embedding failed")
		if o.metrics != nil {
			o.metrics.RetrievalErrors.WithLabelValues("embed").Inc()
		}
		// Without a query vector only keyword search can run.
		if set.Keyword != nil {
			return set.Keyword.Search(query, fetchK)
		}
		return nil
	}

	vectorNodes, err := set.Vector.Search(ctx, queryVector, fetchK, nil)
	if err != nil {
		o.logger.WithError(err).Error("Vector search failed")
		if o.metrics != nil {
			o.metrics.RetrievalErrors.WithLabelValues("vector").Inc()
		}
		vectorNodes = nil
	}

	if mode == ModeVectorOnly || set.Keyword == nil {
		return vectorNodes
	}

	keywordNodes := set.Keyword.Search(query, fetchK)
	merged := MergeWeighted(vectorNodes, keywordNodes, o.cfg.Retrieval.VectorWeight, o.cfg.Retrieval.KeywordWeight, o.logger)

	if mode == ModeHierarchicalHybrid {
		merged = o.expander.Expand(ctx, merged)
	}
	return merged
}

// resolveLanguage picks the query language: explicit request value when
// supported, otherwise detection, otherwise the fallback.
func (o *Orchestrator) resolveLanguage(req RetrieveRequest) string {
	if req.Language != "" {
		if language.IsSupported(req.Language) {
			return req.Language
		}
		o.logger.WithField("language", req.Language).Warn("Requested language unsupported, detecting instead")
	}

	detection := o.detector.Detect(req.Query)
	o.logger.WithFields(logrus.Fields{
		"language":   detection.Code,
		"confidence": detection.Confidence,
	}).Debug("Query language detected")
	return detection.Code
}

// resources fetches the language's resource set, falling back to the default
// language when the detected one cannot initialize.
func (o *Orchestrator) resources(ctx context.Context, lang string) (*ResourceSet, error) {
	set, err := o.registry.Get(ctx, lang)
	if err == nil {
		return set, nil
	}

	fallback := o.detector.Fallback()
	if lang == fallback {
		return nil, err
	}

	o.logger.WithError(err).WithFields(logrus.Fields{
		"language": lang,
		"fallback": fallback,
	}).Warn("Language initialization failed, using fallback language")

	set, fbErr := o.registry.Get(ctx, fallback)
	if fbErr != nil {
		return nil, fmt.Errorf("language %s failed (%v) and fallback %s failed: %w", lang, err, fallback, fbErr)
	}
	return set, nil
}

func (o *Orchestrator) graphEnabled(ctx context.Context) bool {
	return o.cfg.Retrieval.EnableGraph && o.graph != nil && o.graph.Available(ctx)
}

// EnsureLanguageInitialized eagerly initializes a language's resources, used
// by the admin endpoint to warm a language before first query.
func (o *Orchestrator) EnsureLanguageInitialized(ctx context.Context, code string) error {
	_, err := o.registry.Get(ctx, code)
	return err
}
