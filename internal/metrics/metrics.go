// Package metrics exposes Prometheus instrumentation for the retrieval service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for the service.
type Metrics struct {
	RetrievalDuration *prometheus.HistogramVec
	RetrievalResults  *prometheus.HistogramVec
	RetrievalErrors   *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	ChunksIndexed     *prometheus.CounterVec
	QuestionsIndexed  *prometheus.CounterVec
	IndexingFailures  *prometheus.CounterVec
	PointsDeleted     *prometheus.CounterVec
}

// New registers collectors on the given registerer. Passing nil uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RetrievalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regrag_retrieval_duration_seconds",
			Help:    "Time spent answering a retrieval call, by language and mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"language", "mode"}),
		RetrievalResults: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regrag_retrieval_results",
			Help:    "Number of results returned per retrieval call.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"language"}),
		RetrievalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regrag_retrieval_errors_total",
			Help: "Retrieval calls that degraded or failed, by stage.",
		}, []string{"stage"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "regrag_cache_hits_total",
			Help: "Retrieval cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "regrag_cache_misses_total",
			Help: "Retrieval cache misses.",
		}),
		ChunksIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regrag_chunks_indexed_total",
			Help: "Chunk vectors upserted, by language.",
		}, []string{"language"}),
		QuestionsIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regrag_questions_indexed_total",
			Help: "Hypothetical question vectors upserted, by language.",
		}, []string{"language"}),
		IndexingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regrag_indexing_failures_total",
			Help: "Per-chunk indexing failures, by reason.",
		}, []string{"reason"}),
		PointsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regrag_points_deleted_total",
			Help: "Vector points removed during document deletion.",
		}, []string{"language"}),
	}
}
