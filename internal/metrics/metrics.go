// Package metrics holds the Prometheus collectors shared across the
// service. One Metrics value is built in the composition root and handed
// to the packages that record into it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	EmbedCacheHits   prometheus.Counter
	EmbedCacheMisses prometheus.Counter

	// RetrievalStageSeconds observes the embed / retrieve / build_context
	// stages of the retrieval pipeline.
	RetrievalStageSeconds *prometheus.HistogramVec

	// WorkerOutcomes counts processed jobs by outcome
	// (ready / failed / invalid / missing / noop).
	WorkerOutcomes *prometheus.CounterVec

	WorkerJobSeconds prometheus.Histogram

	AnswersTotal *prometheus.CounterVec
}

// New registers and returns the service collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmbedCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragspace_embedding_cache_hits_total",
			Help: "Embedding cache hits, duplicated batch indices counted separately.",
		}),
		EmbedCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragspace_embedding_cache_misses_total",
			Help: "Embedding cache misses.",
		}),
		RetrievalStageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragspace_retrieval_stage_seconds",
			Help:    "Duration of retrieval pipeline stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		WorkerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragspace_worker_jobs_total",
			Help: "Processed document jobs by outcome.",
		}, []string{"outcome"}),
		WorkerJobSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragspace_worker_job_seconds",
			Help:    "End-to-end duration of document processing jobs.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		AnswersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragspace_answers_total",
			Help: "Answers served, by mode (sync/stream) and result (answered/fallback/error).",
		}, []string{"mode", "result"}),
	}

	reg.MustRegister(
		m.EmbedCacheHits,
		m.EmbedCacheMisses,
		m.RetrievalStageSeconds,
		m.WorkerOutcomes,
		m.WorkerJobSeconds,
		m.AnswersTotal,
	)
	return m
}

// NewNop returns collectors registered against a throwaway registry,
// for tests and tools that do not scrape.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
