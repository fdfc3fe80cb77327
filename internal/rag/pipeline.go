package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/metrics"
	"ragspace/internal/model"
)

// DefaultFetchFactor oversamples MMR candidates: fetchK = factor * topK.
const DefaultFetchFactor = 4

// Embedder is the query-side embedding dependency (usually the cache
// facade).
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchIndex is the slice of the vector index the pipeline needs.
type SearchIndex interface {
	FindSimilarChunks(ctx context.Context, embedding []float32, k int, workspaceID string) ([]model.RetrievedChunk, error)
	FindSimilarChunksMMR(ctx context.Context, embedding []float32, topK, fetchK int, lambda float64, workspaceID string) ([]model.RetrievedChunk, error)
}

// Result is the outcome of one retrieval.
type Result struct {
	// Context is the assembled, escaped context string; empty when
	// nothing was retrieved.
	Context string

	// Chunks are exactly the chunks that entered the context, in order.
	Chunks []model.RetrievedChunk

	// Timings holds per-stage durations (embed, retrieve, build_context).
	Timings map[string]time.Duration
}

// Empty reports whether retrieval produced no evidence.
func (r *Result) Empty() bool { return len(r.Chunks) == 0 }

// Pipeline embeds the query, searches the workspace's chunks (plain
// top-k or MMR) and assembles the context string.
type Pipeline struct {
	embedder Embedder
	index    SearchIndex
	builder  *ContextBuilder
	lambda   float64
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewPipeline(embedder Embedder, index SearchIndex, builder *ContextBuilder, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		index:    index,
		builder:  builder,
		lambda:   0.5,
		logger:   logger,
		metrics:  m,
	}
}

// Retrieve runs the three stages and reports their timings. topK <= 0
// short-circuits to an empty result without touching any service; an
// empty workspaceID is a usage error.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int, useMMR bool, workspaceID string) (*Result, error) {
	if topK <= 0 {
		return &Result{Timings: map[string]time.Duration{}}, nil
	}
	if workspaceID == "" {
		return nil, apperr.New(apperr.KindValidation, "workspaceId is required")
	}

	timings := make(map[string]time.Duration, 3)
	observe := func(stage string, start time.Time) {
		d := time.Since(start)
		timings[stage] = d
		p.metrics.RetrievalStageSeconds.WithLabelValues(stage).Observe(d.Seconds())
	}

	start := time.Now()
	queryVec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	observe("embed", start)

	start = time.Now()
	var candidates []model.RetrievedChunk
	if useMMR {
		fetchK := DefaultFetchFactor * topK
		if fetchK < topK {
			fetchK = topK
		}
		candidates, err = p.index.FindSimilarChunksMMR(ctx, queryVec, topK, fetchK, p.lambda, workspaceID)
	} else {
		candidates, err = p.index.FindSimilarChunks(ctx, queryVec, topK, workspaceID)
	}
	if err != nil {
		return nil, err
	}
	observe("retrieve", start)

	if len(candidates) == 0 {
		p.logger.Debug("retrieval found no evidence",
			zap.String("workspace_id", workspaceID), zap.Int("top_k", topK))
		return &Result{Timings: timings}, nil
	}

	start = time.Now()
	contextStr, included := p.builder.Build(candidates)
	observe("build_context", start)

	p.logger.Debug("retrieval complete",
		zap.String("workspace_id", workspaceID),
		zap.Int("candidates", len(candidates)),
		zap.Int("chunks_used", len(included)),
		zap.Bool("mmr", useMMR),
		zap.Duration("embed", timings["embed"]),
		zap.Duration("retrieve", timings["retrieve"]),
		zap.Duration("build_context", timings["build_context"]))

	return &Result{
		Context: contextStr,
		Chunks:  included,
		Timings: timings,
	}, nil
}
