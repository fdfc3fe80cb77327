// Package embedding provides the embedding provider port, an
// OpenAI-compatible HTTP adapter, a deterministic fake and a caching
// facade with batch deduplication.
package embedding

import (
	"context"
)

// TaskType distinguishes query embeddings from document embeddings in
// the cache key; some providers also embed them differently.
type TaskType string

const (
	TaskRetrievalQuery    TaskType = "retrieval_query"
	TaskRetrievalDocument TaskType = "retrieval_document"
)

// Provider generates embedding vectors. Implementations must preserve
// input order and length on the batch path and return typed errors.
type Provider interface {
	// EmbedQuery embeds a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds document texts; the result is 1:1 with the
	// input, same order, no holes.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
