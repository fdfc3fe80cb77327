package vector

import (
	"context"

	"ragspace/internal/model"
)

// Index is the vector index port: it persists chunks with their
// embeddings, answers workspace-scoped similarity queries and owns the
// atomic document status transition primitive.
type Index interface {
	// SaveDocumentWithChunks persists a document and its chunks in one
	// transaction; on failure nothing is left behind.
	SaveDocumentWithChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) error

	// SaveChunks replaces the chunk set of a document. The document must
	// belong to workspaceID or the call is rejected. Replacement is
	// atomic: readers never observe a half-old/half-new set.
	SaveChunks(ctx context.Context, documentID string, chunks []model.Chunk, workspaceID string) error

	// FindSimilarChunks returns the top-k chunks by cosine similarity
	// within a workspace, excluding soft-deleted documents, ordered by
	// descending similarity.
	FindSimilarChunks(ctx context.Context, embedding []float32, k int, workspaceID string) ([]model.RetrievedChunk, error)

	// FindSimilarChunksMMR fetches fetchK candidates and re-ranks them
	// with Maximal Marginal Relevance down to topK.
	FindSimilarChunksMMR(ctx context.Context, embedding []float32, topK, fetchK int, lambda float64, workspaceID string) ([]model.RetrievedChunk, error)

	// TransitionDocumentStatus performs an atomic compare-and-set: the
	// document moves to `to` only if its current status is in `from`
	// (model.StatusNone in the set matches a NULL status). Reports
	// whether a row changed. This is the single primitive behind every
	// state-machine move.
	TransitionDocumentStatus(ctx context.Context, id, workspaceID string, from []model.DocumentStatus, to model.DocumentStatus, errorMessage string) (bool, error)
}
