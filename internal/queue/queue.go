// Package queue moves document-processing jobs from the API to workers.
package queue

import (
	"context"
	"time"
)

// Job asks a worker to extract, chunk, embed and index one document.
type Job struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	WorkspaceID string    `json:"workspace_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Queue is the job transport port.
type Queue interface {
	// Enqueue publishes a processing job and returns its id.
	Enqueue(ctx context.Context, documentID, workspaceID string) (string, error)

	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (*Job, error)
}
