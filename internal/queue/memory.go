package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ragspace/internal/apperr"
)

// MemoryQueue is a channel-backed Queue for tests and single-process runs.
type MemoryQueue struct {
	jobs chan *Job

	// FailEnqueues forces Enqueue to fail, for exercising the
	// enqueue-failure path of the upload flow.
	FailEnqueues bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{jobs: make(chan *Job, capacity)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, documentID, workspaceID string) (string, error) {
	if q.FailEnqueues {
		return "", apperr.New(apperr.KindServiceUnavailable, "job queue unavailable")
	}
	job := &Job{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		WorkspaceID: workspaceID,
		EnqueuedAt:  time.Now().UTC(),
	}
	select {
	case q.jobs <- job:
		return job.ID, nil
	default:
		return "", apperr.New(apperr.KindServiceUnavailable, "job queue full")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-q.jobs:
		return job, nil
	}
}

// Len reports pending jobs.
func (q *MemoryQueue) Len() int { return len(q.jobs) }
