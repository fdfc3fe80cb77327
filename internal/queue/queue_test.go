package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ragspace/internal/apperr"
)

func TestRedisQueueRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := NewRedisQueue(client)

	ctx := context.Background()
	jobID, err := q.Enqueue(ctx, "doc-1", "ws-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if jobID == "" {
		t.Fatal("empty job id")
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job.ID != jobID || job.DocumentID != "doc-1" || job.WorkspaceID != "ws-1" {
		t.Errorf("job = %+v", job)
	}
}

func TestRedisQueueFIFOOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := NewRedisQueue(client)

	ctx := context.Background()
	q.Enqueue(ctx, "doc-1", "ws-1")
	q.Enqueue(ctx, "doc-2", "ws-1")

	first, _ := q.Dequeue(ctx)
	second, _ := q.Dequeue(ctx)
	if first.DocumentID != "doc-1" || second.DocumentID != "doc-2" {
		t.Errorf("order = %s, %s; want doc-1, doc-2", first.DocumentID, second.DocumentID)
	}
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, "doc-1", "ws-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job.ID != jobID || job.DocumentID != "doc-1" {
		t.Errorf("job = %+v", job)
	}
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatal("expected context error on empty queue")
	}
}

func TestMemoryQueueEnqueueFailure(t *testing.T) {
	q := NewMemoryQueue(1)
	q.FailEnqueues = true

	_, err := q.Enqueue(context.Background(), "doc-1", "ws-1")
	if !apperr.IsKind(err, apperr.KindServiceUnavailable) {
		t.Errorf("err = %v, want SERVICE_UNAVAILABLE", err)
	}
}
