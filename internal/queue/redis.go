package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ragspace/internal/apperr"
)

const redisJobList = "ragspace:jobs:process_document"

// RedisQueue is a redis list used as a FIFO job queue. LPUSH on enqueue,
// BRPOP on dequeue, so jobs are delivered in publish order.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, documentID, workspaceID string) (string, error) {
	job := Job{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		WorkspaceID: workspaceID,
		EnqueuedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", apperr.Wrap(apperr.KindServiceUnavailable, "failed to encode job", err)
	}
	if err := q.client.LPush(ctx, redisJobList, payload).Err(); err != nil {
		return "", apperr.Wrap(apperr.KindServiceUnavailable, "failed to enqueue job", err)
	}
	return job.ID, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		// A finite timeout keeps the loop responsive to ctx cancellation.
		res, err := q.client.BRPop(ctx, 5*time.Second, redisJobList).Result()
		if err == redis.Nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apperr.Wrap(apperr.KindServiceUnavailable, "failed to dequeue job", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return nil, apperr.Wrap(apperr.KindServiceUnavailable, "failed to decode job", err)
		}
		return &job, nil
	}
}
