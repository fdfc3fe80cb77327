package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragspace/internal/queue"
)

// Pool runs concurrent workers draining the job queue until the context
// is cancelled.
type Pool struct {
	jobs        queue.Queue
	processor   *Processor
	concurrency int
	logger      *zap.Logger
}

func NewPool(jobs queue.Queue, processor *Processor, concurrency int, logger *zap.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{jobs: jobs, processor: processor, concurrency: concurrency, logger: logger}
}

// Run blocks until ctx is done. Dequeue errors other than cancellation
// are logged and the worker keeps going.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		worker := i
		g.Go(func() error {
			logger := p.logger.With(zap.Int("worker", worker))
			for {
				job, err := p.jobs.Dequeue(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					logger.Error("dequeue failed", zap.Error(err))
					continue
				}
				p.processor.Process(ctx, job)
			}
		})
	}
	return g.Wait()
}
