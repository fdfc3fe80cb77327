package retry

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"ragspace/internal/apperr"
)

// Breaker wraps an upstream call with a circuit breaker. An open
// circuit fails fast with SERVICE_UNAVAILABLE instead of queueing work
// behind a dead provider.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker trips after 5 consecutive failures and probes again after
// 30 seconds.
func NewBreaker(name string, logger *zap.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs op through the breaker.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, op(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.Wrap(apperr.KindServiceUnavailable, "upstream circuit open", err)
	}
	return err
}
