package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/embedding"
	"ragspace/internal/llm"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestIsTransientByStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{422, false},
	}
	for _, tt := range tests {
		err := fmt.Errorf("call failed: %w", &llm.HTTPStatusError{StatusCode: tt.status})
		if got := IsTransient(err); got != tt.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tt.status, got, tt.transient)
		}
	}
}

func TestIsTransientEmbeddingErrors(t *testing.T) {
	err := fmt.Errorf("embed: %w", &embedding.HTTPStatusError{StatusCode: 503})
	if !IsTransient(err) {
		t.Error("wrapped embedding 503 should be transient")
	}
}

func TestIsTransientByMessage(t *testing.T) {
	tests := []struct {
		err       error
		transient bool
	}{
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("service unavailable"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("invalid request payload"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.transient {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.transient)
		}
	}
}

func TestIsTransientCancellationNeverRetried(t *testing.T) {
	if IsTransient(context.Canceled) {
		t.Error("context.Canceled must not be retried")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Error("deadline exceeded is transient")
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), zap.NewNop(), fastConfig(), "embed", func(context.Context) error {
		calls++
		if calls < 3 {
			return &llm.HTTPStatusError{StatusCode: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := &llm.HTTPStatusError{StatusCode: 503}
	err := Do(context.Background(), zap.NewNop(), fastConfig(), "embed", func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want last upstream error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), zap.NewNop(), fastConfig(), "llm", func(context.Context) error {
		calls++
		return &llm.HTTPStatusError{StatusCode: 401}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent failure)", calls)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, zap.NewNop(), Config{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}, "llm",
		func(context.Context) error {
			calls++
			cancel()
			return &llm.HTTPStatusError{StatusCode: 503}
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	d1 := backoff(cfg, 1)
	d3 := backoff(cfg, 3)
	d8 := backoff(cfg, 8)

	if d1 < time.Second || d1 > time.Second+time.Second/4 {
		t.Errorf("attempt 1 delay %v outside [1s, 1.25s]", d1)
	}
	if d3 < 4*time.Second {
		t.Errorf("attempt 3 delay %v, want >= cap 4s", d3)
	}
	if d8 > 5*time.Second {
		t.Errorf("attempt 8 delay %v exceeds cap plus jitter", d8)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test", zap.NewNop())
	boom := errors.New("upstream down")

	for i := 0; i < 5; i++ {
		if err := b.Execute(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: err = %v, want upstream error", i, err)
		}
	}

	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	if !apperr.IsKind(err, apperr.KindServiceUnavailable) {
		t.Errorf("open circuit err = %v, want SERVICE_UNAVAILABLE", err)
	}
}
