package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ragspace/internal/metrics"
)

func newTestCache(t *testing.T, provider Provider) (*Cache, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend(128, time.Minute)
	return NewCache(provider, backend, "test-model", zap.NewNop(), metrics.NewNop()), backend
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello   world  ", "hello world"},
		{"line\nbreaks\tand\ttabs", "line breaks and tabs"},
		{"already clean", "already clean"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmbedQueryCachesResult(t *testing.T) {
	provider := NewFakeProvider(16)
	cache, _ := newTestCache(t, provider)
	ctx := context.Background()

	first, err := cache.EmbedQuery(ctx, "what is the expense policy?")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	// Whitespace variation must hit the same entry.
	second, err := cache.EmbedQuery(ctx, "  what is   the expense policy?  ")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if provider.QueryCalls() != 1 {
		t.Errorf("provider called %d times, want 1", provider.QueryCalls())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached vector differs from original")
		}
	}
}

func TestEmbedBatchDeduplicates(t *testing.T) {
	provider := NewFakeProvider(16)
	cache, _ := newTestCache(t, provider)
	ctx := context.Background()

	texts := []string{"alpha", "beta", "alpha", "gamma", "beta", "alpha"}
	out, err := cache.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(out) != len(texts) {
		t.Fatalf("output length %d, want %d", len(out), len(texts))
	}
	for i, vec := range out {
		if vec == nil {
			t.Fatalf("hole at index %d", i)
		}
	}
	if provider.BatchCalls() != 1 {
		t.Errorf("provider batch calls = %d, want 1", provider.BatchCalls())
	}
	seen := provider.SeenTexts()
	if len(seen) != 3 {
		t.Errorf("provider saw %d texts, want 3 unique: %v", len(seen), seen)
	}

	// Duplicated inputs share the identical vector.
	for i := range out[0] {
		if out[0][i] != out[2][i] || out[0][i] != out[5][i] {
			t.Fatal("duplicate inputs produced different vectors")
		}
	}
}

func TestEmbedBatchSecondCallAllHits(t *testing.T) {
	provider := NewFakeProvider(16)
	cache, _ := newTestCache(t, provider)
	ctx := context.Background()

	texts := []string{"one", "two"}
	if _, err := cache.EmbedBatch(ctx, texts); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if _, err := cache.EmbedBatch(ctx, texts); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if provider.BatchCalls() != 1 {
		t.Errorf("provider batch calls = %d, want 1 (second call should be all hits)", provider.BatchCalls())
	}
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]float32, bool, error) {
	return nil, false, errors.New("backend down")
}
func (failingBackend) Set(context.Context, string, []float32) error {
	return errors.New("backend down")
}

func TestCacheFailuresAreNotFatal(t *testing.T) {
	provider := NewFakeProvider(16)
	cache := NewCache(provider, failingBackend{}, "test-model", zap.NewNop(), metrics.NewNop())
	ctx := context.Background()

	if _, err := cache.EmbedQuery(ctx, "query"); err != nil {
		t.Fatalf("EmbedQuery should survive backend failure: %v", err)
	}
	if _, err := cache.EmbedBatch(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("EmbedBatch should survive backend failure: %v", err)
	}
}

type errorProvider struct{}

func (errorProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider exploded")
}
func (errorProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider exploded")
}

func TestProviderErrorsPropagate(t *testing.T) {
	cache, _ := newTestCache(t, errorProvider{})
	ctx := context.Background()

	if _, err := cache.EmbedQuery(ctx, "q"); err == nil {
		t.Error("expected provider error on query path")
	}
	if _, err := cache.EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Error("expected provider error on batch path")
	}
}

type shortProvider struct{ inner *FakeProvider }

func (p *shortProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.inner.EmbedQuery(ctx, text)
}

func (p *shortProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _ := p.inner.EmbedBatch(ctx, texts)
	return vecs[:len(vecs)-1], nil
}

func TestBatchLengthMismatchFails(t *testing.T) {
	provider := &shortProvider{inner: NewFakeProvider(8)}
	cache := NewCache(provider, NewMemoryBackend(16, 0), "m", zap.NewNop(), metrics.NewNop())

	if _, err := cache.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error when provider returns fewer vectors than texts")
	}
}

func TestMemoryBackendEvictsLRU(t *testing.T) {
	b := NewMemoryBackend(2, 0)
	ctx := context.Background()

	b.Set(ctx, "k1", []float32{1})
	b.Set(ctx, "k2", []float32{2})
	b.Get(ctx, "k1") // refresh k1
	b.Set(ctx, "k3", []float32{3})

	if _, ok, _ := b.Get(ctx, "k2"); ok {
		t.Error("k2 should have been evicted as least recently used")
	}
	if _, ok, _ := b.Get(ctx, "k1"); !ok {
		t.Error("k1 should have survived eviction")
	}
}

func TestMemoryBackendTTL(t *testing.T) {
	b := NewMemoryBackend(8, time.Second)
	current := time.Now()
	b.now = func() time.Time { return current }
	ctx := context.Background()

	b.Set(ctx, "k", []float32{1})
	if _, ok, _ := b.Get(ctx, "k"); !ok {
		t.Fatal("entry should be present before expiry")
	}
	current = current.Add(2 * time.Second)
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
}

func TestRedisBackendRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	b := NewRedisBackend(client, time.Minute)
	ctx := context.Background()

	if _, ok, err := b.Get(ctx, "absent"); err != nil || ok {
		t.Fatalf("Get(absent) = ok=%v err=%v, want miss", ok, err)
	}

	want := []float32{0.25, -1, 3.5}
	if err := b.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := b.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = ok=%v err=%v, want hit", ok, err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("round trip mismatch: got %v want %v", got, want)
		}
	}
}
