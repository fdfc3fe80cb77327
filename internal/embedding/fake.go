package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

// FakeProvider is a deterministic in-process provider used when
// fake_embeddings is enabled and in tests. Texts sharing words produce
// nearby vectors, so similarity search behaves plausibly.
type FakeProvider struct {
	dimensions int

	queryCalls int64
	batchCalls int64

	mu    sync.Mutex
	texts []string
}

func NewFakeProvider(dimensions int) *FakeProvider {
	return &FakeProvider{dimensions: dimensions}
}

func (p *FakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&p.queryCalls, 1)
	p.record(text)
	return p.vectorFor(text), nil
}

func (p *FakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&p.batchCalls, 1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		p.record(t)
		out[i] = p.vectorFor(t)
	}
	return out, nil
}

// QueryCalls returns the number of EmbedQuery invocations (spy support).
func (p *FakeProvider) QueryCalls() int64 { return atomic.LoadInt64(&p.queryCalls) }

// BatchCalls returns the number of EmbedBatch invocations.
func (p *FakeProvider) BatchCalls() int64 { return atomic.LoadInt64(&p.batchCalls) }

// SeenTexts returns every text passed to the provider, in call order.
func (p *FakeProvider) SeenTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func (p *FakeProvider) record(text string) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()
}

// vectorFor builds a bag-of-words style vector: each word hashes to a
// handful of dimensions. The result is L2-normalized.
func (p *FakeProvider) vectorFor(text string) []float32 {
	vec := make([]float64, p.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		for i := 0; i < 4; i++ {
			idx := binary.BigEndian.Uint32(sum[i*8:]) % uint32(p.dimensions)
			sign := 1.0
			if sum[i*8+4]%2 == 1 {
				sign = -1.0
			}
			vec[idx] += sign
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dimensions)
	if norm == 0 {
		out[0] = 1
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
