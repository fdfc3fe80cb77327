package rag

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"ragspace/internal/apperr"
	"ragspace/internal/metrics"
	"ragspace/internal/model"
)

type spyEmbedder struct {
	calls int
	vec   []float32
}

func (s *spyEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	s.calls++
	return s.vec, nil
}

type spyIndex struct {
	plainCalls int
	mmrCalls   int
	lastTopK   int
	lastFetchK int
	results    []model.RetrievedChunk
}

func (s *spyIndex) FindSimilarChunks(_ context.Context, _ []float32, k int, _ string) ([]model.RetrievedChunk, error) {
	s.plainCalls++
	s.lastTopK = k
	return s.results, nil
}

func (s *spyIndex) FindSimilarChunksMMR(_ context.Context, _ []float32, topK, fetchK int, _ float64, _ string) ([]model.RetrievedChunk, error) {
	s.mmrCalls++
	s.lastTopK = topK
	s.lastFetchK = fetchK
	if topK < len(s.results) {
		return s.results[:topK], nil
	}
	return s.results, nil
}

func newTestPipeline(embedder *spyEmbedder, index *spyIndex) *Pipeline {
	return NewPipeline(embedder, index, NewContextBuilder(10000), zap.NewNop(), metrics.NewNop())
}

func TestRetrieveTopKZeroSkipsServices(t *testing.T) {
	embedder := &spyEmbedder{vec: []float32{1}}
	index := &spyIndex{}
	p := newTestPipeline(embedder, index)

	res, err := p.Retrieve(context.Background(), "query", 0, false, "ws-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Empty() || res.Context != "" {
		t.Error("expected empty result for topK=0")
	}
	if embedder.calls != 0 || index.plainCalls != 0 || index.mmrCalls != 0 {
		t.Error("no service should be called for topK=0")
	}
}

func TestRetrieveRequiresWorkspace(t *testing.T) {
	p := newTestPipeline(&spyEmbedder{vec: []float32{1}}, &spyIndex{})
	_, err := p.Retrieve(context.Background(), "query", 3, false, "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestRetrievePlainPath(t *testing.T) {
	index := &spyIndex{results: []model.RetrievedChunk{
		rc("c1", "d1", "evidence one"),
		rc("c2", "d1", "evidence two"),
	}}
	p := newTestPipeline(&spyEmbedder{vec: []float32{1}}, index)

	res, err := p.Retrieve(context.Background(), "q", 3, false, "ws-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if index.plainCalls != 1 || index.mmrCalls != 0 {
		t.Errorf("plain=%d mmr=%d, want plain path only", index.plainCalls, index.mmrCalls)
	}
	if len(res.Chunks) != 2 {
		t.Errorf("chunks used = %d, want 2", len(res.Chunks))
	}
	for _, stage := range []string{"embed", "retrieve", "build_context"} {
		if _, ok := res.Timings[stage]; !ok {
			t.Errorf("missing stage timing %q", stage)
		}
	}
}

func TestRetrieveMMRUsesFetchFactor(t *testing.T) {
	index := &spyIndex{results: []model.RetrievedChunk{rc("c1", "d1", "x")}}
	p := newTestPipeline(&spyEmbedder{vec: []float32{1}}, index)

	if _, err := p.Retrieve(context.Background(), "q", 5, true, "ws-1"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if index.mmrCalls != 1 {
		t.Fatalf("mmr calls = %d, want 1", index.mmrCalls)
	}
	if index.lastFetchK != 20 {
		t.Errorf("fetchK = %d, want 4*topK = 20", index.lastFetchK)
	}
}

func TestRetrieveZeroHitsYieldsEmptyContext(t *testing.T) {
	p := newTestPipeline(&spyEmbedder{vec: []float32{1}}, &spyIndex{})

	res, err := p.Retrieve(context.Background(), "q", 3, false, "ws-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Empty() {
		t.Error("expected empty result")
	}
	if res.Context != "" {
		t.Errorf("context = %q, want empty", res.Context)
	}
	// The canonical fallback is available for callers.
	if NoEvidenceFallback == "" {
		t.Error("fallback string must be non-empty")
	}
}

func TestRetrieveAlignsChunksWithContextOnDuplicates(t *testing.T) {
	// A duplicate candidate in the middle must not shift the result:
	// the chunks reported are the deduplicated set that entered the
	// context, never a positional prefix of the raw candidates.
	index := &spyIndex{results: []model.RetrievedChunk{
		rc("c1", "d1", "first"),
		rc("c1", "d1", "first"),
		rc("c2", "d1", "second"),
	}}
	p := newTestPipeline(&spyEmbedder{vec: []float32{1}}, index)

	res, err := p.Retrieve(context.Background(), "q", 5, false, "ws-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(res.Chunks))
	}
	if res.Chunks[0].ID != "c1" || res.Chunks[1].ID != "c2" {
		t.Errorf("chunk ids = [%s %s], want [c1 c2]", res.Chunks[0].ID, res.Chunks[1].ID)
	}
}

func TestRetrieveOnlyReturnsChunksInContext(t *testing.T) {
	// Tight budget: only the first chunk fits.
	index := &spyIndex{results: []model.RetrievedChunk{
		rc("c1", "d1", "short"),
		rc("c2", "d1", "also short"),
	}}
	p := NewPipeline(&spyEmbedder{vec: []float32{1}}, index, NewContextBuilder(90), zap.NewNop(), metrics.NewNop())

	res, err := p.Retrieve(context.Background(), "q", 5, false, "ws-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Errorf("chunks used = %d, want only what entered the context (1)", len(res.Chunks))
	}
}
