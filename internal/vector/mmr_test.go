package vector

import (
	"math"
	"testing"

	"ragspace/internal/model"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func chunk(id string, emb []float32) model.RetrievedChunk {
	return model.RetrievedChunk{Chunk: model.Chunk{ID: id, Embedding: emb}}
}

func TestMMRNoDuplicatesAndLength(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := []model.RetrievedChunk{
		chunk("a", []float32{1, 0, 0}),
		chunk("b", []float32{0.9, 0.1, 0}),
		chunk("c", []float32{0, 1, 0}),
		chunk("d", []float32{0, 0, 1}),
	}

	for _, topK := range []int{1, 2, 3, 4, 10} {
		got := MaximalMarginalRelevance(query, candidates, topK, DefaultMMRLambda)
		wantLen := topK
		if wantLen > len(candidates) {
			wantLen = len(candidates)
		}
		if len(got) != wantLen {
			t.Errorf("topK=%d: len = %d, want %d", topK, len(got), wantLen)
		}
		seen := map[string]bool{}
		for _, c := range got {
			if seen[c.ID] {
				t.Errorf("topK=%d: duplicate chunk %s", topK, c.ID)
			}
			seen[c.ID] = true
		}
	}
}

func TestMMRPicksMostRelevantFirst(t *testing.T) {
	query := []float32{1, 0}
	candidates := []model.RetrievedChunk{
		chunk("far", []float32{0, 1}),
		chunk("near", []float32{1, 0.01}),
	}
	got := MaximalMarginalRelevance(query, candidates, 1, DefaultMMRLambda)
	if len(got) != 1 || got[0].ID != "near" {
		t.Errorf("expected most relevant candidate first, got %+v", got)
	}
}

func TestMMRPrefersDiversity(t *testing.T) {
	query := []float32{1, 0, 0}
	// Two near-identical top candidates and one different but still
	// relevant one. MMR with lambda=0.5 should pick one of the twins and
	// then the diverse candidate.
	candidates := []model.RetrievedChunk{
		chunk("twin1", []float32{1, 0, 0}),
		chunk("twin2", []float32{0.99, 0.01, 0}),
		chunk("diverse", []float32{0.6, 0.8, 0}),
	}
	got := MaximalMarginalRelevance(query, candidates, 2, 0.5)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "twin1" {
		t.Errorf("first pick = %s, want twin1", got[0].ID)
	}
	if got[1].ID != "diverse" {
		t.Errorf("second pick = %s, want diverse (diversity should beat the twin)", got[1].ID)
	}
}

func TestMMREdgeCases(t *testing.T) {
	if got := MaximalMarginalRelevance([]float32{1}, nil, 3, 0.5); got != nil {
		t.Errorf("expected nil for no candidates, got %v", got)
	}
	if got := MaximalMarginalRelevance([]float32{1}, []model.RetrievedChunk{chunk("a", []float32{1})}, 0, 0.5); got != nil {
		t.Errorf("expected nil for topK=0, got %v", got)
	}
	// Empty query embedding: similarities are all 0, selection still
	// returns the requested count.
	got := MaximalMarginalRelevance(nil, []model.RetrievedChunk{
		chunk("a", []float32{1, 0}),
		chunk("b", []float32{0, 1}),
	}, 2, 0.5)
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}
