package vector

import (
	"ragspace/internal/model"
)

// DefaultMMRLambda balances relevance against diversity.
const DefaultMMRLambda = 0.5

// MaximalMarginalRelevance re-ranks candidates for diversity. At each
// step it selects the candidate maximizing
//
//	lambda*sim(c, query) - (1-lambda)*max_{s in selected} sim(c, s)
//
// until topK chunks are chosen or candidates run out. The result has no
// duplicates and length min(topK, len(candidates)).
func MaximalMarginalRelevance(query []float32, candidates []model.RetrievedChunk, topK int, lambda float64) []model.RetrievedChunk {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}

	querySim := make([]float64, len(candidates))
	for i, c := range candidates {
		querySim[i] = CosineSimilarity(c.Embedding, query)
	}

	selected := make([]model.RetrievedChunk, 0, topK)
	picked := make([]bool, len(candidates))

	for len(selected) < topK {
		bestIdx := -1
		bestScore := 0.0
		for i := range candidates {
			if picked[i] {
				continue
			}
			redundancy := 0.0
			for _, s := range selected {
				if sim := CosineSimilarity(candidates[i].Embedding, s.Embedding); sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*querySim[i] - (1-lambda)*redundancy
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			break
		}
		picked[bestIdx] = true
		selected = append(selected, candidates[bestIdx])
	}

	return selected
}
