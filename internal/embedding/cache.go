package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"ragspace/internal/apperr"
	"ragspace/internal/metrics"
)

// normVersion is baked into cache keys so a change to NormalizeText
// invalidates previously cached entries.
const normVersion = "n1"

// Backend is the cache storage behind the facade. Lookups and stores
// that fail must be survivable: the facade logs and treats them as
// misses.
type Backend interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// Cache decorates a Provider with memoization and batch deduplication.
// It implements Provider itself.
type Cache struct {
	provider Provider
	backend  Backend
	modelID  string
	logger   *zap.Logger
	metrics  *metrics.Metrics
	group    singleflight.Group
}

// NewCache wraps provider with the given backend.
func NewCache(provider Provider, backend Backend, modelID string, logger *zap.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		provider: provider,
		backend:  backend,
		modelID:  modelID,
		logger:   logger,
		metrics:  m,
	}
}

// NormalizeText strips and collapses whitespace and applies NFC so
// visually identical inputs share a cache entry.
func NormalizeText(text string) string {
	text = norm.NFC.String(text)
	return strings.Join(strings.Fields(text), " ")
}

func (c *Cache) key(task TaskType, normalized string) string {
	return fmt.Sprintf("%s|%s|%s|%s", c.modelID, task, normVersion, normalized)
}

// EmbedQuery resolves a single query embedding through the cache.
// Concurrent identical queries share one provider call.
func (c *Cache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.key(TaskRetrievalQuery, NormalizeText(text))

	if vec, ok := c.lookup(ctx, key); ok {
		c.metrics.EmbedCacheHits.Inc()
		return vec, nil
	}
	c.metrics.EmbedCacheMisses.Inc()

	result, err, _ := c.group.Do(key, func() (any, error) {
		vec, err := c.provider.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// EmbedBatch resolves a batch of document embeddings. Inputs are
// deduplicated by cache key preserving first appearance; the provider
// is called at most once, with the unique miss texts only. The result
// is 1:1 with the input order and length.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))

	// Unique keys in first-appearance order, with the indices they must
	// fan out to.
	keyOrder := make([]string, 0, len(texts))
	keyIndices := make(map[string][]int, len(texts))
	keyText := make(map[string]string, len(texts))
	for i, t := range texts {
		k := c.key(TaskRetrievalDocument, NormalizeText(t))
		if _, seen := keyIndices[k]; !seen {
			keyOrder = append(keyOrder, k)
			keyText[k] = t
		}
		keyIndices[k] = append(keyIndices[k], i)
	}

	var missKeys []string
	for _, k := range keyOrder {
		if vec, ok := c.lookup(ctx, k); ok {
			// Duplicated indices count as separate hits.
			for _, idx := range keyIndices[k] {
				c.metrics.EmbedCacheHits.Inc()
				out[idx] = vec
			}
			continue
		}
		for range keyIndices[k] {
			c.metrics.EmbedCacheMisses.Inc()
		}
		missKeys = append(missKeys, k)
	}

	if len(missKeys) > 0 {
		missTexts := make([]string, len(missKeys))
		for i, k := range missKeys {
			missTexts[i] = keyText[k]
		}

		vecs, err := c.provider.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(missTexts) {
			return nil, apperr.Newf(apperr.KindEmbedding,
				"provider returned %d embeddings for %d texts", len(vecs), len(missTexts))
		}

		for i, k := range missKeys {
			c.store(ctx, k, vecs[i])
			for _, idx := range keyIndices[k] {
				out[idx] = vecs[i]
			}
		}
	}

	// A hole here means a bug above; fail the batch rather than hand a
	// nil embedding to the index.
	for i, vec := range out {
		if vec == nil {
			return nil, apperr.Newf(apperr.KindEmbedding, "embedding batch left index %d unresolved", i)
		}
	}
	return out, nil
}

func (c *Cache) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("embedding cache lookup failed", zap.Error(err))
		return nil, false
	}
	return vec, ok
}

func (c *Cache) store(ctx context.Context, key string, vec []float32) {
	if err := c.backend.Set(ctx, key, vec); err != nil {
		c.logger.Warn("embedding cache store failed", zap.Error(err))
	}
}
