package store

import (
	"context"
	"fmt"

	"github.com/54b3r/shopai-go/internal/rag"
)

// CachingEmbedder wraps a rag.Embedder and serves repeated texts from an
// EmbeddingCache. Misses are embedded in one batch and written back.
type CachingEmbedder struct {
	next  rag.Embedder
	cache EmbeddingCache
	model string
}

// NewCachingEmbedder returns an embedder that consults cache before next.
// model is folded into the cache key so switching models never serves a
// stale vector.
func NewCachingEmbedder(next rag.Embedder, cache EmbeddingCache, model string) *CachingEmbedder {
	return &CachingEmbedder{next: next, cache: cache, model: model}
}

// Embed implements rag.Embedder.
func (c *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		vec, ok, err := c.cache.Get(ctx, Key(c.model, t))
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("store: embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}
	for j, vec := range vecs {
		out[missIdx[j]] = vec
		if err := c.cache.Put(ctx, Key(c.model, missTexts[j]), vec); err != nil {
			return nil, err
		}
	}
	return out, nil
}
