package rag

import (
	"context"
	"fmt"

	"github.com/54b3r/shopai-go/internal/catalog"
	"github.com/54b3r/shopai-go/internal/filter"
)

// Ranker produces one sub-ranking as product ids, best first.
type Ranker interface {
	Rank(ctx context.Context, input string, filters []filter.SearchFilter, limit int) ([]int64, error)
}

// VectorRanker produces the vector sub-ranking.
type VectorRanker interface {
	Rank(ctx context.Context, vec []float32, filters []filter.SearchFilter, limit int) ([]int64, error)
}

// ProductLookup joins fused ids with product attributes.
type ProductLookup interface {
	ProductsByID(ctx context.Context, ids []int64) (map[int64]catalog.Product, error)
}

// QdrantBackend fuses a Qdrant vector ranking with a Bleve full-text ranking.
type QdrantBackend struct {
	vectors  VectorRanker
	text     Ranker
	products ProductLookup
	opts     Options
}

// NewQdrantBackend returns a backend over the given rankers and catalog.
func NewQdrantBackend(vectors VectorRanker, text Ranker, products ProductLookup, opts Options) (*QdrantBackend, error) {
	if vectors == nil || text == nil || products == nil {
		return nil, fmt.Errorf("rag: qdrant backend requires vector ranker, text ranker and product lookup")
	}
	return &QdrantBackend{vectors: vectors, text: text, products: products, opts: opts.withDefaults()}, nil
}

// Search implements Backend.
func (b *QdrantBackend) Search(ctx context.Context, req Request) ([]FusedResult, error) {
	vecIDs, err := b.vectors.Rank(ctx, req.Vector, b.opts.Scope.Select(req.Filters, filter.StageVector), b.opts.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("rag: vector ranking: %w", err)
	}
	textIDs, err := b.text.Rank(ctx, req.Query, b.opts.Scope.Select(req.Filters, filter.StageFullText), b.opts.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("rag: full-text ranking: %w", err)
	}

	fused := Fuse(vecIDs, textIDs, b.opts)
	if len(fused) == 0 {
		return []FusedResult{}, nil
	}

	ids := make([]int64, len(fused))
	for i, f := range fused {
		ids[i] = f.ProductID
	}
	products, err := b.products.ProductsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("rag: join products: %w", err)
	}

	out := make([]FusedResult, 0, len(fused))
	for _, f := range fused {
		p, ok := products[f.ProductID]
		if !ok {
			continue
		}
		out = append(out, FusedResult{
			ProductID:   f.ProductID,
			Score:       f.Score,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Brand:       p.Brand,
		})
	}
	return out, nil
}
