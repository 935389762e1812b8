package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/shopai-go/internal/catalog"
	"github.com/54b3r/shopai-go/internal/filter"
	"github.com/54b3r/shopai-go/internal/logging"
)

// HybridRetriever embeds the search query and runs the hybrid ranking on a
// backend. It holds no per-query state and is safe for concurrent use.
type HybridRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// backend performs the ranking and fusion.
	backend Backend

	// dims is the expected embedding length.
	dims int

	// timeout bounds each external call; zero disables it.
	timeout time.Duration
}

// NewHybridRetriever constructs a HybridRetriever. dims defaults to
// catalog.DefaultDimensions when zero.
func NewHybridRetriever(embedder Embedder, backend Backend, dims int, timeout time.Duration) (*HybridRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("rag: backend must not be nil")
	}
	if dims <= 0 {
		dims = catalog.DefaultDimensions
	}
	return &HybridRetriever{
		embedder: embedder,
		backend:  backend,
		dims:     dims,
		timeout:  timeout,
	}, nil
}

// Retrieve returns the fused ranking for searchQuery narrowed by filters.
// No matching products is not an error.
func (r *HybridRetriever) Retrieve(ctx context.Context, searchQuery string, filters []filter.SearchFilter) ([]FusedResult, error) {
	logger := logging.FromContext(ctx)

	vec, err := r.embed(ctx, searchQuery)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := r.search(ctx, Request{Query: searchQuery, Vector: vec, Filters: filters})
	if err != nil {
		return nil, err
	}

	where, _ := filter.BuildClauses(filters)
	logger.Debug("rag: hybrid search complete",
		slog.String("search_query", searchQuery),
		slog.String("filters", where),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func (r *HybridRetriever) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	embeddings, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}
	if err := catalog.CheckDimensions(embeddings[0], r.dims); err != nil {
		return nil, fmt.Errorf("rag: query embedding: %w", err)
	}
	return embeddings[0], nil
}

func (r *HybridRetriever) search(ctx context.Context, req Request) ([]FusedResult, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()

	results, err := r.backend.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []FusedResult{}
	}
	return results, nil
}

func (r *HybridRetriever) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
