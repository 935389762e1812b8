// Package rag implements hybrid product retrieval: a vector ranking and a
// full-text ranking over the same filtered catalog, combined with
// reciprocal-rank fusion.
//
// Two backends are provided. [PostgresBackend] runs both rankings and the
// fusion in a single SQL statement against pgvector. [QdrantBackend] ranks
// vectors in Qdrant, ranks text in a Bleve index, and fuses in Go with [Fuse].
// Both honour the same [filter.Scope] and return identical result shapes.
package rag

import (
	"context"

	"github.com/54b3r/shopai-go/internal/filter"
)

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Request is a single retrieval call against a backend.
type Request struct {
	// Query is the search text used for full-text ranking.
	Query string
	// Vector is the embedding of Query. Its length has already been checked.
	Vector []float32
	// Filters restrict the candidate set per the backend's scope.
	Filters []filter.SearchFilter
}

// FusedResult is one row of the fused ranking joined with product attributes.
type FusedResult struct {
	ProductID   int64   `json:"product_id"`
	Score       float64 `json:"score"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Brand       string  `json:"brand"`
}

// Backend runs the hybrid ranking for a request. Results are ordered by
// score descending with ProductID ascending as tie-break. An empty candidate
// set yields an empty slice and a nil error.
type Backend interface {
	Search(ctx context.Context, req Request) ([]FusedResult, error)
}

// Options are the tunables shared by all backends.
type Options struct {
	// K is the RRF constant. Defaults to DefaultK.
	K float64
	// CandidateLimit caps each sub-ranking. Defaults to DefaultCandidateLimit.
	CandidateLimit int
	// ResultLimit caps the fused ranking. Defaults to DefaultResultLimit.
	ResultLimit int
	// Scope maps filter columns to the stages they restrict. Defaults to
	// filter.DefaultScope.
	Scope filter.Scope
}

const (
	DefaultK              = 60
	DefaultCandidateLimit = 20
	DefaultResultLimit    = 20
)

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = DefaultCandidateLimit
	}
	if o.ResultLimit <= 0 {
		o.ResultLimit = DefaultResultLimit
	}
	if o.Scope == nil {
		o.Scope = filter.DefaultScope()
	}
	return o
}
