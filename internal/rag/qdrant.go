package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/shopai-go/internal/catalog"
	"github.com/54b3r/shopai-go/internal/filter"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection holding product vectors (default: products).
	Collection string

	// VectorSize is the embedding dimension of the collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

const (
	payloadPrice = "price"
	payloadBrand = "brand"
)

// QdrantIndex stores one point per product, keyed by product id, with price
// and brand in the payload so filters can be applied during the search.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration.
	cfg *QdrantConfig
}

// NewQdrantIndex connects to Qdrant and creates the collection if needed.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "products"
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = catalog.DefaultDimensions
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Upsert writes the embedding for p. The vector length is checked against
// the collection size first.
func (s *QdrantIndex) Upsert(ctx context.Context, p catalog.Product, e catalog.Embedding) error {
	if err := catalog.CheckDimensions(e.Vector, int(s.cfg.VectorSize)); err != nil {
		return fmt.Errorf("qdrant: product %d: %w", p.ID, err)
	}
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(uint64(p.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadPrice: p.Price,
				payloadBrand: p.Brand,
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert product %d: %w", p.ID, err)
	}
	return nil
}

// Rank returns product ids ordered by cosine similarity to vec, restricted
// by filters, best first.
func (s *QdrantIndex) Rank(ctx context.Context, vec []float32, filters []filter.SearchFilter, limit int) ([]int64, error) {
	lim := uint64(limit)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vec...),
		Filter:         qdrantFilter(filters),
		Limit:          &lim,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, int64(r.GetId().GetNum()))
	}
	return ids, nil
}

// Ping checks that Qdrant is reachable.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Name returns the dependency label used in readiness responses.
func (s *QdrantIndex) Name() string { return "qdrant" }

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// qdrantFilter translates validated filters into payload conditions. It
// returns nil when nothing applies.
func qdrantFilter(filters []filter.SearchFilter) *qdrant.Filter {
	var must, mustNot []*qdrant.Condition
	for _, f := range validFilters(filters) {
		switch f.Column {
		case filter.ColumnPrice:
			b := boundsFor(f)
			cond := qdrant.NewRange(payloadPrice, qdrantRange(b))
			if b.negate {
				mustNot = append(mustNot, cond)
			} else {
				must = append(must, cond)
			}
		case filter.ColumnBrand:
			cond := qdrant.NewMatch(payloadBrand, f.Value.Str())
			if f.Operator == filter.OpNe {
				mustNot = append(mustNot, cond)
			} else {
				must = append(must, cond)
			}
		}
	}
	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}
}

func qdrantRange(b numericBounds) *qdrant.Range {
	r := &qdrant.Range{}
	if b.min != nil {
		if b.minIncl {
			r.Gte = b.min
		} else {
			r.Gt = b.min
		}
	}
	if b.max != nil {
		if b.maxIncl {
			r.Lte = b.max
		} else {
			r.Lt = b.max
		}
	}
	return r
}
