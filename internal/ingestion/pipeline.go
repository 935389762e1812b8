// Package ingestion implements the catalog embedding pipeline. It reads
// products from the catalog store, embeds "Product Name: ... Description: ..."
// for each one, checks the vector width, and upserts the result into
// product_embeddings. Optionally it mirrors vectors into Qdrant and product
// text into a Bleve index for the alternative search backend.
// This pipeline is invoked by the `shopai embed` CLI command.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/54b3r/shopai-go/internal/catalog"
	"github.com/54b3r/shopai-go/internal/rag"
)

// ProductSource lists the products to embed.
type ProductSource interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

// EmbeddingSink persists one product embedding.
type EmbeddingSink interface {
	UpsertEmbedding(ctx context.Context, e catalog.Embedding, dims int) error
}

// VectorIndex mirrors an embedding with its filterable payload.
type VectorIndex interface {
	Upsert(ctx context.Context, p catalog.Product, e catalog.Embedding) error
}

// TextIndex mirrors product text for full-text ranking.
type TextIndex interface {
	Index(products ...catalog.Product) error
}

// Stats summarises one run.
type Stats struct {
	// Products is the number of products read from the source.
	Products int
	// Embedded is the number of embeddings written.
	Embedded int
}

// Pipeline orchestrates the list → embed → check → upsert flow.
type Pipeline struct {
	source    ProductSource
	sink      EmbeddingSink
	embedder  rag.Embedder
	dims      int
	pool      *ants.Pool
	batchSize int
	vectors   VectorIndex
	text      TextIndex
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of concurrent embedding batches.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return fmt.Errorf("ingestion: pool: %w", err)
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets how many products are embedded per embedder call.
// Default is 16.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.batchSize = n
		return nil
	}
}

// WithVectorIndex mirrors every written embedding into idx.
func WithVectorIndex(idx VectorIndex) Option {
	return func(p *Pipeline) error {
		p.vectors = idx
		return nil
	}
}

// WithTextIndex indexes every product into idx.
func WithTextIndex(idx TextIndex) Option {
	return func(p *Pipeline) error {
		p.text = idx
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline constructs a Pipeline. dims is the required vector width.
func NewPipeline(source ProductSource, sink EmbeddingSink, embedder rag.Embedder, dims int, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, fmt.Errorf("ingestion: source must not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("ingestion: sink must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if dims <= 0 {
		dims = catalog.DefaultDimensions
	}

	p := &Pipeline{
		source:    source,
		sink:      sink,
		embedder:  embedder,
		dims:      dims,
		batchSize: 16,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	if p.pool == nil {
		if err := WithPoolSize(runtime.NumCPU() / 2)(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Release frees the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Run embeds every product from the source. The first failure cancels the
// remaining batches and is returned; a vector of the wrong width fails with
// an error wrapping catalog.ErrShapeMismatch before anything of that batch
// is written. progress may be called from several workers at once.
func (p *Pipeline) Run(ctx context.Context, progress func(msg string)) (Stats, error) {
	if progress == nil {
		progress = func(string) {}
	}

	products, err := p.source.ListProducts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("ingestion: list products: %w", err)
	}
	stats := Stats{Products: len(products)}
	progress(fmt.Sprintf("embedding %d products", len(products)))
	if len(products) == 0 {
		return stats, nil
	}

	if p.text != nil {
		if err := p.text.Index(products...); err != nil {
			return stats, fmt.Errorf("ingestion: text index: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		embedded atomic.Int64
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(products); start += p.batchSize {
		batch := products[start:min(start+p.batchSize, len(products))]
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			n, err := p.embedBatch(ctx, batch)
			embedded.Add(int64(n))
			if err != nil {
				fail(err)
				return
			}
			progress(fmt.Sprintf("embedded products %d..%d", batch[0].ID, batch[len(batch)-1].ID))
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("ingestion: submit: %w", submitErr))
			break
		}
	}
	wg.Wait()

	stats.Embedded = int(embedded.Load())
	if firstErr != nil {
		return stats, firstErr
	}
	return stats, nil
}

// embedBatch embeds and writes one batch. It returns the number written.
func (p *Pipeline) embedBatch(ctx context.Context, batch []catalog.Product) (int, error) {
	texts := make([]string, len(batch))
	for i, prod := range batch {
		texts[i] = catalog.EmbeddingText(prod)
	}

	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("ingestion: embed products %d..%d: %w", batch[0].ID, batch[len(batch)-1].ID, err)
	}
	if len(vecs) != len(batch) {
		return 0, fmt.Errorf("ingestion: embedder returned %d vectors for %d products", len(vecs), len(batch))
	}

	// Check the whole batch before writing any of it.
	embeddings := make([]catalog.Embedding, len(batch))
	for i, prod := range batch {
		e, err := catalog.NewEmbedding(prod.ID, vecs[i], p.dims)
		if err != nil {
			return 0, fmt.Errorf("ingestion: %w", err)
		}
		embeddings[i] = e
	}

	written := 0
	for i, e := range embeddings {
		if err := p.sink.UpsertEmbedding(ctx, e, p.dims); err != nil {
			return written, fmt.Errorf("ingestion: upsert product %d: %w", e.ProductID, err)
		}
		if p.vectors != nil {
			if err := p.vectors.Upsert(ctx, batch[i], e); err != nil {
				return written, fmt.Errorf("ingestion: vector index product %d: %w", e.ProductID, err)
			}
		}
		written++
	}
	p.logger.DebugContext(ctx, "ingestion: batch written",
		slog.Int64("first_id", batch[0].ID),
		slog.Int("count", written),
	)
	return written, nil
}

// IsShapeMismatch reports whether err stopped the run on a vector of the
// wrong width.
func IsShapeMismatch(err error) bool {
	return errors.Is(err, catalog.ErrShapeMismatch)
}
