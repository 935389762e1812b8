package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/54b3r/shopai-go/internal/catalog"
	"github.com/54b3r/shopai-go/internal/filter"
)

const (
	fieldProductID   = "product_id"
	fieldDescription = "description"
	fieldPrice       = "price"
	fieldBrand       = "brand"
)

// BleveIndex is the full-text ranking used alongside Qdrant. Descriptions
// are analyzed with the English analyzer; price and brand are indexed so the
// same filters can be applied.
type BleveIndex struct {
	index bleve.Index
}

func productMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName
	doc.AddFieldMappingsAt(fieldProductID, bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt(fieldDescription, text)
	doc.AddFieldMappingsAt(fieldPrice, bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt(fieldBrand, bleve.NewKeywordFieldMapping())

	im.DefaultMapping = doc
	return im
}

// OpenBleveIndex opens the index at path, creating it if it does not exist.
// An empty path creates an in-memory index.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(productMapping())
		if err != nil {
			return nil, fmt.Errorf("bleve: create in-memory index: %w", err)
		}
		return &BleveIndex{index: idx}, nil
	}
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("bleve: open %s: %w", path, err)
		}
		return &BleveIndex{index: idx}, nil
	}
	idx, err := bleve.New(path, productMapping())
	if err != nil {
		return nil, fmt.Errorf("bleve: create %s: %w", path, err)
	}
	return &BleveIndex{index: idx}, nil
}

// Index adds or replaces the documents for products in one batch.
func (b *BleveIndex) Index(products ...catalog.Product) error {
	batch := b.index.NewBatch()
	for _, p := range products {
		err := batch.Index(strconv.FormatInt(p.ID, 10), map[string]any{
			fieldProductID:   float64(p.ID),
			fieldDescription: p.Description,
			fieldPrice:       p.Price,
			fieldBrand:       p.Brand,
		})
		if err != nil {
			return fmt.Errorf("bleve: index product %d: %w", p.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("bleve: batch: %w", err)
	}
	return nil
}

// Rank returns product ids whose description matches every term of text,
// best first, restricted by filters. Products with no match are excluded.
func (b *BleveIndex) Rank(ctx context.Context, text string, filters []filter.SearchFilter, limit int) ([]int64, error) {
	match := bleve.NewMatchQuery(text)
	match.SetField(fieldDescription)
	match.SetOperator(blevequery.MatchQueryOperatorAnd)

	q := bleve.NewBooleanQuery()
	q.AddMust(match)
	for _, f := range validFilters(filters) {
		clause, negate := bleveClause(f)
		if negate {
			q.AddMustNot(clause)
		} else {
			q.AddMust(clause)
		}
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	// Equal scores are ordered by numeric product id; _id compares as text.
	req.SortByCustom(search.SortOrder{
		&search.SortScore{Desc: true},
		&search.SortField{Field: fieldProductID, Type: search.SortFieldAsNumber},
	})
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve: search: %w", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bleve: bad document id %q: %w", hit.ID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func bleveClause(f filter.SearchFilter) (blevequery.Query, bool) {
	if f.Column == filter.ColumnBrand {
		t := bleve.NewTermQuery(f.Value.Str())
		t.SetField(fieldBrand)
		return t, f.Operator == filter.OpNe
	}
	bnd := boundsFor(f)
	minIncl, maxIncl := bnd.minIncl, bnd.maxIncl
	r := bleve.NewNumericRangeInclusiveQuery(bnd.min, bnd.max, &minIncl, &maxIncl)
	r.SetField(fieldPrice)
	return r, bnd.negate
}
