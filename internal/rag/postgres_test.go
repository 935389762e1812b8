package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/shopai-go/internal/filter"
)

func TestHybridQuery_NoFilters(t *testing.T) {
	t.Parallel()

	sql, args := hybridQuery(Request{Query: "macbooks", Vector: []float32{0.5, -1}}, Options{}.withDefaults())

	require.Len(t, args, 5)
	assert.Equal(t, "[0.5,-1]", args[0])
	assert.Equal(t, "macbooks", args[1])
	assert.Equal(t, float64(DefaultK), args[2])
	assert.Equal(t, DefaultCandidateLimit, args[3])
	assert.Equal(t, DefaultResultLimit, args[4])

	assert.NotContains(t, sql, "WHERE price")
	assert.NotContains(t, sql, "$6")
	assert.Contains(t, sql, "pe.embedding <=> $1::vector")
	assert.Contains(t, sql, "plainto_tsquery('english', $2)")
	assert.Contains(t, sql, "FULL OUTER JOIN fulltext_search")
	assert.Contains(t, sql, "ORDER BY hs.score DESC, hs.product_id ASC")
	assert.Contains(t, sql, "LIMIT $5")
}

func TestHybridQuery_FiltersAreBound(t *testing.T) {
	t.Parallel()

	filters := []filter.SearchFilter{
		{Column: filter.ColumnPrice, Operator: filter.OpLt, Value: filter.Number(2000)},
		{Column: filter.ColumnBrand, Operator: filter.OpEq, Value: filter.String("Apple'; DROP TABLE products; --")},
	}
	sql, args := hybridQuery(Request{Query: "macbooks", Vector: []float32{1}, Filters: filters}, Options{}.withDefaults())

	// vector stage binds $6,$7; full-text stage binds $8,$9
	assert.Contains(t, sql, "WHERE price < $6 AND brand = $7")
	assert.Contains(t, sql, "AND price < $8 AND brand = $9")
	assert.NotContains(t, sql, "DROP TABLE")
	assert.NotContains(t, sql, "2000")

	require.Len(t, args, 9)
	assert.Equal(t, 2000.0, args[5])
	assert.Equal(t, "Apple'; DROP TABLE products; --", args[6])
	assert.Equal(t, 2000.0, args[7])
	assert.Equal(t, "Apple'; DROP TABLE products; --", args[8])
}

func TestHybridQuery_ScopeLimitsStages(t *testing.T) {
	t.Parallel()

	scope, err := filter.ParseScope("price=vector+fulltext,brand=vector")
	require.NoError(t, err)

	filters := []filter.SearchFilter{
		{Column: filter.ColumnPrice, Operator: filter.OpGe, Value: filter.Number(10)},
		{Column: filter.ColumnBrand, Operator: filter.OpNe, Value: filter.String("Nike")},
	}
	sql, args := hybridQuery(Request{Query: "shoes", Vector: []float32{1}, Filters: filters}, Options{Scope: scope}.withDefaults())

	assert.Contains(t, sql, "WHERE price >= $6 AND brand != $7")
	assert.Contains(t, sql, "AND price >= $8\n")
	assert.NotContains(t, sql, "$9")
	assert.Len(t, args, 8)
}

func TestHybridQuery_InvalidFilterDropped(t *testing.T) {
	t.Parallel()

	filters := []filter.SearchFilter{
		{Column: "product_name", Operator: filter.OpEq, Value: filter.String("x")},
	}
	sql, args := hybridQuery(Request{Query: "q", Vector: []float32{1}, Filters: filters}, Options{}.withDefaults())
	assert.NotContains(t, sql, "product_name =")
	assert.Len(t, args, 5)
}

func TestHybridQuery_Deterministic(t *testing.T) {
	t.Parallel()

	req := Request{Query: "q", Vector: []float32{1, 2}, Filters: []filter.SearchFilter{
		{Column: filter.ColumnPrice, Operator: filter.OpLt, Value: filter.Number(5)},
	}}
	s1, a1 := hybridQuery(req, Options{}.withDefaults())
	s2, a2 := hybridQuery(req, Options{}.withDefaults())
	assert.Equal(t, s1, s2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, 1, strings.Count(s1, "FULL OUTER JOIN"))
}

type failingQuerier struct{ err error }

func (f failingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, f.err
}

func TestPostgresBackend_QueryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	b, err := NewPostgresBackend(failingQuerier{err: boom}, Options{})
	require.NoError(t, err)

	_, err = b.Search(context.Background(), Request{Query: "q", Vector: []float32{1}})
	assert.ErrorIs(t, err, boom)
}

func TestNewPostgresBackend_Nil(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresBackend(nil, Options{})
	assert.Error(t, err)
}
