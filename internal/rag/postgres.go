package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/54b3r/shopai-go/internal/catalog"
	"github.com/54b3r/shopai-go/internal/filter"
)

// Querier is the subset of *pgxpool.Pool used by PostgresBackend. The pool
// acquires a connection for each query and releases it when rows close.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresBackend runs the hybrid ranking as one SQL statement against the
// products and product_embeddings tables.
type PostgresBackend struct {
	db   Querier
	opts Options
}

// NewPostgresBackend returns a backend that queries db.
func NewPostgresBackend(db Querier, opts Options) (*PostgresBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("rag: postgres querier must not be nil")
	}
	return &PostgresBackend{db: db, opts: opts.withDefaults()}, nil
}

// fixed positional parameters; filter values are bound from firstFilterArg.
const (
	argVector = iota + 1
	argQuery
	argK
	argCandidateLimit
	argResultLimit
	firstFilterArg
)

// hybridQuery renders the statement and its arguments. Filter values are
// always bound as parameters; only allow-listed column names and operators
// reach the SQL text.
func hybridQuery(req Request, opts Options) (string, []any) {
	vec := filter.Bind(opts.Scope.Select(req.Filters, filter.StageVector), firstFilterArg)
	ft := filter.Bind(opts.Scope.Select(req.Filters, filter.StageFullText), firstFilterArg+len(vec.Args))

	var sb strings.Builder
	sb.WriteString(`WITH vector_candidates AS (
    SELECT product_id
    FROM products
    `)
	sb.WriteString(vec.Where)
	fmt.Fprintf(&sb, `
),
vector_search AS (
    SELECT pe.product_id,
           RANK() OVER (ORDER BY pe.embedding <=> $%[1]d::vector) AS rank
    FROM product_embeddings pe
    JOIN vector_candidates vc ON vc.product_id = pe.product_id
    ORDER BY pe.embedding <=> $%[1]d::vector, pe.product_id
    LIMIT $%[2]d
),
fulltext_search AS (
    SELECT product_id,
           RANK() OVER (ORDER BY ts_rank_cd(to_tsvector('english', product_description), query) DESC) AS rank
    FROM products, plainto_tsquery('english', $%[3]d) query
    WHERE to_tsvector('english', product_description) @@ query
    `, argVector, argCandidateLimit, argQuery)
	sb.WriteString(ft.And)
	fmt.Fprintf(&sb, `
    ORDER BY ts_rank_cd(to_tsvector('english', product_description), query) DESC, product_id
    LIMIT $%[1]d
),
hybrid_search AS (
    SELECT COALESCE(v.product_id, f.product_id) AS product_id,
           COALESCE(1.0 / ($%[2]d::float8 + v.rank), 0.0) +
           COALESCE(1.0 / ($%[2]d::float8 + f.rank), 0.0) AS score
    FROM vector_search v
    FULL OUTER JOIN fulltext_search f ON v.product_id = f.product_id
)
SELECT hs.product_id, p.product_name, p.product_description, p.price::float8, p.brand, hs.score::float8
FROM hybrid_search hs
JOIN products p ON p.product_id = hs.product_id
ORDER BY hs.score DESC, hs.product_id ASC
LIMIT $%[3]d`, argCandidateLimit, argK, argResultLimit)

	args := make([]any, 0, firstFilterArg-1+len(vec.Args)+len(ft.Args))
	args = append(args,
		catalog.VectorLiteral(req.Vector),
		req.Query,
		opts.K,
		opts.CandidateLimit,
		opts.ResultLimit,
	)
	args = append(args, vec.Args...)
	args = append(args, ft.Args...)
	return sb.String(), args
}

// Search implements Backend.
func (b *PostgresBackend) Search(ctx context.Context, req Request) ([]FusedResult, error) {
	sql, args := hybridQuery(req, b.opts)
	rows, err := b.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("rag: hybrid query: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FusedResult, error) {
		var r FusedResult
		err := row.Scan(&r.ProductID, &r.Name, &r.Description, &r.Price, &r.Brand, &r.Score)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("rag: hybrid query: %w", err)
	}
	return results, nil
}
