// Package catalog holds the product catalog model and its Postgres-backed
// store. Products and their embeddings are read-only from the search path;
// only the ingestion pipeline writes embeddings.
package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultDimensions is the embedding length produced by nomic-embed-text and
// the default width of the product_embeddings.embedding column.
const DefaultDimensions = 768

// ErrShapeMismatch is returned when an embedding vector's length differs
// from the configured dimension. The vector must not be stored or used.
var ErrShapeMismatch = errors.New("catalog: embedding shape mismatch")

// Product is a single catalog entry.
type Product struct {
	// ID is the product primary key.
	ID int64 `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Description is the free-text description indexed for full-text search.
	Description string `json:"description"`
	// Price is the unit price.
	Price float64 `json:"price"`
	// Brand is the manufacturer or label.
	Brand string `json:"brand"`
}

// Embedding is the stored vector for one product.
type Embedding struct {
	// ProductID references Product.ID. One embedding per product.
	ProductID int64
	// Vector is the dense embedding; its length equals the configured dimension.
	Vector []float32
}

// NewEmbedding validates vec against dims and returns an Embedding.
// A length mismatch yields an error wrapping ErrShapeMismatch.
func NewEmbedding(productID int64, vec []float32, dims int) (Embedding, error) {
	if err := CheckDimensions(vec, dims); err != nil {
		return Embedding{}, fmt.Errorf("product %d: %w", productID, err)
	}
	return Embedding{ProductID: productID, Vector: vec}, nil
}

// CheckDimensions returns an error wrapping ErrShapeMismatch unless
// len(vec) == dims.
func CheckDimensions(vec []float32, dims int) error {
	if len(vec) != dims {
		return fmt.Errorf("%w: got %d, expected %d", ErrShapeMismatch, len(vec), dims)
	}
	return nil
}

// EmbeddingText is the text embedded for a product at ingestion time.
func EmbeddingText(p Product) string {
	return "Product Name: " + p.Name + " Description: " + p.Description
}

// VectorLiteral renders vec in pgvector text form, e.g. "[0.1,-0.2,3]".
func VectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.Grow(len(vec) * 10)
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
