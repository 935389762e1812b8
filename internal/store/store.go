// Package store provides a SQLite-backed embedding cache for ingestion.
// Vectors are keyed by a digest of the embedding model and the exact text
// that was embedded, so re-running ingestion over an unchanged catalog does
// not call the embedder again.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// EmbeddingCache persists and retrieves vectors by content key.
// Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	// Get returns the cached vector for key, or ok=false when absent.
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	// Put stores vec under key, replacing any previous value.
	Put(ctx context.Context, key string, vec []float32) error
	// Close releases any resources held by the cache.
	Close() error
}

// SQLiteStore is an EmbeddingCache backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Key returns the cache key for text embedded by model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// DefaultDBPath returns the default path for the embedding cache.
// It resolves to ~/.shopai/embeddings.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".shopai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "embeddings.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer; ingestion workers share this connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS embeddings (
    cache_key    TEXT    PRIMARY KEY,
    dims         INTEGER NOT NULL,
    vector       BLOB    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Get returns the cached vector for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]float32, bool, error) {
	const q = `SELECT dims, vector FROM embeddings WHERE cache_key = ?`
	var (
		dims int
		blob []byte
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&dims, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get: %w", err)
	}
	if len(blob) != dims*4 {
		// Truncated row; treat as a miss so the caller re-embeds.
		return nil, false, nil
	}
	return decodeVector(blob), true, nil
}

// Put stores vec under key.
func (s *SQLiteStore) Put(ctx context.Context, key string, vec []float32) error {
	const q = `
INSERT INTO embeddings (cache_key, dims, vector, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET dims = excluded.dims, vector = excluded.vector, created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, q, key, len(vec), encodeVector(vec), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	return nil
}

// Len returns the number of cached vectors.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: len: %w", err)
	}
	return n, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
