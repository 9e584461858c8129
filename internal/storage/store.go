// Package storage persists code chunks, graph nodes and edges, and memories
// in PostgreSQL with pgvector. All vector similarity search and recursive
// graph traversal run inside the database; this package owns the SQL.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool and exposes typed read/write operations
// over the indexing schema. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Options tunes pool behavior. Zero values fall back to defaults.
type Options struct {
	MaxConns    int32         // pool size, default 20
	PingTimeout time.Duration // connectivity check timeout, default 3s
}

// New connects to PostgreSQL and verifies connectivity with a short ping.
// The returned Store owns the pool; call Close when done.
func New(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if opts.MaxConns <= 0 {
		opts.MaxConns = 20
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}
	cfg.MaxConns = opts.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool. The caller retains ownership; Close
// becomes a no-op for the underlying pool lifecycle in tests.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for callers that need raw access,
// such as the traversal queries in the graph package.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases all pool connections.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
