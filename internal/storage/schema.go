package storage

import (
	"context"
	"fmt"
)

// CreateSchema creates extensions, tables, and indexes for the indexing store.
// Table creation runs in a single transaction so a partially created schema is
// never left behind; index creation follows in a second pass because HNSW
// builds can be slow on populated tables and should not hold the schema lock.
//
// Requires a database where CREATE EXTENSION is permitted (vector, pg_trgm).
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, ext := range []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"CREATE EXTENSION IF NOT EXISTS pg_trgm",
	} {
		if _, err := s.pool.Exec(ctx, ext); err != nil {
			return fmt.Errorf("failed to create extension: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Safe to call even after commit

	// Create all tables in dependency order
	tables := []struct {
		name string
		ddl  string
	}{
		{"code_chunks", createCodeChunksTable},
		{"nodes", createNodesTable},
		{"edges", createEdgesTable},
		{"memories", createMemoriesTable},
		{"events", createEventsTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(ctx, table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}

	for i, idx := range getAllIndexes() {
		if _, err := s.pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	return nil
}

// Table DDL constants

const createCodeChunksTable = `
CREATE TABLE IF NOT EXISTS code_chunks (
    id             UUID PRIMARY KEY,             -- chunk id
    file_path      TEXT NOT NULL,                -- relative path from repo root
    language       TEXT NOT NULL,                -- python, typescript, javascript, ...
    chunk_type     TEXT NOT NULL,                -- function, class, method, barrel, ...
    name           TEXT NOT NULL,                -- simple name
    name_path      TEXT NOT NULL DEFAULT '',     -- dot-joined qualified name
    source_code    TEXT NOT NULL,                -- literal chunk source
    start_line     INTEGER NOT NULL,
    end_line       INTEGER NOT NULL,
    metadata       JSONB NOT NULL DEFAULT '{}',  -- imports, calls, re_exports, types
    repository     TEXT NOT NULL,
    commit_hash    TEXT NOT NULL DEFAULT '',
    node_id        UUID,                         -- graph node, set after construction
    indexed_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_modified  TIMESTAMPTZ,
    embedding_text vector(768),                  -- text-domain embedding
    embedding_code vector(768)                   -- code-domain embedding
)
`

const createNodesTable = `
CREATE TABLE IF NOT EXISTS nodes (
    node_id    UUID PRIMARY KEY,
    node_type  TEXT NOT NULL,                    -- function, method, class, module
    label      TEXT NOT NULL,                    -- usually the simple name
    properties JSONB NOT NULL DEFAULT '{}',      -- chunk_id, file_path, repository, ...
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

const createEdgesTable = `
CREATE TABLE IF NOT EXISTS edges (
    edge_id        UUID PRIMARY KEY,
    source_node_id UUID NOT NULL REFERENCES nodes(node_id) ON DELETE CASCADE,
    target_node_id UUID NOT NULL REFERENCES nodes(node_id) ON DELETE CASCADE,
    relation_type  TEXT NOT NULL,                -- calls, imports, re_exports
    properties     JSONB NOT NULL DEFAULT '{}',  -- call_name, source_file, target_file
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

const createMemoriesTable = `
CREATE TABLE IF NOT EXISTS memories (
    id                UUID PRIMARY KEY,
    title             TEXT NOT NULL,             -- non-empty, max 200 chars
    content           TEXT NOT NULL,             -- non-empty
    memory_type       TEXT NOT NULL DEFAULT 'note',
    tags              TEXT[] NOT NULL DEFAULT '{}',
    project_id        TEXT NOT NULL DEFAULT '',
    author            TEXT NOT NULL DEFAULT '',
    related_chunk_ids TEXT[] NOT NULL DEFAULT '{}',
    embedding         vector(768),
    embedding_model   TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at        TIMESTAMPTZ                -- soft-delete marker
)
`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id        UUID PRIMARY KEY,
    content   JSONB NOT NULL DEFAULT '{}',
    metadata  JSONB NOT NULL DEFAULT '{}',
    embedding vector(768),
    timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

// getAllIndexes returns all index creation statements.
func getAllIndexes() []string {
	return []string{
		// code_chunks: vector search (HNSW, cosine) on both embedding domains
		"CREATE INDEX IF NOT EXISTS idx_chunks_embedding_text ON code_chunks USING hnsw (embedding_text vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_embedding_code ON code_chunks USING hnsw (embedding_code vector_cosine_ops)",

		// code_chunks: trigram lexical search on names and source
		"CREATE INDEX IF NOT EXISTS idx_chunks_name_trgm ON code_chunks USING gin (name gin_trgm_ops)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_source_trgm ON code_chunks USING gin (source_code gin_trgm_ops)",

		// code_chunks: lookup paths
		"CREATE INDEX IF NOT EXISTS idx_chunks_repo_lang ON code_chunks (repository, language)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_repo_file ON code_chunks (repository, file_path)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_name_path ON code_chunks (name_path)",

		// edges: traversal in both directions
		"CREATE INDEX IF NOT EXISTS idx_edges_source ON edges (source_node_id)",
		"CREATE INDEX IF NOT EXISTS idx_edges_target ON edges (target_node_id)",
		"CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges (relation_type)",

		// nodes: repository scoping lives in properties
		"CREATE INDEX IF NOT EXISTS idx_nodes_repository ON nodes ((properties->>'repository'))",
		"CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes (label)",

		// memories: hybrid retrieval
		"CREATE INDEX IF NOT EXISTS idx_memories_embedding ON memories USING hnsw (embedding vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_memories_title_trgm ON memories USING gin (title gin_trgm_ops)",
		"CREATE INDEX IF NOT EXISTS idx_memories_tags ON memories USING gin (tags)",

		// events
		"CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp)",
	}
}
