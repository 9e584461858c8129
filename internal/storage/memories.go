package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// ScoredMemory is a memory search candidate with its backend score.
type ScoredMemory struct {
	Memory *Memory
	Score  float64
}

const memoryColumns = `id::text, title, content, memory_type, tags, project_id, author,
    related_chunk_ids, embedding_model, created_at, updated_at, deleted_at`

const insertMemorySQL = `
INSERT INTO memories (
    id, title, content, memory_type, tags, project_id, author,
    related_chunk_ids, embedding, embedding_model
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

// InsertMemory stores a new memory record.
func (s *Store) InsertMemory(ctx context.Context, m *Memory) error {
	if err := ValidateEmbedding(m.Embedding); err != nil {
		return fmt.Errorf("memory embedding: %w", err)
	}
	_, err := s.pool.Exec(ctx, insertMemorySQL,
		m.ID, m.Title, m.Content, m.MemoryType, m.Tags, m.ProjectID, m.Author,
		m.RelatedChunkIDs, vectorParam(m.Embedding), m.EmbeddingModel,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// UpdateMemory rewrites a memory's content fields and bumps updated_at.
// Soft-deleted memories are not updatable.
func (s *Store) UpdateMemory(ctx context.Context, m *Memory) (bool, error) {
	if err := ValidateEmbedding(m.Embedding); err != nil {
		return false, fmt.Errorf("memory embedding: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE memories
SET title = $2, content = $3, memory_type = $4, tags = $5,
    related_chunk_ids = $6, embedding = $7, embedding_model = $8,
    updated_at = now()
WHERE id = $1::uuid AND deleted_at IS NULL`,
		m.ID, m.Title, m.Content, m.MemoryType, m.Tags,
		m.RelatedChunkIDs, vectorParam(m.Embedding), m.EmbeddingModel,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update memory: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetMemory fetches a memory by id, returning (nil, nil) when absent.
// Soft-deleted memories are returned with DeletedAt set; callers decide
// whether to surface them.
func (s *Store) GetMemory(ctx context.Context, id string) (*Memory, error) {
	q := fmt.Sprintf("SELECT %s FROM memories WHERE id = $1::uuid", memoryColumns)
	m := &Memory{}
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&m.ID, &m.Title, &m.Content, &m.MemoryType, &m.Tags, &m.ProjectID, &m.Author,
		&m.RelatedChunkIDs, &m.EmbeddingModel, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}
	return m, nil
}

// SoftDeleteMemory marks a memory deleted without removing the row.
// Returns false when the memory does not exist or is already deleted.
func (s *Store) SoftDeleteMemory(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE memories SET deleted_at = now() WHERE id = $1::uuid AND deleted_at IS NULL", id)
	if err != nil {
		return false, fmt.Errorf("failed to soft-delete memory: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgeMemory permanently removes a memory. Only soft-deleted rows qualify;
// a live row must be soft-deleted first.
func (s *Store) PurgeMemory(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM memories WHERE id = $1::uuid AND deleted_at IS NOT NULL", id)
	if err != nil {
		return false, fmt.Errorf("failed to purge memory: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListMemories pages through live memories, newest first. projectID,
// memoryType, and tags are optional filters; tags match any overlap.
func (s *Store) ListMemories(ctx context.Context, projectID, memoryType string, tags []string, limit, offset int) ([]*Memory, error) {
	builder := psql.Select(
		"id::text", "title", "content", "memory_type", "tags", "project_id", "author",
		"related_chunk_ids", "embedding_model", "created_at", "updated_at", "deleted_at",
	).
		From("memories").
		Where("deleted_at IS NULL").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if projectID != "" {
		builder = builder.Where(sq.Eq{"project_id": projectID})
	}
	if memoryType != "" {
		builder = builder.Where(sq.Eq{"memory_type": memoryType})
	}
	if len(tags) > 0 {
		builder = builder.Where("tags && ?", tags)
	}

	querySQL, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build memory query: %w", err)
	}

	rows, err := s.pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// LexicalSearchMemories finds live memories by trigram similarity on title
// plus substring matches on title and content.
func (s *Store) LexicalSearchMemories(ctx context.Context, query string, minSimilarity float64, limit int) ([]ScoredMemory, error) {
	q := fmt.Sprintf(`
SELECT %s, similarity(title, $1) AS score
FROM memories
WHERE deleted_at IS NULL
    AND (similarity(title, $1) >= $2
        OR title ILIKE '%%' || $1 || '%%'
        OR content ILIKE '%%' || $1 || '%%')
ORDER BY score DESC, title
LIMIT %d`, memoryColumns, limit)

	rows, err := s.pool.Query(ctx, q, query, minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("memory lexical search failed: %w", err)
	}
	defer rows.Close()
	return scanScoredMemories(rows)
}

// VectorSearchMemories finds live memories by cosine similarity.
func (s *Store) VectorSearchMemories(ctx context.Context, embedding []float32, limit, efSearch int) ([]ScoredMemory, error) {
	if err := ValidateEmbedding(embedding); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
SELECT %s,
    LEAST(GREATEST(1.0 - (embedding <=> $1::vector), 0), 1) AS score
FROM memories
WHERE deleted_at IS NULL AND embedding IS NOT NULL
ORDER BY embedding <=> $1::vector
LIMIT %d`, memoryColumns, limit)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin search transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if efSearch > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch)); err != nil {
			return nil, fmt.Errorf("failed to set ef_search: %w", err)
		}
	}

	rows, err := tx.Query(ctx, q, vectorParam(embedding))
	if err != nil {
		return nil, fmt.Errorf("memory vector search failed: %w", err)
	}
	defer rows.Close()

	results, err := scanScoredMemories(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit search transaction: %w", err)
	}
	return results, nil
}

func scanMemories(rows pgx.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		m := &Memory{}
		if err := rows.Scan(
			&m.ID, &m.Title, &m.Content, &m.MemoryType, &m.Tags, &m.ProjectID, &m.Author,
			&m.RelatedChunkIDs, &m.EmbeddingModel, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanScoredMemories(rows pgx.Rows) ([]ScoredMemory, error) {
	var out []ScoredMemory
	for rows.Next() {
		m := &Memory{}
		var score float64
		if err := rows.Scan(
			&m.ID, &m.Title, &m.Content, &m.MemoryType, &m.Tags, &m.ProjectID, &m.Author,
			&m.RelatedChunkIDs, &m.EmbeddingModel, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt,
			&score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan memory candidate: %w", err)
		}
		out = append(out, ScoredMemory{Memory: m, Score: score})
	}
	return out, rows.Err()
}
