package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// psql builds queries with PostgreSQL $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const insertChunkSQL = `
INSERT INTO code_chunks (
    id, file_path, language, chunk_type, name, name_path, source_code,
    start_line, end_line, metadata, repository, commit_hash, node_id,
    last_modified, embedding_text, embedding_code
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

// ReplaceFileChunks atomically replaces the chunks of every file mentioned in
// the given slice: existing rows for those (repository, file_path) pairs are
// deleted, then the new chunks are inserted in one batch. Either all chunks
// land or none do.
func (s *Store) ReplaceFileChunks(ctx context.Context, repository string, chunks []*CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, c := range chunks {
		if err := ValidateEmbedding(c.EmbeddingText); err != nil {
			return fmt.Errorf("chunk %s text embedding: %w", c.ID, err)
		}
		if err := ValidateEmbedding(c.EmbeddingCode); err != nil {
			return fmt.Errorf("chunk %s code embedding: %w", c.ID, err)
		}
	}

	// Collect unique file paths
	filePathsMap := make(map[string]bool)
	for _, c := range chunks {
		filePathsMap[c.FilePath] = true
	}
	filePaths := make([]string, 0, len(filePathsMap))
	for p := range filePathsMap {
		filePaths = append(filePaths, p)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Safe to call even after commit

	delSQL, delArgs, err := psql.Delete("code_chunks").
		Where(sq.Eq{"repository": repository, "file_path": filePaths}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := tx.Exec(ctx, delSQL, delArgs...); err != nil {
		return fmt.Errorf("failed to delete existing chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(insertChunkSQL,
			c.ID,
			c.FilePath,
			c.Language,
			c.ChunkType,
			c.Name,
			c.NamePath,
			c.SourceCode,
			c.StartLine,
			c.EndLine,
			c.Metadata,
			repository,
			c.CommitHash,
			nullableUUID(c.NodeID),
			c.LastModified,
			vectorParam(c.EmbeddingText),
			vectorParam(c.EmbeddingCode),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to flush chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteFileChunks removes all chunks for a single file. Used when a watched
// file is deleted. Returns the number of rows removed.
func (s *Store) DeleteFileChunks(ctx context.Context, repository, filePath string) (int64, error) {
	delSQL, args, err := psql.Delete("code_chunks").
		Where(sq.Eq{"repository": repository, "file_path": filePath}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, delSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for file %s: %w", filePath, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteRepositoryChunks removes every chunk for a repository.
func (s *Store) DeleteRepositoryChunks(ctx context.Context, repository string) (int64, error) {
	delSQL, args, err := psql.Delete("code_chunks").
		Where(sq.Eq{"repository": repository}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, delSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete repository chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ChunksByRepository loads chunks for graph construction. Embedding columns
// are intentionally not selected; the graph only needs structure and metadata.
// Language may be empty to load every language.
func (s *Store) ChunksByRepository(ctx context.Context, repository, language string) ([]*CodeChunk, error) {
	builder := psql.Select(
		"id::text", "file_path", "language", "chunk_type", "name", "name_path",
		"source_code", "start_line", "end_line", "metadata", "repository",
		"commit_hash", "COALESCE(node_id::text, '')", "indexed_at", "last_modified",
	).
		From("code_chunks").
		Where(sq.Eq{"repository": repository}).
		OrderBy("file_path", "start_line")
	if language != "" {
		builder = builder.Where(sq.Eq{"language": language})
	}

	querySQL, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build chunk query: %w", err)
	}

	rows, err := s.pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*CodeChunk
	for rows.Next() {
		c := &CodeChunk{}
		if err := rows.Scan(
			&c.ID, &c.FilePath, &c.Language, &c.ChunkType, &c.Name, &c.NamePath,
			&c.SourceCode, &c.StartLine, &c.EndLine, &c.Metadata, &c.Repository,
			&c.CommitHash, &c.NodeID, &c.IndexedAt, &c.LastModified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// UpdateChunkNodeIDs links chunks to their graph nodes after construction.
// The map is chunk id to node id.
func (s *Store) UpdateChunkNodeIDs(ctx context.Context, nodeIDByChunk map[string]string) error {
	if len(nodeIDByChunk) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for chunkID, nodeID := range nodeIDByChunk {
		batch.Queue("UPDATE code_chunks SET node_id = $2::uuid WHERE id = $1::uuid", chunkID, nodeID)
	}

	br := tx.SendBatch(ctx, batch)
	for range nodeIDByChunk {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to update chunk node id: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to flush node id batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRepositories returns every repository with at least one chunk.
func (s *Store) ListRepositories(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT repository FROM code_chunks ORDER BY repository")
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	var repos []string
	for rows.Next() {
		var repo string
		if err := rows.Scan(&repo); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// RepositoryLanguages returns the distinct languages indexed for a repository.
func (s *Store) RepositoryLanguages(ctx context.Context, repository string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT language FROM code_chunks WHERE repository = $1 ORDER BY language", repository)
	if err != nil {
		return nil, fmt.Errorf("failed to query languages: %w", err)
	}
	defer rows.Close()

	var langs []string
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("failed to scan language: %w", err)
		}
		langs = append(langs, lang)
	}
	return langs, rows.Err()
}

// Summary aggregates per-repository counts for status reporting.
func (s *Store) Summary(ctx context.Context, repository string) (*RepositorySummary, error) {
	const q = `
SELECT
    COUNT(DISTINCT file_path),
    COUNT(*),
    (SELECT COUNT(*) FROM nodes WHERE properties->>'repository' = $1),
    (SELECT COUNT(*) FROM edges e
        JOIN nodes n ON e.source_node_id = n.node_id
        WHERE n.properties->>'repository' = $1),
    ARRAY(SELECT DISTINCT language FROM code_chunks WHERE repository = $1 ORDER BY language),
    MAX(indexed_at)
FROM code_chunks
WHERE repository = $1`

	summary := &RepositorySummary{Repository: repository}
	var indexedAt *time.Time
	err := s.pool.QueryRow(ctx, q, repository).Scan(
		&summary.FileCount,
		&summary.ChunkCount,
		&summary.NodeCount,
		&summary.EdgeCount,
		&summary.Languages,
		&indexedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query repository summary: %w", err)
	}
	if indexedAt != nil {
		summary.IndexedAt = *indexedAt
	}
	return summary, nil
}

// nullableUUID converts a string id to a query parameter. Empty strings
// become NULL so optional UUID columns stay unset.
func nullableUUID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
