package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// EmbeddingDomain selects which vector column a similarity query runs on.
type EmbeddingDomain string

const (
	DomainText EmbeddingDomain = "text" // embedding_text column
	DomainCode EmbeddingDomain = "code" // embedding_code column
)

// SearchFilters narrows candidate queries. Zero-value fields are ignored.
type SearchFilters struct {
	Repository   string
	Language     string
	ChunkType    string
	PathContains string
}

// ScoredChunk is a search candidate with its raw backend score. Lexical
// scores are trigram similarities; vector scores are cosine similarities
// reported as 1 - distance, clipped to [0, 1].
type ScoredChunk struct {
	ID         string
	FilePath   string
	Language   string
	ChunkType  string
	Name       string
	NamePath   string
	SourceCode string
	StartLine  int
	EndLine    int
	Repository string
	Score      float64
}

const scoredChunkColumns = `id::text, file_path, language, chunk_type, name, name_path,
    source_code, start_line, end_line, repository`

// LexicalSearchChunks finds candidates by trigram similarity on names and an
// ILIKE substring match on names and source. The substring match guarantees
// exact retrieval of proper nouns that trigram similarity alone would rank
// below the cut.
func (s *Store) LexicalSearchChunks(ctx context.Context, query string, minSimilarity float64, filters SearchFilters, limit int) ([]ScoredChunk, error) {
	args := []any{query, minSimilarity}
	where, args := filters.apply(args)

	q := fmt.Sprintf(`
SELECT %s,
    GREATEST(similarity(name, $1), similarity(name_path, $1)) AS score
FROM code_chunks
WHERE (similarity(name, $1) >= $2
    OR name ILIKE '%%' || $1 || '%%'
    OR source_code ILIKE '%%' || $1 || '%%')
    %s
ORDER BY score DESC, name
LIMIT %d`, scoredChunkColumns, where, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()
	return scanScoredChunks(rows)
}

// VectorSearchChunks finds candidates by cosine similarity against one
// embedding column. efSearch widens the HNSW candidate list for better
// recall; it only applies inside this query's transaction.
func (s *Store) VectorSearchChunks(ctx context.Context, embedding []float32, domain EmbeddingDomain, filters SearchFilters, limit, efSearch int) ([]ScoredChunk, error) {
	if err := ValidateEmbedding(embedding); err != nil {
		return nil, err
	}
	column := "embedding_text"
	if domain == DomainCode {
		column = "embedding_code"
	}

	args := []any{vectorParam(embedding)}
	where, args := filters.apply(args)

	q := fmt.Sprintf(`
SELECT %s,
    LEAST(GREATEST(1.0 - (%s <=> $1::vector), 0), 1) AS score
FROM code_chunks
WHERE %s IS NOT NULL
    %s
ORDER BY %s <=> $1::vector
LIMIT %d`, scoredChunkColumns, column, column, where, column, limit)

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

	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	results, err := scanScoredChunks(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit search transaction: %w", err)
	}
	return results, nil
}

// apply appends filter conditions as numbered placeholders starting after
// the existing args and returns the extra WHERE text.
func (f SearchFilters) apply(args []any) (string, []any) {
	var b strings.Builder
	ai := len(args) + 1
	if f.Repository != "" {
		fmt.Fprintf(&b, " AND repository = $%d", ai)
		args = append(args, f.Repository)
		ai++
	}
	if f.Language != "" {
		fmt.Fprintf(&b, " AND language = $%d", ai)
		args = append(args, f.Language)
		ai++
	}
	if f.ChunkType != "" {
		fmt.Fprintf(&b, " AND chunk_type = $%d", ai)
		args = append(args, f.ChunkType)
		ai++
	}
	if f.PathContains != "" {
		fmt.Fprintf(&b, " AND file_path ILIKE '%%' || $%d || '%%'", ai)
		args = append(args, f.PathContains)
	}
	return b.String(), args
}

func scanScoredChunks(rows pgx.Rows) ([]ScoredChunk, error) {
	var out []ScoredChunk
	for rows.Next() {
		var c ScoredChunk
		if err := rows.Scan(
			&c.ID, &c.FilePath, &c.Language, &c.ChunkType, &c.Name, &c.NamePath,
			&c.SourceCode, &c.StartLine, &c.EndLine, &c.Repository, &c.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
