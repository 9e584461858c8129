package storage

import (
	"context"
	"fmt"
)

// InsertEvent appends a row to the legacy event store. Kept for callers that
// still write memories as events; new code should use the memories table.
func (s *Store) InsertEvent(ctx context.Context, e *Event) error {
	if err := ValidateEmbedding(e.Embedding); err != nil {
		return fmt.Errorf("event embedding: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO events (id, content, metadata, embedding)
VALUES ($1, $2, $3, $4)`,
		e.ID, e.Content, e.Metadata, vectorParam(e.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events up to limit.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id::text, content, metadata, timestamp
FROM events
ORDER BY timestamp DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.Content, &e.Metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
