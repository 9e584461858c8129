package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TraverseDirection orients a graph walk along or against edge direction.
type TraverseDirection string

const (
	DirectionOutbound TraverseDirection = "outbound" // follow source -> target
	DirectionInbound  TraverseDirection = "inbound"  // follow target -> source
)

const insertNodeSQL = `
INSERT INTO nodes (node_id, node_type, label, properties)
VALUES ($1, $2, $3, $4)`

const insertEdgeSQL = `
INSERT INTO edges (edge_id, source_node_id, target_node_id, relation_type, properties)
VALUES ($1, $2, $3, $4, $5)`

// ReplaceRepositoryGraph atomically swaps a repository's graph: existing
// edges and nodes scoped to the repository are removed, then the new nodes
// and edges are inserted. Nodes go first so edge foreign keys resolve.
func (s *Store) ReplaceRepositoryGraph(ctx context.Context, repository string, nodes []*Node, edges []*Edge) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Safe to call even after commit

	// ON DELETE CASCADE on edges removes them with their nodes
	if _, err := tx.Exec(ctx,
		"DELETE FROM nodes WHERE properties->>'repository' = $1", repository); err != nil {
		return fmt.Errorf("failed to delete repository nodes: %w", err)
	}

	batch := &pgx.Batch{}
	for _, n := range nodes {
		batch.Queue(insertNodeSQL, n.ID, n.Type, n.Label, n.Properties)
	}
	for _, e := range edges {
		batch.Queue(insertEdgeSQL, e.ID, e.SourceID, e.TargetID, e.Relation, e.Properties)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(nodes)+len(edges); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert graph row: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to flush graph batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteRepositoryGraph removes a repository's nodes; edges cascade.
func (s *Store) DeleteRepositoryGraph(ctx context.Context, repository string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM nodes WHERE properties->>'repository' = $1", repository)
	if err != nil {
		return 0, fmt.Errorf("failed to delete repository graph: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NodesByIDs fetches full node rows for the given ids, preserving no
// particular order.
func (s *Store) NodesByIDs(ctx context.Context, ids []string) ([]*Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT node_id::text, node_type, label, properties, created_at
FROM nodes
WHERE node_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n := &Node{}
		if err := rows.Scan(&n.ID, &n.Type, &n.Label, &n.Properties, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// FindNodesByLabel fetches nodes whose label matches exactly, optionally
// scoped to one repository via the properties payload. Callers resolve
// names to node ids with this before traversing.
func (s *Store) FindNodesByLabel(ctx context.Context, repository, label string, limit int) ([]*Node, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
SELECT node_id::text, node_type, label, properties, created_at
FROM nodes
WHERE label = $1
  AND ($2 = '' OR properties->>'repository' = $2)
ORDER BY created_at DESC
LIMIT $3`, label, repository, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes by label: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n := &Node{}
		if err := rows.Scan(&n.ID, &n.Type, &n.Label, &n.Properties, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// NodeByID fetches a single node, returning (nil, nil) when absent.
func (s *Store) NodeByID(ctx context.Context, id string) (*Node, error) {
	n := &Node{}
	err := s.pool.QueryRow(ctx, `
SELECT node_id::text, node_type, label, properties, created_at
FROM nodes
WHERE node_id = $1::uuid`, id).Scan(&n.ID, &n.Type, &n.Label, &n.Properties, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query node: %w", err)
	}
	return n, nil
}

// TraverseNodeIDs walks edges from a start node up to maxDepth hops and
// returns the distinct ids of every node reached, excluding the start node.
// relation filters on edge kind; empty means any relation.
func (s *Store) TraverseNodeIDs(ctx context.Context, startNodeID string, direction TraverseDirection, relation string, maxDepth int) ([]string, error) {
	from, to := "source_node_id", "target_node_id"
	if direction == DirectionInbound {
		from, to = to, from
	}

	q := fmt.Sprintf(`
WITH RECURSIVE walk(node_id, depth) AS (
    SELECT $1::uuid, 0
    UNION ALL
    SELECT e.%s, w.depth + 1
    FROM walk w
    JOIN edges e ON e.%s = w.node_id
    WHERE w.depth < $3
        AND ($2 = '' OR e.relation_type = $2)
)
SELECT DISTINCT node_id::text
FROM walk
WHERE node_id <> $1::uuid`, to, from)

	rows, err := s.pool.Query(ctx, q, startNodeID, relation, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("traversal query failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindPath returns the shortest edge path between two nodes as an ordered
// list of node ids (inclusive of both ends), or nil when no path exists
// within maxDepth. The visited-path array prevents cycles.
func (s *Store) FindPath(ctx context.Context, sourceID, targetID, relation string, maxDepth int) ([]string, error) {
	const q = `
WITH RECURSIVE search(node_id, path, depth) AS (
    SELECT $1::uuid, ARRAY[$1::uuid], 0
    UNION ALL
    SELECT e.target_node_id, s.path || e.target_node_id, s.depth + 1
    FROM search s
    JOIN edges e ON e.source_node_id = s.node_id
    WHERE s.depth < $4
        AND ($3 = '' OR e.relation_type = $3)
        AND NOT e.target_node_id = ANY(s.path)
)
SELECT path::text[]
FROM search
WHERE node_id = $2::uuid
ORDER BY depth
LIMIT 1`

	var path []string
	err := s.pool.QueryRow(ctx, q, sourceID, targetID, relation, maxDepth).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("path query failed: %w", err)
	}
	return path, nil
}
