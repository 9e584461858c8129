package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/cache"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

// DefaultMaxDepth bounds traversals that do not ask for one.
const DefaultMaxDepth = 3

// TraversalResult is the answer to a reachability query. Nodes excludes
// the start node.
type TraversalResult struct {
	StartNode  string          `json:"start_node"`
	Direction  string          `json:"direction"`
	Relation   string          `json:"relation,omitempty"`
	MaxDepth   int             `json:"max_depth"`
	Nodes      []*storage.Node `json:"nodes"`
	TotalNodes int             `json:"total_nodes"`
}

// pathEnvelope serializes path answers; a null path marks "no path" so
// negative answers cache too.
type pathEnvelope struct {
	Path []string `json:"path"`
}

// GraphStore is the storage surface traversal queries run on.
// *storage.Store satisfies it.
type GraphStore interface {
	TraverseNodeIDs(ctx context.Context, startNodeID string, direction storage.TraverseDirection, relation string, maxDepth int) ([]string, error)
	NodesByIDs(ctx context.Context, ids []string) ([]*storage.Node, error)
	FindPath(ctx context.Context, sourceID, targetID, relation string, maxDepth int) ([]string, error)
}

// Traverser answers caller/callee and path queries over the stored graph,
// caching each answer for two minutes.
type Traverser struct {
	store  GraphStore
	cache  *cache.SharedCache
	logger *zap.Logger
}

func NewTraverser(store GraphStore, shared *cache.SharedCache, logger *zap.Logger) *Traverser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Traverser{store: store, cache: shared, logger: logger}
}

// Traverse returns every node reachable from start within maxDepth hops.
// relation filters edges by kind, empty means any; direction inbound walks
// against the edges (callers instead of callees).
func (t *Traverser) Traverse(ctx context.Context, startNodeID string, direction storage.TraverseDirection, relation string, maxDepth int) (*TraversalResult, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if direction == "" {
		direction = storage.DirectionOutbound
	}

	var relations []string
	if relation != "" {
		relations = []string{relation}
	}
	key := cache.GraphKey(startNodeID, maxDepth, relations, string(direction))
	if raw, ok := t.cache.Get(ctx, key); ok {
		var res TraversalResult
		if err := json.Unmarshal(raw, &res); err == nil {
			return &res, nil
		}
	}

	ids, err := t.store.TraverseNodeIDs(ctx, startNodeID, direction, relation, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("traversal failed: %w", err)
	}
	nodes, err := t.store.NodesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch traversed nodes: %w", err)
	}

	res := &TraversalResult{
		StartNode:  startNodeID,
		Direction:  string(direction),
		Relation:   relation,
		MaxDepth:   maxDepth,
		Nodes:      nodes,
		TotalNodes: len(nodes),
	}
	if data, err := json.Marshal(res); err == nil {
		t.cache.Set(ctx, key, data, cache.GraphTTL)
	}
	return res, nil
}

// FindPath returns the shortest node-id path from source to target, or nil
// when none exists within maxDepth.
func (t *Traverser) FindPath(ctx context.Context, sourceID, targetID, relation string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	key := cache.GraphPathKey(sourceID, targetID, relation, maxDepth)
	if raw, ok := t.cache.Get(ctx, key); ok {
		var env pathEnvelope
		if err := json.Unmarshal(raw, &env); err == nil {
			return env.Path, nil
		}
	}

	path, err := t.store.FindPath(ctx, sourceID, targetID, relation, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("path search failed: %w", err)
	}
	if data, err := json.Marshal(pathEnvelope{Path: path}); err == nil {
		t.cache.Set(ctx, key, data, cache.GraphTTL)
	}
	return path, nil
}
