package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-atlas/internal/storage"
)

// Test Plan:
// 1. Traverse defaults depth and direction, passes the relation filter
//    through, and reports the reached nodes with their count.
// 2. Store failures come back wrapped, both on the walk and on the
//    follow-up node fetch.
// 3. FindPath returns the store's path verbatim and nil when no path
//    exists within the depth bound.

type fakeGraphStore struct {
	ids     []string
	idsErr  error
	nodes   []*storage.Node
	nodeErr error
	path    []string
	pathErr error

	lastStart     string
	lastDirection storage.TraverseDirection
	lastRelation  string
	lastDepth     int
}

func (f *fakeGraphStore) TraverseNodeIDs(_ context.Context, startNodeID string, direction storage.TraverseDirection, relation string, maxDepth int) ([]string, error) {
	f.lastStart = startNodeID
	f.lastDirection = direction
	f.lastRelation = relation
	f.lastDepth = maxDepth
	return f.ids, f.idsErr
}

func (f *fakeGraphStore) NodesByIDs(_ context.Context, _ []string) ([]*storage.Node, error) {
	return f.nodes, f.nodeErr
}

func (f *fakeGraphStore) FindPath(_ context.Context, _, _, relation string, maxDepth int) ([]string, error) {
	f.lastRelation = relation
	f.lastDepth = maxDepth
	return f.path, f.pathErr
}

func TestTraverseDefaults(t *testing.T) {
	store := &fakeGraphStore{
		ids: []string{"n2", "n3"},
		nodes: []*storage.Node{
			{ID: "n2", Type: "function", Label: "helper"},
			{ID: "n3", Type: "method", Label: "save"},
		},
	}
	trav := NewTraverser(store, nil, nil)

	res, err := trav.Traverse(context.Background(), "n1", "", "", 0)
	require.NoError(t, err)

	assert.Equal(t, storage.DirectionOutbound, store.lastDirection)
	assert.Equal(t, DefaultMaxDepth, store.lastDepth)
	assert.Equal(t, "n1", res.StartNode)
	assert.Equal(t, DefaultMaxDepth, res.MaxDepth)
	assert.Equal(t, 2, res.TotalNodes)
	require.Len(t, res.Nodes, 2)
	assert.Equal(t, "helper", res.Nodes[0].Label)
}

func TestTraversePassesFilters(t *testing.T) {
	store := &fakeGraphStore{}
	trav := NewTraverser(store, nil, nil)

	res, err := trav.Traverse(context.Background(), "n1", storage.DirectionInbound, "calls", 5)
	require.NoError(t, err)

	assert.Equal(t, storage.DirectionInbound, store.lastDirection)
	assert.Equal(t, "calls", store.lastRelation)
	assert.Equal(t, 5, store.lastDepth)
	assert.Equal(t, "inbound", res.Direction)
	assert.Equal(t, "calls", res.Relation)
	assert.Equal(t, 0, res.TotalNodes)
}

func TestTraverseStoreErrors(t *testing.T) {
	trav := NewTraverser(&fakeGraphStore{idsErr: errors.New("boom")}, nil, nil)
	_, err := trav.Traverse(context.Background(), "n1", "", "", 3)
	assert.ErrorContains(t, err, "traversal failed")

	trav = NewTraverser(&fakeGraphStore{ids: []string{"n2"}, nodeErr: errors.New("boom")}, nil, nil)
	_, err = trav.Traverse(context.Background(), "n1", "", "", 3)
	assert.ErrorContains(t, err, "failed to fetch")
}

func TestFindPath(t *testing.T) {
	store := &fakeGraphStore{path: []string{"n1", "n2", "n3"}}
	trav := NewTraverser(store, nil, nil)

	path, err := trav.FindPath(context.Background(), "n1", "n3", "calls", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2", "n3"}, path)
	assert.Equal(t, DefaultMaxDepth, store.lastDepth)
	assert.Equal(t, "calls", store.lastRelation)
}

func TestFindPathNoPath(t *testing.T) {
	trav := NewTraverser(&fakeGraphStore{}, nil, nil)
	path, err := trav.FindPath(context.Background(), "n1", "n9", "", 2)
	require.NoError(t, err)
	assert.Nil(t, path)
}
