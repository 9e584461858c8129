package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-atlas/internal/chunker"
	"github.com/mvp-joe/project-atlas/internal/metadata"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

func testChunk(id, kind, name, namePath, filePath string) *storage.CodeChunk {
	return &storage.CodeChunk{
		ID:        id,
		ChunkType: kind,
		Name:      name,
		NamePath:  namePath,
		FilePath:  filePath,
		Language:  "python",
		StartLine: 1,
		EndLine:   10,
	}
}

func TestBuildNodes_KindsAndSkips(t *testing.T) {
	t.Parallel()

	chunks := []*storage.CodeChunk{
		testChunk("c1", chunker.KindFunction, "run", "app.main.run", "app/main.py"),
		testChunk("c2", chunker.KindMethod, "save", "app.models.User.save", "app/models.py"),
		testChunk("c3", chunker.KindClass, "User", "app.models.User", "app/models.py"),
		testChunk("c4", chunker.KindBarrel, "components", "components.index", "src/components/index.ts"),
		testChunk("c5", chunker.KindConfigModule, "vite.config", "vite_config", "vite.config.ts"),
		testChunk("c6", chunker.KindInterface, "Props", "models.Props", "src/models.ts"),
		testChunk("c7", chunker.KindFallbackFixed, "chunk_0", "app.big.chunk_0", "app/big.py"),
		testChunk("c8", chunker.KindFunction, chunker.AnonymousName("function", "src/x.ts", 3), "", "src/x.ts"),
	}

	b := NewBuilder(nil, nil)
	nodes, nodeByChunk := b.buildNodes("demo", chunks)

	require.Len(t, nodes, 5)
	byType := map[string]int{}
	for _, n := range nodes {
		byType[n.Type]++
	}
	assert.Equal(t, 1, byType[NodeFunction])
	assert.Equal(t, 1, byType[NodeMethod])
	assert.Equal(t, 1, byType[NodeClass])
	assert.Equal(t, 2, byType[NodeModule])

	assert.NotContains(t, nodeByChunk, "c6")
	assert.NotContains(t, nodeByChunk, "c7")
	assert.NotContains(t, nodeByChunk, "c8")

	assert.Equal(t, true, nodeByChunk["c4"].Properties["is_barrel"])
	assert.Equal(t, false, nodeByChunk["c5"].Properties["is_barrel"])
	assert.Equal(t, "app/main.py", nodeByChunk["c1"].Properties["file_path"])
	assert.Equal(t, "demo", nodeByChunk["c1"].Properties["repository"])
	assert.Equal(t, "run", nodeByChunk["c1"].Label)
}

func TestBuildEdges_CallsWithAccuracy(t *testing.T) {
	t.Parallel()

	helper := testChunk("c1", chunker.KindFunction, "helper", "app.util.helper", "app/util.py")
	caller := testChunk("c2", chunker.KindFunction, "main", "app.main.main", "app/main.py")
	caller.Metadata = metadata.Metadata{Calls: []string{"helper", "len", "requests.get"}}

	b := NewBuilder(nil, nil)
	chunks := []*storage.CodeChunk{helper, caller}
	_, nodeByChunk := b.buildNodes("demo", chunks)
	edges, nonBuiltin, resolved := b.buildEdges(chunks, nodeByChunk)

	// len is builtin, requests.get is external: two non-builtin calls, one resolved.
	assert.Equal(t, 2, nonBuiltin)
	assert.Equal(t, 1, resolved)

	require.Len(t, edges, 1)
	e := edges[0]
	assert.Equal(t, RelationCalls, e.Relation)
	assert.Equal(t, nodeByChunk["c2"].ID, e.SourceID)
	assert.Equal(t, nodeByChunk["c1"].ID, e.TargetID)
	assert.Equal(t, "helper", e.Properties["call_name"])
	assert.Equal(t, "app/main.py", e.Properties["source_file"])
	assert.Equal(t, "app/util.py", e.Properties["target_file"])
}

func TestBuildEdges_DeduplicatesRepeatedCalls(t *testing.T) {
	t.Parallel()

	helper := testChunk("c1", chunker.KindFunction, "helper", "app.util.helper", "app/util.py")
	caller := testChunk("c2", chunker.KindFunction, "main", "app.main.main", "app/main.py")
	caller.Metadata = metadata.Metadata{Calls: []string{"helper", "helper"}}

	b := NewBuilder(nil, nil)
	chunks := []*storage.CodeChunk{helper, caller}
	_, nodeByChunk := b.buildNodes("demo", chunks)
	edges, nonBuiltin, resolved := b.buildEdges(chunks, nodeByChunk)

	assert.Len(t, edges, 1)
	assert.Equal(t, 2, nonBuiltin)
	assert.Equal(t, 2, resolved)
}

func TestBuildEdges_NoSelfLoops(t *testing.T) {
	t.Parallel()

	recur := testChunk("c1", chunker.KindFunction, "walk", "app.tree.walk", "app/tree.py")
	recur.Metadata = metadata.Metadata{Calls: []string{"walk"}}

	b := NewBuilder(nil, nil)
	chunks := []*storage.CodeChunk{recur}
	_, nodeByChunk := b.buildNodes("demo", chunks)
	edges, _, resolved := b.buildEdges(chunks, nodeByChunk)

	assert.Empty(t, edges)
	assert.Equal(t, 1, resolved)
}

func TestBuildEdges_ReExports(t *testing.T) {
	t.Parallel()

	button := testChunk("c1", chunker.KindFunction, "Button", "components.button.Button", "src/components/Button.tsx")
	button.Language = "tsx"
	barrel := testChunk("c2", chunker.KindBarrel, "components", "components.index", "src/components/index.ts")
	barrel.Language = "typescript"
	barrel.Metadata = metadata.Metadata{ReExports: []metadata.ReExport{
		{Symbol: "PrimaryButton", Original: "Button", Source: "./Button"},
		{Symbol: "*", Source: "./utils"},
	}}

	b := NewBuilder(nil, nil)
	chunks := []*storage.CodeChunk{button, barrel}
	_, nodeByChunk := b.buildNodes("demo", chunks)
	edges, _, _ := b.buildEdges(chunks, nodeByChunk)

	require.Len(t, edges, 1)
	e := edges[0]
	assert.Equal(t, RelationReExports, e.Relation)
	assert.Equal(t, nodeByChunk["c2"].ID, e.SourceID)
	assert.Equal(t, nodeByChunk["c1"].ID, e.TargetID)
	assert.Equal(t, "PrimaryButton", e.Properties["symbol"])
	assert.Equal(t, "Button", e.Properties["original"])
}

func TestNodeTypeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		chunkType string
		want      string
		ok        bool
	}{
		{chunker.KindFunction, NodeFunction, true},
		{chunker.KindMethod, NodeMethod, true},
		{chunker.KindClass, NodeClass, true},
		{chunker.KindBarrel, NodeModule, true},
		{chunker.KindConfigModule, NodeModule, true},
		{chunker.KindArrowFunction, "", false},
		{chunker.KindTypeAlias, "", false},
	}

	for _, tt := range tests {
		got, ok := nodeTypeFor(tt.chunkType)
		assert.Equal(t, tt.ok, ok, tt.chunkType)
		assert.Equal(t, tt.want, got, tt.chunkType)
	}
}

func TestAccuracy(t *testing.T) {
	t.Parallel()

	assert.Zero(t, accuracy(0, 0))
	assert.InDelta(t, 0.5, accuracy(1, 2), 1e-9)
	assert.InDelta(t, 1.0, accuracy(7, 7), 1e-9)
}
