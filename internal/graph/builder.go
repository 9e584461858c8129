// Package graph turns persisted chunks into a call graph: nodes for the
// named units worth navigating to, edges for resolved calls and barrel
// re-exports. Traversal queries run as recursive CTEs with a shared-cache
// front.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/chunker"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

// Edge relation kinds.
const (
	RelationCalls     = "calls"
	RelationImports   = "imports"
	RelationReExports = "re_exports"
)

// Node kinds. Barrels and config modules collapse into module nodes.
const (
	NodeFunction = "function"
	NodeMethod   = "method"
	NodeClass    = "class"
	NodeModule   = "module"
)

// Stats summarizes one repository build.
type Stats struct {
	Repository          string         `json:"repository"`
	TotalNodes          int            `json:"total_nodes"`
	TotalEdges          int            `json:"total_edges"`
	NodesByType         map[string]int `json:"nodes_by_type"`
	EdgesByType         map[string]int `json:"edges_by_type"`
	ConstructionSeconds float64        `json:"construction_time_seconds"`

	// ResolutionAccuracy is resolved calls over non-builtin calls.
	ResolutionAccuracy float64 `json:"resolution_accuracy"`
}

// Builder constructs and persists a repository's graph.
type Builder struct {
	store  *storage.Store
	logger *zap.Logger
}

func NewBuilder(store *storage.Store, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{store: store, logger: logger}
}

// Build replaces the repository's graph from its stored chunks. An empty
// languages list auto-detects from what is indexed. Chunks gain their
// node_id linkage on success.
func (b *Builder) Build(ctx context.Context, repository string, languages []string) (*Stats, error) {
	start := time.Now()

	if len(languages) == 0 {
		detected, err := b.store.RepositoryLanguages(ctx, repository)
		if err != nil {
			return nil, fmt.Errorf("failed to detect repository languages: %w", err)
		}
		languages = detected
	}

	var chunks []*storage.CodeChunk
	for _, lang := range languages {
		cs, err := b.store.ChunksByRepository(ctx, repository, lang)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s chunks: %w", lang, err)
		}
		chunks = append(chunks, cs...)
	}

	nodes, nodeByChunk := b.buildNodes(repository, chunks)
	edges, nonBuiltin, resolved := b.buildEdges(chunks, nodeByChunk)

	if err := b.store.ReplaceRepositoryGraph(ctx, repository, nodes, edges); err != nil {
		return nil, fmt.Errorf("failed to persist graph: %w", err)
	}

	nodeIDByChunk := make(map[string]string, len(nodeByChunk))
	for chunkID, n := range nodeByChunk {
		nodeIDByChunk[chunkID] = n.ID
	}
	if err := b.store.UpdateChunkNodeIDs(ctx, nodeIDByChunk); err != nil {
		return nil, fmt.Errorf("failed to link chunks to nodes: %w", err)
	}

	stats := &Stats{
		Repository:          repository,
		TotalNodes:          len(nodes),
		TotalEdges:          len(edges),
		NodesByType:         map[string]int{},
		EdgesByType:         map[string]int{},
		ConstructionSeconds: time.Since(start).Seconds(),
		ResolutionAccuracy:  accuracy(resolved, nonBuiltin),
	}
	for _, n := range nodes {
		stats.NodesByType[n.Type]++
	}
	for _, e := range edges {
		stats.EdgesByType[e.Relation]++
	}

	b.logger.Info("graph built",
		zap.String("repository", repository),
		zap.Int("nodes", stats.TotalNodes),
		zap.Int("edges", stats.TotalEdges),
		zap.Float64("resolution_accuracy", stats.ResolutionAccuracy),
		zap.Duration("took", time.Since(start)))
	return stats, nil
}

// buildNodes creates one node per named function, method, class, barrel, or
// config module. Anonymous chunks stay out of the graph.
func (b *Builder) buildNodes(repository string, chunks []*storage.CodeChunk) ([]*storage.Node, map[string]*storage.Node) {
	var nodes []*storage.Node
	nodeByChunk := make(map[string]*storage.Node)

	for _, c := range chunks {
		nodeType, ok := nodeTypeFor(c.ChunkType)
		if !ok || chunker.IsAnonymousName(c.Name) {
			continue
		}

		props := map[string]any{
			"chunk_id":   c.ID,
			"file_path":  c.FilePath,
			"language":   c.Language,
			"repository": repository,
			"start_line": c.StartLine,
			"end_line":   c.EndLine,
		}
		if c.Metadata.Signature != "" {
			props["signature"] = c.Metadata.Signature
		}
		if c.Metadata.Complexity > 0 {
			props["complexity"] = c.Metadata.Complexity
		}
		if nodeType == NodeModule {
			props["is_barrel"] = c.ChunkType == chunker.KindBarrel
		}

		n := &storage.Node{
			ID:         uuid.NewString(),
			Type:       nodeType,
			Label:      c.Name,
			Properties: props,
		}
		nodes = append(nodes, n)
		nodeByChunk[c.ID] = n
	}
	return nodes, nodeByChunk
}

// buildEdges resolves calls and barrel re-exports between chunks that got
// nodes. A staging graph deduplicates repeated (source, target) pairs.
func (b *Builder) buildEdges(chunks []*storage.CodeChunk, nodeByChunk map[string]*storage.Node) (edges []*storage.Edge, nonBuiltin, resolved int) {
	res := newResolver(chunks)
	stage := graph.New(func(n *storage.Node) string { return n.ID }, graph.Directed())
	for _, n := range nodeByChunk {
		_ = stage.AddVertex(n)
	}

	addEdge := func(src, tgt *storage.Node, relation string, props map[string]any) {
		if src.ID == tgt.ID {
			return
		}
		if err := stage.AddEdge(src.ID, tgt.ID); err != nil {
			if !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				b.logger.Debug("edge rejected", zap.String("relation", relation), zap.Error(err))
			}
			return
		}
		edges = append(edges, &storage.Edge{
			ID:         uuid.NewString(),
			SourceID:   src.ID,
			TargetID:   tgt.ID,
			Relation:   relation,
			Properties: props,
		})
	}

	for _, c := range chunks {
		src, ok := nodeByChunk[c.ID]
		if !ok {
			continue
		}

		for _, call := range c.Metadata.Calls {
			if IsBuiltin(c.Language, call) {
				continue
			}
			nonBuiltin++
			target := res.Resolve(c, call)
			if target == nil {
				continue
			}
			resolved++
			tgt, ok := nodeByChunk[target.ID]
			if !ok {
				continue
			}
			addEdge(src, tgt, RelationCalls, map[string]any{
				"call_name":   call,
				"source_file": c.FilePath,
				"target_file": target.FilePath,
			})
		}

		if c.ChunkType != chunker.KindBarrel {
			continue
		}
		for _, re := range c.Metadata.ReExports {
			target := res.ResolveReExport(c, re)
			if target == nil {
				continue
			}
			tgt, ok := nodeByChunk[target.ID]
			if !ok {
				continue
			}
			props := map[string]any{
				"symbol":      re.Symbol,
				"source_file": c.FilePath,
				"target_file": target.FilePath,
			}
			if re.Original != "" {
				props["original"] = re.Original
			}
			addEdge(src, tgt, RelationReExports, props)
		}
	}
	return edges, nonBuiltin, resolved
}

func nodeTypeFor(chunkType string) (string, bool) {
	switch chunkType {
	case chunker.KindFunction:
		return NodeFunction, true
	case chunker.KindMethod:
		return NodeMethod, true
	case chunker.KindClass:
		return NodeClass, true
	case chunker.KindBarrel, chunker.KindConfigModule:
		return NodeModule, true
	default:
		return "", false
	}
}

func accuracy(resolved, nonBuiltin int) float64 {
	if nonBuiltin == 0 {
		return 0
	}
	return float64(resolved) / float64(nonBuiltin)
}
