package storage

// Domain models that mirror SQL tables in schema.go.
// These are lightweight data transfer structs, NOT ORM models.

import (
	"time"

	"github.com/mvp-joe/project-atlas/internal/metadata"
)

// CodeChunk represents an indexed semantic unit of source code.
// Maps to the code_chunks table. Embedding slices are either nil
// (not generated) or exactly EmbeddingDim long.
type CodeChunk struct {
	ID           string            // id: UUID
	FilePath     string            // file_path: relative path from repo root
	Language     string            // language: python, typescript, javascript, ...
	ChunkType    string            // chunk_type: function, class, method, interface, barrel, config_module, fallback_fixed
	Name         string            // name: simple name
	NamePath     string            // name_path: dot-joined qualified name
	SourceCode   string            // source_code: literal chunk source
	StartLine    int               // start_line: 1-based, inclusive
	EndLine      int               // end_line: 1-based, inclusive
	Metadata     metadata.Metadata // metadata: imports/calls/re-exports/types, stored as JSONB
	Repository   string            // repository: owning repository name
	CommitHash   string            // commit_hash: optional commit identifier
	NodeID       string            // node_id: graph node id, set after graph construction
	IndexedAt    time.Time         // indexed_at
	LastModified *time.Time        // last_modified (nullable)

	EmbeddingText []float32 // embedding_text: 768-dim text-domain vector
	EmbeddingCode []float32 // embedding_code: 768-dim code-domain vector
}

// Node represents a graph node. Maps to the nodes table.
type Node struct {
	ID         string         // node_id: UUID
	Type       string         // node_type: function, method, class, module
	Label      string         // label: usually the simple name
	Properties map[string]any // properties: chunk_id, file_path, language, repository, signature, is_barrel, ...
	CreatedAt  time.Time      // created_at
}

// Edge represents a graph edge. Maps to the edges table.
type Edge struct {
	ID         string         // edge_id: UUID
	SourceID   string         // source_node_id: FK to nodes
	TargetID   string         // target_node_id: FK to nodes
	Relation   string         // relation_type: calls, imports, re_exports
	Properties map[string]any // properties: call_name, source_file, target_file, symbol, original
	CreatedAt  time.Time      // created_at
}

// Memory represents a free-form note or conversation record.
// Maps to the memories table. DeletedAt doubles as the soft-delete marker:
// permanent deletion is only allowed once it is set.
type Memory struct {
	ID              string     // id: UUID
	Title           string     // title: non-empty, max 200 chars
	Content         string     // content: non-empty, unbounded
	MemoryType      string     // memory_type: note, conversation, decision, ...
	Tags            []string   // tags: text array
	ProjectID       string     // project_id (optional)
	Author          string     // author (optional)
	RelatedChunkIDs []string   // related_chunk_ids: associated code chunks
	Embedding       []float32  // embedding: 768-dim vector
	EmbeddingModel  string     // embedding_model: model that produced the vector
	CreatedAt       time.Time  // created_at
	UpdatedAt       time.Time  // updated_at
	DeletedAt       *time.Time // deleted_at (nullable)
}

// Event represents a legacy memory-as-event record. Maps to the events table.
type Event struct {
	ID        string         // id: UUID
	Content   map[string]any // content: JSONB payload
	Metadata  map[string]any // metadata: JSONB
	Embedding []float32      // embedding: 768-dim vector
	Timestamp time.Time      // timestamp
}

// RepositorySummary aggregates what is stored for one repository.
// It backs the repo:meta cache entry and the status surfaces.
type RepositorySummary struct {
	Repository string    `json:"repository"`
	FileCount  int       `json:"file_count"`
	ChunkCount int       `json:"chunk_count"`
	NodeCount  int       `json:"node_count"`
	EdgeCount  int       `json:"edge_count"`
	Languages  []string  `json:"languages"`
	IndexedAt  time.Time `json:"indexed_at"`
}
