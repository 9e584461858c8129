// Package metadata extracts structural metadata (imports, calls, re-exports,
// type info) from parsed source trees. Extractors always run against the full
// file source and full tree: a sub-node handed to ExtractMetadata must carry
// byte offsets into the same buffer the tree was parsed from, otherwise
// extracted identifiers come back truncated.
package metadata

// Metadata is the free-form enrichment attached to each chunk. Serialized to
// JSONB in the code_chunks table.
type Metadata struct {
	Imports   []string   `json:"imports,omitempty"`
	Calls     []string   `json:"calls,omitempty"`
	ReExports []ReExport `json:"re_exports,omitempty"`

	// Complexity is a branch count over the chunk's subtree.
	Complexity int `json:"complexity,omitempty"`

	// Type information filled in by the language-server extractor.
	Signature  string            `json:"signature,omitempty"`
	ReturnType string            `json:"return_type,omitempty"`
	ParamTypes map[string]string `json:"param_types,omitempty"`

	// Fallback marks chunks produced by fixed-size splitting after a
	// parser failure.
	Fallback       bool   `json:"fallback,omitempty"`
	FallbackReason string `json:"reason,omitempty"`

	// LightExtraction marks config modules that only had imports extracted.
	LightExtraction bool `json:"light_extraction,omitempty"`
}

// ReExport records one re-exported symbol from a barrel file.
type ReExport struct {
	Symbol   string `json:"symbol"`             // exported name, "*" for wildcard
	Source   string `json:"source,omitempty"`   // module the symbol comes from
	Original string `json:"original,omitempty"` // pre-rename name for aliased exports
	IsType   bool   `json:"is_type,omitempty"`  // type-only export
}
