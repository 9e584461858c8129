// Package chunker splits source files into semantically meaningful chunks
// using tree-sitter, with a fixed-size fallback when parsing fails. Chunks
// carry qualified names and extracted metadata but no storage identity;
// the indexer assigns ids when persisting.
package chunker

import (
	"time"

	"github.com/mvp-joe/project-atlas/internal/metadata"
)

// Chunk kinds.
const (
	KindFunction      = "function"
	KindMethod        = "method"
	KindClass         = "class"
	KindArrowFunction = "arrow_function"
	KindGenerator     = "generator"
	KindInterface     = "interface"
	KindTypeAlias     = "type_alias"
	KindEnum          = "enum"
	KindNamespace     = "namespace"
	KindBarrel        = "barrel"
	KindConfigModule  = "config_module"
	KindFallbackFixed = "fallback_fixed"
)

// Chunk is one extracted code unit.
type Chunk struct {
	Name       string            // simple name
	NamePath   string            // dot-joined qualified name
	Kind       string            // one of the Kind constants
	SourceCode string            // literal source text
	StartLine  int               // 1-based, inclusive
	EndLine    int               // 1-based, inclusive
	Language   string            // language tag
	FilePath   string            // relative path from repository root
	Metadata   metadata.Metadata // structural metadata
}

// Options tunes chunking behavior. Zero values fall back to defaults.
type Options struct {
	MaxChunkSize int           // split units larger than this many bytes (default 2000)
	MinChunkSize int           // merge trailing chunks smaller than this (default 100)
	ParseTimeout time.Duration // hard wall-clock parse budget (default 30s)
	MaxParsers   int           // concurrent parse cap (default 4)
}

func (o Options) withDefaults() Options {
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = 2000
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = 100
	}
	if o.ParseTimeout <= 0 {
		o.ParseTimeout = 30 * time.Second
	}
	if o.MaxParsers <= 0 {
		o.MaxParsers = 4
	}
	return o
}
