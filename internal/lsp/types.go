// Package lsp talks to external language servers over stdio to recover
// semantic type metadata (signatures, return types, parameter types) that
// structural AST extraction cannot see.
package lsp

import (
	"errors"
	"time"
)

// Request budgets. Initialization gets a longer window because servers
// index their runtime libraries during the handshake.
const (
	initializeTimeout = 10 * time.Second
	hoverTimeout      = 3 * time.Second
	symbolsTimeout    = 5 * time.Second
	definitionTimeout = 3 * time.Second
	shutdownGrace     = 5 * time.Second
)

// Error taxonomy. Callers branch on these with errors.Is.
var (
	ErrInitialize        = errors.New("language server initialization failed")
	ErrCommunication     = errors.New("language server communication failed")
	ErrTimeout           = errors.New("language server request timed out")
	ErrServerCrashed     = errors.New("language server crashed")
	ErrRestartsExhausted = errors.New("language server restart budget exhausted")
)

// HealthState is the manager's view of a supervised server.
type HealthState string

const (
	StateNotStarted HealthState = "not_started"
	StateStarting   HealthState = "starting"
	StateHealthy    HealthState = "healthy"
	StateCrashed    HealthState = "crashed"
	StateError      HealthState = "error"
)

// Position is a zero-based line/character document position.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open document span.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location points into a document.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// DocumentSymbol is one entry of a hierarchical symbol listing.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           int              `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// TypeMetadata is what hover parsing recovers for a chunk.
type TypeMetadata struct {
	Signature  string            `json:"signature,omitempty"`
	ReturnType string            `json:"return_type,omitempty"`
	ParamTypes map[string]string `json:"param_types,omitempty"`
}

// ServerConfig describes how to spawn one language server.
type ServerConfig struct {
	Command  []string // argv, e.g. ["pyright-langserver", "--stdio"]
	Language string   // family tag: "python" or "typescript"
}

// DefaultServers lists the stock server commands per language family.
func DefaultServers() map[string]ServerConfig {
	return map[string]ServerConfig{
		"python": {
			Command:  []string{"pyright-langserver", "--stdio"},
			Language: "python",
		},
		"typescript": {
			Command:  []string{"typescript-language-server", "--stdio"},
			Language: "typescript",
		},
	}
}

// ServerFamily maps a language tag to the server that handles it; the
// TypeScript server covers the whole JS/TS family.
func ServerFamily(language string) string {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
		return "typescript"
	case "python":
		return "python"
	default:
		return ""
	}
}

// LanguageID returns the LSP textDocument language identifier for a tag.
func LanguageID(language string) string {
	switch language {
	case "tsx":
		return "typescriptreact"
	case "jsx":
		return "javascriptreact"
	default:
		return language
	}
}
