package lsp

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/cache"
)

// columnFallback is used when the chunk name cannot be located on its
// start line.
const columnFallback = 4

// TypeExtractor recovers type metadata for chunks by querying language
// servers and parsing hover text. Results with a recovered signature are
// cached; failures of any kind produce empty metadata and never abort
// indexing.
type TypeExtractor struct {
	managers map[string]*Manager
	cache    *cache.SharedCache
	logger   *zap.Logger
}

// NewTypeExtractor builds an extractor over one manager per server family.
// shared may be nil to disable caching.
func NewTypeExtractor(servers map[string]ServerConfig, shared *cache.SharedCache, logger *zap.Logger) *TypeExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	managers := make(map[string]*Manager, len(servers))
	for family, cfg := range servers {
		managers[family] = NewManager(cfg, logger)
	}
	return &TypeExtractor{managers: managers, cache: shared, logger: logger}
}

// ExtractTypes resolves {signature, return type, parameter types} for the
// named declaration at startLine (1-based) of source.
func (e *TypeExtractor) ExtractTypes(ctx context.Context, path, source, name string, startLine int, language string) TypeMetadata {
	if startLine <= 0 {
		return TypeMetadata{}
	}
	family := ServerFamily(language)
	mgr, ok := e.managers[family]
	if !ok {
		return TypeMetadata{}
	}

	key := cache.LSPTypeKey(language, cache.HashContent(source), startLine)
	if payload, hit := e.cache.Get(ctx, key); hit {
		var meta TypeMetadata
		if json.Unmarshal(payload, &meta) == nil {
			return meta
		}
	}

	client, err := mgr.Client(ctx)
	if err != nil {
		e.logger.Debug("type extraction unavailable",
			zap.String("language", language), zap.Error(err))
		return TypeMetadata{}
	}

	column := nameColumn(source, startLine, name)
	text, err := client.Hover(ctx, path, source, startLine-1, column, LanguageID(language))
	if err != nil {
		e.logger.Debug("hover failed", zap.String("path", path), zap.Error(err))
		return TypeMetadata{}
	}

	meta := ParseHoverText(text)
	if meta.Signature == "" {
		return meta
	}

	if payload, err := json.Marshal(meta); err == nil {
		e.cache.Set(ctx, key, payload, cache.LSPTypeTTL)
	}
	return meta
}

// Health reports each supervised server's state by family.
func (e *TypeExtractor) Health() map[string]HealthState {
	out := make(map[string]HealthState, len(e.managers))
	for family, mgr := range e.managers {
		out[family] = mgr.HealthCheck()
	}
	return out
}

// Shutdown stops every supervised server.
func (e *TypeExtractor) Shutdown(ctx context.Context) {
	for _, mgr := range e.managers {
		if err := mgr.Shutdown(ctx); err != nil {
			e.logger.Warn("language server shutdown", zap.Error(err))
		}
	}
}

// nameColumn finds the character column of name within the 1-based line.
func nameColumn(source string, line int, name string) int {
	if name == "" {
		return columnFallback
	}
	lines := strings.Split(source, "\n")
	if line < 1 || line > len(lines) {
		return columnFallback
	}
	if idx := strings.Index(lines[line-1], name); idx >= 0 {
		return idx
	}
	return columnFallback
}

// hoverPrefix matches the symbol-kind tag some servers prepend, e.g.
// "(function) def save(...)".
var hoverPrefix = regexp.MustCompile(`^\((function|method|class|property|variable|alias|parameter|constructor)\)\s*`)

// ParseHoverText turns hover text into structured type metadata. The first
// substantive line is the signature; the return type follows "->", "=>",
// or the ":" after the parameter list; parameters split on commas outside
// brackets, with optionality markers, rest prefixes, and default values
// stripped.
func ParseHoverText(text string) TypeMetadata {
	sig := signatureLine(text)
	if sig == "" {
		return TypeMetadata{}
	}

	meta := TypeMetadata{Signature: sig}
	params, rest := splitSignature(sig)
	meta.ReturnType = parseReturnType(rest)
	meta.ParamTypes = parseParamTypes(params)
	return meta
}

func signatureLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		return hoverPrefix.ReplaceAllString(line, "")
	}
	return ""
}

// splitSignature returns the parameter list (inside the first balanced
// parentheses) and whatever follows it.
func splitSignature(sig string) (string, string) {
	open := strings.IndexByte(sig, '(')
	if open < 0 {
		return "", ""
	}
	depth := 0
	for i := open; i < len(sig); i++ {
		switch sig[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 && sig[i] == ')' {
				return sig[open+1 : i], sig[i+1:]
			}
		}
	}
	return sig[open+1:], ""
}

func parseReturnType(rest string) string {
	rest = strings.TrimSpace(rest)
	switch {
	case strings.HasPrefix(rest, "->"):
		rt := strings.TrimSpace(rest[2:])
		return strings.TrimSuffix(rt, ":")
	case strings.HasPrefix(rest, "=>"):
		return strings.TrimSpace(rest[2:])
	case strings.HasPrefix(rest, ":"):
		return strings.TrimSpace(rest[1:])
	}
	return ""
}

func parseParamTypes(params string) map[string]string {
	var types map[string]string
	for _, entry := range splitTopLevel(params, ',') {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if eq := indexAssignment(entry); eq >= 0 {
			entry = strings.TrimSpace(entry[:eq])
		}
		colon := indexTopLevel(entry, ':')
		if colon < 0 {
			continue // untyped parameter, e.g. self
		}
		name := strings.TrimSpace(entry[:colon])
		name = strings.TrimPrefix(name, "...")
		name = strings.TrimSuffix(name, "?")
		typ := strings.TrimSpace(entry[colon+1:])
		if name == "" || typ == "" {
			continue
		}
		if types == nil {
			types = map[string]string{}
		}
		types[name] = typ
	}
	return types
}

// splitTopLevel splits on sep outside any (), [], {}, <> nesting. Depth is
// clamped at zero so the ">" of arrow returns does not unbalance the scan.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func indexTopLevel(s string, target byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if depth > 0 {
				depth--
			}
		case target:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// indexAssignment finds a top-level default-value "=", ignoring "=>".
func indexAssignment(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if depth > 0 {
				depth--
			}
		case '=':
			if depth == 0 && (i+1 >= len(s) || s[i+1] != '>') {
				return i
			}
		}
	}
	return -1
}
