package chunker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// ErrParseTimeout marks a parse that exceeded the wall-clock budget. The
// caller falls back to fixed-size chunking.
var ErrParseTimeout = errors.New("parse timed out")

// ErrUnsupportedLanguage marks a language with no registered grammar.
var ErrUnsupportedLanguage = errors.New("unsupported language")

var (
	languagesMu sync.RWMutex
	languages   = map[string]*sitter.Language{}
)

func init() {
	py := sitter.NewLanguage(python.Language())
	ts := sitter.NewLanguage(typescript.LanguageTypescript())
	tsx := sitter.NewLanguage(typescript.LanguageTSX())

	RegisterLanguage("python", py)
	RegisterLanguage("typescript", ts)
	RegisterLanguage("tsx", tsx)
	// JavaScript is a TypeScript subset; the TS grammar parses it.
	RegisterLanguage("javascript", ts)
	RegisterLanguage("jsx", tsx)
}

// RegisterLanguage adds or replaces a grammar for a language tag. Core
// registrations happen at init; callers may add more.
func RegisterLanguage(name string, lang *sitter.Language) {
	languagesMu.Lock()
	defer languagesMu.Unlock()
	languages[name] = lang
}

// LanguageFor returns the grammar registered for a language tag.
func LanguageFor(name string) (*sitter.Language, bool) {
	languagesMu.RLock()
	defer languagesMu.RUnlock()
	lang, ok := languages[name]
	return lang, ok
}

// parseWithTimeout parses source under a wall-clock budget. Tree-sitter has
// no cancellation hook here, so the parse runs in its own goroutine; on
// timeout the abandoned tree is reaped and closed when the parse finishes.
// The returned tree must be closed by the caller.
func parseWithTimeout(language *sitter.Language, source []byte, timeout time.Duration) (*sitter.Tree, error) {
	done := make(chan *sitter.Tree, 1)
	go func() {
		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(language)
		done <- parser.Parse(source, nil)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case tree := <-done:
		if tree == nil {
			return nil, fmt.Errorf("parser returned no tree")
		}
		return tree, nil
	case <-timer.C:
		go func() {
			if tree := <-done; tree != nil {
				tree.Close()
			}
		}()
		return nil, ErrParseTimeout
	}
}
