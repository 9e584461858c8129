package chunker

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/project-atlas/internal/metadata"
)

// Chunker turns source files into chunks. Safe for concurrent use; parses
// run through a bounded slot pool so CPU pressure stays predictable.
type Chunker struct {
	opts       Options
	parseSlots chan struct{}
}

// New creates a Chunker with the given options.
func New(opts Options) *Chunker {
	opts = opts.withDefaults()
	return &Chunker{
		opts:       opts,
		parseSlots: make(chan struct{}, opts.MaxParsers),
	}
}

// ChunkCode splits one file into chunks.
//
// Classification may short-circuit: test files return ErrTestFileSkipped,
// config files produce a single config-module chunk with imports only, and
// dense index files produce a single barrel chunk. Parser errors never fail
// the file; they fall back to fixed-size chunking. Chunks come back in
// source order.
func (c *Chunker) ChunkCode(ctx context.Context, source, language, filePath string) ([]Chunk, error) {
	lang, ok := LanguageFor(language)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	class := ClassifyFile(filePath, language)
	if class == FileTest {
		return nil, fmt.Errorf("%w: %s", ErrTestFileSkipped, filePath)
	}

	select {
	case c.parseSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	tree, parseErr := parseWithTimeout(lang, []byte(source), c.opts.ParseTimeout)
	<-c.parseSlots

	if parseErr != nil {
		return FallbackChunks(source, filePath, language, 1,
			c.opts.MaxChunkSize, c.opts.MinChunkSize, FallbackReasonParse), nil
	}
	defer tree.Close()

	src := []byte(source)
	extractor := metadata.ForLanguage(language)

	switch class {
	case FileConfig:
		return c.configChunk(tree, src, source, language, filePath, extractor), nil
	case FileBarrelCandidate:
		if chunks, isBarrelFile := c.barrelChunk(tree, src, source, language, filePath); isBarrelFile {
			return chunks, nil
		}
	}

	return c.semanticChunks(tree, src, language, filePath, extractor), nil
}

// configChunk emits the whole file as one config module with light
// extraction: imports only, no calls.
func (c *Chunker) configChunk(tree *sitter.Tree, src []byte, source, language, filePath string, extractor metadata.Extractor) []Chunk {
	meta := metadata.Metadata{LightExtraction: true}
	if extractor != nil {
		meta.Imports = extractor.ExtractImports(tree, src)
	}

	base := path.Base(filePath)
	name := strings.TrimSuffix(base, path.Ext(base))

	return []Chunk{{
		Name:       name,
		NamePath:   ModulePath(filePath, ""),
		Kind:       KindConfigModule,
		SourceCode: source,
		StartLine:  1,
		EndLine:    int(tree.RootNode().EndPosition().Row) + 1,
		Language:   language,
		FilePath:   filePath,
		Metadata:   meta,
	}}
}

// barrelChunk applies the re-export density rule to a candidate index file.
// Returns false when the file is not a barrel and should chunk normally.
func (c *Chunker) barrelChunk(tree *sitter.Tree, src []byte, source, language, filePath string) ([]Chunk, bool) {
	if !isBarrel(tree, source) {
		return nil, false
	}

	ts := metadata.TypeScriptExtractor{}
	meta := metadata.Metadata{
		Imports:   ts.ExtractImports(tree, src),
		ReExports: ts.ExtractReExports(tree, src),
	}

	return []Chunk{{
		Name:       BarrelName(filePath),
		NamePath:   ModulePath(filePath, ""),
		Kind:       KindBarrel,
		SourceCode: source,
		StartLine:  1,
		EndLine:    int(tree.RootNode().EndPosition().Row) + 1,
		Language:   language,
		FilePath:   filePath,
		Metadata:   meta,
	}}, true
}

// semanticChunks extracts top-level units and applies split-then-merge.
func (c *Chunker) semanticChunks(tree *sitter.Tree, src []byte, language, filePath string, extractor metadata.Extractor) []Chunk {
	units := extractUnits(tree.RootNode(), src, language)

	var chunks []Chunk
	for _, unit := range units {
		chunks = append(chunks, c.unitChunks(unit, tree, src, language, filePath, extractor)...)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].StartLine < chunks[j].StartLine
	})
	return chunks
}

// unitChunks emits chunks for one unit. A unit that fits produces a single
// chunk; classes additionally emit one chunk per method. Oversize classes
// split into a header plus methods, oversize functions fall back to
// fixed-size pieces.
func (c *Chunker) unitChunks(unit codeUnit, tree *sitter.Tree, src []byte, language, filePath string, extractor metadata.Extractor) []Chunk {
	unitSource := nodeContent(unit.node, src)
	startLine := int(unit.node.StartPosition().Row) + 1
	endLine := int(unit.node.EndPosition().Row) + 1

	name := unit.name
	if name == "" {
		name = AnonymousName(unit.kind, filePath, startLine)
	}

	if len(unitSource) <= c.opts.MaxChunkSize {
		meta := metadata.Metadata{}
		if extractor != nil {
			meta = extractor.ExtractMetadata(src, unit.node, tree)
		}
		chunks := []Chunk{{
			Name:       name,
			NamePath:   QualifiedName(name, filePath, "", unit.parent, language),
			Kind:       unit.kind,
			SourceCode: unitSource,
			StartLine:  startLine,
			EndLine:    endLine,
			Language:   language,
			FilePath:   filePath,
			Metadata:   meta,
		}}
		if unit.kind == KindClass {
			for _, method := range classMethods(unit.decl, src, language, name) {
				chunks = append(chunks, c.unitChunks(method, tree, src, language, filePath, extractor)...)
			}
		}
		return chunks
	}

	if unit.kind == KindClass {
		return c.splitClass(unit, name, tree, src, language, filePath, extractor)
	}

	// Oversize function or method: fixed-size pieces under the unit's
	// qualified path.
	parentCtx := name
	if unit.parent != "" {
		parentCtx = unit.parent + "." + name
	}
	pieces := FallbackChunks(unitSource, filePath, language, startLine,
		c.opts.MaxChunkSize, c.opts.MinChunkSize, FallbackReasonOversize)
	for i := range pieces {
		pieces[i].NamePath = QualifiedName(pieces[i].Name, filePath, "", parentCtx, language)
		if extractor != nil {
			pieces[i].Metadata.Imports = extractor.ExtractImports(tree, src)
		}
	}
	return pieces
}

// splitClass chunks an oversize class as a header chunk (signature, fields,
// docstring) plus one chunk per method.
func (c *Chunker) splitClass(unit codeUnit, className string, tree *sitter.Tree, src []byte, language, filePath string, extractor metadata.Extractor) []Chunk {
	methods := classMethods(unit.decl, src, language, className)

	classStart := int(unit.node.StartPosition().Row) + 1
	classEnd := int(unit.node.EndPosition().Row) + 1

	headerEnd := classEnd
	if len(methods) > 0 {
		headerEnd = int(methods[0].node.StartPosition().Row)
	}

	source := string(src)
	var chunks []Chunk
	if headerEnd >= classStart {
		meta := metadata.Metadata{}
		if extractor != nil {
			meta.Imports = extractor.ExtractImports(tree, src)
		}
		chunks = append(chunks, Chunk{
			Name:       className,
			NamePath:   QualifiedName(className, filePath, "", "", language),
			Kind:       KindClass,
			SourceCode: linesRange(source, classStart, headerEnd),
			StartLine:  classStart,
			EndLine:    headerEnd,
			Language:   language,
			FilePath:   filePath,
			Metadata:   meta,
		})
	}

	for _, method := range methods {
		chunks = append(chunks, c.unitChunks(method, tree, src, language, filePath, extractor)...)
	}
	return chunks
}

// linesRange slices source by 1-based inclusive line numbers.
func linesRange(source string, startLine, endLine int) string {
	lines := strings.Split(source, "\n")
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > endLine {
		return ""
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}
