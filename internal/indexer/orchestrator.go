// Package indexer drives the per-file pipeline: resolve language, chunk,
// enrich with type metadata, embed in both domains, persist, and finally
// build the repository graph. Upload requests are validated here and
// tracked through progress sessions.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/cache"
	"github.com/mvp-joe/project-atlas/internal/chunker"
	"github.com/mvp-joe/project-atlas/internal/embed"
	"github.com/mvp-joe/project-atlas/internal/graph"
	"github.com/mvp-joe/project-atlas/internal/lsp"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

// FileInput is one file of an indexing request.
type FileInput struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// Options tune one indexing run.
type Options struct {
	Repository         string
	CommitHash         string
	ExtractMetadata    bool
	GenerateEmbeddings bool
	BuildGraph         bool
}

// FileError records one failed file.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// IndexingSummary reports what one run accomplished.
type IndexingSummary struct {
	IndexedFiles  int         `json:"indexed_files"`
	IndexedChunks int         `json:"indexed_chunks"`
	IndexedNodes  int         `json:"indexed_nodes"`
	IndexedEdges  int         `json:"indexed_edges"`
	FailedFiles   int         `json:"failed_files"`
	SkippedFiles  int         `json:"skipped_files"`
	Errors        []FileError `json:"errors,omitempty"`
}

// Embedder generates embeddings in a given domain.
type Embedder interface {
	GenerateEmbeddingsBatch(ctx context.Context, texts []string, domain embed.Domain) ([]embed.Embeddings, error)
}

// TypeExtractor enriches chunks with language-server type metadata.
type TypeExtractor interface {
	ExtractTypes(ctx context.Context, path, source, name string, startLine int, language string) lsp.TypeMetadata
}

// ChunkWriter persists a file's chunks, replacing earlier rows.
type ChunkWriter interface {
	ReplaceFileChunks(ctx context.Context, repository string, chunks []*storage.CodeChunk) error
}

// GraphBuilder rebuilds a repository's graph after indexing.
type GraphBuilder interface {
	Build(ctx context.Context, repository string, languages []string) (*graph.Stats, error)
}

// Orchestrator runs the pipeline. Optional collaborators may be nil: no
// cascade means no chunk caching, no embedder means no vectors, no type
// extractor means no LSP enrichment, no graph builder means no graph.
type Orchestrator struct {
	chunks   *chunker.Chunker
	cascade  *cache.Cascade
	types    TypeExtractor
	embedder Embedder
	writer   ChunkWriter
	graphs   GraphBuilder
	reporter ProgressReporter
	logger   *zap.Logger
}

func NewOrchestrator(chunks *chunker.Chunker, cascade *cache.Cascade, types TypeExtractor, embedder Embedder, writer ChunkWriter, graphs GraphBuilder, reporter ProgressReporter, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = NoOpProgressReporter{}
	}
	return &Orchestrator{
		chunks:   chunks,
		cascade:  cascade,
		types:    types,
		embedder: embedder,
		writer:   writer,
		graphs:   graphs,
		reporter: reporter,
		logger:   logger,
	}
}

// IndexRepository runs the per-file pipeline over files in submission
// order, then builds the graph once when requested. File failures are
// collected, never fatal.
func (o *Orchestrator) IndexRepository(ctx context.Context, files []FileInput, opts Options) (*IndexingSummary, error) {
	if err := ValidateRepositoryName(opts.Repository); err != nil {
		return nil, err
	}

	summary := &IndexingSummary{}
	o.reporter.OnProcessingStart(len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		n, err := o.indexFile(ctx, file, opts)
		switch {
		case errors.Is(err, chunker.ErrTestFileSkipped):
			summary.SkippedFiles++
		case err != nil:
			summary.FailedFiles++
			summary.Errors = append(summary.Errors, FileError{File: file.Path, Error: err.Error()})
			o.logger.Warn("file failed", zap.String("file", file.Path), zap.Error(err))
		default:
			summary.IndexedFiles++
			summary.IndexedChunks += n
		}
		o.reporter.OnFileProcessed(file.Path)
	}

	if opts.BuildGraph && o.graphs != nil {
		o.reporter.OnGraphBuildStart()
		stats, err := o.graphs.Build(ctx, opts.Repository, nil)
		if err != nil {
			summary.Errors = append(summary.Errors, FileError{File: "", Error: fmt.Sprintf("graph construction failed: %v", err)})
			o.logger.Error("graph construction failed", zap.String("repository", opts.Repository), zap.Error(err))
		} else {
			summary.IndexedNodes = stats.TotalNodes
			summary.IndexedEdges = stats.TotalEdges
			o.reporter.OnGraphBuildComplete(stats.TotalNodes, stats.TotalEdges, time.Duration(stats.ConstructionSeconds*float64(time.Second)))
		}
	}

	o.reporter.OnComplete(summary)
	return summary, nil
}

// indexFile returns how many chunks the file produced.
func (o *Orchestrator) indexFile(ctx context.Context, file FileInput, opts Options) (int, error) {
	if err := ValidateFile(file.Path, file.Content); err != nil {
		return 0, err
	}

	lang, err := DetectLanguage(file.Path, file.Language)
	if err != nil {
		return 0, err
	}

	chunks, cached := o.cachedChunks(ctx, file.Path, file.Content)
	if !cached {
		chunks, err = o.chunks.ChunkCode(ctx, file.Content, lang, file.Path)
		if err != nil {
			return 0, err
		}
		o.putChunks(ctx, file.Path, file.Content, chunks)
	}
	o.reporter.OnFileStage(file.Path, StageParsed)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunks produced for %s", file.Path)
	}
	o.reporter.OnFileStage(file.Path, StageChunked)

	if opts.ExtractMetadata && o.types != nil {
		o.enrichTypes(ctx, file, lang, chunks)
	}

	records := make([]*storage.CodeChunk, len(chunks))
	for i, c := range chunks {
		records[i] = &storage.CodeChunk{
			ID:         uuid.NewString(),
			FilePath:   c.FilePath,
			Language:   c.Language,
			ChunkType:  c.Kind,
			Name:       c.Name,
			NamePath:   c.NamePath,
			SourceCode: c.SourceCode,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			Metadata:   c.Metadata,
			Repository: opts.Repository,
			CommitHash: opts.CommitHash,
		}
	}

	if opts.GenerateEmbeddings && o.embedder != nil {
		if err := o.embedChunks(ctx, records); err != nil {
			return 0, err
		}
		o.reporter.OnFileStage(file.Path, StageEmbedded)
	}

	if err := o.writer.ReplaceFileChunks(ctx, opts.Repository, records); err != nil {
		return 0, fmt.Errorf("failed to persist chunks: %w", err)
	}
	o.reporter.OnFileStage(file.Path, StageStored)
	return len(records), nil
}

func (o *Orchestrator) cachedChunks(ctx context.Context, path, source string) ([]chunker.Chunk, bool) {
	if o.cascade == nil {
		return nil, false
	}
	return o.cascade.GetChunks(ctx, path, source)
}

func (o *Orchestrator) putChunks(ctx context.Context, path, source string, chunks []chunker.Chunk) {
	if o.cascade != nil {
		o.cascade.PutChunks(ctx, path, source, chunks)
	}
}

// enrichTypes asks the language server about each hoverable chunk.
// Extraction failures leave metadata empty; they never fail the file.
func (o *Orchestrator) enrichTypes(ctx context.Context, file FileInput, lang string, chunks []chunker.Chunk) {
	for i := range chunks {
		c := &chunks[i]
		switch c.Kind {
		case chunker.KindFunction, chunker.KindMethod, chunker.KindClass,
			chunker.KindArrowFunction, chunker.KindGenerator:
		default:
			continue
		}

		tm := o.types.ExtractTypes(ctx, file.Path, file.Content, c.Name, c.StartLine, lang)
		if tm.Signature != "" {
			c.Metadata.Signature = tm.Signature
		}
		if tm.ReturnType != "" {
			c.Metadata.ReturnType = tm.ReturnType
		}
		if len(tm.ParamTypes) > 0 {
			c.Metadata.ParamTypes = tm.ParamTypes
		}
	}
}

// embedChunks fills both vector domains: the text domain prefers a
// docstring when the chunk has one, the code domain always sees source.
func (o *Orchestrator) embedChunks(ctx context.Context, records []*storage.CodeChunk) error {
	textInputs := make([]string, len(records))
	codeInputs := make([]string, len(records))
	for i, r := range records {
		textInputs[i] = embeddingText(r.SourceCode, r.Language)
		codeInputs[i] = r.SourceCode
	}

	textEmbs, err := o.embedder.GenerateEmbeddingsBatch(ctx, textInputs, embed.DomainText)
	if err != nil {
		return fmt.Errorf("text embedding failed: %w", err)
	}
	codeEmbs, err := o.embedder.GenerateEmbeddingsBatch(ctx, codeInputs, embed.DomainCode)
	if err != nil {
		return fmt.Errorf("code embedding failed: %w", err)
	}
	if len(textEmbs) != len(records) || len(codeEmbs) != len(records) {
		return fmt.Errorf("embedding batch size mismatch: %d texts, %d codes for %d chunks", len(textEmbs), len(codeEmbs), len(records))
	}

	for i, r := range records {
		r.EmbeddingText = textEmbs[i].Text
		r.EmbeddingCode = codeEmbs[i].Code
	}
	return nil
}
