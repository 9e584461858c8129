package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/cache"
	"github.com/mvp-joe/project-atlas/internal/chunker"
	"github.com/mvp-joe/project-atlas/internal/config"
	"github.com/mvp-joe/project-atlas/internal/embed"
	"github.com/mvp-joe/project-atlas/internal/git"
	"github.com/mvp-joe/project-atlas/internal/graph"
	"github.com/mvp-joe/project-atlas/internal/indexer"
	"github.com/mvp-joe/project-atlas/internal/lsp"
	"github.com/mvp-joe/project-atlas/internal/storage"
	"github.com/mvp-joe/project-atlas/internal/watcher"
)

var (
	indexRepoFlag   string
	indexCommitFlag string
	indexQuietFlag  bool
	indexWatchFlag  bool
	indexNoGraph    bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the current directory for semantic search",
	Long: `Index discovers source files, chunks them along AST boundaries,
generates text and code embeddings, persists everything to PostgreSQL,
and rebuilds the repository call graph.

Indexing runs in this process; for large uploads prefer 'atlas enqueue'
plus 'atlas serve', which spread batches over worker subprocesses.

Examples:
  # Index the current directory
  atlas index

  # Index under an explicit repository name
  atlas index --repository acme-api

  # Reindex automatically when files change
  atlas index --watch

  # Skip the graph rebuild (faster while iterating)
  atlas index --no-graph
`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVarP(&indexRepoFlag, "repository", "r", "", "repository name (default: derived from git remote or directory)")
	indexCmd.Flags().StringVar(&indexCommitFlag, "commit", "", "commit hash to record (default: git HEAD)")
	indexCmd.Flags().BoolVarP(&indexQuietFlag, "quiet", "q", false, "one summary line instead of progress output")
	indexCmd.Flags().BoolVarP(&indexWatchFlag, "watch", "w", false, "watch for file changes and reindex")
	indexCmd.Flags().BoolVar(&indexNoGraph, "no-graph", false, "skip the call graph rebuild")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger()
	defer logger.Sync()

	repository, err := resolveRepository(indexRepoFlag, rootDir)
	if err != nil {
		return err
	}
	commit := indexCommitFlag
	if commit == "" {
		commit = git.CommitHash(rootDir)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	shared := openShared(cfg, logger)
	if shared != nil {
		defer shared.Close()
	}

	orch, embedSvc := buildOrchestrator(cfg, store, shared, NewCLIProgressReporter(indexQuietFlag), logger)
	defer embedSvc.ForceMemoryCleanup()

	inputs, err := discoverInputs(cfg, rootDir)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no files matched the configured patterns")
	}

	opts := indexer.Options{
		Repository:         repository,
		CommitHash:         commit,
		ExtractMetadata:    cfg.LSP.Enabled,
		GenerateEmbeddings: true,
		BuildGraph:         !indexNoGraph,
	}

	summary, err := orch.IndexRepository(ctx, inputs, opts)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("indexing cancelled")
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	refreshAfterIndex(ctx, store, shared, repository)

	if indexQuietFlag {
		fmt.Printf("Indexed %d files (%d chunks, %d failed)\n",
			summary.IndexedFiles, summary.IndexedChunks, summary.FailedFiles)
	}

	if !indexWatchFlag {
		return nil
	}
	return watchAndReindex(ctx, cfg, rootDir, orch, opts, store, shared, logger)
}

// buildOrchestrator assembles the indexing pipeline from configuration:
// chunker, two cache tiers, optional LSP enrichment, embeddings, storage,
// and the graph builder.
func buildOrchestrator(cfg *config.Config, store *storage.Store, shared *cache.SharedCache, reporter indexer.ProgressReporter, logger *zap.Logger) (*indexer.Orchestrator, *embed.Service) {
	chunks := chunker.New(chunker.Options{
		MaxChunkSize: cfg.Chunking.MaxChunkSize,
		MinChunkSize: cfg.Chunking.MinChunkSize,
		ParseTimeout: time.Duration(cfg.Chunking.ParseTimeoutSeconds) * time.Second,
		MaxParsers:   cfg.Chunking.MaxParsers,
	})

	l1 := cache.NewChunkCache(cfg.Cache.ChunkMaxBytes)
	cascade := cache.NewCascade(l1, shared)

	var types indexer.TypeExtractor
	if cfg.LSP.Enabled {
		types = lsp.NewTypeExtractor(lsp.DefaultServers(), shared, logger)
	}

	embedSvc := newEmbedService(cfg, logger)
	graphs := graph.NewBuilder(store, logger)

	orch := indexer.NewOrchestrator(chunks, cascade, types, embedSvc, store, graphs, reporter, logger)
	return orch, embedSvc
}

// refreshAfterIndex updates the cached repository summary and drops cached
// answers that may now be stale.
func refreshAfterIndex(ctx context.Context, store *storage.Store, shared *cache.SharedCache, repository string) {
	if _, err := indexer.RefreshRepoMeta(ctx, store, shared, repository); err != nil {
		fmt.Fprintf(os.Stderr, "warning: repository summary refresh failed: %v\n", err)
	}
	if shared != nil {
		// Node ids change on every graph rebuild, so cached traversals
		// dangle alongside the stale search entries.
		shared.FlushPattern(ctx, "search:*")
		shared.FlushPattern(ctx, "graph:*")
	}
}

// watchAndReindex blocks, reindexing the changed set after each quiet
// period. Deleted files drop their chunks.
func watchAndReindex(ctx context.Context, cfg *config.Config, rootDir string, orch *indexer.Orchestrator, opts indexer.Options, store *storage.Store, shared *cache.SharedCache, logger *zap.Logger) error {
	extensions := watcher.ExtensionsFromPatterns(cfg.Paths.Code)
	w, err := watcher.New([]string{rootDir}, extensions, watcher.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to start watch mode: %w", err)
	}
	defer w.Stop()

	reindex := func(changed []string) {
		w.Pause()
		defer w.Resume()

		var inputs []indexer.FileInput
		for _, abs := range changed {
			rel, err := filepath.Rel(rootDir, abs)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if strings.HasPrefix(rel, "..") {
				continue
			}

			content, err := os.ReadFile(abs)
			if os.IsNotExist(err) {
				if _, derr := store.DeleteFileChunks(ctx, opts.Repository, rel); derr != nil {
					logger.Warn("failed to drop chunks for deleted file",
						zap.String("file", rel), zap.Error(derr))
				}
				continue
			}
			if err != nil {
				logger.Warn("failed to read changed file", zap.String("file", rel), zap.Error(err))
				continue
			}
			inputs = append(inputs, indexer.FileInput{Path: rel, Content: string(content)})
		}

		if len(inputs) == 0 {
			refreshAfterIndex(ctx, store, shared, opts.Repository)
			return
		}

		summary, err := orch.IndexRepository(ctx, inputs, opts)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("reindex failed", zap.Error(err))
			}
			return
		}
		refreshAfterIndex(ctx, store, shared, opts.Repository)
		if !indexQuietFlag {
			fmt.Printf("Reindexed %d files (%d chunks, %d failed)\n",
				summary.IndexedFiles, summary.IndexedChunks, summary.FailedFiles)
		}
	}

	if err := w.Start(ctx, reindex); err != nil {
		return err
	}
	if !indexQuietFlag {
		fmt.Println("Watching for changes (Ctrl+C to stop)...")
	}
	<-ctx.Done()
	return nil
}
