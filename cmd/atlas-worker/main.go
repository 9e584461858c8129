// atlas-worker indexes one batch of staged files and exits. The consumer
// spawns one process per batch so parser and model memory die with it; the
// last stdout line is a JSON summary the consumer parses, everything else
// goes to stderr.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/cache"
	"github.com/mvp-joe/project-atlas/internal/chunker"
	"github.com/mvp-joe/project-atlas/internal/config"
	"github.com/mvp-joe/project-atlas/internal/embed"
	"github.com/mvp-joe/project-atlas/internal/indexer"
	"github.com/mvp-joe/project-atlas/internal/logging"
	"github.com/mvp-joe/project-atlas/internal/lsp"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

type summary struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

func main() {
	var (
		repository = flag.String("repository", "", "repository the batch belongs to")
		dbURL      = flag.String("db-url", "", "PostgreSQL connection URL")
		files      = flag.String("files", "", "comma-separated staged file paths")
	)
	flag.Parse()

	if *repository == "" || *dbURL == "" || *files == "" {
		fmt.Fprintln(os.Stderr, "usage: atlas-worker --repository <name> --db-url <url> --files <a,b,c>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.Must(false)
	defer logger.Sync()

	if err := run(ctx, logger, *repository, *dbURL, strings.Split(*files, ",")); err != nil {
		logger.Error("batch failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "atlas-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, repository, dbURL string, staged []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.NewLoader(cwd).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := storage.New(ctx, dbURL, storage.Options{
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	// Shared cache is optional here: without it every chunk parse and
	// type lookup is simply recomputed.
	shared, err := cache.NewSharedCache(cfg.Cache.URL)
	if err != nil {
		logger.Warn("shared cache unavailable", zap.Error(err))
		shared = nil
	} else {
		defer shared.Close()
	}

	chunks := chunker.New(chunker.Options{
		MaxChunkSize: cfg.Chunking.MaxChunkSize,
		MinChunkSize: cfg.Chunking.MinChunkSize,
		ParseTimeout: time.Duration(cfg.Chunking.ParseTimeoutSeconds) * time.Second,
		MaxParsers:   cfg.Chunking.MaxParsers,
	})
	cascade := cache.NewCascade(cache.NewChunkCache(cfg.Cache.ChunkMaxBytes), shared)

	var types indexer.TypeExtractor
	if cfg.LSP.Enabled {
		types = lsp.NewTypeExtractor(lsp.DefaultServers(), shared, logger)
	}

	embedSvc := embed.NewService(embed.Config{
		TextModel:      cfg.Embedding.TextModel,
		CodeModel:      cfg.Embedding.CodeModel,
		EndpointURL:    cfg.Embedding.Endpoint,
		Device:         cfg.Embedding.Device,
		Mock:           cfg.Embedding.Mock,
		SingleTimeout:  time.Duration(cfg.Embedding.SingleTimeoutSeconds) * time.Second,
		BatchTimeout:   time.Duration(cfg.Embedding.BatchTimeoutSeconds) * time.Second,
		MemoryCapBytes: uint64(cfg.Embedding.MemoryCapMB) << 20,
	}, logger)
	defer embedSvc.ForceMemoryCleanup()

	// Graph building belongs to the consumer, which runs it once per
	// repository after the stream drains.
	orch := indexer.NewOrchestrator(chunks, cascade, types, embedSvc, store, nil,
		indexer.NoOpProgressReporter{}, logger)

	inputs, unreadable := loadStaged(staged, logger)

	opts := indexer.Options{
		Repository:         repository,
		ExtractMetadata:    cfg.LSP.Enabled,
		GenerateEmbeddings: true,
		BuildGraph:         false,
	}
	result, err := orch.IndexRepository(ctx, inputs, opts)
	if err != nil {
		return err
	}

	out := summary{
		SuccessCount: result.IndexedFiles + result.SkippedFiles,
		ErrorCount:   result.FailedFiles + unreadable,
	}
	line, err := json.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Println(string(line))
	return nil
}

// loadStaged reads staged files into indexing inputs. Unreadable entries
// are counted, not fatal; the consumer reconciles counts against the
// progress hash.
func loadStaged(staged []string, logger *zap.Logger) ([]indexer.FileInput, int) {
	inputs := make([]indexer.FileInput, 0, len(staged))
	unreadable := 0
	for _, p := range staged {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		content, err := os.ReadFile(p)
		if err != nil {
			logger.Warn("staged file unreadable", zap.String("path", p), zap.Error(err))
			unreadable++
			continue
		}
		inputs = append(inputs, indexer.FileInput{
			Path:    relFromStaged(p),
			Content: string(content),
		})
	}
	return inputs, unreadable
}

// relFromStaged recovers the repository-relative path from a staged
// absolute path. The producer stages under <dir>/<upload-uuid>/<rel>, so
// everything after the rightmost UUID component is the original path.
func relFromStaged(staged string) string {
	parts := strings.Split(filepath.ToSlash(staged), "/")
	for i := len(parts) - 2; i >= 0; i-- {
		if _, err := uuid.Parse(parts[i]); err == nil {
			return strings.Join(parts[i+1:], "/")
		}
	}
	return parts[len(parts)-1]
}
