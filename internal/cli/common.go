package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/cache"
	"github.com/mvp-joe/project-atlas/internal/config"
	"github.com/mvp-joe/project-atlas/internal/embed"
	"github.com/mvp-joe/project-atlas/internal/git"
	"github.com/mvp-joe/project-atlas/internal/indexer"
	"github.com/mvp-joe/project-atlas/internal/pipeline"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

// openStore connects to PostgreSQL with the configured pool size.
func openStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	store, err := storage.New(ctx, cfg.Database.URL, storage.Options{
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store, nil
}

// openShared connects the Redis cache tier. Cache trouble degrades to a
// nil cache (every lookup misses) rather than failing the command.
func openShared(cfg *config.Config, logger *zap.Logger) *cache.SharedCache {
	shared, err := cache.NewSharedCache(cfg.Cache.URL)
	if err != nil {
		logger.Warn("shared cache unavailable, running without it", zap.Error(err))
		return nil
	}
	return shared
}

// openStream connects the Redis client pipeline commands use.
func openStream(cfg *config.Config) (*redis.Client, error) {
	rdb, err := pipeline.NewClient(cfg.StreamURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream backend: %w", err)
	}
	return rdb, nil
}

// newEmbedService builds the embedding service from configuration.
func newEmbedService(cfg *config.Config, logger *zap.Logger) *embed.Service {
	return embed.NewService(embed.Config{
		TextModel:      cfg.Embedding.TextModel,
		CodeModel:      cfg.Embedding.CodeModel,
		EndpointURL:    cfg.Embedding.Endpoint,
		Device:         cfg.Embedding.Device,
		Mock:           cfg.Embedding.Mock,
		SingleTimeout:  time.Duration(cfg.Embedding.SingleTimeoutSeconds) * time.Second,
		BatchTimeout:   time.Duration(cfg.Embedding.BatchTimeoutSeconds) * time.Second,
		MemoryCapBytes: uint64(cfg.Embedding.MemoryCapMB) << 20,
	}, logger)
}

// resolveRepository picks the repository name: the explicit flag wins,
// then the git remote, then the directory basename.
func resolveRepository(flag, rootDir string) (string, error) {
	name := flag
	if name == "" {
		if remote := git.RemoteURL(rootDir); remote != "" {
			name = git.RepoNameFromRemote(remote)
		}
	}
	if name == "" {
		name = filepath.Base(rootDir)
	}
	if err := indexer.ValidateRepositoryName(name); err != nil {
		return "", fmt.Errorf("cannot derive a valid repository name (use --repository): %w", err)
	}
	return name, nil
}

// discoverInputs walks rootDir with the configured patterns and loads the
// matches into indexing inputs.
func discoverInputs(cfg *config.Config, rootDir string) ([]indexer.FileInput, error) {
	disc, err := indexer.NewFileDiscovery(rootDir, cfg.Paths.Code, cfg.Paths.Ignore)
	if err != nil {
		return nil, fmt.Errorf("invalid path configuration: %w", err)
	}
	paths, err := disc.DiscoverFiles()
	if err != nil {
		return nil, fmt.Errorf("file discovery failed: %w", err)
	}

	inputs := make([]indexer.FileInput, 0, len(paths))
	for _, p := range paths {
		content, err := disc.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping unreadable file %s: %v\n", p, err)
			continue
		}
		inputs = append(inputs, indexer.FileInput{Path: p, Content: content})
	}
	return inputs, nil
}

// formatNumber renders 1234567 as "1,234,567".
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	str := fmt.Sprintf("%d", n)
	var result string
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
