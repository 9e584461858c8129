package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/cache"
	"github.com/mvp-joe/project-atlas/internal/graph"
	"github.com/mvp-joe/project-atlas/internal/indexer"
	"github.com/mvp-joe/project-atlas/internal/pipeline"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

var (
	serveRepoFlag     string
	serveConsumerFlag string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume the indexing stream for a repository",
	Long: `Serve joins the repository's consumer group and drains its stream:
each batch message spawns one atlas-worker subprocess, so parser and
model memory is reclaimed wholesale when the batch ends. Batches are
acknowledged only after the worker exits cleanly and progress counters
are updated; messages abandoned by dead consumers are reclaimed on a
timer. When the stream drains, the call graph is rebuilt and the
repository is marked completed.

Run several consumers (different machines or processes) against the same
repository to index in parallel.

Examples:
  # Consume with an auto-generated consumer id
  atlas serve --repository acme-api

  # Stable consumer id across restarts
  atlas serve --repository acme-api --consumer worker-1
`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveRepoFlag, "repository", "r", "", "repository stream to consume (required)")
	serveCmd.Flags().StringVar(&serveConsumerFlag, "consumer", "", "consumer id within the group (default: hostname-pid)")
	serveCmd.MarkFlagRequired("repository")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger()
	defer logger.Sync()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rdb, err := openStream(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	runner := pipeline.NewRunner(
		cfg.Pipeline.WorkerBin,
		cfg.Database.URL,
		time.Duration(cfg.Pipeline.BatchTimeoutSeconds)*time.Second,
		logger,
	)

	shared := openShared(cfg, logger)
	if shared != nil {
		defer shared.Close()
	}
	builder := completionBuilder{
		Builder: graph.NewBuilder(store, logger),
		store:   store,
		shared:  shared,
		logger:  logger,
	}

	consumer := pipeline.NewConsumer(rdb, runner, builder, pipeline.ConsumerConfig{
		Repository:      serveRepoFlag,
		ConsumerID:      serveConsumerFlag,
		Block:           time.Duration(cfg.Pipeline.BlockSeconds) * time.Second,
		ReclaimInterval: time.Duration(cfg.Pipeline.ReclaimIntervalSeconds) * time.Second,
		ReclaimIdle:     time.Duration(cfg.Pipeline.ReclaimIdleSeconds) * time.Second,
		MaxDeliveries:   int64(cfg.Pipeline.MaxDeliveries),
	}, logger)

	fmt.Printf("Consuming %s (Ctrl+C to stop)...\n", pipeline.StreamKey(serveRepoFlag))
	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("consumer stopped: %w", err)
	}
	return nil
}

// completionBuilder rebuilds the graph, then refreshes the cached
// repository summary so status reflects the finished run immediately.
type completionBuilder struct {
	*graph.Builder
	store  *storage.Store
	shared *cache.SharedCache
	logger *zap.Logger
}

func (b completionBuilder) Build(ctx context.Context, repository string, languages []string) (*graph.Stats, error) {
	stats, err := b.Builder.Build(ctx, repository, languages)
	if err != nil {
		return nil, err
	}
	if b.shared != nil {
		// Node ids change on every graph rebuild, so cached traversals
		// dangle alongside the stale search entries.
		b.shared.FlushPattern(ctx, "search:*")
		b.shared.FlushPattern(ctx, "graph:*")
	}
	if _, err := indexer.RefreshRepoMeta(ctx, b.store, b.shared, repository); err != nil {
		b.logger.Warn("repository summary refresh failed",
			zap.String("repository", repository), zap.Error(err))
	}
	return stats, nil
}
