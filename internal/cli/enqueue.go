package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-atlas/internal/config"
	"github.com/mvp-joe/project-atlas/internal/pipeline"
)

var (
	enqueueRepoFlag string
	enqueueWaitFlag bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Stage the current directory onto the indexing stream",
	Long: `Enqueue discovers source files, stages them on local disk, and appends
batch messages to the repository's Redis stream. Consumers started with
'atlas serve' drain the stream through isolated worker subprocesses.

Examples:
  # Enqueue and return immediately
  atlas enqueue --repository acme-api

  # Enqueue and block until the stream drains
  atlas enqueue --repository acme-api --wait
`,
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().StringVarP(&enqueueRepoFlag, "repository", "r", "", "repository name (default: derived from git remote or directory)")
	enqueueCmd.Flags().BoolVar(&enqueueWaitFlag, "wait", false, "block until indexing completes")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
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

	repository, err := resolveRepository(enqueueRepoFlag, rootDir)
	if err != nil {
		return err
	}

	inputs, err := discoverInputs(cfg, rootDir)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no files matched the configured patterns")
	}

	rdb, err := openStream(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	producer := pipeline.NewProducer(rdb, cfg.Pipeline.StagingDir, cfg.Pipeline.BatchSize, logger)
	result, err := producer.Enqueue(ctx, repository, inputs)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	fmt.Printf("✓ Enqueued %s files in %d batches (upload %s)\n",
		formatNumber(result.TotalFiles), result.Batches, result.UploadID)

	if !enqueueWaitFlag {
		fmt.Printf("Track progress with: atlas status --repository %s\n", repository)
		return nil
	}
	return waitForDrain(ctx, cfg, repository, result.TotalFiles)
}

// waitForDrain polls the progress hash until a terminal status, drawing a
// bar over processed+failed files.
func waitForDrain(ctx context.Context, cfg *config.Config, repository string, totalFiles int) error {
	rdb, err := pipeline.NewClient(cfg.StreamURL())
	if err != nil {
		return err
	}
	defer rdb.Close()

	bar := progressbar.NewOptions(totalFiles,
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped waiting; indexing continues in the background")
			return nil
		case <-ticker.C:
		}

		state, ok, err := pipeline.ReadProgress(ctx, rdb, repository)
		if err != nil || !ok {
			continue
		}

		bar.Set(state.ProcessedFiles + state.FailedFiles)

		switch state.Status {
		case pipeline.ProgressCompleted:
			bar.Finish()
			fmt.Printf("✓ Indexing complete: %s processed, %s failed\n",
				formatNumber(state.ProcessedFiles), formatNumber(state.FailedFiles))
			return nil
		case pipeline.ProgressError:
			bar.Finish()
			return fmt.Errorf("indexing stopped with an error (%d processed, %d failed)",
				state.ProcessedFiles, state.FailedFiles)
		}
	}
}
