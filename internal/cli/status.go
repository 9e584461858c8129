package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-atlas/internal/indexer"
	"github.com/mvp-joe/project-atlas/internal/pipeline"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

var (
	statusRepoFlag string
	statusJSONFlag bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexed repositories and pipeline progress",
	Long: `Status reports what the index holds. Without flags it lists every
indexed repository with chunk and graph counts. With --repository it adds
the live progress of any batch indexing run for that repository.

Examples:
  # All repositories
  atlas status

  # One repository, including pipeline progress
  atlas status --repository acme-api

  # Machine-readable output
  atlas status --repository acme-api --json
`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusRepoFlag, "repository", "r", "", "repository to inspect")
	statusCmd.Flags().BoolVar(&statusJSONFlag, "json", false, "output as JSON")
}

// repoStatus is the JSON shape for one repository's status.
type repoStatus struct {
	Summary  *storage.RepositorySummary `json:"summary"`
	Progress *pipeline.ProgressState    `json:"progress,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	shared := openShared(cfg, logger)
	if shared != nil {
		defer shared.Close()
	}

	if statusRepoFlag == "" {
		return printAllRepositories(ctx, store)
	}

	summary, err := indexer.CachedRepoMeta(ctx, store, shared, statusRepoFlag)
	if err != nil {
		return fmt.Errorf("failed to read repository summary: %w", err)
	}

	status := repoStatus{Summary: summary}

	// Pipeline progress is best-effort: a missing Redis just means no
	// batch run to report on.
	if rdb, err := pipeline.NewClient(cfg.StreamURL()); err == nil {
		defer rdb.Close()
		if state, ok, err := pipeline.ReadProgress(ctx, rdb, statusRepoFlag); err == nil && ok {
			status.Progress = &state
		}
	}

	if statusJSONFlag {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printRepoStatus(status)
	return nil
}

func printAllRepositories(ctx context.Context, store *storage.Store) error {
	repos, err := store.ListRepositories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}

	if statusJSONFlag {
		summaries := make([]*storage.RepositorySummary, 0, len(repos))
		for _, repo := range repos {
			summary, err := store.Summary(ctx, repo)
			if err != nil {
				return fmt.Errorf("failed to summarize %s: %w", repo, err)
			}
			summaries = append(summaries, summary)
		}
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(repos) == 0 {
		fmt.Println("No repositories indexed yet. Run: atlas index")
		return nil
	}

	fmt.Printf("Indexed repositories (%d):\n\n", len(repos))
	for _, repo := range repos {
		summary, err := store.Summary(ctx, repo)
		if err != nil {
			fmt.Printf("  %s  (summary unavailable: %v)\n", repo, err)
			continue
		}
		fmt.Printf("  %s\n", repo)
		fmt.Printf("    Files: %s  Chunks: %s  Graph: %s nodes / %s edges\n",
			formatNumber(summary.FileCount), formatNumber(summary.ChunkCount),
			formatNumber(summary.NodeCount), formatNumber(summary.EdgeCount))
		if len(summary.Languages) > 0 {
			fmt.Printf("    Languages: %v\n", summary.Languages)
		}
		if !summary.IndexedAt.IsZero() {
			fmt.Printf("    Last indexed: %s\n", summary.IndexedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

func printRepoStatus(status repoStatus) {
	s := status.Summary
	fmt.Printf("Repository: %s\n", s.Repository)
	fmt.Printf("  Files:  %s\n", formatNumber(s.FileCount))
	fmt.Printf("  Chunks: %s\n", formatNumber(s.ChunkCount))
	fmt.Printf("  Graph:  %s nodes, %s edges\n", formatNumber(s.NodeCount), formatNumber(s.EdgeCount))
	if len(s.Languages) > 0 {
		fmt.Printf("  Languages: %v\n", s.Languages)
	}
	if !s.IndexedAt.IsZero() {
		fmt.Printf("  Last indexed: %s\n", s.IndexedAt.Format("2006-01-02 15:04:05"))
	}

	p := status.Progress
	if p == nil {
		return
	}

	fmt.Println("\nPipeline:")
	fmt.Printf("  Status: %s\n", p.Status)
	fmt.Printf("  Progress: %s/%s files", formatNumber(p.ProcessedFiles+p.FailedFiles), formatNumber(p.TotalFiles))
	if p.FailedFiles > 0 {
		fmt.Printf(" (%s failed)", formatNumber(p.FailedFiles))
	}
	fmt.Println()
	if p.CurrentBatch != "" && p.Status == pipeline.ProgressProcessing {
		fmt.Printf("  Current batch: %s\n", p.CurrentBatch)
	}
	if p.CompletedAt != "" {
		fmt.Printf("  Completed at: %s\n", p.CompletedAt)
	}
}
