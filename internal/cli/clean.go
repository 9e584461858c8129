package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-atlas/internal/cache"
)

var (
	cleanRepoFlag string
	cleanYesFlag  bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove a repository's chunks and graph from the index",
	Long: `Clean deletes every chunk and graph node stored for a repository and
invalidates the cache entries that referenced them. The repository can be
re-indexed afterwards from scratch.

Examples:
  # Remove one repository
  atlas clean --repository acme-api

  # Skip the confirmation prompt
  atlas clean --repository acme-api --yes
`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringVarP(&cleanRepoFlag, "repository", "r", "", "repository to remove (required)")
	cleanCmd.Flags().BoolVarP(&cleanYesFlag, "yes", "y", false, "skip confirmation")
	cleanCmd.MarkFlagRequired("repository")
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cleanYesFlag {
		fmt.Printf("Remove all indexed data for %q? [y/N] ", cleanRepoFlag)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" && answer != "yes" {
			fmt.Println("Aborted")
			return nil
		}
	}

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

	chunks, err := store.DeleteRepositoryChunks(ctx, cleanRepoFlag)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	nodes, err := store.DeleteRepositoryGraph(ctx, cleanRepoFlag)
	if err != nil {
		return fmt.Errorf("failed to delete graph: %w", err)
	}

	if shared := openShared(cfg, logger); shared != nil {
		defer shared.Close()
		// Search and graph entries may reference the deleted rows under
		// any query, so flush the whole namespaces.
		shared.FlushPattern(ctx, "search:*")
		shared.FlushPattern(ctx, "graph:*")
		shared.Delete(ctx, cache.RepoMetaKey(cleanRepoFlag))
	}

	fmt.Printf("✓ Removed %s chunks and %s graph nodes for %s\n",
		formatNumber(int(chunks)), formatNumber(int(nodes)), cleanRepoFlag)
	return nil
}
