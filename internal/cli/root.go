// Package cli wires the atlas commands: in-process indexing, the batch
// pipeline (enqueue and serve), hybrid search, developer memories, and
// repository maintenance.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mvp-joe/project-atlas/internal/config"
	"github.com/mvp-joe/project-atlas/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Atlas - code intelligence for AI coding assistants",
	Long: `Atlas indexes repositories into AST-aware chunks with dual vector
embeddings and a call graph, stored in PostgreSQL (pgvector) and cached
through Redis. Assistants query it for hybrid lexical+semantic search,
graph traversal, and developer memories.

Indexing runs two ways: 'atlas index' processes files in this process,
'atlas enqueue' stages an upload onto the Redis stream that 'atlas serve'
consumers drain through isolated worker subprocesses.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .atlas/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

// loadConfig resolves configuration from --config, the working directory's
// .atlas/config.yml, environment variables, and defaults.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.NewFileLoader(cfgFile).Load()
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.NewLoader(dir).Load()
}

func newLogger() *zap.Logger {
	return logging.Must(verbose)
}
