package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/project-atlas/internal/indexer"
)

// CLIProgressReporter draws progress bars for an in-process indexing run.
type CLIProgressReporter struct {
	quiet    bool
	fileBar  *progressbar.ProgressBar
	graphBar *progressbar.ProgressBar
}

// NewCLIProgressReporter creates a reporter; quiet suppresses everything
// except the errors the command itself prints.
func NewCLIProgressReporter(quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{quiet: quiet}
}

func (c *CLIProgressReporter) OnProcessingStart(totalFiles int) {
	if c.quiet {
		return
	}
	c.fileBar = progressbar.NewOptions(totalFiles,
		progressbar.OptionSetDescription("Indexing files"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}

func (c *CLIProgressReporter) OnFileStage(fileName string, stage indexer.Stage) {
	// Per-stage granularity matters for upload sessions, not terminals.
}

func (c *CLIProgressReporter) OnFileProcessed(fileName string) {
	if c.quiet || c.fileBar == nil {
		return
	}
	c.fileBar.Add(1)
}

func (c *CLIProgressReporter) OnGraphBuildStart() {
	if c.quiet {
		return
	}
	c.graphBar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Building code graph"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func (c *CLIProgressReporter) OnGraphBuildComplete(nodeCount, edgeCount int, took time.Duration) {
	if c.quiet {
		return
	}
	if c.graphBar != nil {
		c.graphBar.Finish()
		c.graphBar = nil
		fmt.Println()
	}
	fmt.Printf("✓ Graph built: %s nodes, %s edges (took %.1fs)\n",
		formatNumber(nodeCount), formatNumber(edgeCount), took.Seconds())
}

func (c *CLIProgressReporter) OnComplete(summary *indexer.IndexingSummary) {
	if c.quiet {
		return
	}

	fmt.Println()
	fmt.Printf("✓ Indexing complete: %s chunks from %s files\n",
		formatNumber(summary.IndexedChunks), formatNumber(summary.IndexedFiles))
	if summary.SkippedFiles > 0 {
		fmt.Printf("  Skipped: %s (test files)\n", formatNumber(summary.SkippedFiles))
	}
	if summary.FailedFiles > 0 {
		fmt.Printf("  Failed:  %s\n", formatNumber(summary.FailedFiles))
		for _, fe := range summary.Errors {
			fmt.Printf("    %s: %s\n", fe.File, fe.Error)
		}
	}
}
