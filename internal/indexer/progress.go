package indexer

import "time"

// Stage names one step of the per-file pipeline.
type Stage string

const (
	StageParsed   Stage = "parsed"
	StageChunked  Stage = "chunked"
	StageEmbedded Stage = "embedded"
	StageStored   Stage = "stored"
)

// ProgressReporter receives pipeline callbacks. Implementations draw
// progress bars, update upload sessions, or stay silent.
type ProgressReporter interface {
	// OnProcessingStart fires before the first file.
	OnProcessingStart(totalFiles int)

	// OnFileStage fires as a file clears each pipeline step.
	OnFileStage(fileName string, stage Stage)

	// OnFileProcessed fires after each file, failed or not.
	OnFileProcessed(fileName string)

	// OnGraphBuildStart fires before graph construction.
	OnGraphBuildStart()

	// OnGraphBuildComplete fires with the constructed graph's size.
	OnGraphBuildComplete(nodeCount, edgeCount int, took time.Duration)

	// OnComplete fires once with the final summary.
	OnComplete(summary *IndexingSummary)
}

// NoOpProgressReporter drops every callback.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnProcessingStart(int)                        {}
func (NoOpProgressReporter) OnFileStage(string, Stage)                    {}
func (NoOpProgressReporter) OnFileProcessed(string)                       {}
func (NoOpProgressReporter) OnGraphBuildStart()                           {}
func (NoOpProgressReporter) OnGraphBuildComplete(int, int, time.Duration) {}
func (NoOpProgressReporter) OnComplete(*IndexingSummary)                  {}
