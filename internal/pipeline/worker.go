package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WorkerResult is the summary line the worker prints as its last stdout
// line before exiting.
type WorkerResult struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

// BatchRunner executes one batch and reports its outcome.
type BatchRunner interface {
	Run(ctx context.Context, repository string, files []string) (*WorkerResult, error)
}

// Runner spawns one atlas-worker subprocess per batch. The subprocess owns
// its own parser and model memory, which the OS reclaims wholesale on exit;
// that isolation is the point of not indexing in-process here.
type Runner struct {
	bin     string
	dbURL   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewRunner(bin, dbURL string, timeout time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{bin: bin, dbURL: dbURL, timeout: timeout, logger: logger}
}

// Run invokes the worker for one batch. The context carries the batch
// budget; on expiry the process is killed. The returned error, when
// non-nil, is a *WorkerError carrying the classified cause.
func (r *Runner) Run(ctx context.Context, repository string, files []string) (*WorkerResult, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, r.bin,
		"--repository", repository,
		"--db-url", r.dbURL,
		"--files", strings.Join(files, ","),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		timedOut := errors.Is(cctx.Err(), context.DeadlineExceeded)

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && !timedOut {
			// Never started: missing binary, bad permissions.
			return nil, &WorkerError{Class: Classify(err, false, 0, ""), Err: err}
		}

		exitCode := -1
		if exitErr != nil {
			exitCode = exitErr.ExitCode()
		}
		class := Classify(nil, timedOut, exitCode, stderr.String())
		r.logger.Warn("worker batch failed",
			zap.String("repository", repository),
			zap.Int("files", len(files)),
			zap.String("class", string(class)),
			zap.Int("exit_code", exitCode),
			zap.Duration("elapsed", elapsed))
		return nil, &WorkerError{Class: class, ExitCode: exitCode, Stderr: stderr.String(), Err: err}
	}

	result, err := parseWorkerOutput(stdout.String())
	if err != nil {
		// Exit 0 with unparseable output is a contract violation.
		return nil, &WorkerError{Class: ErrorCrash, Stderr: stderr.String(), Err: err}
	}

	r.logger.Debug("worker batch done",
		zap.String("repository", repository),
		zap.Int("success", result.SuccessCount),
		zap.Int("errors", result.ErrorCount),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// parseWorkerOutput extracts the trailing JSON summary line. The worker may
// print progress noise first; only the last non-empty line counts.
func parseWorkerOutput(stdout string) (*WorkerResult, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var result WorkerResult
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			return nil, fmt.Errorf("worker output not parseable: %q", line)
		}
		return &result, nil
	}
	return nil, fmt.Errorf("worker produced no output")
}
