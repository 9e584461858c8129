// Package pipeline is the stream-driven batch side of atlas: a producer
// stages uploaded files and appends batch messages to a per-repository
// Redis stream; consumers in one consumer group pull batches and hand each
// one to a fresh atlas-worker subprocess, so model and parser memory dies
// with the batch. Acknowledgement is withheld until the subprocess exits
// cleanly and progress counters are updated; abandoned messages are
// reclaimed on a timer.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass buckets a failed batch by cause. The class decides whether the
// message stays pending for redelivery and whether the consumer keeps
// running.
type ErrorClass string

const (
	ErrorTimeout  ErrorClass = "timeout"
	ErrorCrash    ErrorClass = "crash"
	ErrorOOM      ErrorClass = "oom"
	ErrorDatabase ErrorClass = "database"
	ErrorCritical ErrorClass = "critical"
)

// Retryable reports whether the batch should be left pending for
// redelivery. Timeouts and OOM kills repeat deterministically on the same
// batch, so they fail fast instead of burning another worker.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorCrash, ErrorDatabase:
		return true
	default:
		return false
	}
}

// StopsConsumer reports whether the consumer must shut down after this
// failure.
func (c ErrorClass) StopsConsumer() bool {
	return c == ErrorCritical
}

// databaseMarkers in worker stderr indicate a storage-side failure.
var databaseMarkers = []string{
	"connection refused",
	"connection reset",
	"pgx",
	"postgres",
	"sqlstate",
	"too many clients",
}

// oomMarkers in worker stderr indicate the worker ran out of memory.
var oomMarkers = []string{
	"out of memory",
	"cannot allocate memory",
	"memory budget exceeded",
	"oom-kill",
	"oomkilled",
}

// Classify buckets one worker failure. startErr is non-nil when the
// subprocess never ran (missing binary, permission); timedOut marks a
// context-deadline kill; exitCode and stderr describe a process that ran
// and failed.
func Classify(startErr error, timedOut bool, exitCode int, stderr string) ErrorClass {
	if startErr != nil {
		return ErrorCritical
	}
	if timedOut {
		return ErrorTimeout
	}

	lower := strings.ToLower(stderr)
	for _, marker := range oomMarkers {
		if strings.Contains(lower, marker) {
			return ErrorOOM
		}
	}
	for _, marker := range databaseMarkers {
		if strings.Contains(lower, marker) {
			return ErrorDatabase
		}
	}

	// Killed by a signal without our deadline firing: the kernel's OOM
	// killer is the usual culprit.
	if exitCode < 0 {
		return ErrorOOM
	}
	return ErrorCrash
}

// WorkerError describes one failed worker invocation.
type WorkerError struct {
	Class    ErrorClass
	ExitCode int
	Stderr   string
	Err      error
}

func (e *WorkerError) Error() string {
	msg := fmt.Sprintf("worker failed (%s, exit %d)", e.Class, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if tail := stderrTail(e.Stderr, 300); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *WorkerError) Unwrap() error { return e.Err }

// AsWorkerError extracts a WorkerError, defaulting unknown failures to the
// critical class so they stop the consumer rather than loop.
func AsWorkerError(err error) *WorkerError {
	var we *WorkerError
	if errors.As(err, &we) {
		return we
	}
	return &WorkerError{Class: ErrorCritical, Err: err}
}

func stderrTail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max:]
}
