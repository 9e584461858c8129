package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan:
// 1. Classify buckets start failures, timeouts, stderr markers, and signal
//    kills into the right classes, in that precedence order.
// 2. Retryable is true only for crash and database; StopsConsumer only for
//    critical.
// 3. WorkerError renders class, exit code, cause, and a bounded stderr
//    tail; AsWorkerError passes wrapped values through and defaults
//    unknown errors to critical.

func TestClassify_StartErrorIsCritical(t *testing.T) {
	class := Classify(errors.New("fork/exec /usr/bin/atlas-worker: no such file or directory"), false, 0, "")
	assert.Equal(t, ErrorCritical, class)
}

func TestClassify_TimeoutBeatsStderrMarkers(t *testing.T) {
	// A killed worker often leaves database noise in stderr; the deadline
	// is still the cause.
	class := Classify(nil, true, -1, "pgx: connection reset by peer")
	assert.Equal(t, ErrorTimeout, class)
}

func TestClassify_DatabaseMarkers(t *testing.T) {
	cases := []string{
		"dial tcp 127.0.0.1:5432: connect: connection refused",
		"read tcp: connection reset by peer",
		"pgx: unexpected EOF",
		"FATAL: sorry, too many clients already",
		"ERROR: duplicate key value (SQLSTATE 23505)",
		"postgres is shutting down",
	}
	for _, stderr := range cases {
		t.Run(stderr, func(t *testing.T) {
			assert.Equal(t, ErrorDatabase, Classify(nil, false, 1, stderr))
		})
	}
}

func TestClassify_OOMMarkers(t *testing.T) {
	cases := []string{
		"runtime: out of memory",
		"mmap: cannot allocate memory",
		"embedding model load: memory budget exceeded",
		"oom-kill constraint triggered",
		"container OOMKilled",
	}
	for _, stderr := range cases {
		t.Run(stderr, func(t *testing.T) {
			assert.Equal(t, ErrorOOM, Classify(nil, false, 2, stderr))
		})
	}
}

func TestClassify_OOMBeatsDatabaseWhenBothPresent(t *testing.T) {
	stderr := "pgx: query failed\nruntime: out of memory"
	assert.Equal(t, ErrorOOM, Classify(nil, false, 2, stderr))
}

func TestClassify_SignalKillWithoutDeadlineIsOOM(t *testing.T) {
	// Exit code -1 means a signal we did not send: assume the kernel's
	// OOM killer.
	class := Classify(nil, false, -1, "")
	assert.Equal(t, ErrorOOM, class)
}

func TestClassify_PlainFailureIsCrash(t *testing.T) {
	class := Classify(nil, false, 1, "panic: runtime error: index out of range")
	assert.Equal(t, ErrorCrash, class)
}

func TestClassify_MarkersAreCaseInsensitive(t *testing.T) {
	assert.Equal(t, ErrorDatabase, Classify(nil, false, 1, "PGX: Connection Refused"))
	assert.Equal(t, ErrorOOM, Classify(nil, false, 1, "Out Of Memory"))
}

func TestErrorClass_Retryable(t *testing.T) {
	assert.True(t, ErrorCrash.Retryable())
	assert.True(t, ErrorDatabase.Retryable())

	assert.False(t, ErrorTimeout.Retryable())
	assert.False(t, ErrorOOM.Retryable())
	assert.False(t, ErrorCritical.Retryable())
}

func TestErrorClass_StopsConsumer(t *testing.T) {
	assert.True(t, ErrorCritical.StopsConsumer())

	assert.False(t, ErrorTimeout.StopsConsumer())
	assert.False(t, ErrorCrash.StopsConsumer())
	assert.False(t, ErrorOOM.StopsConsumer())
	assert.False(t, ErrorDatabase.StopsConsumer())
}

func TestWorkerError_ErrorIncludesClassAndCause(t *testing.T) {
	we := &WorkerError{
		Class:    ErrorCrash,
		ExitCode: 2,
		Stderr:   "panic: nil map write",
		Err:      errors.New("exit status 2"),
	}

	msg := we.Error()
	assert.Contains(t, msg, "crash")
	assert.Contains(t, msg, "exit 2")
	assert.Contains(t, msg, "exit status 2")
	assert.Contains(t, msg, "panic: nil map write")
}

func TestWorkerError_StderrTailIsBounded(t *testing.T) {
	we := &WorkerError{
		Class:  ErrorCrash,
		Stderr: strings.Repeat("x", 10_000),
	}

	// The message keeps only the end of a long stderr dump.
	assert.Less(t, len(we.Error()), 500)
	assert.Contains(t, we.Error(), "…")
}

func TestWorkerError_Unwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	we := &WorkerError{Class: ErrorCrash, Err: cause}

	require.ErrorIs(t, we, cause)

	wrapped := fmt.Errorf("batch 3: %w", we)
	var got *WorkerError
	require.ErrorAs(t, wrapped, &got)
	assert.Equal(t, ErrorCrash, got.Class)
}

func TestAsWorkerError_PassesThroughWrappedValue(t *testing.T) {
	we := &WorkerError{Class: ErrorDatabase, ExitCode: 1}
	got := AsWorkerError(fmt.Errorf("running batch: %w", we))
	assert.Same(t, we, got)
}

func TestAsWorkerError_DefaultsUnknownToCritical(t *testing.T) {
	got := AsWorkerError(errors.New("redis gone"))
	require.NotNil(t, got)
	assert.Equal(t, ErrorCritical, got.Class)
	assert.EqualError(t, got.Err, "redis gone")
}
