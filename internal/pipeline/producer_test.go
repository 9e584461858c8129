package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-atlas/internal/indexer"
)

// Test Plan:
// 1. Key builders produce the documented stream and progress names.
// 2. splitBatches preserves order and handles remainders, undersized
//    inputs, and degenerate batch sizes.
// 3. Enqueue rejects bad repositories, empty uploads, and invalid files
//    before touching Redis or disk.
// 4. Cleanup removes exactly one staged upload and refuses traversal ids.

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "index:stream:acme-api", StreamKey("acme-api"))
}

func TestProgressKey(t *testing.T) {
	assert.Equal(t, "index:progress:acme-api", ProgressKey("acme-api"))
}

func TestSplitBatches_EvenSplit(t *testing.T) {
	files := []string{"a", "b", "c", "d"}
	batches := splitBatches(files, 2)

	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c", "d"}, batches[1])
}

func TestSplitBatches_RemainderGoesLast(t *testing.T) {
	files := []string{"a", "b", "c", "d", "e"}
	batches := splitBatches(files, 2)

	require.Len(t, batches, 3)
	assert.Equal(t, []string{"e"}, batches[2])
}

func TestSplitBatches_SmallInputIsOneBatch(t *testing.T) {
	batches := splitBatches([]string{"only"}, 40)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"only"}, batches[0])
}

func TestSplitBatches_EmptyInput(t *testing.T) {
	assert.Empty(t, splitBatches(nil, 40))
}

func TestSplitBatches_NonPositiveSizeDefaultsToOne(t *testing.T) {
	batches := splitBatches([]string{"a", "b"}, 0)
	require.Len(t, batches, 2)
}

func TestEnqueue_RejectsInvalidRepositoryBeforeRedis(t *testing.T) {
	// nil client: validation must fail before any Redis call.
	p := NewProducer(nil, t.TempDir(), 40, nil)

	_, err := p.Enqueue(context.Background(), "Bad Repo!", []indexer.FileInput{
		{Path: "main.py", Content: "print('hi')\n"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository")
}

func TestEnqueue_RejectsEmptyUpload(t *testing.T) {
	p := NewProducer(nil, t.TempDir(), 40, nil)

	_, err := p.Enqueue(context.Background(), "acme", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files")
}

func TestEnqueue_RejectsInvalidFileBeforeRedis(t *testing.T) {
	p := NewProducer(nil, t.TempDir(), 40, nil)

	_, err := p.Enqueue(context.Background(), "acme", []indexer.FileInput{
		{Path: "../escape.py", Content: "print('hi')\n"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "../escape.py")
}

func TestCleanup_RemovesStagedUpload(t *testing.T) {
	staging := t.TempDir()
	p := NewProducer(nil, staging, 40, nil)

	uploadDir := filepath.Join(staging, "upload-123", "src")
	require.NoError(t, os.MkdirAll(uploadDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(uploadDir, "main.py"), []byte("pass\n"), 0o644))

	otherDir := filepath.Join(staging, "upload-456")
	require.NoError(t, os.MkdirAll(otherDir, 0o755))

	require.NoError(t, p.Cleanup("upload-123"))

	assert.NoDirExists(t, filepath.Join(staging, "upload-123"))
	assert.DirExists(t, otherDir)
}

func TestCleanup_RejectsTraversalIDs(t *testing.T) {
	p := NewProducer(nil, t.TempDir(), 40, nil)

	assert.Error(t, p.Cleanup(""))
	assert.Error(t, p.Cleanup("../outside"))
	assert.Error(t, p.Cleanup("a/b"))
	assert.Error(t, p.Cleanup(`a\b`))
}
