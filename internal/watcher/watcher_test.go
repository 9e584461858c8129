package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan:
// - New succeeds on valid directories and fails on missing ones
// - A single change fires one batch after the debounce window
// - Rapid changes to several files coalesce into one deduplicated batch
// - Only monitored extensions trigger callbacks
// - Pause accumulates silently; Resume flushes immediately
// - Directories created later are watched; ignored basenames are not
// - Stop is idempotent and safe to call concurrently
// - ExtensionsFromPatterns extracts distinct extensions from glob patterns

const testDebounce = 50 * time.Millisecond

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]string
	fired   chan struct{}
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{fired: make(chan struct{}, 16)}
}

func (r *batchRecorder) callback(files []string) {
	r.mu.Lock()
	r.batches = append(r.batches, files)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *batchRecorder) waitForBatch(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a batch")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[len(r.batches)-1]
}

func (r *batchRecorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func startWatcher(t *testing.T, dir string, extensions []string) (*Watcher, *batchRecorder) {
	t.Helper()
	w, err := New([]string{dir}, extensions, Options{Debounce: testDebounce})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	rec := newBatchRecorder()
	require.NoError(t, w.Start(context.Background(), rec.callback))

	// Give the kernel watch a moment to attach.
	time.Sleep(100 * time.Millisecond)
	return w, rec
}

func TestNew_Success(t *testing.T) {
	t.Parallel()

	w, err := New([]string{t.TempDir()}, []string{".py", ".ts"}, Options{})
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NoError(t, w.Stop())
}

func TestNew_MissingDirectory(t *testing.T) {
	t.Parallel()

	w, err := New([]string{filepath.Join(t.TempDir(), "nope")}, []string{".py"}, Options{})
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestWatcher_SingleChangeFiresOneBatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, rec := startWatcher(t, dir, []string{".py"})

	target := filepath.Join(dir, "main.py")
	require.NoError(t, os.WriteFile(target, []byte("print('hi')\n"), 0o644))

	batch := rec.waitForBatch(t)
	assert.Contains(t, batch, target)
}

func TestWatcher_RapidChangesCoalesce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, rec := startWatcher(t, dir, []string{".py"})

	a := filepath.Join(dir, "a.py")
	b := filepath.Join(dir, "b.py")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(a, []byte("pass\n"), 0o644))
		require.NoError(t, os.WriteFile(b, []byte("pass\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	batch := rec.waitForBatch(t)
	assert.ElementsMatch(t, []string{a, b}, batch, "same file several times dedupes to one entry")

	// No further batch should arrive.
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, rec.batchCount())
}

func TestWatcher_ExtensionFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, rec := startWatcher(t, dir, []string{".py"})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte("{}"), 0o644))

	time.Sleep(4 * testDebounce)
	assert.Zero(t, rec.batchCount(), "unmonitored extensions stay silent")

	target := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(target, []byte("pass\n"), 0o644))

	batch := rec.waitForBatch(t)
	assert.Equal(t, []string{target}, batch)
}

func TestWatcher_PauseAccumulatesResumeFlushes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, rec := startWatcher(t, dir, []string{".py"})

	w.Pause()

	target := filepath.Join(dir, "paused.py")
	require.NoError(t, os.WriteFile(target, []byte("pass\n"), 0o644))

	time.Sleep(4 * testDebounce)
	assert.Zero(t, rec.batchCount(), "paused watcher withholds callbacks")

	w.Resume()

	batch := rec.waitForBatch(t)
	assert.Contains(t, batch, target)
}

func TestWatcher_PicksUpNewDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, rec := startWatcher(t, dir, []string{".py"})

	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(200 * time.Millisecond) // watch attaches on the create event

	target := filepath.Join(sub, "util.py")
	require.NoError(t, os.WriteFile(target, []byte("pass\n"), 0o644))

	batch := rec.waitForBatch(t)
	assert.Contains(t, batch, target)
}

func TestWatcher_IgnoredDirectoriesStaySilent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "node_modules"), 0o755))

	_, rec := startWatcher(t, dir, []string{".py"})

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "node_modules", "dep.py"), []byte("pass\n"), 0o644))

	time.Sleep(4 * testDebounce)
	assert.Zero(t, rec.batchCount())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w, err := New([]string{t.TempDir()}, []string{".py"}, Options{Debounce: testDebounce})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), func([]string) {}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Stop()
		}()
	}
	wg.Wait()
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	t.Parallel()

	w, err := New([]string{t.TempDir()}, []string{".py"}, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Stop())
}

func TestWatcher_ContextCancellationStopsLoop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New([]string{dir}, []string{".py"}, Options{Debounce: testDebounce})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec := newBatchRecorder()
	require.NoError(t, w.Start(ctx, rec.callback))

	cancel()
	// Stop must not hang after the loop exits via context.
	require.NoError(t, w.Stop())
}

func TestExtensionsFromPatterns(t *testing.T) {
	t.Parallel()

	got := ExtensionsFromPatterns([]string{
		"**/*.py", "**/*.ts", "src/**/*.TSX", "**/*.py", "**/*", "no-ext",
	})
	assert.ElementsMatch(t, []string{".py", ".ts", ".tsx"}, got)
}
