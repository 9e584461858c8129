// Package watcher turns filesystem events into debounced reindex
// requests: changes accumulate during a quiet period and are delivered as
// one batch, so editor save storms cause one reindex instead of dozens.
package watcher

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a batch fires.
const DefaultDebounce = 500 * time.Millisecond

// defaultIgnoreDirs are directory basenames never watched.
var defaultIgnoreDirs = []string{
	".git", ".atlas", "node_modules", "__pycache__",
	".venv", "venv", "dist", "build", ".next",
}

// Options tunes a Watcher. Zero values take defaults.
type Options struct {
	Debounce   time.Duration
	IgnoreDirs []string // extra directory basenames to skip
	Logger     *zap.Logger
}

// Watcher monitors directory trees and batches changed file paths.
type Watcher struct {
	fs         *fsnotify.Watcher
	dirs       []string
	extensions map[string]bool
	ignoreDirs map[string]bool
	debounce   time.Duration
	logger     *zap.Logger

	callback func(files []string)
	ctx      context.Context
	cancel   context.CancelFunc

	paused   bool
	pausedMu sync.RWMutex

	pending   map[string]struct{}
	pendingMu sync.Mutex

	timer   *time.Timer
	timerMu sync.Mutex

	stopOnce sync.Once
	done     chan struct{}
}

// New builds a watcher over dirs for files with the given extensions
// (".py", ".ts", ...). Subdirectories are registered recursively, skipping
// ignored basenames; directories created later are picked up as they
// appear.
func New(dirs, extensions []string, opts Options) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	extMap := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extMap[strings.ToLower(ext)] = true
	}
	ignore := make(map[string]bool)
	for _, d := range defaultIgnoreDirs {
		ignore[d] = true
	}
	for _, d := range opts.IgnoreDirs {
		ignore[d] = true
	}

	w := &Watcher{
		fs:         fs,
		dirs:       dirs,
		extensions: extMap,
		ignoreDirs: ignore,
		debounce:   opts.Debounce,
		logger:     opts.Logger,
		pending:    make(map[string]struct{}),
		done:       make(chan struct{}),
	}

	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			fs.Close()
			return nil, err
		}
	}
	return w, nil
}

// Start begins delivering batches to callback until Stop or context
// cancellation.
func (w *Watcher) Start(ctx context.Context, callback func(files []string)) error {
	if callback == nil {
		return nil
	}
	w.callback = callback
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.loop()
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
// Idempotent.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		} else {
			close(w.done) // never started
		}
		err = w.fs.Close()
	})
	return err
}

// Pause keeps accumulating changes but withholds callbacks; used while a
// reindex is running so its own writes do not retrigger it.
func (w *Watcher) Pause() {
	w.pausedMu.Lock()
	defer w.pausedMu.Unlock()
	w.paused = true
}

// Resume re-enables callbacks and immediately flushes anything that
// accumulated while paused.
func (w *Watcher) Resume() {
	w.pausedMu.Lock()
	wasPaused := w.paused
	w.paused = false
	w.pausedMu.Unlock()

	if wasPaused {
		w.flush()
	}
}

func (w *Watcher) loop() {
	defer close(w.done)

	flushCh := make(chan struct{}, 1)

	for {
		select {
		case <-w.ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.ignoreDirs[filepath.Base(event.Name)] {
						if err := w.addTree(event.Name); err != nil {
							w.logger.Warn("failed to watch new directory",
								zap.String("dir", event.Name), zap.Error(err))
						}
					}
				}
			}

			if !w.wantEvent(event) {
				continue
			}

			w.pendingMu.Lock()
			w.pending[event.Name] = struct{}{}
			w.pendingMu.Unlock()

			w.resetTimer(flushCh)

		case <-flushCh:
			w.pausedMu.RLock()
			paused := w.paused
			w.pausedMu.RUnlock()
			if !paused {
				w.flush()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// flush delivers the pending batch, if any.
func (w *Watcher) flush() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if w.callback != nil {
		w.callback(files)
	}
}

func (w *Watcher) resetTimer(flushCh chan struct{}) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		if !w.timer.Stop() {
			select {
			case <-w.timer.C:
			default:
			}
		}
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case flushCh <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// wantEvent keeps write, create, and remove events on matching extensions.
func (w *Watcher) wantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
		return false
	}
	return w.extensions[strings.ToLower(filepath.Ext(event.Name))]
}

// addTree registers every non-ignored directory under root.
func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			w.logger.Warn("skipping unreadable path", zap.String("path", p), zap.Error(err))
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if p != root && w.ignoreDirs[info.Name()] {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("dir", p), zap.Error(err))
		}
		return nil
	})
}

// ExtensionsFromPatterns extracts the distinct file extensions glob
// patterns like "**/*.py" target, for wiring config patterns to a watcher.
func ExtensionsFromPatterns(patterns []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, pat := range patterns {
		ext := path.Ext(path.Base(pat))
		if ext == "" || strings.ContainsAny(ext, "*?[{") {
			continue
		}
		ext = strings.ToLower(ext)
		if !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	return out
}
