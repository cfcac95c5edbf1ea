package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/indexer"
	"github.com/majoor/assetindex/pkg/metrics"
)

// Observer is the capability interface the rest of the system depends on
// (spec.md §9 design note), satisfied by both the native fsnotify-backed
// Watcher and NoopObserver.
type Observer interface {
	Start(ctx context.Context, roots []WatchedRoot) error
	Stop()
	WatchedPaths() []string
	PendingCount() int
}

// NoopObserver satisfies Observer when the native backend is unavailable
// (e.g. fsnotify failed to initialize on this platform); it observes
// nothing and every re-index stays driven by explicit scans.
type NoopObserver struct{}

func (NoopObserver) Start(context.Context, []WatchedRoot) error { return nil }
func (NoopObserver) Stop()                                      {}
func (NoopObserver) WatchedPaths() []string                     { return nil }
func (NoopObserver) PendingCount() int                          { return 0 }

// WatchedPaths returns the root directories the watcher was started
// with.
func (w *Watcher) WatchedPaths() []string {
	paths := make([]string, len(w.roots))
	for i, r := range w.roots {
		paths[i] = r.Path
	}
	return paths
}

// PendingCount reports the number of filepaths currently awaiting a
// flush, surfaced by the maintenance health/counters endpoint.
func (w *Watcher) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) + len(w.overflow)
}

type flushGroup struct {
	root WatchedRoot
	dir  string
}

// flush drains up to flush_max_files pending paths, grouped by their
// resolved root and containing directory, and asks the indexer to do a
// targeted non-recursive incremental scan of each directory. Concurrent
// flushes are bounded by flushSem (max_flush_concurrency).
func (w *Watcher) flush() {
	w.flushSem <- struct{}{}
	defer func() { <-w.flushSem }()

	w.mu.Lock()
	for path, ev := range w.overflow {
		if _, exists := w.pending[path]; !exists {
			w.pending[path] = ev
		}
	}
	w.overflow = make(map[string]pendingEvent)

	maxFiles := w.cfg.FlushMaxFiles
	if maxFiles <= 0 || maxFiles > len(w.pending) {
		maxFiles = len(w.pending)
	}
	batch := make(map[string]flushGroup, maxFiles)
	for path, ev := range w.pending {
		if len(batch) >= maxFiles {
			break
		}
		batch[path] = flushGroup{root: ev.root, dir: filepath.Dir(path)}
		delete(w.pending, path)
	}
	if len(w.pending) > 0 {
		// More than flush_max_files arrived; reschedule the remainder
		// instead of dropping it.
		w.triggerFlushLocked(false)
	}
	metrics.SetWatcherQueueDepth(len(w.pending) + len(w.overflow))
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	dirs := make(map[string]WatchedRoot, 4)
	seenDir := make(map[string]string, 4)
	for _, g := range batch {
		key := string(g.root.Source) + "|" + g.root.RootID + "|" + g.dir
		dirs[key] = g.root
		seenDir[key] = g.dir
	}

	for key, root := range dirs {
		dir := seenDir[key]
		ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
		_, err := w.scanner.Scan(ctx, indexer.Options{
			RootDir:     dir,
			Recursive:   false,
			Incremental: true,
			Source:      root.Source,
			RootID:      root.RootID,
			Throttled:   true,
		})
		cancel()
		if err != nil {
			logger.Warn("watcher: flush scan failed", "dir", dir, "error", err)
		}
	}
}

// passesSizeGate reports whether path's current on-disk size (if it
// still exists) falls within [min_size_bytes, max_size_bytes]. A path
// that no longer exists (removed or renamed away) always passes, so its
// deletion is still reconciled by the follow-up scan.
func (w *Watcher) passesSizeGate(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return true
	}
	size := info.Size()
	if w.cfg.MinSizeBytes > 0 && size < w.cfg.MinSizeBytes {
		return false
	}
	if w.cfg.MaxSizeBytes > 0 && size > w.cfg.MaxSizeBytes {
		return false
	}
	return true
}

// isProbablyDir reports whether path currently exists and is a
// directory, used to decide whether a Create event should extend the
// fsnotify watch set.
func isProbablyDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// addRecursive registers root and every subdirectory beneath it with
// fsw; fsnotify watches are not recursive on their own.
func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := fsw.Add(path); addErr != nil {
			logger.Warn("watcher: failed to watch subdirectory", "path", path, "error", addErr)
		}
		return nil
	})
}
