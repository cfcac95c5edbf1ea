// Package watch implements the filesystem watcher (component E): a
// debounced, deduplicated, backpressure-aware bridge from native
// filesystem notifications to targeted indexer rescans.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/indexer"
	"github.com/majoor/assetindex/pkg/metrics"
)

// Scanner is the subset of *indexer.Indexer the watcher depends on.
type Scanner interface {
	Scan(ctx context.Context, opts indexer.Options) (indexer.ScanStats, *apperr.Error)
}

// WatchedRoot is one directory tree the watcher observes, annotated with
// the source/root_id the indexer should attribute its files to.
type WatchedRoot struct {
	Path   string
	Source assetdb.Source
	RootID string
}

type pendingEvent struct {
	root      WatchedRoot
	firstSeen time.Time
}

// Watcher bridges fsnotify events into debounced indexer rescans. The
// zero value is not usable; build one with New.
type Watcher struct {
	cfg     config.WatcherConfig
	scanner Scanner
	roots   []WatchedRoot

	fsw *fsnotify.Watcher

	mu             sync.Mutex
	pending        map[string]pendingEvent
	overflow       map[string]pendingEvent
	lastEventAt    map[string]time.Time
	flushScheduled bool
	flushTimer     *time.Timer
	arrivals       []time.Time
	lastAlertAt    time.Time

	flushSem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Watcher. It does not start observing until Start is
// called.
func New(cfg config.WatcherConfig, scanner Scanner) *Watcher {
	maxConcurrency := cfg.MaxFlushConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Watcher{
		cfg:         cfg,
		scanner:     scanner,
		pending:     make(map[string]pendingEvent),
		overflow:    make(map[string]pendingEvent),
		lastEventAt: make(map[string]time.Time),
		flushSem:    make(chan struct{}, maxConcurrency),
	}
}

// Start begins observing roots recursively. It returns an error only if
// the native observer itself fails to initialize; individual
// unwatchable subdirectories are logged and skipped.
func (w *Watcher) Start(ctx context.Context, roots []WatchedRoot) error {
	if !w.cfg.Enabled {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.roots = roots

	for _, r := range roots {
		if err := addRecursive(fsw, r.Path); err != nil {
			logger.Warn("watcher: failed to watch root", "path", r.Path, "error", err)
		}
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop joins the observer loop with the configured timeout. If the
// timeout elapses the goroutine is abandoned (it will still exit once
// its blocking fsnotify read unblocks from the watcher Close below).
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	if w.fsw != nil {
		w.fsw.Close()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timeout := w.cfg.StopJoinTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("watcher: stop join timed out, abandoning loop goroutine")
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.stopFlushTimer()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: fsnotify error", "error", err)
		case <-w.flushTimerChan():
			// Clear the fired timer so the next event can schedule a
			// fresh debounce window.
			w.stopFlushTimer()
			go w.flush()
		}
	}
}

// flushTimerChan returns the current flush timer's channel, or a nil
// channel (which blocks forever) when no flush is scheduled.
func (w *Watcher) flushTimerChan() <-chan time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flushTimer == nil {
		return nil
	}
	return w.flushTimer.C
}

func (w *Watcher) stopFlushTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flushTimer != nil {
		w.flushTimer.Stop()
		w.flushTimer = nil
	}
	w.flushScheduled = false
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	if ev.Has(fsnotify.Create) {
		if root, ok := w.findRoot(path); ok {
			_ = root
			if isProbablyDir(path) {
				_ = w.fsw.Add(path)
			}
		}
	}

	if !w.passesSizeGate(path) {
		return
	}

	root, ok := w.findRoot(path)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.withinDedupeTTL(path) {
		return
	}
	w.lastEventAt[path] = time.Now()
	w.recordArrivalLocked()

	if len(w.pending) >= w.cfg.PendingMax {
		if _, already := w.pending[path]; !already {
			w.overflow[path] = pendingEvent{root: root, firstSeen: time.Now()}
			metrics.RecordWatcherOverflow()
			metrics.SetWatcherQueueDepth(len(w.pending) + len(w.overflow))
			return
		}
	}
	w.pending[path] = pendingEvent{root: root, firstSeen: time.Now()}
	metrics.SetWatcherQueueDepth(len(w.pending) + len(w.overflow))

	if len(w.pending) >= w.cfg.PendingMax {
		w.triggerFlushLocked(true)
		return
	}
	w.triggerFlushLocked(false)
}

func (w *Watcher) withinDedupeTTL(path string) bool {
	ttl := time.Duration(w.cfg.DedupeTTLMS) * time.Millisecond
	if ttl <= 0 {
		return false
	}
	last, ok := w.lastEventAt[path]
	return ok && time.Since(last) < ttl
}

// triggerFlushLocked must be called with w.mu held. immediate bypasses
// the debounce window (pending_max reached).
func (w *Watcher) triggerFlushLocked(immediate bool) {
	if immediate {
		w.stopFlushTimerLocked()
		go w.flush()
		return
	}
	if w.flushScheduled {
		return
	}
	w.flushScheduled = true
	debounce := time.Duration(w.cfg.DebounceMS) * time.Millisecond
	if debounce <= 0 {
		debounce = time.Millisecond
	}
	w.flushTimer = time.NewTimer(debounce)
}

func (w *Watcher) stopFlushTimerLocked() {
	if w.flushTimer != nil {
		w.flushTimer.Stop()
		w.flushTimer = nil
	}
	w.flushScheduled = false
}

func (w *Watcher) recordArrivalLocked() {
	now := time.Now()
	w.arrivals = append(w.arrivals, now)
	window := time.Duration(w.cfg.StreamAlertWindowSeconds) * time.Second
	if window <= 0 {
		return
	}
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(w.arrivals); i++ {
		if w.arrivals[i].After(cutoff) {
			break
		}
	}
	w.arrivals = w.arrivals[i:]

	if w.cfg.StreamAlertThreshold > 0 && len(w.arrivals) >= w.cfg.StreamAlertThreshold {
		if time.Since(w.lastAlertAt) >= window {
			logger.Warn("watcher: event arrival rate exceeds threshold", "count", len(w.arrivals), "window_seconds", w.cfg.StreamAlertWindowSeconds)
			w.lastAlertAt = now
		}
	}
}

func (w *Watcher) findRoot(path string) (WatchedRoot, bool) {
	var best WatchedRoot
	found := false
	for _, r := range w.roots {
		if isUnderDir(path, r.Path) {
			if !found || len(r.Path) > len(best.Path) {
				best = r
				found = true
			}
		}
	}
	return best, found
}

func isUnderDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (len(rel) > 0 && rel[0] != '.' && !filepath.IsAbs(rel))
}
