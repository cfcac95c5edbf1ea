package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/indexer"
)

type recordingScanner struct {
	mu    sync.Mutex
	calls []indexer.Options
}

func (r *recordingScanner) Scan(ctx context.Context, opts indexer.Options) (indexer.ScanStats, *apperr.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	return indexer.ScanStats{}, nil
}

func (r *recordingScanner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestWatcher(t *testing.T, cfg config.WatcherConfig, scanner Scanner) *Watcher {
	t.Helper()
	w := New(cfg, scanner)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	t.Cleanup(w.cancel)
	return w
}

func TestPassesSizeGate(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.png")
	big := filepath.Join(dir, "big.png")
	require.NoError(t, os.WriteFile(small, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(big, make([]byte, 1024), 0o644))

	w := newTestWatcher(t, config.WatcherConfig{MinSizeBytes: 10, MaxSizeBytes: 512}, &recordingScanner{})

	assert.False(t, w.passesSizeGate(small), "file below min_size_bytes should be gated out")
	assert.False(t, w.passesSizeGate(big), "file above max_size_bytes should be gated out")
	assert.True(t, w.passesSizeGate(filepath.Join(dir, "missing.png")), "missing file should pass the gate so deletions reconcile")
}

func TestIsProbablyDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "leaf.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, isProbablyDir(dir))
	assert.False(t, isProbablyDir(file))
	assert.False(t, isProbablyDir(filepath.Join(dir, "missing")))
}

func TestIsUnderDir(t *testing.T) {
	assert.True(t, isUnderDir("/a/b/c.png", "/a/b"))
	assert.True(t, isUnderDir("/a/b", "/a/b"))
	assert.False(t, isUnderDir("/a/bc/c.png", "/a/b"))
	assert.False(t, isUnderDir("/a/c.png", "/a/b"))
}

func TestFindRootPrefersLongestMatch(t *testing.T) {
	w := newTestWatcher(t, config.WatcherConfig{}, &recordingScanner{})
	w.roots = []WatchedRoot{
		{Path: "/data/output", Source: assetdb.SourceOutput, RootID: ""},
		{Path: "/data/output/batch", Source: assetdb.SourceCustom, RootID: "batch-1"},
	}

	root, ok := w.findRoot("/data/output/batch/image.png")
	require.True(t, ok)
	assert.Equal(t, "batch-1", root.RootID)

	root, ok = w.findRoot("/data/output/image.png")
	require.True(t, ok)
	assert.Equal(t, assetdb.SourceOutput, root.Source)

	_, ok = w.findRoot("/elsewhere/image.png")
	assert.False(t, ok)
}

func TestFlushGroupsByDirectoryAndClearsPending(t *testing.T) {
	scanner := &recordingScanner{}
	w := newTestWatcher(t, config.WatcherConfig{FlushMaxFiles: 100, MaxFlushConcurrency: 2}, scanner)

	root := WatchedRoot{Path: "/data/output", Source: assetdb.SourceOutput, RootID: ""}
	w.pending = map[string]pendingEvent{
		"/data/output/a/1.png": {root: root},
		"/data/output/a/2.png": {root: root},
		"/data/output/b/3.png": {root: root},
	}

	w.flush()

	assert.Empty(t, w.pending)
	assert.Equal(t, 2, scanner.callCount(), "expected one scan per distinct directory")
	for _, call := range scanner.calls {
		assert.False(t, call.Recursive)
		assert.True(t, call.Incremental)
		assert.Equal(t, assetdb.SourceOutput, call.Source)
	}
}

func TestFlushPromotesOverflowAndRespectsMaxFiles(t *testing.T) {
	scanner := &recordingScanner{}
	w := newTestWatcher(t, config.WatcherConfig{FlushMaxFiles: 1, MaxFlushConcurrency: 1}, scanner)

	root := WatchedRoot{Path: "/data/output", Source: assetdb.SourceOutput}
	w.overflow = map[string]pendingEvent{
		"/data/output/a/1.png": {root: root},
		"/data/output/a/2.png": {root: root},
	}

	w.flush()

	assert.Empty(t, w.overflow)
	assert.Len(t, w.pending, 1, "only flush_max_files entries should be taken per flush, the rest stays pending")
	assert.Equal(t, 1, scanner.callCount())
}

func TestFlushNoopWhenNothingPending(t *testing.T) {
	scanner := &recordingScanner{}
	w := newTestWatcher(t, config.WatcherConfig{FlushMaxFiles: 10}, scanner)

	w.flush()

	assert.Zero(t, scanner.callCount())
}

func TestWatchedPathsAndPendingCount(t *testing.T) {
	w := newTestWatcher(t, config.WatcherConfig{}, &recordingScanner{})
	w.roots = []WatchedRoot{
		{Path: "/data/output", Source: assetdb.SourceOutput},
		{Path: "/data/input", Source: assetdb.SourceInput},
	}
	w.pending = map[string]pendingEvent{"/data/output/a.png": {}}
	w.overflow = map[string]pendingEvent{"/data/output/b.png": {}}

	assert.ElementsMatch(t, []string{"/data/output", "/data/input"}, w.WatchedPaths())
	assert.Equal(t, 2, w.PendingCount())
}

func TestNoopObserverSatisfiesObserver(t *testing.T) {
	var o Observer = NoopObserver{}
	require.NoError(t, o.Start(context.Background(), nil))
	assert.Nil(t, o.WatchedPaths())
	assert.Zero(t, o.PendingCount())
	o.Stop()
}

func TestWatcherSatisfiesObserver(t *testing.T) {
	var _ Observer = (*Watcher)(nil)
}

func TestStartDisabledIsNoop(t *testing.T) {
	w := New(config.WatcherConfig{Enabled: false}, &recordingScanner{})
	err := w.Start(context.Background(), []WatchedRoot{{Path: t.TempDir()}})
	require.NoError(t, err)
	w.Stop()
}

func TestTriggerFlushLockedDebounce(t *testing.T) {
	w := newTestWatcher(t, config.WatcherConfig{DebounceMS: 20}, &recordingScanner{})
	w.mu.Lock()
	w.triggerFlushLocked(false)
	first := w.flushTimer
	w.triggerFlushLocked(false)
	w.mu.Unlock()

	assert.Same(t, first, w.flushTimer, "a second non-immediate trigger should not replace an already-scheduled timer")
	w.stopFlushTimer()
}

func TestWithinDedupeTTL(t *testing.T) {
	w := newTestWatcher(t, config.WatcherConfig{DedupeTTLMS: 50}, &recordingScanner{})
	w.lastEventAt["/a.png"] = time.Now()
	assert.True(t, w.withinDedupeTTL("/a.png"))
	assert.False(t, w.withinDedupeTTL("/unseen.png"))
}
