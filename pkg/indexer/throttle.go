package indexer

import (
	"path/filepath"
	"sync"
	"time"
)

// scanThrottle tracks which directories were recently scanned so
// background scans can skip ones a manual scan (or a recent background
// scan) already covered within the grace window.
type scanThrottle struct {
	mu          sync.Mutex
	manual      map[string]time.Time
	recent      map[string]time.Time
	maxEntryAge time.Duration
}

func newScanThrottle(grace time.Duration) *scanThrottle {
	maxAge := 10 * time.Minute
	if grace*5 > maxAge {
		maxAge = grace * 5
	}
	return &scanThrottle{
		manual:      make(map[string]time.Time),
		recent:      make(map[string]time.Time),
		maxEntryAge: maxAge,
	}
}

func throttleKey(dir string, source, rootID string) string {
	norm := dir
	if abs, err := filepath.Abs(dir); err == nil {
		norm = abs
	}
	return source + "|" + rootID + "|" + norm
}

// markIndexed records a completed scan; metadataComplete mirrors the
// original's guard that only fully-enriched scans should suppress
// background rescans.
func (t *scanThrottle) markIndexed(dir, source, rootID string, metadataComplete bool) {
	if !metadataComplete {
		return
	}
	now := time.Now()
	key := throttleKey(dir, source, rootID)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manual[key] = now
	t.cleanupLocked(now)
}

// markScanned records that a scan ran, regardless of enrichment outcome.
func (t *scanThrottle) markScanned(dir, source, rootID string) {
	now := time.Now()
	key := throttleKey(dir, source, rootID)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent[key] = now
	t.cleanupLocked(now)
}

// shouldSkip reports whether a background scan of dir should be
// suppressed because a recent scan already covered it.
func (t *scanThrottle) shouldSkip(dir, source, rootID string, grace time.Duration, includeRecent bool) bool {
	now := time.Now()
	key := throttleKey(dir, source, rootID)
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.manual[key]
	if !ok {
		if !includeRecent {
			return false
		}
		ts, ok = t.recent[key]
		if !ok {
			return false
		}
	}
	if now.Sub(ts) < grace {
		return true
	}
	if now.Sub(ts) > t.maxEntryAge {
		delete(t.manual, key)
		delete(t.recent, key)
	}
	return false
}

func (t *scanThrottle) cleanupLocked(now time.Time) {
	cutoff := now.Add(-t.maxEntryAge)
	for k, v := range t.manual {
		if v.Before(cutoff) {
			delete(t.manual, k)
		}
	}
	for k, v := range t.recent {
		if v.Before(cutoff) {
			delete(t.recent, k)
		}
	}
}
