package search

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/indexer"
)

// dirWatchTokens is a best-effort, process-wide fsnotify watch that bumps
// a counter for every base directory touched by any filesystem event
// underneath it. The FSCache uses the counter alongside the directory's
// own mtime so a cached listing is invalidated the moment something
// changes anywhere under the watched root, not just in the listed
// directory itself.
type dirWatchTokens struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	watched map[string]struct{}
	tokens  map[string]int64
}

var globalWatchTokens = &dirWatchTokens{
	watched: make(map[string]struct{}),
	tokens:  make(map[string]int64),
}

func (d *dirWatchTokens) token(base string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens[base]
}

func (d *dirWatchTokens) ensureWatching(base string) {
	d.mu.Lock()
	if _, ok := d.watched[base]; ok {
		d.mu.Unlock()
		return
	}
	if d.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			d.mu.Unlock()
			return
		}
		d.watcher = w
		go d.drain()
	}
	if err := addRecursive(d.watcher, base); err != nil {
		d.mu.Unlock()
		return
	}
	d.watched[base] = struct{}{}
	if _, ok := d.tokens[base]; !ok {
		d.tokens[base] = 0
	}
	d.mu.Unlock()
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return nil
		}
		return w.Add(path)
	})
}

func (d *dirWatchTokens) drain() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.bump(ev.Name)
		case _, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (d *dirWatchTokens) bump(changedPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base := range d.watched {
		if base == changedPath || strings.HasPrefix(changedPath, base+string(filepath.Separator)) {
			d.tokens[base]++
		}
	}
}

// fsCacheEntry is one listing cached against a (base, target, kind,
// rootID) key.
type fsCacheEntry struct {
	dirMtimeNS int64
	watchToken int64
	cachedAt   time.Time
	entries    []Entry
}

// FSCache is an LRU cache of filesystem-walk directory listings, keyed
// the same way the original implementation keys its in-memory cache:
// base root, resolved target, scope/kind, and root id. A cached entry
// is valid only while the target directory's mtime and the watched
// root's change token both match what was recorded at fill time, and
// only within the configured TTL.
type FSCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   []string
	entries map[string]fsCacheEntry
}

// NewFSCache builds a cache with the given TTL and max entry count
// (LRU-evicted once exceeded, mirroring FS_LIST_CACHE_MAX).
func NewFSCache(ttl time.Duration, maxSize int) *FSCache {
	if maxSize <= 0 {
		maxSize = 32
	}
	return &FSCache{ttl: ttl, maxSize: maxSize, entries: make(map[string]fsCacheEntry)}
}

func fsCacheKey(base, target, kind, rootID string) string {
	return base + "|" + target + "|" + kind + "|" + rootID
}

func (c *FSCache) get(key string, dirMtimeNS, watchToken int64) ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.dirMtimeNS != dirMtimeNS || e.watchToken != watchToken {
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.cachedAt) > c.ttl {
		return nil, false
	}
	c.touch(key)
	return e.entries, true
}

func (c *FSCache) put(key string, dirMtimeNS, watchToken int64, entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = fsCacheEntry{dirMtimeNS: dirMtimeNS, watchToken: watchToken, cachedAt: time.Now(), entries: entries}
	c.touch(key)
	for len(c.order) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *FSCache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

// WalkDirectory lists files directly inside target (non-recursive),
// classifying each by extension and skipping anything unclassifiable
// or hidden. base is the confinement root used to compute subfolder;
// source/rootID are stamped onto every Entry so callers can tell
// filesystem rows from indexed ones.
func WalkDirectory(base, target, source, rootID string) ([]Entry, *apperr.Error) {
	dirEntries, err := os.ReadDir(target)
	if err != nil {
		return nil, apperr.NotFoundf("directory not found: %s", target)
	}

	var out []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if de.IsDir() {
			continue
		}
		kind, ok := indexer.ClassifyExtension(name)
		if !ok {
			continue
		}
		info, statErr := de.Info()
		if statErr != nil {
			continue
		}
		abs := filepath.Join(target, name)
		rel, relErr := filepath.Rel(base, target)
		sub := ""
		if relErr == nil && rel != "." {
			sub = filepath.ToSlash(rel)
		}
		out = append(out, Entry{
			Filepath:  abs,
			Filename:  name,
			Subfolder: sub,
			Source:    source,
			RootID:    rootID,
			Kind:      string(kind),
			Extension: strings.ToLower(filepath.Ext(name)),
			SizeBytes: info.Size(),
			Mtime:     info.ModTime().UnixNano(),
		})
	}
	return out, nil
}

// ListWithCache serves a single-directory listing from the FSCache,
// populating it from WalkDirectory on a miss.
func ListWithCache(_ context.Context, cache *FSCache, base, target, source, rootID string) ([]Entry, *apperr.Error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, apperr.NotFoundf("directory not found: %s", target)
	}
	if !info.IsDir() {
		return nil, apperr.Invalid("not a directory: %s", target)
	}

	globalWatchTokens.ensureWatching(base)
	token := globalWatchTokens.token(base)
	key := fsCacheKey(base, target, source, rootID)
	dirMtimeNS := info.ModTime().UnixNano()

	if cached, ok := cache.get(key, dirMtimeNS, token); ok {
		return cached, nil
	}

	entries, walkErr := WalkDirectory(base, target, source, rootID)
	if walkErr != nil {
		return nil, walkErr
	}
	cache.put(key, dirMtimeNS, token, entries)
	return entries, nil
}

// SortEntries orders filesystem-walk rows the same way the index path
// orders its SQL rows, so merging the two paths for "all" scope is a
// stable, order-preserving k-way merge rather than a second sort.
func SortEntries(entries []Entry, sort_ SortKey) {
	less := entryLess(sort_)
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
}

func entryLess(key SortKey) func(a, b Entry) bool {
	switch key {
	case SortMtimeAsc:
		return func(a, b Entry) bool {
			if a.Mtime != b.Mtime {
				return a.Mtime < b.Mtime
			}
			return a.Filepath < b.Filepath
		}
	case SortNameAsc:
		return func(a, b Entry) bool {
			al, bl := strings.ToLower(a.Filename), strings.ToLower(b.Filename)
			if al != bl {
				return al < bl
			}
			return a.Filepath < b.Filepath
		}
	case SortNameDesc:
		return func(a, b Entry) bool {
			al, bl := strings.ToLower(a.Filename), strings.ToLower(b.Filename)
			if al != bl {
				return al > bl
			}
			return a.Filepath > b.Filepath
		}
	case SortNone:
		return func(a, b Entry) bool { return false }
	default: // SortMtimeDesc
		return func(a, b Entry) bool {
			if a.Mtime != b.Mtime {
				return a.Mtime > b.Mtime
			}
			return a.Filepath > b.Filepath
		}
	}
}

// ApplyFilters runs the same bounds checks the index path expresses in
// SQL against a slice of filesystem-walk entries, for scopes that have
// no DB backing yet.
func ApplyFilters(entries []Entry, f Filters) []Entry {
	f = f.Normalize()
	out := entries[:0:0]
	for _, e := range entries {
		if !entryMatchesFilters(e, f) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func entryMatchesFilters(e Entry, f Filters) bool {
	if len(f.Kind) > 0 {
		found := false
		for _, k := range f.Kind {
			if string(k) == e.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Extensions) > 0 {
		found := false
		ext := strings.TrimPrefix(e.Extension, ".")
		for _, want := range f.Extensions {
			if ext == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.HasSize {
		if f.MinSize > 0 && e.SizeBytes < f.MinSize {
			return false
		}
		if f.MaxSize > 0 && e.SizeBytes > f.MaxSize {
			return false
		}
	}
	if f.HasWidth && e.HasWidth {
		if f.MinWidth > 0 && e.Width < f.MinWidth {
			return false
		}
		if f.MaxWidth > 0 && e.Width > f.MaxWidth {
			return false
		}
	}
	if f.HasHeight && e.HasHeight {
		if f.MinHeight > 0 && e.Height < f.MinHeight {
			return false
		}
		if f.MaxHeight > 0 && e.Height > f.MaxHeight {
			return false
		}
	}
	if f.HasMtime {
		if e.Mtime/1e9 < f.MtimeStart || e.Mtime/1e9 >= f.MtimeEnd {
			return false
		}
	}
	return true
}

// MatchesQuery applies the free-text remainder of a query (after
// inline filter tokens are stripped) as a case-insensitive filename
// substring match, the same fallback the walk path always had before
// anything was indexed.
func MatchesQuery(entries []Entry, text string) []Entry {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" || text == "*" {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Filename), text) {
			out = append(out, e)
		}
	}
	return out
}
