package paths

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/majoor/assetindex/internal/apperr"
)

// CustomRoot is a user-registered directory outside the builtin output/
// input roots.
type CustomRoot struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Offline   bool      `json:"-"`
}

type customRootFile struct {
	Version int          `json:"version"`
	Roots   []CustomRoot `json:"roots"`
}

// CustomRootStore persists CustomRoot entries to a JSON file under the
// index directory, guarded by a mutex and written atomically (tmp file +
// rename) so a crash mid-write never corrupts the store.
type CustomRootStore struct {
	mu   sync.RWMutex
	path string
	// builtin roots the store refuses to overlap with.
	outputRoot string
	inputRoot  string
}

// NewCustomRootStore loads storePath (if it exists) and returns a store
// that rejects any root overlapping outputRoot or inputRoot.
func NewCustomRootStore(storePath, outputRoot, inputRoot string) (*CustomRootStore, error) {
	s := &CustomRootStore{path: storePath, outputRoot: outputRoot, inputRoot: inputRoot}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CustomRootStore) read() (customRootFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return customRootFile{Version: 1}, nil
		}
		return customRootFile{}, err
	}
	var f customRootFile
	if err := json.Unmarshal(data, &f); err != nil {
		// A corrupt store is treated as empty rather than fatal; the next
		// write repairs it.
		return customRootFile{Version: 1}, nil
	}
	if f.Version == 0 {
		f.Version = 1
	}
	return f, nil
}

func (s *CustomRootStore) write(f customRootFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + fmt.Sprintf(".tmp_%s", uuid.NewString())
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// List returns every registered root with its current Offline status
// refreshed from disk.
func (s *CustomRootStore) List() []CustomRoot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.read()
	if err != nil {
		return nil
	}
	out := make([]CustomRoot, 0, len(f.Roots))
	for _, r := range f.Roots {
		r.Offline = !dirExists(r.Path)
		out = append(out, r)
	}
	return out
}

// Get returns the root with the given id.
func (s *CustomRootStore) Get(id string) (CustomRoot, bool) {
	for _, r := range s.List() {
		if r.ID == id {
			return r, true
		}
	}
	return CustomRoot{}, false
}

// Add registers path as a new custom root, returning the existing entry
// (already_exists semantics handled by the caller via the returned bool)
// if an equivalent path is already registered.
func (s *CustomRootStore) Add(path, label string) (CustomRoot, bool, *apperr.Error) {
	abs, err := normalizeExistingDir(path)
	if err != nil {
		return CustomRoot{}, false, apperr.Invalid("directory not found: %s", path)
	}
	if overlapsRoot(abs, s.outputRoot) {
		return CustomRoot{}, false, apperr.Conflictf("root overlaps with the output directory")
	}
	if s.inputRoot != "" && overlapsRoot(abs, s.inputRoot) {
		return CustomRoot{}, false, apperr.Conflictf("root overlaps with the input directory")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return CustomRoot{}, false, apperr.Wrap(apperr.DBError, "failed to read custom roots", err)
	}
	key := canonicalKey(abs)
	for _, r := range f.Roots {
		if canonicalKey(r.Path) == key {
			return r, true, nil
		}
		if overlapsRoot(abs, r.Path) {
			return CustomRoot{}, false, apperr.Conflictf("root overlaps with existing root %s", r.Path)
		}
	}

	safeLabel := strings.TrimSpace(label)
	if safeLabel == "" {
		safeLabel = filepath.Base(abs)
	}
	root := CustomRoot{ID: uuid.NewString(), Path: abs, Label: safeLabel, CreatedAt: time.Now().UTC()}
	f.Roots = append(f.Roots, root)
	if err := s.write(f); err != nil {
		return CustomRoot{}, false, apperr.Wrap(apperr.DBError, "failed to persist custom roots", err)
	}
	return root, false, nil
}

// Remove deletes the root with the given id.
func (s *CustomRootStore) Remove(id string) *apperr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return apperr.Wrap(apperr.DBError, "failed to read custom roots", err)
	}
	kept := f.Roots[:0]
	found := false
	for _, r := range f.Roots {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return apperr.NotFoundf("custom root %q not found", id)
	}
	f.Roots = kept
	if err := s.write(f); err != nil {
		return apperr.Wrap(apperr.DBError, "failed to persist custom roots", err)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func overlapsRoot(candidate, root string) bool {
	if root == "" {
		return false
	}
	return IsWithinRoot(candidate, root) || IsWithinRoot(root, candidate)
}

// canonicalKey normalizes a path for duplicate detection independent of
// case on case-insensitive filesystems.
func canonicalKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
