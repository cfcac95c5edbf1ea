// Package paths resolves and confines filesystem access to the configured
// output/input directories plus any registered custom roots. No component
// outside this package should call filepath.Join against a user-supplied
// path without going through Resolve first.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/majoor/assetindex/internal/apperr"
)

// Kind identifies which builtin root a resolved path belongs to.
type Kind string

const (
	KindOutput Kind = "output"
	KindInput  Kind = "input"
	KindCustom Kind = "custom"
)

// Resolved is an absolute, confinement-checked path plus the root it
// resolved against.
type Resolved struct {
	Kind     Kind
	RootID   string // empty for output/input
	RootPath string
	Abs      string
	Rel      string
}

// Registry owns the builtin output/input roots and confines resolution
// against them plus any roots registered at runtime via the custom root
// store. It is safe for concurrent use.
type Registry struct {
	outputRoot string
	inputRoot  string
	custom     *CustomRootStore
}

// NewRegistry resolves and validates the builtin roots. outputDir must
// exist; inputDir may be empty (input browsing disabled).
func NewRegistry(outputDir, inputDir string, custom *CustomRootStore) (*Registry, error) {
	out, err := normalizeExistingDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	reg := &Registry{outputRoot: out, custom: custom}
	if inputDir != "" {
		in, err := normalizeExistingDir(inputDir)
		if err != nil {
			return nil, fmt.Errorf("input directory: %w", err)
		}
		reg.inputRoot = in
	}
	return reg, nil
}

func normalizeExistingDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// OutputRoot returns the resolved output directory.
func (r *Registry) OutputRoot() string { return r.outputRoot }

// InputRoot returns the resolved input directory, or "" if disabled.
func (r *Registry) InputRoot() string { return r.inputRoot }

// AllowedDirectories returns the current set of confinement roots: output,
// input (if configured) and every registered custom root.
func (r *Registry) AllowedDirectories() []string {
	dirs := []string{r.outputRoot}
	if r.inputRoot != "" {
		dirs = append(dirs, r.inputRoot)
	}
	if r.custom != nil {
		for _, cr := range r.custom.List() {
			if !cr.Offline {
				dirs = append(dirs, cr.Path)
			}
		}
	}
	return dirs
}

// FindContainingRoot reports which root (builtin or custom) absPath falls
// under, for callers that need to classify a path before resolving it
// (e.g. the indexer's resolve-or-create path). ok is false if absPath is
// outside every allowed root.
func (r *Registry) FindContainingRoot(absPath string) (kind Kind, rootID string, ok bool) {
	if IsWithinRoot(absPath, r.outputRoot) {
		return KindOutput, "", true
	}
	if r.inputRoot != "" && IsWithinRoot(absPath, r.inputRoot) {
		return KindInput, "", true
	}
	if r.custom != nil {
		for _, cr := range r.custom.List() {
			if cr.Offline {
				continue
			}
			if IsWithinRoot(absPath, cr.Path) {
				return KindCustom, cr.ID, true
			}
		}
	}
	return "", "", false
}

// SafeRelPath validates a user-supplied relative path component: no NUL
// bytes, no absolute path, no ".." segment, no drive letter escape.
func SafeRelPath(value string) (string, bool) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "", true
	}
	if strings.ContainsRune(raw, 0) {
		return "", false
	}
	if filepath.IsAbs(raw) {
		return "", false
	}
	cleaned := filepath.ToSlash(filepath.Clean(raw))
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return "", false
		}
	}
	return cleaned, true
}

// Resolve validates relPath against root (scope "output" or "input") and
// returns the confined absolute path.
func (r *Registry) Resolve(kind Kind, relPath string) (*Resolved, *apperr.Error) {
	var root string
	switch kind {
	case KindOutput:
		root = r.outputRoot
	case KindInput:
		if r.inputRoot == "" {
			return nil, apperr.Invalid("input directory is not configured")
		}
		root = r.inputRoot
	default:
		return nil, apperr.Invalid("unknown root kind %q", kind)
	}
	return r.resolveAgainst(kind, "", root, relPath)
}

// ResolveCustom validates relPath against the custom root identified by
// rootID.
func (r *Registry) ResolveCustom(rootID, relPath string) (*Resolved, *apperr.Error) {
	if r.custom == nil {
		return nil, apperr.NotFoundf("custom root %q not found", rootID)
	}
	cr, ok := r.custom.Get(rootID)
	if !ok {
		return nil, apperr.NotFoundf("custom root %q not found", rootID)
	}
	if cr.Offline {
		return nil, apperr.Unavailable("custom root %q is offline", rootID)
	}
	return r.resolveAgainst(KindCustom, rootID, cr.Path, relPath)
}

func (r *Registry) resolveAgainst(kind Kind, rootID, root, relPath string) (*Resolved, *apperr.Error) {
	clean, ok := SafeRelPath(relPath)
	if !ok {
		return nil, apperr.Invalid("invalid path %q", relPath)
	}
	abs := filepath.Join(root, filepath.FromSlash(clean))
	if !IsWithinRoot(abs, root) {
		return nil, apperr.Forbiddenf("path escapes confined root")
	}
	return &Resolved{Kind: kind, RootID: rootID, RootPath: root, Abs: abs, Rel: clean}, nil
}

// IsWithinRoot reports whether candidate is root itself or a descendant of
// root after symlink resolution. Both paths are expected to already be
// filepath-cleaned absolute paths; IsWithinRoot performs its own
// EvalSymlinks so callers don't need to pre-resolve.
func IsWithinRoot(candidate, root string) bool {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}
	// The candidate need not exist yet (e.g. a file about to be created),
	// so fall back to the deepest existing ancestor for symlink resolution.
	resolvedCandidate := resolveDeepestExisting(candidate)

	rel, err := filepath.Rel(resolvedRoot, resolvedCandidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..") && rel != ".."
}

func resolveDeepestExisting(path string) string {
	cur := path
	var suffix []string
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if len(suffix) == 0 {
				return resolved
			}
			full := resolved
			for i := len(suffix) - 1; i >= 0; i-- {
				full = filepath.Join(full, suffix[i])
			}
			return full
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path
		}
		suffix = append(suffix, filepath.Base(cur))
		cur = parent
	}
}
