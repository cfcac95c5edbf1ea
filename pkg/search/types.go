// Package search implements the listing/search engine (component F):
// an FTS-backed index path for indexed scopes, a filesystem-walk
// fallback path with a short-TTL directory cache for scopes that
// aren't indexed yet, a stable merge between the two for the "all"
// scope, DB hydration of walked rows, case-normalized dedup, and
// rate-limited autocomplete.
package search

import (
	"time"

	"github.com/majoor/assetindex/pkg/assetdb"
)

// Scope names where a listing draws its rows from.
type Scope string

const (
	ScopeOutput  Scope = "output"
	ScopeInput   Scope = "input"
	ScopeAll     Scope = "all"
	ScopeCustom  Scope = "custom"
	ScopeBrowser Scope = "browser"
)

// SortKey names the supported orderings. All except none are
// deterministic: ties break on filepath. none applies no ordering.
type SortKey string

const (
	SortMtimeDesc SortKey = "mtime_desc"
	SortMtimeAsc  SortKey = "mtime_asc"
	SortNameAsc   SortKey = "name_asc"
	SortNameDesc  SortKey = "name_desc"
	SortNone      SortKey = "none"
)

// NormalizeSortKey defaults to mtime_desc, mirroring the original
// sanitizer's fallback.
func NormalizeSortKey(raw string) SortKey {
	switch SortKey(raw) {
	case SortMtimeDesc, SortMtimeAsc, SortNameAsc, SortNameDesc, SortNone:
		return SortKey(raw)
	default:
		return SortMtimeDesc
	}
}

// Filters is the parsed, bounds-checked filter set applied to a
// listing, combining both inline query tokens and explicit filter
// parameters.
type Filters struct {
	Kind         []assetdb.Kind
	MinRating    int
	HasMinRating bool
	MinSize      int64
	MaxSize      int64
	HasSize      bool
	MinWidth     int64
	MaxWidth     int64
	HasWidth     bool
	MinHeight    int64
	MaxHeight    int64
	HasHeight    bool
	WorkflowType string
	HasWorkflow  *bool
	Extensions   []string
	MtimeStart   int64
	MtimeEnd     int64
	HasMtime     bool
	Source       string
	ExcludeRoot  string
}

// mtimeOpenEnd stands in for an unset mtime_end: far enough out to be
// unreachable, small enough that the nanosecond conversion in the SQL
// builder cannot overflow int64.
const mtimeOpenEnd = int64(1) << 33

// Normalize applies the "max<min after both bounds set" correction the
// index path's contract requires, returning a copy. An mtime window
// with only a start bound gets an open end.
func (f Filters) Normalize() Filters {
	if f.HasMtime && f.MtimeEnd <= 0 {
		f.MtimeEnd = mtimeOpenEnd
	}
	if f.HasSize && f.MaxSize > 0 && f.MinSize > 0 && f.MaxSize < f.MinSize {
		f.MaxSize = f.MinSize
	}
	if f.HasWidth && f.MaxWidth > 0 && f.MinWidth > 0 && f.MaxWidth < f.MinWidth {
		f.MaxWidth = f.MinWidth
	}
	if f.HasHeight && f.MaxHeight > 0 && f.MinHeight > 0 && f.MaxHeight < f.MinHeight {
		f.MaxHeight = f.MinHeight
	}
	return f
}

// Request is a fully-parsed listing/search request.
type Request struct {
	Scope        Scope
	Query        string
	Filters      Filters
	Sort         SortKey
	Limit        int
	Offset       int
	IncludeTotal bool
	RootID       string
	Path         string
}

// Entry is one row in a listing response, unifying DB-backed assets
// and filesystem-only rows discovered by the walk path. ID is zero for
// rows that have not yet been hydrated from the index.
type Entry struct {
	ID          int64    `json:"id"`
	Filepath    string   `json:"filepath"`
	Filename    string   `json:"filename"`
	Subfolder   string   `json:"subfolder"`
	Source      string   `json:"source"`
	RootID      string   `json:"root_id,omitempty"`
	Kind        string   `json:"kind"`
	Extension   string   `json:"extension"`
	SizeBytes   int64    `json:"size_bytes"`
	Mtime       int64    `json:"mtime"`
	Width       int64    `json:"width,omitempty"`
	Height      int64    `json:"height,omitempty"`
	HasWidth    bool     `json:"has_width"`
	HasHeight   bool     `json:"has_height"`
	Rating      int      `json:"rating"`
	Tags        []string `json:"tags"`
	HasWorkflow bool     `json:"has_workflow"`
	IsFolder    bool     `json:"is_folder"`
}

// Response is the paged listing/search result shape shared by /list
// and /search.
type Response struct {
	Assets []Entry `json:"assets"`
	Total  int     `json:"total"`
	Scope  Scope   `json:"scope"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Limits bounds request-time limit/offset clamping, sourced from
// config.SearchConfig.
type Limits struct {
	MaxListLimit      int
	MaxListOffset     int
	DirCacheTTL       time.Duration
	InteractionPause  time.Duration
	AutocompleteLimit int
}

const defaultListLimit = 50

// ClampLimit applies the default-then-ceiling policy the original
// sanitizer uses for the limit parameter. A negative value means the
// parameter was absent and takes the default; an explicit zero stays
// zero (an empty page with a valid total).
func ClampLimit(requested, max int) int {
	if requested < 0 {
		return defaultListLimit
	}
	if max > 0 && requested > max {
		return max
	}
	return requested
}

// ClampOffset floors offset at zero and caps it at max.
func ClampOffset(requested, max int) int {
	if requested < 0 {
		return 0
	}
	if max > 0 && requested > max {
		return max
	}
	return requested
}
