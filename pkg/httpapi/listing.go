package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/paths"
	"github.com/majoor/assetindex/pkg/search"
)

// parseListRequest builds a search.Request from the common /list and
// /search query vocabulary (spec §4.F).
func parseListRequest(r *http.Request, limits search.Limits) (search.Request, *apperr.Error) {
	q := r.URL.Query()
	text, inline := search.ParseInlineFilters(q.Get("q"))

	filters := search.Filters{Source: q.Get("source"), ExcludeRoot: q.Get("exclude_root")}
	if v := q.Get("kind"); v != "" {
		filters.Kind = []assetdb.Kind{assetdb.Kind(v)}
	}
	if v, err := strconv.Atoi(q.Get("min_rating")); err == nil {
		filters.HasMinRating = true
		filters.MinRating = v
	}
	if v, err := strconv.ParseInt(q.Get("min_size"), 10, 64); err == nil {
		filters.HasSize = true
		filters.MinSize = v
	}
	if v, err := strconv.ParseInt(q.Get("max_size"), 10, 64); err == nil {
		filters.HasSize = true
		filters.MaxSize = v
	}
	if v, err := strconv.ParseInt(q.Get("min_width"), 10, 64); err == nil {
		filters.HasWidth = true
		filters.MinWidth = v
	}
	if v, err := strconv.ParseInt(q.Get("max_width"), 10, 64); err == nil {
		filters.HasWidth = true
		filters.MaxWidth = v
	}
	if v, err := strconv.ParseInt(q.Get("min_height"), 10, 64); err == nil {
		filters.HasHeight = true
		filters.MinHeight = v
	}
	if v, err := strconv.ParseInt(q.Get("max_height"), 10, 64); err == nil {
		filters.HasHeight = true
		filters.MaxHeight = v
	}
	if v := q.Get("workflow_type"); v != "" {
		filters.WorkflowType = v
	}
	if v := q.Get("has_workflow"); v != "" {
		b := v == "1" || strings.EqualFold(v, "true")
		filters.HasWorkflow = &b
	}
	if v := q["extensions"]; len(v) > 0 {
		filters.Extensions = v
	}
	if v, err := strconv.ParseInt(q.Get("mtime_start"), 10, 64); err == nil {
		filters.HasMtime = true
		filters.MtimeStart = v
	}
	if v, err := strconv.ParseInt(q.Get("mtime_end"), 10, 64); err == nil {
		filters.HasMtime = true
		filters.MtimeEnd = v
	}
	filters = filters.ApplyInline(inline)

	// Absent limit takes the default; an explicit limit=0 is honored as
	// an empty page (the total is still computed).
	limit := -1
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limits.MaxListOffset > 0 && offset > limits.MaxListOffset {
		return search.Request{}, apperr.Invalid("offset %d exceeds the maximum of %d", offset, limits.MaxListOffset)
	}

	return search.Request{
		Scope:        search.Scope(defaultString(q.Get("scope"), "output")),
		Query:        text,
		Filters:      filters.Normalize(),
		Sort:         search.NormalizeSortKey(q.Get("sort")),
		Limit:        search.ClampLimit(limit, limits.MaxListLimit),
		Offset:       search.ClampOffset(offset, limits.MaxListOffset),
		IncludeTotal: q.Get("include_total") != "false",
		RootID:       q.Get("root_id"),
		Path:         q.Get("path"),
	}, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// runListing dispatches req to the indexed SQL path, the filesystem
// walk path, or a merge of both, per the scope rules in spec §4.F.
func (a *App) runListing(ctx context.Context, req search.Request) (search.Response, *apperr.Error) {
	switch req.Scope {
	case search.ScopeOutput, search.ScopeCustom:
		return a.indexedListing(ctx, req)
	case search.ScopeInput:
		resp, err := a.indexedListing(ctx, req)
		if err != nil || len(resp.Assets) > 0 || resp.Total > 0 || a.Registry.InputRoot() == "" {
			return resp, err
		}
		return a.filesystemListing(ctx, req, a.Registry.InputRoot(), a.Registry.InputRoot(), "input", "")
	case search.ScopeAll:
		return a.mergedListing(ctx, req)
	case search.ScopeBrowser:
		return a.browserListing(ctx, req)
	default:
		return search.Response{}, apperr.Invalid("unknown scope %q", req.Scope)
	}
}

func (a *App) indexedListing(ctx context.Context, req search.Request) (search.Response, *apperr.Error) {
	resp, err := search.QueryIndexed(ctx, a.Store, req)
	if err != nil {
		return search.Response{}, err
	}
	resp = search.DedupeResponse(resp)
	return resp, nil
}

// paginate applies the request's limit/offset to an in-memory entry
// slice gathered outside SQL (filesystem and merged scopes), since
// those paths can't push LIMIT/OFFSET down to a query. A negative
// limit means unbounded; zero means an empty page with a valid total.
func paginate(entries []search.Entry, req search.Request) search.Response {
	total := len(entries)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + req.Limit
	if req.Limit < 0 || end > total {
		end = total
	}
	page := entries[start:end]
	return search.Response{Assets: page, Total: total, Scope: req.Scope, Limit: req.Limit, Offset: req.Offset}
}

func (a *App) filesystemListing(ctx context.Context, req search.Request, base, target, source, rootID string) (search.Response, *apperr.Error) {
	entries, err := search.ListWithCache(ctx, a.FSCache, base, target, source, rootID)
	if err != nil {
		return search.Response{}, err
	}
	entries = search.ApplyFilters(entries, req.Filters)
	if req.Query != "" {
		entries = search.MatchesQuery(entries, req.Query)
	}
	entries, err = search.HydrateAssets(ctx, a.Store, entries)
	if err != nil {
		return search.Response{}, err
	}
	search.SortEntries(entries, req.Sort)
	return search.DedupeResponse(paginate(entries, req)), nil
}

// mergedListing serves scope=all by stably k-way merging the indexed
// output stream with the input root's filesystem stream, per spec
// §4.F's merged "all" scope contract.
func (a *App) mergedListing(ctx context.Context, req search.Request) (search.Response, *apperr.Error) {
	// Pull the full indexed stream: pagination happens after the merge,
	// so the DB query runs unbounded and from offset zero.
	outReq := req
	outReq.Scope = search.ScopeOutput
	outReq.Limit = -1
	outReq.Offset = 0
	outResp, err := search.QueryIndexed(ctx, a.Store, outReq)
	if err != nil {
		return search.Response{}, err
	}

	var inEntries []search.Entry
	if a.Registry.InputRoot() != "" {
		inEntries, err = search.ListWithCache(ctx, a.FSCache, a.Registry.InputRoot(), a.Registry.InputRoot(), "input", "")
		if err != nil {
			inEntries = nil
		} else {
			inEntries = search.ApplyFilters(inEntries, req.Filters)
			if req.Query != "" {
				inEntries = search.MatchesQuery(inEntries, req.Query)
			}
			inEntries, err = search.HydrateAssets(ctx, a.Store, inEntries)
			if err != nil {
				return search.Response{}, err
			}
		}
	}

	merged := search.MergeSorted(outResp.Assets, inEntries, req.Sort)
	resp := paginate(merged, req)
	resp = search.DedupeResponse(resp)
	return resp, nil
}

// browserListing serves scope=browser: an uncached filesystem walk of
// a registered custom root that may not be indexed yet, confined to
// the root via ResolveCustom the same way every other path-bearing
// endpoint confines user input. The handler gates this scope to
// loopback clients before runListing is ever reached.
func (a *App) browserListing(ctx context.Context, req search.Request) (search.Response, *apperr.Error) {
	if req.RootID == "" {
		return search.Response{}, apperr.Invalid("browser scope requires a root_id parameter")
	}
	resolved, aerr := a.Registry.ResolveCustom(req.RootID, req.Path)
	if aerr != nil {
		return search.Response{}, aerr
	}
	return a.browserListingAt(ctx, req, resolved)
}

// browserListingAt runs the filesystem walk against an already
// resolved and confined path.
func (a *App) browserListingAt(ctx context.Context, req search.Request, resolved *paths.Resolved) (search.Response, *apperr.Error) {
	source := string(resolved.Kind)
	return a.filesystemListing(ctx, req, resolved.RootPath, resolved.Abs, source, resolved.RootID)
}
