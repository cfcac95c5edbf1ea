package httpapi

import (
	"net/http"
	"time"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/search"
)

// handleDuplicatesAlerts reports duplicate groups: exact equivalence
// classes by content_hash, plus perceptual-hash clusters within the
// configured Hamming distance. Mounted under the maintenance fence, so
// it short-circuits with DB_MAINTENANCE while destructive storage
// operations run.
func (s *Server) handleDuplicatesAlerts(w http.ResponseWriter, r *http.Request) {
	groups, aerr := assetdb.ListDuplicateGroups(r.Context(), s.app.Store, s.app.Cfg.Search.DuplicateHammingBound)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	duplicates := 0
	for _, g := range groups {
		duplicates += len(g.Members) - 1
	}
	okMeta(w, groups, map[string]any{"groups": len(groups), "duplicates": duplicates})
}

// handleCalendar buckets indexed assets by calendar day for the UI's
// activity heatmap. The window comes from (in precedence order) a
// named relative range, an exact date, or explicit mtime_start/
// mtime_end unix-second bounds; absent all three it covers the current
// month.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	req, aerr := parseListRequest(r, s.limits())
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}

	q := r.URL.Query()
	var start, end int64
	switch {
	case q.Get("range") != "":
		var ok bool
		start, end, ok = search.DateRangeBounds(q.Get("range"), time.Time{})
		if !ok {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("unknown range %q", q.Get("range")))
			return
		}
	case q.Get("date") != "":
		var ok bool
		start, end, ok = search.DateExactBounds(q.Get("date"))
		if !ok {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("date must be YYYY-MM-DD"))
			return
		}
	case req.Filters.HasMtime:
		start, end = req.Filters.MtimeStart, req.Filters.MtimeEnd
		req.Filters.HasMtime = false
	default:
		start, end, _ = search.DateRangeBounds("this_month", time.Time{})
	}
	if end <= start {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("empty calendar window"))
		return
	}

	buckets, aerr := search.QueryCalendar(r.Context(), s.app.Store, req,
		start*int64(time.Second), end*int64(time.Second))
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	out := make([]map[string]any, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, map[string]any{"date": b.Date, "count": b.Count})
	}
	okMeta(w, out, map[string]any{"start": start, "end": end, "scope": string(req.Scope)})
}
