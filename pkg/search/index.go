package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

// indexColumns mirrors assetColumns in pkg/assetdb but adds the
// metadata join the listing engine always needs.
const indexColumns = `a.id, a.filepath, a.filename, a.subfolder, a.source, a.root_id, a.kind,
	a.extension, a.size_bytes, a.mtime, a.width, a.height,
	COALESCE(m.rating, 0), COALESCE(m.tags_json, '[]'), COALESCE(m.has_workflow, 0)`

type sqlBuilder struct {
	where []string
	args  []any
}

func (b *sqlBuilder) add(clause string, args ...any) {
	b.where = append(b.where, clause)
	b.args = append(b.args, args...)
}

// buildWhere assembles the WHERE clause shared by the row query and
// the count query for an indexed scope.
func buildWhere(req Request) sqlBuilder {
	var b sqlBuilder
	f := req.Filters.Normalize()

	switch req.Scope {
	case ScopeOutput:
		b.add("a.source = ?", "output")
	case ScopeInput:
		b.add("a.source = ?", "input")
	case ScopeCustom:
		b.add("a.source = ?", "custom")
		if req.RootID != "" {
			b.add("a.root_id = ?", req.RootID)
		}
	}
	if f.Source != "" && req.Scope != ScopeOutput && req.Scope != ScopeInput && req.Scope != ScopeCustom {
		b.add("a.source = ?", f.Source)
	}

	if len(f.Kind) > 0 {
		placeholders := make([]string, len(f.Kind))
		for i, k := range f.Kind {
			placeholders[i] = "?"
			b.args = append(b.args, string(k))
		}
		b.where = append(b.where, "a.kind IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(f.Extensions) > 0 {
		placeholders := make([]string, len(f.Extensions))
		for i, e := range f.Extensions {
			placeholders[i] = "?"
			b.args = append(b.args, e)
		}
		b.where = append(b.where, "ltrim(lower(a.extension), '.') IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.HasMinRating {
		b.add("COALESCE(m.rating, 0) >= ?", f.MinRating)
	}
	if f.HasSize {
		if f.MinSize > 0 {
			b.add("a.size_bytes >= ?", f.MinSize)
		}
		if f.MaxSize > 0 {
			b.add("a.size_bytes <= ?", f.MaxSize)
		}
	}
	if f.HasWidth {
		if f.MinWidth > 0 {
			b.add("a.width >= ?", f.MinWidth)
		}
		if f.MaxWidth > 0 {
			b.add("a.width <= ?", f.MaxWidth)
		}
	}
	if f.HasHeight {
		if f.MinHeight > 0 {
			b.add("a.height >= ?", f.MinHeight)
		}
		if f.MaxHeight > 0 {
			b.add("a.height <= ?", f.MaxHeight)
		}
	}
	if f.HasMtime {
		// Filters carry unix seconds; the column stores nanoseconds.
		b.add("a.mtime >= ?", f.MtimeStart*int64(time.Second))
		b.add("a.mtime < ?", f.MtimeEnd*int64(time.Second))
	}
	if f.HasWorkflow != nil {
		b.add("COALESCE(m.has_workflow, 0) = ?", boolToInt(*f.HasWorkflow))
	}
	if f.WorkflowType != "" {
		b.add("m.workflow_hash IS NOT NULL")
	}
	if f.ExcludeRoot != "" {
		b.add("a.filepath NOT LIKE ? ESCAPE '\\'", likePrefix(f.ExcludeRoot))
	}
	if req.Query != "" {
		b.add("a.id IN (SELECT rowid FROM assets_fts WHERE assets_fts MATCH ?)", ftsQuery(req.Query))
	}
	return b
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// likePrefix escapes SQLite LIKE metacharacters and appends a
// wildcard, for a prefix match against a confined path.
func likePrefix(p string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(p) + "%"
}

// ftsQuery quotes each term so punctuation in filenames/tags doesn't
// trip FTS5's query-syntax parser.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(quoted, " ")
}

func orderClause(sort SortKey) string {
	switch sort {
	case SortMtimeAsc:
		return "ORDER BY a.mtime ASC, a.filepath ASC"
	case SortNameAsc:
		return "ORDER BY lower(a.filename) ASC, a.filepath ASC"
	case SortNameDesc:
		return "ORDER BY lower(a.filename) DESC, a.filepath DESC"
	case SortNone:
		return ""
	default: // SortMtimeDesc
		return "ORDER BY a.mtime DESC, a.filepath DESC"
	}
}

// QueryIndexed runs the FTS-joined listing query for a fully indexed
// scope, returning up to req.Limit rows (and the total count if
// req.IncludeTotal).
func QueryIndexed(ctx context.Context, s *store.Store, req Request) (Response, *apperr.Error) {
	b := buildWhere(req)
	whereSQL := ""
	if len(b.where) > 0 {
		whereSQL = "WHERE " + strings.Join(b.where, " AND ")
	}

	resp := Response{Scope: req.Scope, Limit: req.Limit, Offset: req.Offset}

	// SQLite treats LIMIT -1 as unbounded; callers that want every row
	// (the merged "all" scope) pass a negative limit.
	limit := req.Limit
	if limit < 0 {
		limit = -1
	}
	rowSQL := fmt.Sprintf(`
		SELECT %s FROM assets a
		LEFT JOIN asset_metadata m ON m.asset_id = a.id
		%s
		%s
		LIMIT ? OFFSET ?`, indexColumns, whereSQL, orderClause(req.Sort))
	rowArgs := append(append([]any{}, b.args...), limit, req.Offset)

	rows, err := s.Query(ctx, rowSQL, rowArgs...)
	if err != nil {
		return resp, apperr.DB(err)
	}
	defer rows.Close()

	for rows.Next() {
		e, scanErr := scanIndexRow(rows)
		if scanErr != nil {
			return resp, apperr.DB(scanErr)
		}
		resp.Assets = append(resp.Assets, e)
	}
	if err := rows.Err(); err != nil {
		return resp, apperr.DB(err)
	}

	if req.IncludeTotal {
		countSQL := fmt.Sprintf(`
			SELECT COUNT(*) FROM assets a
			LEFT JOIN asset_metadata m ON m.asset_id = a.id
			%s`, whereSQL)
		var total int
		if err := s.QueryRow(ctx, countSQL, b.args...).Scan(&total); err != nil {
			return resp, apperr.DB(err)
		}
		resp.Total = total
	}
	return resp, nil
}

func scanIndexRow(rows *sql.Rows) (Entry, error) {
	var e Entry
	var rootID sql.NullString
	var width, height sql.NullInt64
	var tagsJSON string
	var hasWorkflow int
	err := rows.Scan(&e.ID, &e.Filepath, &e.Filename, &e.Subfolder, &e.Source, &rootID, &e.Kind,
		&e.Extension, &e.SizeBytes, &e.Mtime, &width, &height, &e.Rating, &tagsJSON, &hasWorkflow)
	if err != nil {
		return Entry{}, err
	}
	e.RootID = rootID.String
	if width.Valid {
		e.Width, e.HasWidth = width.Int64, true
	}
	if height.Valid {
		e.Height, e.HasHeight = height.Int64, true
	}
	e.HasWorkflow = hasWorkflow != 0
	e.Tags = decodeTagsJSON(tagsJSON)
	return e, nil
}

func decodeTagsJSON(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// CalendarBucket is one day's asset count for the calendar/activity
// endpoint.
type CalendarBucket struct {
	Date  string
	Count int
}

// QueryCalendar buckets indexed assets by calendar day (UTC) within
// [start, end), answered from the same index path as QueryIndexed.
func QueryCalendar(ctx context.Context, s *store.Store, req Request, start, end int64) ([]CalendarBucket, *apperr.Error) {
	b := buildWhere(req)
	b.add("a.mtime >= ?", start)
	b.add("a.mtime < ?", end)
	whereSQL := "WHERE " + strings.Join(b.where, " AND ")

	sqlStr := fmt.Sprintf(`
		SELECT date(a.mtime / 1000000000, 'unixepoch') AS day, COUNT(*)
		FROM assets a
		LEFT JOIN asset_metadata m ON m.asset_id = a.id
		%s
		GROUP BY day
		ORDER BY day`, whereSQL)

	rows, err := s.Query(ctx, sqlStr, b.args...)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()

	var out []CalendarBucket
	for rows.Next() {
		var bucket CalendarBucket
		if err := rows.Scan(&bucket.Date, &bucket.Count); err != nil {
			return nil, apperr.DB(err)
		}
		out = append(out, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DB(err)
	}
	return out, nil
}
