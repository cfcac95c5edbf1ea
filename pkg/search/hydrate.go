package search

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

const browserRowsQuery = `
	SELECT a.id, a.filepath, COALESCE(m.rating, 0), COALESCE(m.tags_json, '[]')
	FROM assets a
	LEFT JOIN asset_metadata m ON m.asset_id = a.id
	WHERE a.filepath IN (%s)`

type browserRow struct {
	id       int64
	filepath string
	rating   int
	tags     []string
}

func isFolderEntry(e Entry) bool { return e.Kind == "folder" }

// collectHydrationPaths mirrors collect_hydration_paths: folder rows
// never have DB-backed metadata, so they're excluded from the lookup.
func collectHydrationPaths(entries []Entry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if isFolderEntry(e) {
			continue
		}
		paths = append(paths, e.Filepath)
	}
	return paths
}

func queryBrowserRows(ctx context.Context, s *store.Store, paths []string) (map[string]browserRow, *apperr.Error) {
	rowsByPath := make(map[string]browserRow, len(paths))
	if len(paths) == 0 {
		return rowsByPath, nil
	}
	err := s.QueryIn(ctx, browserRowsQuery, paths, func(rows *sql.Rows) error {
		var r browserRow
		var tagsJSON string
		if scanErr := rows.Scan(&r.id, &r.filepath, &r.rating, &tagsJSON); scanErr != nil {
			return scanErr
		}
		r.tags = coerceBrowserTags(tagsJSON)
		rowsByPath[r.filepath] = r
		return nil
	})
	if err != nil {
		return nil, apperr.DB(err)
	}
	return rowsByPath, nil
}

// coerceBrowserTags accepts either a JSON array or a JSON string
// (legacy rows written before tags were normalized to arrays).
func coerceBrowserTags(raw string) []string {
	var asArray []string
	if err := json.Unmarshal([]byte(raw), &asArray); err == nil {
		return asArray
	}
	var asString string
	if err := json.Unmarshal([]byte(raw), &asString); err == nil && asString != "" {
		return []string{asString}
	}
	return nil
}

func hydrateAssetFromRow(e Entry, row browserRow, ok bool) Entry {
	if isFolderEntry(e) || !ok {
		return e
	}
	e.ID = row.id
	e.Rating = row.rating
	e.Tags = row.tags
	return e
}

// HydrateAssets enriches filesystem-walk entries with their DB id,
// rating, and tags where the asset is already indexed, leaving
// folder rows and not-yet-indexed rows untouched.
func HydrateAssets(ctx context.Context, s *store.Store, entries []Entry) ([]Entry, *apperr.Error) {
	paths := collectHydrationPaths(entries)
	rowsByPath, err := queryBrowserRows(ctx, s, paths)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		row, ok := rowsByPath[e.Filepath]
		out[i] = hydrateAssetFromRow(e, row, ok)
	}
	return out, nil
}
