package search

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

const maxAutocompleteLimit = 50

// ClampAutocompleteLimit mirrors the route's own bounds: default 10,
// floor 1, ceiling 50.
func ClampAutocompleteLimit(requested int) int {
	if requested <= 0 {
		requested = 10
	}
	if requested > maxAutocompleteLimit {
		requested = maxAutocompleteLimit
	}
	return requested
}

// Autocomplete completes prefix against the tag vocabulary first,
// falling back to filenames once the tag results run out, de-duped
// and capped at limit.
func Autocomplete(ctx context.Context, s *store.Store, prefix string, limit int) ([]string, *apperr.Error) {
	prefix = strings.TrimSpace(prefix)
	limit = ClampAutocompleteLimit(limit)
	if prefix == "" {
		return []string{}, nil
	}

	seen := make(map[string]struct{}, limit)
	out := make([]string, 0, limit)

	tags, err := autocompleteTags(ctx, s, prefix, limit)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		lower := strings.ToLower(t)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, t)
		if len(out) >= limit {
			return out, nil
		}
	}

	names, err := autocompleteFilenames(ctx, s, prefix, limit-len(out))
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		lower := strings.ToLower(n)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, n)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// autocompleteTags scans tags_text (the flattened, space-joined form
// already maintained for FTS) for rows that might contain a matching
// tag, then decodes tags_json only for those candidates. This avoids
// depending on the optional JSON1 SQL functions at the driver level.
func autocompleteTags(ctx context.Context, s *store.Store, prefix string, limit int) ([]string, *apperr.Error) {
	rows, err := s.Query(ctx, `
		SELECT tags_json FROM asset_metadata
		WHERE lower(tags_text) LIKE lower(?) ESCAPE '\'
		LIMIT 500`, "%"+strings.ToLower(prefix)+"%")
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()

	lowerPrefix := strings.ToLower(prefix)
	seen := make(map[string]struct{})
	var matches []string
	for rows.Next() {
		var tagsJSON string
		if scanErr := rows.Scan(&tagsJSON); scanErr != nil {
			return nil, apperr.DB(scanErr)
		}
		for _, tag := range decodeTagsJSON(tagsJSON) {
			if !strings.HasPrefix(strings.ToLower(tag), lowerPrefix) {
				continue
			}
			key := strings.ToLower(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			matches = append(matches, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DB(err)
	}
	sort.Strings(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func autocompleteFilenames(ctx context.Context, s *store.Store, prefix string, limit int) ([]string, *apperr.Error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.Query(ctx, `
		SELECT DISTINCT filename
		FROM assets
		WHERE lower(filename) LIKE lower(?) ESCAPE '\'
		ORDER BY filename
		LIMIT ?`, likePrefix(prefix), limit)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// TagVocabulary returns every distinct tag across the index, sorted
// case-insensitively, for the /tags endpoint's full-vocabulary listing
// (as opposed to Autocomplete's prefix-scoped completion).
func TagVocabulary(ctx context.Context, s *store.Store) ([]string, *apperr.Error) {
	rows, err := s.Query(ctx, `SELECT tags_json FROM asset_metadata WHERE tags_json != '[]'`)
	if err != nil {
		return nil, apperr.DB(err)
	}
	defer rows.Close()

	seen := make(map[string]string)
	for rows.Next() {
		var tagsJSON string
		if scanErr := rows.Scan(&tagsJSON); scanErr != nil {
			return nil, apperr.DB(scanErr)
		}
		for _, tag := range decodeTagsJSON(tagsJSON) {
			key := strings.ToLower(tag)
			if _, ok := seen[key]; !ok {
				seen[key] = tag
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DB(err)
	}
	out := make([]string, 0, len(seen))
	for _, tag := range seen {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out, nil
}

func scanStrings(rows *sql.Rows) ([]string, *apperr.Error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.DB(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DB(err)
	}
	sort.Strings(out)
	return out, nil
}
