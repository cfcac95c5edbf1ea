package search

import (
	"runtime"
	"strings"
)

// dedupeKey mirrors the original's dedupe_key: case-fold the path on
// case-insensitive filesystems (Windows, and in practice macOS too),
// leave it alone elsewhere.
func dedupeKey(filepathValue string) string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.ToLower(filepathValue)
	}
	return filepathValue
}

// DedupeByFilepath removes later duplicates of the same filepath
// (case-normalized per dedupeKey), keeping the first occurrence's
// order position.
func DedupeByFilepath(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		key := dedupeKey(e.Filepath)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// AdjustTotalForDedupe mirrors dedupe_result_payload: total only ever
// shrinks to match a deduplicated result, it never grows past what the
// DB reported.
func AdjustTotalForDedupe(dbTotal, dedupedCount int) int {
	if dedupedCount < dbTotal {
		return dedupedCount
	}
	return dbTotal
}

// DedupeResponse applies DedupeByFilepath to resp.Assets, lowering
// resp.Total by however many rows deduplication actually removed. A
// page that is simply smaller than the total (normal LIMIT/OFFSET
// truncation) leaves the total untouched.
func DedupeResponse(resp Response) Response {
	deduped := DedupeByFilepath(resp.Assets)
	if removed := len(resp.Assets) - len(deduped); removed > 0 {
		resp.Total = AdjustTotalForDedupe(resp.Total, resp.Total-removed)
	}
	resp.Assets = deduped
	return resp
}
