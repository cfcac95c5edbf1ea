package search

// MergeSorted stable-merges two slices that are each already ordered
// by key, producing a single ordered slice without re-sorting either
// input. Used for the "all" scope, which draws indexed rows from the
// DB and not-yet-indexed rows from a filesystem walk and must present
// them as one list. On a tie, a takes precedence, so DB-backed rows
// (caller convention: always passed as a) win ties against filesystem
// rows for the same sort key.
func MergeSorted(a, b []Entry, key SortKey) []Entry {
	less := entryLess(key)
	out := make([]Entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if less(b[j], a[i]) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
