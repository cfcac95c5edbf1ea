package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/pkg/assetdb"
)

func TestParseInlineFiltersExtractsKeyValueTokens(t *testing.T) {
	text, f := ParseInlineFilters("sunset kind:image rating:4 ext:.PNG has_workflow:yes beach")
	assert.Equal(t, "sunset beach", text)
	assert.Equal(t, "image", f.Kind)
	assert.True(t, f.HasMinRating)
	assert.Equal(t, 4, f.MinRating)
	assert.Equal(t, []string{"png"}, f.Extensions)
	require.NotNil(t, f.HasWorkflow)
	assert.True(t, *f.HasWorkflow)
}

func TestParseInlineFiltersLeavesUnknownKeysInText(t *testing.T) {
	text, f := ParseInlineFilters("seed:1234 prompt")
	assert.Equal(t, "seed:1234 prompt", text)
	assert.Empty(t, f.Extensions)
	assert.Empty(t, f.Kind)
}

func TestParseInlineFiltersClampsRating(t *testing.T) {
	_, f := ParseInlineFilters("rating:9")
	assert.Equal(t, 5, f.MinRating)
}

func TestApplyInlineExplicitFilterWins(t *testing.T) {
	explicit := Filters{Kind: []assetdb.Kind{assetdb.KindVideo}, HasMinRating: true, MinRating: 2}
	_, inline := ParseInlineFilters("kind:image rating:5")
	merged := explicit.ApplyInline(inline)
	assert.Equal(t, []assetdb.Kind{assetdb.KindVideo}, merged.Kind)
	assert.Equal(t, 2, merged.MinRating)
}

func TestNormalizeCorrectsInvertedRanges(t *testing.T) {
	f := Filters{HasSize: true, MinSize: 100, MaxSize: 10}.Normalize()
	assert.Equal(t, int64(100), f.MaxSize)

	f = Filters{HasWidth: true, MinWidth: 512, MaxWidth: 256}.Normalize()
	assert.Equal(t, int64(512), f.MaxWidth)
}

func TestClampLimitDistinguishesAbsentFromZero(t *testing.T) {
	assert.Equal(t, defaultListLimit, ClampLimit(-1, 500))
	assert.Equal(t, 0, ClampLimit(0, 500))
	assert.Equal(t, 500, ClampLimit(9999, 500))
	assert.Equal(t, 25, ClampLimit(25, 500))
}

func TestClampOffsetFloorsAndCaps(t *testing.T) {
	assert.Equal(t, 0, ClampOffset(-5, 100))
	assert.Equal(t, 100, ClampOffset(250, 100))
	assert.Equal(t, 42, ClampOffset(42, 100))
}

func TestNormalizeSortKeyFallsBackToMtimeDesc(t *testing.T) {
	assert.Equal(t, SortMtimeDesc, NormalizeSortKey("bogus"))
	assert.Equal(t, SortNameAsc, NormalizeSortKey("name_asc"))
}

func entryAt(fp string, mtime int64) Entry {
	return Entry{Filepath: fp, Filename: fp, Mtime: mtime}
}

func TestSortEntriesMtimeDescBreaksTiesOnFilepath(t *testing.T) {
	entries := []Entry{entryAt("/a", 10), entryAt("/c", 20), entryAt("/b", 20)}
	SortEntries(entries, SortMtimeDesc)
	assert.Equal(t, []string{"/c", "/b", "/a"},
		[]string{entries[0].Filepath, entries[1].Filepath, entries[2].Filepath})
}

func TestMergeSortedPreservesOrderAndBreaksTiesTowardFirstInput(t *testing.T) {
	db := []Entry{entryAt("/db/new", 30), entryAt("/db/old", 10)}
	fs := []Entry{entryAt("/fs/mid", 20), entryAt("/fs/tied", 10)}

	merged := MergeSorted(db, fs, SortMtimeDesc)
	got := make([]string, len(merged))
	for i, e := range merged {
		got[i] = e.Filepath
	}
	// /db/old and /fs/tied share mtime 10; the comparator's filepath
	// tie-break ("/fs/tied" > "/db/old" under DESC) decides the order,
	// so the result is identical no matter which side supplied the row.
	assert.Equal(t, []string{"/db/new", "/fs/mid", "/fs/tied", "/db/old"}, got)

	again := MergeSorted(db, fs, SortMtimeDesc)
	assert.Equal(t, merged, again)
}

func TestDedupeByFilepathKeepsFirstOccurrence(t *testing.T) {
	entries := []Entry{
		{Filepath: "/out/a.png", Rating: 4},
		{Filepath: "/out/b.png"},
		{Filepath: "/out/a.png", Rating: 0},
	}
	deduped := DedupeByFilepath(entries)
	require.Len(t, deduped, 2)
	assert.Equal(t, 4, deduped[0].Rating)
}

func TestAdjustTotalForDedupeOnlyShrinks(t *testing.T) {
	assert.Equal(t, 5, AdjustTotalForDedupe(10, 5))
	assert.Equal(t, 10, AdjustTotalForDedupe(10, 15))
}

func TestApplyFiltersMtimeWindowUsesSeconds(t *testing.T) {
	now := time.Now().Unix()
	in := []Entry{
		{Filepath: "/in", Mtime: now * int64(time.Second)},
		{Filepath: "/before", Mtime: (now - 3600) * int64(time.Second)},
	}
	out := ApplyFilters(in, Filters{HasMtime: true, MtimeStart: now - 60, MtimeEnd: now + 60})
	require.Len(t, out, 1)
	assert.Equal(t, "/in", out[0].Filepath)
}

func TestMatchesQuerySubstringCaseInsensitive(t *testing.T) {
	in := []Entry{{Filename: "Sunset_Final.png"}, {Filename: "beach.png"}}
	out := MatchesQuery(in, "sunset")
	require.Len(t, out, 1)

	assert.Len(t, MatchesQuery(in, "*"), 2)
	assert.Len(t, MatchesQuery(in, ""), 2)
}

func TestDateRangeBoundsThisWeekStartsMonday(t *testing.T) {
	// 2026-07-29 is a Wednesday.
	ref := time.Date(2026, 7, 29, 15, 4, 5, 0, time.UTC)
	start, end, ok := DateRangeBounds("this_week", ref)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC).Unix(), start)
	assert.Equal(t, time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC).Unix(), end)
}

func TestDateExactBoundsCoversOneDay(t *testing.T) {
	start, end, ok := DateExactBounds("2026-08-01")
	require.True(t, ok)
	assert.Equal(t, int64(86400), end-start)

	_, _, ok = DateExactBounds("01/08/2026")
	assert.False(t, ok)
}

func TestFTSQueryQuotesTerms(t *testing.T) {
	assert.Equal(t, `"sunset"* "be""ach"*`, ftsQuery(`sunset be"ach`))
}

func TestPauseTokenExpires(t *testing.T) {
	p := NewPauseToken()
	assert.False(t, p.Active())
	p.Touch(50 * time.Millisecond)
	assert.True(t, p.Active())
	time.Sleep(80 * time.Millisecond)
	assert.False(t, p.Active())
}

func TestDedupeResponseLeavesTotalAloneWithoutDuplicates(t *testing.T) {
	resp := Response{
		Assets: []Entry{{Filepath: "/out/a.png"}, {Filepath: "/out/b.png"}},
		Total:  1000,
	}
	out := DedupeResponse(resp)
	assert.Equal(t, 1000, out.Total, "a page shorter than the total is not deduplication")
	assert.Len(t, out.Assets, 2)
}
