package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.StorageConfig{
		Path:               filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:       4,
		AcquireTimeout:     5 * time.Second,
		QueryTimeout:       5 * time.Second,
		HardTimeout:        10 * time.Second,
		InClauseChunkLimit: 100,
	}
	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAsset(t *testing.T, s *store.Store, fp string, mtimeSec int64) {
	t.Helper()
	err := s.Transaction(context.Background(), store.TxImmediate, func(tx *store.Tx) error {
		return assetdb.UpsertAssetsTx(context.Background(), tx, filepath.Dir(fp), []assetdb.UpsertAssetRow{{
			Filepath: fp, Filename: filepath.Base(fp), Source: assetdb.SourceOutput,
			Kind: assetdb.KindImage, Extension: filepath.Ext(fp),
			SizeBytes: 100, Mtime: mtimeSec * int64(time.Second), Now: time.Now().Unix(),
		}})
	})
	require.NoError(t, err)
}

func filepaths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Filepath
	}
	return out
}

func TestQueryIndexedMtimeDescIsDeterministic(t *testing.T) {
	s := newTestStore(t)
	seedAsset(t, s, "/out/a.png", 100)
	seedAsset(t, s, "/out/b.png", 200)
	seedAsset(t, s, "/out/c.png", 200)

	req := Request{Scope: ScopeOutput, Sort: SortMtimeDesc, Limit: 10, IncludeTotal: true}
	first, aerr := QueryIndexed(context.Background(), s, req)
	require.Nil(t, aerr)
	assert.Equal(t, []string{"/out/c.png", "/out/b.png", "/out/a.png"}, filepaths(first.Assets))
	assert.Equal(t, 3, first.Total)

	second, aerr := QueryIndexed(context.Background(), s, req)
	require.Nil(t, aerr)
	assert.Equal(t, filepaths(first.Assets), filepaths(second.Assets))
}

func TestQueryIndexedZeroLimitStillCountsTotal(t *testing.T) {
	s := newTestStore(t)
	seedAsset(t, s, "/out/a.png", 100)

	resp, aerr := QueryIndexed(context.Background(), s, Request{Scope: ScopeOutput, Sort: SortMtimeDesc, Limit: 0, IncludeTotal: true})
	require.Nil(t, aerr)
	assert.Empty(t, resp.Assets)
	assert.Equal(t, 1, resp.Total)
}

func TestQueryIndexedNegativeLimitReturnsEverything(t *testing.T) {
	s := newTestStore(t)
	for i := int64(0); i < 5; i++ {
		seedAsset(t, s, filepath.Join("/out", string(rune('a'+i))+".png"), 100+i)
	}

	resp, aerr := QueryIndexed(context.Background(), s, Request{Scope: ScopeOutput, Sort: SortMtimeDesc, Limit: -1})
	require.Nil(t, aerr)
	assert.Len(t, resp.Assets, 5)
}

func TestQueryIndexedMtimeFilterTakesSeconds(t *testing.T) {
	s := newTestStore(t)
	seedAsset(t, s, "/out/old.png", 1000)
	seedAsset(t, s, "/out/new.png", 5000)

	resp, aerr := QueryIndexed(context.Background(), s, Request{
		Scope: ScopeOutput, Sort: SortMtimeDesc, Limit: 10,
		Filters: Filters{HasMtime: true, MtimeStart: 4000, MtimeEnd: 6000},
	})
	require.Nil(t, aerr)
	require.Len(t, resp.Assets, 1)
	assert.Equal(t, "/out/new.png", resp.Assets[0].Filepath)
}

func TestQueryIndexedFTSMatchesFilename(t *testing.T) {
	s := newTestStore(t)
	seedAsset(t, s, "/out/sunset_beach.png", 100)
	seedAsset(t, s, "/out/portrait.png", 200)

	resp, aerr := QueryIndexed(context.Background(), s, Request{Scope: ScopeOutput, Query: "sunset", Sort: SortMtimeDesc, Limit: 10})
	require.Nil(t, aerr)
	require.Len(t, resp.Assets, 1)
	assert.Equal(t, "/out/sunset_beach.png", resp.Assets[0].Filepath)
}

func TestQueryIndexedRatingFilterJoinsMetadata(t *testing.T) {
	s := newTestStore(t)
	seedAsset(t, s, "/out/good.png", 100)
	seedAsset(t, s, "/out/meh.png", 200)

	asset, aerr := assetdb.GetByFilepath(context.Background(), s, assetdb.CanonicalFilepathKey("/out/good.png"))
	require.Nil(t, aerr)
	require.Nil(t, assetdb.UpdateRating(context.Background(), s, asset.ID, 5))

	resp, qerr := QueryIndexed(context.Background(), s, Request{
		Scope: ScopeOutput, Sort: SortMtimeDesc, Limit: 10,
		Filters: Filters{HasMinRating: true, MinRating: 4},
	})
	require.Nil(t, qerr)
	require.Len(t, resp.Assets, 1)
	assert.Equal(t, "/out/good.png", resp.Assets[0].Filepath)
	assert.Equal(t, 5, resp.Assets[0].Rating)
}

func TestQueryCalendarBucketsByDay(t *testing.T) {
	s := newTestStore(t)
	day1 := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC).Unix()
	day2 := time.Date(2026, 7, 2, 8, 0, 0, 0, time.UTC).Unix()
	seedAsset(t, s, "/out/a.png", day1)
	seedAsset(t, s, "/out/b.png", day1+3600)
	seedAsset(t, s, "/out/c.png", day2)

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).Unix()
	end := time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC).Unix()
	buckets, aerr := QueryCalendar(context.Background(), s, Request{Scope: ScopeOutput},
		start*int64(time.Second), end*int64(time.Second))
	require.Nil(t, aerr)
	require.Len(t, buckets, 2)
	assert.Equal(t, "2026-07-01", buckets[0].Date)
	assert.Equal(t, 2, buckets[0].Count)
	assert.Equal(t, "2026-07-02", buckets[1].Date)
	assert.Equal(t, 1, buckets[1].Count)
}
