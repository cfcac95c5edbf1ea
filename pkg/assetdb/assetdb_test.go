package assetdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/internal/config"
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
		InClauseChunkLimit: 3,
	}
	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func upsertOne(t *testing.T, s *store.Store, fp string, mtime, size int64) {
	t.Helper()
	now := time.Now().Unix()
	err := s.Transaction(context.Background(), store.TxImmediate, func(tx *store.Tx) error {
		return UpsertAssetsTx(context.Background(), tx, filepath.Dir(fp), []UpsertAssetRow{{
			Filepath: fp, Filename: filepath.Base(fp), Source: SourceOutput, Kind: KindImage,
			Extension: "png", SizeBytes: size, Mtime: mtime, Now: now,
		}})
	})
	require.NoError(t, err)
}

func TestUpsertAssetAndLoadExistingState(t *testing.T) {
	s := newTestStore(t)
	upsertOne(t, s, "/out/a.png", 100, 10)

	states, aerr := LoadExistingStates(context.Background(), s, []string{CanonicalFilepathKey("/out/a.png")})
	require.Nil(t, aerr)
	st, ok := states[CanonicalFilepathKey("/out/a.png")]
	require.True(t, ok)
	assert.Equal(t, int64(100), st.Mtime)
	assert.False(t, st.HasRichMeta)

	asset, aerr := GetByFilepath(context.Background(), s, CanonicalFilepathKey("/out/a.png"))
	require.Nil(t, aerr)
	assert.Equal(t, "a.png", asset.Filename)
}

func TestUpdateRatingValidatesRange(t *testing.T) {
	s := newTestStore(t)
	upsertOne(t, s, "/out/a.png", 1, 1)
	asset, aerr := GetByFilepath(context.Background(), s, CanonicalFilepathKey("/out/a.png"))
	require.Nil(t, aerr)

	aerr = UpdateRating(context.Background(), s, asset.ID, 6)
	require.NotNil(t, aerr)

	aerr = UpdateRating(context.Background(), s, asset.ID, 4)
	require.Nil(t, aerr)

	m, aerr := GetMetadata(context.Background(), s, asset.ID)
	require.Nil(t, aerr)
	assert.Equal(t, 4, m.Rating)
}

func TestNormalizeTagsDedupesCaseInsensitively(t *testing.T) {
	tags, aerr := NormalizeTags([]string{"Cat", "cat", "dog", " dog "})
	require.Nil(t, aerr)
	assert.Equal(t, []string{"Cat", "dog"}, tags)
}

func TestNormalizeTagsRejectsTooMany(t *testing.T) {
	tags := make([]string, 51)
	for i := range tags {
		tags[i] = "t"
	}
	_, aerr := NormalizeTags(tags)
	require.NotNil(t, aerr)
}

func TestCleanupCaseDuplicatesKeepsNewestMtime(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Unix()
	err := s.Transaction(context.Background(), store.TxImmediate, func(tx *store.Tx) error {
		if err := UpsertAssetsTx(context.Background(), tx, "/out", []UpsertAssetRow{{
			Filepath: "/out/A.png", Filename: "A.png", Source: SourceOutput, Kind: KindImage,
			Extension: "png", SizeBytes: 1, Mtime: 100, Now: now,
		}}); err != nil {
			return err
		}
		_, err := tx.Exec(context.Background(), `
			INSERT INTO assets (filepath, filepath_key, filename, source, kind, extension, size_bytes, mtime, created_at, updated_at, indexed_at)
			VALUES ('/out/a.png', ?, 'a.png', 'output', 'image', 'png', 1, 200, ?, ?, ?)`,
			CanonicalFilepathKey("/out/A.png"), now, now, now)
		return err
	})
	require.NoError(t, err)

	removed, aerr := CleanupCaseDuplicates(context.Background(), s)
	require.Nil(t, aerr)
	assert.Equal(t, int64(1), removed)

	asset, aerr := GetByFilepath(context.Background(), s, CanonicalFilepathKey("/out/A.png"))
	require.Nil(t, aerr)
	assert.Equal(t, int64(200), asset.Mtime)
}

func TestCollectionLifecycle(t *testing.T) {
	s := newTestStore(t)
	c, aerr := CreateCollection(context.Background(), s, "favorites")
	require.Nil(t, aerr)

	aerr = SetCollectionItems(context.Background(), s, c.ID, []string{"/out/a.png", "/out/b.png"})
	require.Nil(t, aerr)

	loaded, aerr := GetCollection(context.Background(), s, c.ID)
	require.Nil(t, aerr)
	assert.Equal(t, []string{"/out/a.png", "/out/b.png"}, loaded.Items)

	_, aerr = CreateCollection(context.Background(), s, "favorites")
	assert.NotNil(t, aerr)
}

func TestSettingsCacheServesStaleUntilTTL(t *testing.T) {
	s := newTestStore(t)
	cache := NewSettingsCache(s, 50*time.Millisecond)

	_, aerr := cache.Put(context.Background(), "safe_mode", map[string]bool{"enabled": false})
	require.Nil(t, aerr)

	_, aerr = PutSetting(context.Background(), s, "safe_mode", map[string]bool{"enabled": true})
	require.Nil(t, aerr)

	cached, aerr := cache.Get(context.Background(), "safe_mode")
	require.Nil(t, aerr)
	assert.Contains(t, cached.ValueJSON, "false")

	time.Sleep(60 * time.Millisecond)
	fresh, aerr := cache.Get(context.Background(), "safe_mode")
	require.Nil(t, aerr)
	assert.Contains(t, fresh.ValueJSON, "true")
}

func TestPutSettingBumpsGlobalVersionMonotonically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v0, aerr := SettingsVersion(ctx, s)
	require.Nil(t, aerr)
	assert.Zero(t, v0)

	_, aerr = PutSetting(ctx, s, "safe_mode", true)
	require.Nil(t, aerr)
	v1, aerr := SettingsVersion(ctx, s)
	require.Nil(t, aerr)

	_, aerr = PutSetting(ctx, s, "allow_delete", true)
	require.Nil(t, aerr)
	v2, aerr := SettingsVersion(ctx, s)
	require.Nil(t, aerr)

	assert.Greater(t, v1, v0)
	assert.Greater(t, v2, v1)

	_, aerr = PutSetting(ctx, s, "__settings_version", 99)
	require.NotNil(t, aerr)
}
