package indexer

import (
	"context"
	"os"
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
		InClauseChunkLimit: 3,
	}
	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testIndexerConfig() config.IndexerConfig {
	return config.IndexerConfig{
		BatchSmall: 50, BatchMedium: 200, BatchLarge: 500, BatchXL: 1000,
		ThresholdMedium: 1000, ThresholdLarge: 10000, ThresholdXL: 50000,
		ResolveTimeout: 5 * time.Second, RecentScanGrace: 2 * time.Second,
	}
}

func writeFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644))
}

func TestScanAddsNewAssets(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.png", 100)
	writeFile(t, dir, "b.jpg", 200)
	writeFile(t, dir, "ignore.txt", 10)

	ix := New(s, testIndexerConfig(), nil, nil)
	stats, aerr := ix.Scan(context.Background(), Options{
		RootDir: dir, Recursive: true, Incremental: true, Source: assetdb.SourceOutput, Fast: true,
	})
	require.Nil(t, aerr)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, stats.Added)
	assert.Equal(t, 0, stats.Errors)
}

func TestScanIncrementalSkipsUnchangedFiles(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.png", 100)

	ix := New(s, testIndexerConfig(), nil, nil)
	opts := Options{RootDir: dir, Recursive: true, Incremental: true, Source: assetdb.SourceOutput, Fast: true}

	_, aerr := ix.Scan(context.Background(), opts)
	require.Nil(t, aerr)

	stats, aerr := ix.Scan(context.Background(), opts)
	require.Nil(t, aerr)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Added)
}

func TestScanDetectsModifiedFileByStateHash(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.png", 100)

	ix := New(s, testIndexerConfig(), nil, nil)
	opts := Options{RootDir: dir, Recursive: true, Incremental: true, Source: assetdb.SourceOutput, Fast: true}
	_, aerr := ix.Scan(context.Background(), opts)
	require.Nil(t, aerr)

	writeFile(t, dir, "a.png", 150)
	stats, aerr := ix.Scan(context.Background(), opts)
	require.Nil(t, aerr)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 0, stats.Skipped)
}

type fakeQueue struct {
	enqueued []string
	full     bool
}

func (q *fakeQueue) Enqueue(filepath string) bool {
	if q.full {
		return false
	}
	q.enqueued = append(q.enqueued, filepath)
	return true
}

func TestScanBackgroundMetadataEnqueuesInsteadOfInline(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.png", 100)

	q := &fakeQueue{}
	ix := New(s, testIndexerConfig(), nil, q)
	_, aerr := ix.Scan(context.Background(), Options{
		RootDir: dir, Recursive: true, Incremental: true, Source: assetdb.SourceOutput,
		Fast: false, BackgroundMetadata: true,
	})
	require.Nil(t, aerr)
	assert.Len(t, q.enqueued, 1)
}

func TestClassifyExtensionUnknownIsRejected(t *testing.T) {
	_, ok := ClassifyExtension("notes.txt")
	assert.False(t, ok)

	kind, ok := ClassifyExtension("clip.mp4")
	assert.True(t, ok)
	assert.Equal(t, assetdb.KindVideo, kind)
}

func TestScanThrottleSuppressesImmediateRescan(t *testing.T) {
	th := newScanThrottle(50 * time.Millisecond)
	th.markIndexed("/out", "output", "", true)
	assert.True(t, th.shouldSkip("/out", "output", "", 50*time.Millisecond, false))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, th.shouldSkip("/out", "output", "", 50*time.Millisecond, false))
}
