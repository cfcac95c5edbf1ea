package enrich

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
		InClauseChunkLimit: 3,
	}
	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestQueueEnqueueDropsWhenFull(t *testing.T) {
	q := NewQueue(NewService(DefaultExtractor{}, nil), newTestStore(t), 1, nil)
	assert.True(t, q.Enqueue("/a.png"))
	assert.False(t, q.Enqueue("/b.png"))
}

func TestQueueProcessesEnrichmentAndPersists(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeTestPNG(t, path, 8, 8)

	require.Nil(t, s.Transaction(context.Background(), store.TxImmediate, func(tx *store.Tx) error {
		return assetdb.UpsertAssetsTx(context.Background(), tx, dir, []assetdb.UpsertAssetRow{{
			Filepath: path, Filename: "a.png", Subfolder: ".",
			Source: assetdb.SourceOutput, Kind: assetdb.KindImage, Extension: ".png",
			SizeBytes: 8, Mtime: time.Now().UnixNano(), Now: time.Now().Unix(),
		}})
	}))

	q := NewQueue(NewService(DefaultExtractor{}, nil), s, 4, nil)
	q.Start(context.Background(), 2)
	require.True(t, q.Enqueue(path))

	asset, aerr := assetdb.GetByFilepath(context.Background(), s, assetdb.CanonicalFilepathKey(path))
	require.Nil(t, aerr)

	deadline := time.Now().Add(2 * time.Second)
	var meta *assetdb.Metadata
	for time.Now().Before(deadline) {
		meta, aerr = assetdb.GetMetadata(context.Background(), s, asset.ID)
		require.Nil(t, aerr)
		if meta.Quality != "none" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	q.Stop()
	assert.Equal(t, "partial", meta.Quality)
}
