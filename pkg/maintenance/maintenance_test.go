package maintenance

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

func newTestManager(t *testing.T) *Manager {
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

	mcfg := config.MaintenanceConfig{ArchiveDir: filepath.Join(t.TempDir(), "archive"), ForceDeleteRetries: 2}
	return NewManager(s, nil, nil, nil, nil, nil, nil, nil, mcfg, config.RootsConfig{})
}

func TestManagerStartsInactive(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IsActive())
	assert.Nil(t, m.RequireInactive())
	assert.True(t, m.WaitInactive(context.Background(), 10*time.Millisecond))
}

func TestCleanupCaseDuplicatesEmitsStartedAndDone(t *testing.T) {
	m := newTestManager(t)
	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	removed, aerr := m.CleanupCaseDuplicates(context.Background())
	require.Nil(t, aerr)
	assert.Zero(t, removed)

	var steps []Step
	for len(steps) < 2 {
		select {
		case ev := <-events:
			steps = append(steps, ev.Step)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for status events, got %v", steps)
		}
	}
	assert.Equal(t, StepStarted, steps[0])
	assert.Equal(t, StepDone, steps[len(steps)-1])
	assert.False(t, m.IsActive())
}

func TestBackupSaveAndRestoreRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	archive, aerr := m.BackupSave(ctx)
	require.Nil(t, aerr)
	assert.FileExists(t, archive)

	names, aerr := m.ListBackups()
	require.Nil(t, aerr)
	require.Len(t, names, 1)

	require.Nil(t, m.BackupRestore(ctx, names[0]))
	assert.False(t, m.IsActive())
}

func TestBackupRestoreUnknownArchiveIsNotFound(t *testing.T) {
	m := newTestManager(t)
	aerr := m.BackupRestore(context.Background(), "assets_nope.sqlite")
	require.NotNil(t, aerr)
	assert.False(t, m.IsActive())
}

func TestForceDeleteRecreatesEmptySchema(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.Nil(t, m.ForceDelete(ctx))
	assert.False(t, m.IsActive())

	var count int
	require.NoError(t, m.store.QueryRow(ctx, `SELECT COUNT(*) FROM assets`).Scan(&count))
	assert.Zero(t, count)
}
