package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.StorageConfig{
		Path:               filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:       4,
		AcquireTimeout:     5 * time.Second,
		QueryTimeout:       5 * time.Second,
		HardTimeout:        10 * time.Second,
		InClauseChunkLimit: 3,
	}

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTransactionCommitsAndRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, TxImmediate, func(tx *Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO assets (filepath, filepath_key, filename, source, kind, extension, size_bytes, mtime, created_at, updated_at, indexed_at) VALUES (?, ?, ?, 'output', 'image', 'png', 10, 1, 1, 1, 1)`, "/a.png", "/a.png", "a.png")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.QueryRow(ctx, `SELECT COUNT(*) FROM assets`).Scan(&count))
	assert.Equal(t, 1, count)

	err = s.Transaction(ctx, TxImmediate, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO assets (filepath, filepath_key, filename, source, kind, extension, size_bytes, mtime, created_at, updated_at, indexed_at) VALUES (?, ?, ?, 'output', 'image', 'png', 10, 1, 1, 1, 1)`, "/b.png", "/b.png", "b.png"); err != nil {
			return err
		}
		return assertFailure{}
	})
	require.Error(t, err)

	require.NoError(t, s.QueryRow(ctx, `SELECT COUNT(*) FROM assets`).Scan(&count))
	assert.Equal(t, 1, count, "rolled-back insert must not persist")
}

type assertFailure struct{}

func (assertFailure) Error() string { return "forced rollback" }

func TestQueryInChunksValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, TxImmediate, func(tx *Tx) error {
		for i, fp := range []string{"/1.png", "/2.png", "/3.png", "/4.png", "/5.png"} {
			if _, err := tx.Exec(ctx, `INSERT INTO assets (filepath, filepath_key, filename, source, kind, extension, size_bytes, mtime, created_at, updated_at, indexed_at) VALUES (?, ?, ?, 'output', 'image', 'png', 10, 1, 1, 1, 1)`, fp, fp, fp[1:]); err != nil {
				return err
			}
			_ = i
		}
		return nil
	})
	require.NoError(t, err)

	seen := 0
	err = s.QueryIn(ctx, `SELECT filepath FROM assets WHERE filepath IN (%s)`,
		[]string{"/1.png", "/2.png", "/3.png", "/4.png", "/5.png"},
		func(rows *sql.Rows) error {
			for rows.Next() {
				seen++
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 5, seen)
}

func TestDiagnosticsReportsHealthy(t *testing.T) {
	s := newTestStore(t)
	diag := s.Diagnostics(context.Background())
	assert.False(t, diag.Malformed)
	assert.Equal(t, "ok", diag.RecoveryState)
}

func TestResetClearsData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, `INSERT INTO assets (filepath, filepath_key, filename, source, kind, extension, size_bytes, mtime, created_at, updated_at, indexed_at) VALUES ('/a.png', '/a.png', 'a.png', 'output', 'image', 'png', 1, 1, 1, 1, 1)`)
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	var count int
	require.NoError(t, s.QueryRow(ctx, `SELECT COUNT(*) FROM assets`).Scan(&count))
	assert.Equal(t, 0, count)
}
