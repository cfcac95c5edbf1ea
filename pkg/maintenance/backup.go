package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/logger"
)

// archiveDir resolves the configured archive directory relative to the
// live database file, creating it on first use.
func (m *Manager) archiveDir() (string, error) {
	dir := m.cfg.ArchiveDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(m.store.Path()), dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// archiveFilename names a backup after the UTC instant it was taken,
// matching the persisted-state layout's assets_<UTC>.sqlite convention.
func archiveFilename(at time.Time) string {
	return fmt.Sprintf("assets_%s.sqlite", at.UTC().Format("20060102T150405Z"))
}

// BackupSave snapshots the live database to the archive directory via
// VACUUM INTO and returns the archive's path. It briefly raises the
// maintenance flag so a concurrent restore/force-delete cannot race the
// snapshot, but does not stop the watcher or enrichment workers since
// VACUUM INTO does not block concurrent readers.
func (m *Manager) BackupSave(ctx context.Context) (string, *apperr.Error) {
	advance, end, startErr := m.begin("backup_save")
	if startErr != nil {
		return "", startErr
	}
	_ = advance

	dir, err := m.archiveDir()
	if err != nil {
		end(err.Error())
		return "", apperr.Wrap(apperr.DBError, "failed to prepare archive directory", err)
	}
	dest := filepath.Join(dir, archiveFilename(time.Now()))
	// Stage under a uuid-suffixed name and rename into place so a
	// reader listing the archive directory never observes a
	// partially-written snapshot.
	staging := dest + "." + uuid.NewString() + ".tmp"

	if bErr := m.store.BackupTo(ctx, staging); bErr != nil {
		_ = os.Remove(staging)
		end(bErr.Error())
		return "", apperr.Wrap(apperr.DBError, "backup failed", bErr)
	}
	if rErr := os.Rename(staging, dest); rErr != nil {
		end(rErr.Error())
		return "", apperr.Wrap(apperr.DBError, "failed to finalize backup archive", rErr)
	}

	end("")
	return dest, nil
}

// ListBackups returns archive filenames under the archive directory,
// most recent first.
func (m *Manager) ListBackups() ([]string, *apperr.Error) {
	dir, err := m.archiveDir()
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "failed to read archive directory", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "failed to read archive directory", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// BackupRestore replaces the live database with the named archive,
// stopping the watcher and enrichment workers for the duration and
// restarting both (plus a fresh scan of every watched root) once the
// restored file is back online.
func (m *Manager) BackupRestore(ctx context.Context, archiveName string) *apperr.Error {
	advance, end, startErr := m.begin("backup_restore")
	if startErr != nil {
		return startErr
	}

	dir, dirErr := m.archiveDir()
	if dirErr != nil {
		end(dirErr.Error())
		return apperr.Wrap(apperr.DBError, "failed to resolve archive directory", dirErr)
	}
	srcPath := filepath.Join(dir, filepath.Base(archiveName))
	if _, statErr := os.Stat(srcPath); statErr != nil {
		end(statErr.Error())
		return apperr.NotFoundf("backup archive %q not found", archiveName)
	}

	advance(StepStoppingWorkers)
	m.stopWorkers()

	advance(StepReplacingFiles)
	if err := m.store.RestoreFrom(ctx, srcPath); err != nil {
		end(err.Error())
		logger.ErrorCtx(ctx, "maintenance: restore failed", "archive", archiveName, "error", err)
		m.restartWorkers(ctx)
		return apperr.Wrap(apperr.DBError, "restore failed", err)
	}

	advance(StepRecreateDB)
	// RestoreFrom already ran migrations against the restored file as
	// part of reopening; this step exists for status-vocabulary parity
	// with force-delete's recreate step.

	advance(StepRestartingScan)
	m.restartWorkers(ctx)

	end("")
	return nil
}
