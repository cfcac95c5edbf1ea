package maintenance

import (
	"context"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/logger"
)

// ForceDelete wipes the index database outright and rebuilds it from a
// fresh scan of every watched root. Unlike BackupRestore it discards
// data rather than replacing it, for operators recovering from
// corruption a normal reset won't clear (a file still locked by another
// process, a half-written WAL). Every step is fenced behind the
// maintenance flag; the watcher and enrichment workers are stopped for
// the duration and restarted afterward regardless of outcome.
func (m *Manager) ForceDelete(ctx context.Context) *apperr.Error {
	advance, end, startErr := m.begin("force_delete")
	if startErr != nil {
		return startErr
	}

	advance(StepStoppingWorkers)
	m.stopWorkers()

	advance(StepResettingDB)
	resetErr := m.store.ForceReset(ctx, m.cfg.ForceDeleteRetries)

	advance(StepRecreateDB)
	// ForceReset already reopened (and migrated) a fresh schema as part
	// of its reset, whether or not every old file could be removed.

	advance(StepRestartingScan)
	m.restartWorkers(ctx)

	if resetErr != nil {
		end(resetErr.Error())
		logger.ErrorCtx(ctx, "maintenance: force delete left files behind", "error", resetErr)
		return apperr.Wrap(apperr.DeleteFailed, "force delete could not remove every index file", resetErr)
	}

	end("")
	return nil
}
