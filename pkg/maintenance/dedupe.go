package maintenance

import (
	"context"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/assetdb"
)

// CleanupCaseDuplicates removes assets left over from before
// case-folded filepath keys were applied consistently. It is fenced
// behind the maintenance flag (so a concurrent listing can't observe a
// group mid-delete) but does not stop the watcher or enrichment
// workers, since the operation only removes rows UpsertAssetsTx would
// already treat as stale on their next scan.
func (m *Manager) CleanupCaseDuplicates(ctx context.Context) (int64, *apperr.Error) {
	advance, end, startErr := m.begin("cleanup_case_duplicates")
	if startErr != nil {
		return 0, startErr
	}
	_ = advance

	removed, err := assetdb.CleanupCaseDuplicates(ctx, m.store)
	if err != nil {
		end(err.Error())
		return 0, err
	}
	end("")
	return removed, nil
}
