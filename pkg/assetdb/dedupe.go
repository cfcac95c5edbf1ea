package assetdb

import (
	"context"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/store"
)

// CleanupCaseDuplicates removes assets that collide on filepath_key
// (the case-folded path) except the one with the most recent mtime,
// reconciling historical duplicates created before case-folding was
// applied consistently. Returns the number of rows removed.
func CleanupCaseDuplicates(ctx context.Context, s *store.Store) (int64, *apperr.Error) {
	var removed int64
	err := s.Transaction(ctx, store.TxImmediate, func(tx *store.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT filepath_key, id, mtime FROM assets ORDER BY filepath_key, mtime DESC`)
		if err != nil {
			return err
		}
		type row struct {
			id    int64
			mtime int64
		}
		groups := make(map[string][]row)
		var order []string
		for rows.Next() {
			var key string
			var r row
			if err := rows.Scan(&key, &r.id, &r.mtime); err != nil {
				rows.Close()
				return err
			}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], r)
		}
		rerr := rows.Err()
		rows.Close()
		if rerr != nil {
			return rerr
		}

		for _, key := range order {
			rs := groups[key]
			if len(rs) < 2 {
				continue
			}
			for _, r := range rs[1:] {
				if _, err := tx.Exec(ctx, `DELETE FROM assets WHERE id = ?`, r.id); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperr.DB(err)
	}
	return removed, nil
}

// PruneScanJournal removes scan_journal and asset rows under dirPath
// that were not touched by the scan that just completed (last_seen <
// scanStartedAt), implementing deletion detection for a completed
// directory walk.
func PruneScanJournal(ctx context.Context, s *store.Store, dirPath string, scanStartedAt int64) (int64, *apperr.Error) {
	affected, err := s.Execute(ctx, `
		DELETE FROM assets WHERE filepath IN (
			SELECT filepath FROM scan_journal WHERE dir_path = ? AND last_seen < ?
		)`, dirPath, scanStartedAt)
	if err != nil {
		return 0, apperr.DB(err)
	}
	return affected, nil
}
