package indexer

import (
	"context"
	"path/filepath"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/paths"
)

// ResolveOrCreate services a write addressed by filepath rather than
// asset id: it classifies the path under output/input/custom, runs a
// scoped incremental index of just that one file, then looks the asset
// up by filepath. The scan and lookup share the per-call timeout. Returns
// NOT_FOUND if the file is still unindexed after that one scan (e.g. the
// path does not exist on disk).
func (ix *Indexer) ResolveOrCreate(ctx context.Context, registry *paths.Registry, absPath string) (*assetdb.Asset, *apperr.Error) {
	ctx, cancel := context.WithTimeout(ctx, ix.cfg.ResolveTimeout)
	defer cancel()

	kind, rootID, ok := registry.FindContainingRoot(absPath)
	if !ok {
		return nil, apperr.Forbiddenf("path is not under any allowed root")
	}
	source := assetdb.SourceOutput
	switch kind {
	case paths.KindInput:
		source = assetdb.SourceInput
	case paths.KindCustom:
		source = assetdb.SourceCustom
	}
	dir := filepath.Dir(absPath)

	_, scanErr := ix.Scan(ctx, Options{
		RootDir:     dir,
		Recursive:   false,
		Incremental: true,
		Source:      source,
		RootID:      rootID,
		Fast:        true,
	})
	if scanErr != nil {
		return nil, scanErr
	}

	asset, aerr := assetdb.GetByFilepath(ctx, ix.store, assetdb.CanonicalFilepathKey(absPath))
	if aerr != nil {
		return nil, apperr.NotFoundf("asset not indexed for path")
	}
	return asset, nil
}
