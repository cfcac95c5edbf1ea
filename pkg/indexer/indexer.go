// Package indexer reconciles a directory tree with the asset index: the
// hardest subsystem, combining an adaptive batching walk, incremental
// skip decisions driven by the scan journal, and a background
// enrichment handoff.
package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/metrics"
	"github.com/majoor/assetindex/pkg/store"
)

// Extractor produces enrichment output for a single file synchronously,
// for the inline (non-background) enrichment path.
type Extractor interface {
	Extract(ctx context.Context, filepath string, kind assetdb.Kind) (assetdb.EnrichmentResult, error)
}

// EnrichmentQueue accepts filepaths for out-of-line enrichment. Enqueue
// returns false when the queue is full and the item was dropped.
type EnrichmentQueue interface {
	Enqueue(filepath string) bool
}

// Options configures a single scan invocation. Throttled marks
// opportunistic background work (watcher flushes, startup rescans)
// that the recent-scan grace window may suppress; explicit scans and
// resolve-or-create always run.
type Options struct {
	RootDir            string
	Recursive          bool
	Incremental        bool
	Source             assetdb.Source
	RootID             string
	Fast               bool
	BackgroundMetadata bool
	Throttled          bool
}

// ScanStats summarizes the outcome of a scan.
type ScanStats struct {
	Scanned   int           `json:"scanned"`
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration_ns"`
}

// Indexer is the directory-reconciliation engine (component C).
type Indexer struct {
	store     *store.Store
	cfg       config.IndexerConfig
	extractor Extractor
	queue     EnrichmentQueue
	throttle  *scanThrottle
}

// New builds an Indexer. extractor and queue may be nil if the caller
// never runs non-fast scans or background-metadata scans respectively.
func New(s *store.Store, cfg config.IndexerConfig, extractor Extractor, queue EnrichmentQueue) *Indexer {
	return &Indexer{
		store:     s,
		cfg:       cfg,
		extractor: extractor,
		queue:     queue,
		throttle:  newScanThrottle(cfg.RecentScanGrace),
	}
}

type walkedFile struct {
	path  string
	name  string
	rel   string
	size  int64
	mtime int64
	kind  assetdb.Kind
}

// Scan walks opts.RootDir and reconciles every recognized file with the
// index, per the scanning protocol.
func (ix *Indexer) Scan(ctx context.Context, opts Options) (ScanStats, *apperr.Error) {
	stats := ScanStats{StartTime: time.Now()}

	if opts.Throttled && ix.throttle.shouldSkip(opts.RootDir, string(opts.Source), opts.RootID, ix.cfg.RecentScanGrace, true) {
		stats.Duration = time.Since(stats.StartTime)
		return stats, nil
	}

	files, err := walkDirectory(opts.RootDir, opts.Recursive)
	if err != nil {
		return stats, apperr.Invalid("failed to walk directory: %v", err)
	}

	batchSize := ix.batchSizeFor(len(files))
	metadataComplete := !opts.Fast

	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[start:end]

		result, berr := ix.processBatchWithRetry(ctx, opts, batch)
		stats.Scanned += len(batch)
		stats.Added += result.added
		stats.Updated += result.updated
		stats.Skipped += result.skipped
		if berr != nil {
			stats.Errors += len(batch)
			metadataComplete = false
			metrics.RecordScanBatch(string(opts.Source), "failed")
			metrics.RecordScanAssets(string(opts.Source), "errored", len(batch))
			logger.ErrorCtx(ctx, "scan batch failed after retry", "dir", opts.RootDir, "error", berr)
			continue
		}
		metrics.RecordScanBatch(string(opts.Source), "committed")

		if !opts.Fast {
			ix.dispatchEnrichment(ctx, opts, result.enrichPaths)
		}
	}

	ix.throttle.markScanned(opts.RootDir, string(opts.Source), opts.RootID)
	ix.throttle.markIndexed(opts.RootDir, string(opts.Source), opts.RootID, metadataComplete)

	stats.Duration = time.Since(stats.StartTime)
	outcome := "ok"
	if stats.Errors > 0 {
		outcome = "partial"
	}
	metrics.ObserveScan(string(opts.Source), outcome, stats.Duration)
	metrics.RecordScanAssets(string(opts.Source), "added", stats.Added)
	metrics.RecordScanAssets(string(opts.Source), "updated", stats.Updated)
	metrics.RecordScanAssets(string(opts.Source), "skipped", stats.Skipped)
	return stats, nil
}

func (ix *Indexer) batchSizeFor(fileCount int) int {
	switch {
	case fileCount >= ix.cfg.ThresholdXL:
		return maxInt(ix.cfg.BatchXL, 1)
	case fileCount >= ix.cfg.ThresholdLarge:
		return maxInt(ix.cfg.BatchLarge, 1)
	case fileCount >= ix.cfg.ThresholdMedium:
		return maxInt(ix.cfg.BatchMedium, 1)
	default:
		return maxInt(ix.cfg.BatchSmall, 1)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type batchResult struct {
	added       int
	updated     int
	skipped     int
	enrichPaths []string
}

func (ix *Indexer) processBatchWithRetry(ctx context.Context, opts Options, batch []walkedFile) (batchResult, error) {
	var result batchResult
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		result = batchResult{}
		err = ix.store.Transaction(ctx, store.TxImmediate, func(tx *store.Tx) error {
			return ix.processBatchTx(ctx, tx, opts, batch, &result)
		})
		if err == nil {
			return result, nil
		}
	}
	return batchResult{}, err
}

func (ix *Indexer) processBatchTx(ctx context.Context, tx *store.Tx, opts Options, batch []walkedFile, result *batchResult) error {
	keys := make([]string, len(batch))
	for i, f := range batch {
		keys[i] = assetdb.CanonicalFilepathKey(f.path)
	}

	// LoadExistingStates uses the Store directly (read-only, outside this
	// write transaction) since it only needs a consistent snapshot of
	// prior state, not serialization with this batch's own writes.
	existing, aerr := assetdb.LoadExistingStates(ctx, ix.store, keys)
	if aerr != nil {
		return aerr
	}

	now := time.Now().Unix()
	var upserts []assetdb.UpsertAssetRow
	for _, f := range batch {
		key := assetdb.CanonicalFilepathKey(f.path)
		stateHash := assetdb.ComputeStateHash(f.path, f.mtime, f.size)
		prior, known := existing[key]

		if opts.Incremental && known && prior.StateHash == stateHash && (opts.Fast || prior.HasRichMeta) {
			result.skipped++
			continue
		}

		// Incremental-unchanged: the row itself is current, so skip the
		// upsert, but un-enriched files still flow to enrichment.
		if opts.Incremental && known && prior.Mtime == f.mtime {
			result.skipped++
			if !opts.Fast && !prior.HasRichMeta {
				result.enrichPaths = append(result.enrichPaths, f.path)
			}
			continue
		}

		upserts = append(upserts, assetdb.UpsertAssetRow{
			Filepath: f.path, Filename: f.name, Subfolder: subfolderOf(f.rel),
			Source: opts.Source, RootID: opts.RootID, Kind: f.kind,
			Extension: filepath.Ext(f.name), SizeBytes: f.size, Mtime: f.mtime, Now: now,
		})
		if known {
			result.updated++
		} else {
			result.added++
		}
		if !opts.Fast {
			result.enrichPaths = append(result.enrichPaths, f.path)
		}
	}

	if len(upserts) == 0 {
		return nil
	}
	return assetdb.UpsertAssetsTx(ctx, tx, opts.RootDir, upserts)
}

func (ix *Indexer) dispatchEnrichment(ctx context.Context, opts Options, paths []string) {
	for _, p := range paths {
		if opts.BackgroundMetadata {
			if ix.queue == nil || !ix.queue.Enqueue(p) {
				logger.WarnCtx(ctx, "enrichment queue unavailable or full, dropping", "filepath", p)
			}
			continue
		}
		if ix.extractor == nil {
			continue
		}
		kind, _ := ClassifyExtension(p)
		extracted, err := ix.extractor.Extract(ctx, p, kind)
		if err != nil {
			logger.WarnCtx(ctx, "inline enrichment failed", "filepath", p, "error", err)
			continue
		}
		asset, aerr := assetdb.GetByFilepath(ctx, ix.store, assetdb.CanonicalFilepathKey(p))
		if aerr != nil {
			continue
		}
		if aerr := assetdb.ApplyEnrichment(ctx, ix.store, asset.ID, extracted); aerr != nil {
			logger.WarnCtx(ctx, "failed to persist enrichment", "filepath", p, "error", aerr)
		}
	}
}

func walkDirectory(root string, recursive bool) ([]walkedFile, error) {
	var out []walkedFile

	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if wf, ok := toWalkedFile(root, e.Name(), e); ok {
				out = append(out, wf)
			}
		}
		return out, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = d.Name()
		}
		if wf, ok := toWalkedFileAt(path, rel, d); ok {
			out = append(out, wf)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// subfolderOf derives the forward-slash subfolder from a root-relative
// path, empty for files directly under the root.
func subfolderOf(rel string) string {
	dir := filepath.Dir(rel)
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return filepath.ToSlash(dir)
}

func toWalkedFile(root, name string, e os.DirEntry) (walkedFile, bool) {
	return toWalkedFileAt(filepath.Join(root, name), name, e)
}

func toWalkedFileAt(path, rel string, e fs.DirEntry) (walkedFile, bool) {
	kind, ok := ClassifyExtension(e.Name())
	if !ok {
		return walkedFile{}, false
	}
	info, err := e.Info()
	if err != nil {
		return walkedFile{}, false
	}
	return walkedFile{
		path: path, name: e.Name(), rel: rel,
		size: info.Size(), mtime: info.ModTime().UnixNano(), kind: kind,
	}, true
}
