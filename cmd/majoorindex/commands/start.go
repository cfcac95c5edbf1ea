package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/enrich"
	"github.com/majoor/assetindex/pkg/httpapi"
	"github.com/majoor/assetindex/pkg/indexer"
	"github.com/majoor/assetindex/pkg/maintenance"
	"github.com/majoor/assetindex/pkg/metrics"
	"github.com/majoor/assetindex/pkg/paths"
	"github.com/majoor/assetindex/pkg/search"
	"github.com/majoor/assetindex/pkg/security"
	"github.com/majoor/assetindex/pkg/store"
	"github.com/majoor/assetindex/pkg/watch"
)

var outputDirFlag string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the asset index server",
	Long: `Start loads configuration, resolves the output/input roots, opens the
embedded store, and serves the HTTP listing/search/maintenance API
until interrupted.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&outputDirFlag, "output-dir", "", "override the resolved output directory for this run")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	outputDir, err := resolveOutputDir(outputDirFlag, cfg.Roots.OutputDirectory)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	logger.Info("resolved output directory", "path", outputDir)

	indexDir := filepath.Join(outputDir, "_mjr_index")
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	cfg.Storage.Path = resolveUnder(indexDir, cfg.Storage.Path, "assets.sqlite")
	cfg.Roots.CustomRootsFile = resolveUnder(indexDir, cfg.Roots.CustomRootsFile, "custom_roots.json")
	cfg.Enrichment.MetadataCachePath = resolveUnder(indexDir, cfg.Enrichment.MetadataCachePath, "metadata_cache.badger")
	cfg.Maintenance.ArchiveDir = resolveUnder(indexDir, cfg.Maintenance.ArchiveDir, "archive")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Init(cfg.Metrics.Enabled)

	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage engine: %w", err)
	}
	defer st.Close()

	customRoots, err := paths.NewCustomRootStore(cfg.Roots.CustomRootsFile, outputDir, cfg.Roots.InputDirectory)
	if err != nil {
		return fmt.Errorf("load custom roots: %w", err)
	}

	registry, err := paths.NewRegistry(outputDir, cfg.Roots.InputDirectory, customRoots)
	if err != nil {
		return fmt.Errorf("build path registry: %w", err)
	}

	metaCache, err := assetdb.OpenMetadataCache(cfg.Enrichment.MetadataCachePath)
	if err != nil {
		return fmt.Errorf("open metadata cache: %w", err)
	}
	defer metaCache.Close()

	enrichSvc := enrich.NewService(enrich.DefaultExtractor{}, metaCache)
	pause := search.NewPauseToken()
	enrichQueue := enrich.NewQueue(enrichSvc, st, cfg.Indexer.EnrichmentQueueCap, pause)

	idx := indexer.New(st, cfg.Indexer, enrichSvc, enrichQueue)

	var watcher watch.Observer = watch.NoopObserver{}
	if cfg.Watcher.Enabled {
		watcher = watch.New(cfg.Watcher, idx)
	}

	var sidecar *enrich.SidecarSync
	if cfg.Enrichment.SidecarSyncEnabled {
		sidecar = enrich.NewSidecarSync(cfg.Enrichment.SidecarQueueCap)
	}

	settingsCache := assetdb.NewSettingsCache(st, cfg.Maintenance.SettingsCacheTTL)

	rootsFn := func() []watch.WatchedRoot {
		roots := []watch.WatchedRoot{{Path: registry.OutputRoot(), Source: assetdb.SourceOutput}}
		if registry.InputRoot() != "" {
			roots = append(roots, watch.WatchedRoot{Path: registry.InputRoot(), Source: assetdb.SourceInput})
		}
		for _, cr := range customRoots.List() {
			if !cr.Offline {
				roots = append(roots, watch.WatchedRoot{Path: cr.Path, Source: assetdb.SourceCustom, RootID: cr.ID})
			}
		}
		return roots
	}

	mgr := maintenance.NewManager(st, settingsCache, registry, idx, watcher, enrichQueue, sidecar, rootsFn, cfg.Maintenance, cfg.Roots)
	guard := security.New(cfg.Security, mgr)
	fsCache := search.NewFSCache(cfg.Search.DirCacheTTL, 64)

	app := &httpapi.App{
		Store:       st,
		Registry:    registry,
		CustomRoots: customRoots,
		Indexer:     idx,
		Enrichment:  enrichQueue,
		Sidecar:     sidecar,
		Guard:       guard,
		Maintenance: mgr,
		Settings:    settingsCache,
		FSCache:     fsCache,
		Pause:       pause,
		Cfg:         cfg,
	}

	enrichQueue.Start(ctx, cfg.Indexer.EnrichmentWorkers)
	if sidecar != nil {
		sidecar.Start(ctx)
	}
	if err := watcher.Start(ctx, rootsFn()); err != nil {
		logger.Warn("failed to start filesystem watcher", "error", err)
	}

	go runStartupScan(ctx, idx, registry)

	server := httpapi.NewServer(app)
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("majoorindex is running", "addr", server.Addr())
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			logger.Error("server exited with error", "error", err)
		}
	}

	cancel()
	watcher.Stop()
	enrichQueue.Stop()
	if sidecar != nil {
		sidecar.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	return nil
}

// runStartupScan performs an incremental, non-fast scan of the output
// and (if configured) input roots at process start, so the index
// reflects any on-disk changes made while the process was not running
// before the first request arrives.
func runStartupScan(ctx context.Context, idx *indexer.Indexer, registry *paths.Registry) {
	scanCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	stats, aerr := idx.Scan(scanCtx, indexer.Options{
		RootDir:            registry.OutputRoot(),
		Recursive:          true,
		Incremental:        true,
		Source:             assetdb.SourceOutput,
		BackgroundMetadata: true,
		Throttled:          true,
	})
	if aerr != nil {
		logger.Error("startup scan of output root failed", "error", aerr.Message)
	} else {
		logger.Info("startup scan of output root complete", "scanned", stats.Scanned, "added", stats.Added, "updated", stats.Updated)
	}

	if registry.InputRoot() == "" {
		return
	}
	stats, aerr = idx.Scan(scanCtx, indexer.Options{
		RootDir:            registry.InputRoot(),
		Recursive:          true,
		Incremental:        true,
		Source:             assetdb.SourceInput,
		BackgroundMetadata: true,
		Throttled:          true,
	})
	if aerr != nil {
		logger.Error("startup scan of input root failed", "error", aerr.Message)
	} else {
		logger.Info("startup scan of input root complete", "scanned", stats.Scanned, "added", stats.Added, "updated", stats.Updated)
	}
}

// resolveOutputDir implements spec §4.B's output-root priority chain:
// an explicit CLI flag, then the value already resolved by config.Load
// (which folds in the persisted config file and MJR_AM_OUTPUT_DIRECTORY/
// MAJOOR_OUTPUT_DIRECTORY environment overrides ahead of this call),
// then a directory named "output" next to the running executable, then
// the current working directory — mirroring the original's fallback to
// a path relative to the ComfyUI installation it was loaded from.
func resolveOutputDir(flagValue, configured string) (string, error) {
	candidate := flagValue
	if candidate == "" {
		candidate = configured
	}
	if candidate == "" {
		if exe, err := os.Executable(); err == nil {
			nearExe := filepath.Join(filepath.Dir(exe), "output")
			if info, statErr := os.Stat(nearExe); statErr == nil && info.IsDir() {
				candidate = nearExe
			}
		}
	}
	if candidate == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		candidate = cwd
	}

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %q: %w", abs, err)
	}
	return abs, nil
}

// resolveUnder returns configured (absolute) as-is, or joins it under
// base when relative, or joins base with fallbackName when configured
// is empty.
func resolveUnder(base, configured, fallbackName string) string {
	name := configured
	if name == "" {
		name = fallbackName
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(base, name)
}
