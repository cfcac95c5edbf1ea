package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/enrich"
	"github.com/majoor/assetindex/pkg/indexer"
	"github.com/majoor/assetindex/pkg/store"
)

var scanFlags struct {
	outputDir   string
	root        string
	recursive   bool
	incremental bool
	fast        bool
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-shot index scan and exit",
	Long: `Scan walks the output root (or an explicit --root directory under it),
reconciles the embedded index with what is on disk, and prints the
resulting scan statistics. It uses the same indexer the running
server's /scan endpoint uses, so a scan taken while the server is down
leaves the index in exactly the state a server-side scan would.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanFlags.outputDir, "output-dir", "", "override the resolved output directory for this run")
	scanCmd.Flags().StringVar(&scanFlags.root, "root", "", "directory to scan (default: the resolved output root)")
	scanCmd.Flags().BoolVar(&scanFlags.recursive, "recursive", true, "descend into subdirectories")
	scanCmd.Flags().BoolVar(&scanFlags.incremental, "incremental", true, "skip files whose journal state is unchanged")
	scanCmd.Flags().BoolVar(&scanFlags.fast, "fast", false, "skip metadata enrichment entirely")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	outputDir, err := resolveOutputDir(scanFlags.outputDir, cfg.Roots.OutputDirectory)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	indexDir := filepath.Join(outputDir, "_mjr_index")
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	cfg.Storage.Path = resolveUnder(indexDir, cfg.Storage.Path, "assets.sqlite")
	cfg.Enrichment.MetadataCachePath = resolveUnder(indexDir, cfg.Enrichment.MetadataCachePath, "metadata_cache.badger")

	root := scanFlags.root
	if root == "" {
		root = outputDir
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve scan root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("scan root %q is not a directory", abs)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage engine: %w", err)
	}
	defer st.Close()

	var extractor indexer.Extractor
	if !scanFlags.fast {
		metaCache, cacheErr := assetdb.OpenMetadataCache(cfg.Enrichment.MetadataCachePath)
		if cacheErr != nil {
			return fmt.Errorf("open metadata cache: %w", cacheErr)
		}
		defer metaCache.Close()
		extractor = enrich.NewService(enrich.DefaultExtractor{}, metaCache)
	}

	idx := indexer.New(st, cfg.Indexer, extractor, nil)
	stats, aerr := idx.Scan(ctx, indexer.Options{
		RootDir:     abs,
		Recursive:   scanFlags.recursive,
		Incremental: scanFlags.incremental,
		Source:      assetdb.SourceOutput,
		Fast:        scanFlags.fast,
	})
	if aerr != nil {
		return fmt.Errorf("scan failed: %s", aerr.Message)
	}

	fmt.Printf("scanned=%d added=%d updated=%d skipped=%d errors=%d duration=%s\n",
		stats.Scanned, stats.Added, stats.Updated, stats.Skipped, stats.Errors, stats.Duration.Round(time.Millisecond))
	return nil
}
