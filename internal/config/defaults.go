package config

import "time"

// ApplyDefaults fills cfg with the compiled-in defaults. Load calls this
// before unmarshaling so that any field absent from file/env/flags still
// has a sane value.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyRootsDefaults(&cfg.Roots)
	applyStorageDefaults(&cfg.Storage)
	applyIndexerDefaults(&cfg.Indexer)
	applyWatcherDefaults(&cfg.Watcher)
	applyEnrichmentDefaults(&cfg.Enrichment)
	applySearchDefaults(&cfg.Search)
	applySecurityDefaults(&cfg.Security)
	applyMaintenanceDefaults(&cfg.Maintenance)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(c *LoggingConfig) {
	if c.Level == "" {
		c.Level = "INFO"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

func applyServerDefaults(c *ServerConfig) {
	if c.Port == 0 {
		c.Port = 8765
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.MaxJSONBytes == 0 {
		c.MaxJSONBytes = 1 << 20 // 1 MiB
	}
}

func applyRootsDefaults(c *RootsConfig) {
	if c.CustomRootsFile == "" {
		c.CustomRootsFile = "custom_roots.json"
	}
}

func applyStorageDefaults(c *StorageConfig) {
	if c.Path == "" {
		c.Path = "assets.sqlite"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 8
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 60 * time.Second
	}
	if c.HardTimeout == 0 {
		c.HardTimeout = 300 * time.Second
	}
	c.AutoResetEnabled = true
	if c.AutoResetCooldown == 0 {
		c.AutoResetCooldown = 5 * time.Minute
	}
	if c.InClauseChunkLimit == 0 {
		c.InClauseChunkLimit = 500
	}
}

func applyIndexerDefaults(c *IndexerConfig) {
	if c.BatchSmall == 0 {
		c.BatchSmall = 50
	}
	if c.BatchMedium == 0 {
		c.BatchMedium = 200
	}
	if c.BatchLarge == 0 {
		c.BatchLarge = 500
	}
	if c.BatchXL == 0 {
		c.BatchXL = 1000
	}
	if c.ThresholdMedium == 0 {
		c.ThresholdMedium = 1000
	}
	if c.ThresholdLarge == 0 {
		c.ThresholdLarge = 10000
	}
	if c.ThresholdXL == 0 {
		c.ThresholdXL = 50000
	}
	if c.EnrichmentWorkers == 0 {
		c.EnrichmentWorkers = 1
	}
	if c.EnrichmentQueueCap == 0 {
		c.EnrichmentQueueCap = 2000
	}
	if c.ResolveTimeout == 0 {
		c.ResolveTimeout = 15 * time.Second
	}
	if c.RecentScanGrace == 0 {
		c.RecentScanGrace = 2 * time.Second
	}
}

func applyWatcherDefaults(c *WatcherConfig) {
	c.Enabled = true
	if c.DebounceMS == 0 {
		c.DebounceMS = 500
	}
	if c.PendingMax == 0 {
		c.PendingMax = 10000
	}
	if c.DedupeTTLMS == 0 {
		c.DedupeTTLMS = 2000
	}
	if c.MaxSizeBytes == 0 {
		c.MaxSizeBytes = 5 << 30 // 5 GiB
	}
	if c.FlushMaxFiles == 0 {
		c.FlushMaxFiles = 500
	}
	if c.MaxFlushConcurrency == 0 {
		c.MaxFlushConcurrency = 4
	}
	if c.StreamAlertThreshold == 0 {
		c.StreamAlertThreshold = 200
	}
	if c.StreamAlertWindowSeconds == 0 {
		c.StreamAlertWindowSeconds = 10
	}
	if c.StopJoinTimeout == 0 {
		c.StopJoinTimeout = 5 * time.Second
	}
}

func applyEnrichmentDefaults(c *EnrichmentConfig) {
	c.SidecarSyncEnabled = true
	if c.SidecarQueueCap == 0 {
		c.SidecarQueueCap = 1000
	}
	if c.MetadataCachePath == "" {
		c.MetadataCachePath = "metadata_cache.badger"
	}
}

func applySearchDefaults(c *SearchConfig) {
	if c.MaxListLimit == 0 {
		c.MaxListLimit = 500
	}
	if c.MaxListOffset == 0 {
		c.MaxListOffset = 1_000_000
	}
	if c.DirCacheTTL == 0 {
		c.DirCacheTTL = 1500 * time.Millisecond
	}
	if c.InteractionPause == 0 {
		c.InteractionPause = 1500 * time.Millisecond
	}
	if c.AutocompleteLimit == 0 {
		c.AutocompleteLimit = 10
	}
	if c.DuplicateHammingBound == 0 {
		c.DuplicateHammingBound = 8
	}
}

func applySecurityDefaults(c *SecurityConfig) {
	if c.RateLimitMaxClients == 0 {
		c.RateLimitMaxClients = 1000
	}
	if c.RateLimitWindowSeconds == 0 {
		c.RateLimitWindowSeconds = 60
	}
	if c.RateLimitMaxRequests == 0 {
		c.RateLimitMaxRequests = 120
	}
	if len(c.TrustedProxies) == 0 {
		c.TrustedProxies = []string{"127.0.0.1", "::1"}
	}
}

func applyMaintenanceDefaults(c *MaintenanceConfig) {
	if c.ArchiveDir == "" {
		c.ArchiveDir = "archive"
	}
	if c.SettingsCacheTTL == 0 {
		c.SettingsCacheTTL = 10 * time.Second
	}
	if c.ForceDeleteRetries == 0 {
		c.ForceDeleteRetries = 3
	}
}

func applyMetricsDefaults(c *MetricsConfig) {
	c.Enabled = true
}
