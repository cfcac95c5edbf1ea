// Package config loads and validates the server configuration from (in
// precedence order) CLI flags, MAJOOR_* environment variables, a YAML
// config file, and compiled defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the root configuration object.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Roots       RootsConfig       `mapstructure:"roots" yaml:"roots"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Indexer     IndexerConfig     `mapstructure:"indexer" yaml:"indexer"`
	Watcher     WatcherConfig     `mapstructure:"watcher" yaml:"watcher"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment" yaml:"enrichment"`
	Search      SearchConfig      `mapstructure:"search" yaml:"search"`
	Security    SecurityConfig    `mapstructure:"security" yaml:"security"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"gt=0,lt=65536" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxJSONBytes    int64         `mapstructure:"max_json_bytes" yaml:"max_json_bytes"`
	DebugErrors     bool          `mapstructure:"debug_errors" yaml:"debug_errors"`
}

// RootsConfig resolves the output/input roots (component B).
type RootsConfig struct {
	OutputDirectory   string `mapstructure:"output_directory" yaml:"output_directory"`
	InputDirectory    string `mapstructure:"input_directory" yaml:"input_directory"`
	CustomRootsFile   string `mapstructure:"custom_roots_file" yaml:"custom_roots_file"`
	AllowSymlinkRoots bool   `mapstructure:"allow_symlink_roots" yaml:"allow_symlink_roots"`
}

// StorageConfig configures the embedded SQL store (component A).
type StorageConfig struct {
	Path               string        `mapstructure:"path" yaml:"path"`
	MaxOpenConns       int           `mapstructure:"max_open_conns" validate:"gt=0,lte=64" yaml:"max_open_conns"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	HardTimeout        time.Duration `mapstructure:"hard_timeout" yaml:"hard_timeout"`
	AutoResetEnabled   bool          `mapstructure:"auto_reset_enabled" yaml:"auto_reset_enabled"`
	AutoResetCooldown  time.Duration `mapstructure:"auto_reset_cooldown" yaml:"auto_reset_cooldown"`
	InClauseChunkLimit int           `mapstructure:"in_clause_chunk_limit" validate:"gt=0,lte=900" yaml:"in_clause_chunk_limit"`
}

// IndexerConfig configures the directory scanner (component C).
type IndexerConfig struct {
	BatchSmall         int           `mapstructure:"batch_small" yaml:"batch_small"`
	BatchMedium        int           `mapstructure:"batch_medium" yaml:"batch_medium"`
	BatchLarge         int           `mapstructure:"batch_large" yaml:"batch_large"`
	BatchXL            int           `mapstructure:"batch_xl" yaml:"batch_xl"`
	ThresholdMedium    int           `mapstructure:"threshold_medium" yaml:"threshold_medium"`
	ThresholdLarge     int           `mapstructure:"threshold_large" yaml:"threshold_large"`
	ThresholdXL        int           `mapstructure:"threshold_xl" yaml:"threshold_xl"`
	EnrichmentWorkers  int           `mapstructure:"enrichment_workers" yaml:"enrichment_workers"`
	EnrichmentQueueCap int           `mapstructure:"enrichment_queue_capacity" yaml:"enrichment_queue_capacity"`
	ResolveTimeout     time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout"`
	RecentScanGrace    time.Duration `mapstructure:"recent_scan_grace" yaml:"recent_scan_grace"`
}

// WatcherConfig configures the filesystem watcher (component E).
type WatcherConfig struct {
	Enabled                  bool          `mapstructure:"enabled" yaml:"enabled"`
	DebounceMS               int           `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	PendingMax               int           `mapstructure:"pending_max" yaml:"pending_max"`
	DedupeTTLMS              int           `mapstructure:"dedupe_ttl_ms" yaml:"dedupe_ttl_ms"`
	MinSizeBytes             int64         `mapstructure:"min_size_bytes" yaml:"min_size_bytes"`
	MaxSizeBytes             int64         `mapstructure:"max_size_bytes" yaml:"max_size_bytes"`
	FlushMaxFiles            int           `mapstructure:"flush_max_files" yaml:"flush_max_files"`
	MaxFlushConcurrency      int           `mapstructure:"max_flush_concurrency" yaml:"max_flush_concurrency"`
	StreamAlertThreshold     int           `mapstructure:"stream_alert_threshold" yaml:"stream_alert_threshold"`
	StreamAlertWindowSeconds int           `mapstructure:"stream_alert_window_seconds" yaml:"stream_alert_window_seconds"`
	StopJoinTimeout          time.Duration `mapstructure:"stop_join_timeout" yaml:"stop_join_timeout"`
}

// EnrichmentConfig configures the metadata extraction queue (component D).
type EnrichmentConfig struct {
	SidecarSyncEnabled  bool `mapstructure:"sidecar_sync_enabled" yaml:"sidecar_sync_enabled"`
	SidecarQueueCap     int  `mapstructure:"sidecar_queue_capacity" yaml:"sidecar_queue_capacity"`
	MetadataCachePath   string `mapstructure:"metadata_cache_path" yaml:"metadata_cache_path"`
}

// SearchConfig configures the listing/search engine (component F).
type SearchConfig struct {
	MaxListLimit          int           `mapstructure:"max_list_limit" yaml:"max_list_limit"`
	MaxListOffset         int           `mapstructure:"max_list_offset" yaml:"max_list_offset"`
	DirCacheTTL           time.Duration `mapstructure:"dir_cache_ttl" yaml:"dir_cache_ttl"`
	InteractionPause      time.Duration `mapstructure:"interaction_pause" yaml:"interaction_pause"`
	AutocompleteLimit     int           `mapstructure:"autocomplete_limit" yaml:"autocomplete_limit"`
	DuplicateHammingBound int           `mapstructure:"duplicate_hamming_bound" validate:"gte=0,lte=64" yaml:"duplicate_hamming_bound"`
}

// SecurityConfig configures the security layer (component G).
type SecurityConfig struct {
	APIToken                    string   `mapstructure:"api_token" yaml:"-"`
	APITokenHash                string   `mapstructure:"api_token_hash" yaml:"-"`
	APITokenPepper              string   `mapstructure:"api_token_pepper" yaml:"-"`
	RequireAuth                 bool     `mapstructure:"require_auth" yaml:"require_auth"`
	AllowRemoteWrite             bool    `mapstructure:"allow_remote_write" yaml:"allow_remote_write"`
	SafeMode                    bool     `mapstructure:"safe_mode" yaml:"safe_mode"`
	AllowWrite                   bool    `mapstructure:"allow_write" yaml:"allow_write"`
	AllowDelete                  bool    `mapstructure:"allow_delete" yaml:"allow_delete"`
	AllowRename                  bool    `mapstructure:"allow_rename" yaml:"allow_rename"`
	AllowOpenInFolder             bool    `mapstructure:"allow_open_in_folder" yaml:"allow_open_in_folder"`
	AllowResetIndex               bool    `mapstructure:"allow_reset_index" yaml:"allow_reset_index"`
	TrustedProxies               []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
	AllowInsecureTrustedProxies  bool     `mapstructure:"allow_insecure_trusted_proxies" yaml:"allow_insecure_trusted_proxies"`
	RateLimitMaxClients          int      `mapstructure:"rate_limit_max_clients" yaml:"rate_limit_max_clients"`
	RateLimitWindowSeconds       int      `mapstructure:"rate_limit_window_seconds" yaml:"rate_limit_window_seconds"`
	RateLimitMaxRequests         int      `mapstructure:"rate_limit_max_requests" yaml:"rate_limit_max_requests"`
}

// MaintenanceConfig configures backup/restore/settings (component H).
type MaintenanceConfig struct {
	ArchiveDir          string        `mapstructure:"archive_dir" yaml:"archive_dir"`
	SettingsCacheTTL    time.Duration `mapstructure:"settings_cache_ttl" yaml:"settings_cache_ttl"`
	ForceDeleteRetries  int           `mapstructure:"force_delete_retries" yaml:"force_delete_retries"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load starts from the compiled defaults, overlays the file at path (if
// non-empty), lets viper's MAJOOR_-prefixed environment variables override
// the file's values, applies the legacy variables in bindLegacyEnvOverrides
// last, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MAJOOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %q: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	ApplyDefaults(cfg)

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	bindLegacyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoad is a thin alias for Load: it does not panic, and returns Load's
// error for CLI entry points to print before exiting.
func MustLoad(path string) (*Config, error) {
	return Load(path)
}
