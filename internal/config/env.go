package config

import (
	"os"
	"strconv"
	"strings"
)

// bindLegacyEnvOverrides applies the handful of environment variables the
// spec names directly under the MJR_/MJR_AM_ prefixes used by the original
// tool, rather than the MAJOOR_ prefix viper binds automatically. They are
// applied after Unmarshal, so they take precedence over both the config
// file and any MAJOOR_*-prefixed values viper already applied; when both
// MAJOOR_OUTPUT_DIRECTORY and MJR_AM_OUTPUT_DIRECTORY are set, the latter
// wins.
func bindLegacyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MAJOOR_OUTPUT_DIRECTORY"); ok {
		cfg.Roots.OutputDirectory = v
	}
	if v, ok := os.LookupEnv("MJR_AM_OUTPUT_DIRECTORY"); ok {
		cfg.Roots.OutputDirectory = v
	}
	if v, ok := os.LookupEnv("MJR_AM_INPUT_DIRECTORY"); ok {
		cfg.Roots.InputDirectory = v
	}
	if v, ok := envInt("MJR_MAX_JSON_SIZE"); ok {
		cfg.Server.MaxJSONBytes = int64(v)
	}
	if v, ok := envInt("MJR_WATCHER_DEBOUNCE_MS"); ok {
		cfg.Watcher.DebounceMS = v
	}
	if v, ok := envInt("MJR_WATCHER_PENDING_MAX"); ok {
		cfg.Watcher.PendingMax = v
	}
	if v, ok := envBool("MJR_WATCHER_ENABLED"); ok {
		cfg.Watcher.Enabled = v
	}
	if v, ok := envInt("MJR_AM_SCAN_BATCH_SIZE"); ok {
		cfg.Indexer.BatchSmall = v
	}
	if v, ok := envInt("MJR_AM_SCAN_WORKERS"); ok {
		cfg.Indexer.EnrichmentWorkers = v
	}
	if v, ok := os.LookupEnv("MAJOOR_API_TOKEN"); ok {
		cfg.Security.APIToken = v
	}
	if v, ok := os.LookupEnv("MAJOOR_API_TOKEN_HASH"); ok {
		cfg.Security.APITokenHash = v
	}
	if v, ok := os.LookupEnv("MAJOOR_API_TOKEN_PEPPER"); ok {
		cfg.Security.APITokenPepper = v
	}
	if v, ok := envBool("MAJOOR_REQUIRE_AUTH"); ok {
		cfg.Security.RequireAuth = v
	}
	if v, ok := envBool("MAJOOR_ALLOW_REMOTE_WRITE"); ok {
		cfg.Security.AllowRemoteWrite = v
	}
	if v, ok := envBool("MAJOOR_SAFE_MODE"); ok {
		cfg.Security.SafeMode = v
	}
	if v, ok := envBool("MAJOOR_ALLOW_WRITE"); ok {
		cfg.Security.AllowWrite = v
	}
	if v, ok := envBool("MAJOOR_ALLOW_DELETE"); ok {
		cfg.Security.AllowDelete = v
	}
	if v, ok := envBool("MAJOOR_ALLOW_RENAME"); ok {
		cfg.Security.AllowRename = v
	}
	if v, ok := envBool("MAJOOR_ALLOW_OPEN_IN_FOLDER"); ok {
		cfg.Security.AllowOpenInFolder = v
	}
	if v, ok := envBool("MAJOOR_ALLOW_RESET_INDEX"); ok {
		cfg.Security.AllowResetIndex = v
	}
	if v, ok := os.LookupEnv("MAJOOR_TRUSTED_PROXIES"); ok {
		cfg.Security.TrustedProxies = splitCSV(v)
	}
	if v, ok := envBool("MAJOOR_ALLOW_INSECURE_TRUSTED_PROXIES"); ok {
		cfg.Security.AllowInsecureTrustedProxies = v
	}
	if v, ok := envBool("MAJOOR_DB_AUTO_RESET"); ok {
		cfg.Storage.AutoResetEnabled = v
	}
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
