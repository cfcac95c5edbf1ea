package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.True(t, cfg.Watcher.Enabled)
	assert.Equal(t, 50, cfg.Indexer.BatchSmall)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\nroots:\n  output_directory: /tmp/out\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/tmp/out", cfg.Roots.OutputDirectory)
}

func TestLoadLegacyEnvOverridesOutputDirectory(t *testing.T) {
	t.Setenv("MJR_AM_OUTPUT_DIRECTORY", "/legacy/out")
	t.Setenv("MJR_WATCHER_DEBOUNCE_MS", "750")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/legacy/out", cfg.Roots.OutputDirectory)
	assert.Equal(t, 750, cfg.Watcher.DebounceMS)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
