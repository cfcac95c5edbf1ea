package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func TestDisabledIsNoop(t *testing.T) {
	Init(false)
	assert.False(t, IsEnabled())
	assert.Nil(t, Registry())

	// None of these should panic even though no collectors exist.
	ObserveScan("output", "ok", time.Millisecond)
	RecordScanBatch("output", "committed")
	RecordScanAssets("output", "added", 3)
	SetWatcherQueueDepth(5)
	RecordWatcherOverflow()
	RecordRateLimitRejection("/mjr/am/list")
	SetStoragePoolInUse(2)
	RecordStorageSelfHeal("reset")
	RecordMaintenanceStep("started", true)
	SetEnrichmentQueueLength(7)
	RecordHTTPRequest("/mjr/am/list", "2xx", time.Millisecond)
}

func TestEnabledRegistersAndObserves(t *testing.T) {
	Init(true)
	t.Cleanup(func() { Init(false) })

	require.True(t, IsEnabled())
	require.NotNil(t, Registry())

	RecordScanBatch("output", "committed")
	RecordScanAssets("output", "added", 4)
	SetWatcherQueueDepth(9)

	families, err := Registry().Gather()
	require.NoError(t, err)

	found := map[string]*dto.MetricFamily{}
	for _, f := range families {
		found[f.GetName()] = f
	}

	require.Contains(t, found, "majoorindex_scan_batches_total")
	require.Contains(t, found, "majoorindex_scan_assets_total")
	require.Contains(t, found, "majoorindex_watcher_pending_paths")

	watcherGauge := found["majoorindex_watcher_pending_paths"]
	require.Len(t, watcherGauge.Metric, 1)
	assert.Equal(t, float64(9), watcherGauge.Metric[0].GetGauge().GetValue())
}

func TestInitReplacesRegistry(t *testing.T) {
	Init(true)
	first := Registry()
	Init(true)
	second := Registry()
	t.Cleanup(func() { Init(false) })

	assert.NotSame(t, first, second, "Init should build a fresh registry each call")
}
