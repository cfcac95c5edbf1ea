// Package metrics exposes the process's Prometheus collectors. It
// follows the teacher's optional-metrics idiom (nil-safe Observe*
// helpers, registered only when enabled) collapsed into a single
// package since assetindex has exactly one metrics backend, unlike the
// teacher's swappable interface-plus-prometheus-subpackage split.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry

	scanDuration        *prometheus.HistogramVec
	scanBatches         *prometheus.CounterVec
	scanAssetsProcessed *prometheus.CounterVec
	watcherQueueDepth   prometheus.Gauge
	watcherOverflowed   prometheus.Counter
	rateLimitRejections *prometheus.CounterVec
	storagePoolInUse    prometheus.Gauge
	storageSelfHeals    *prometheus.CounterVec
	maintenanceStep     *prometheus.CounterVec
	maintenanceActive   prometheus.Gauge
	enrichmentQueueLen  prometheus.Gauge
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
)

// Init registers every collector against a fresh registry when enabled
// is true. Calling Init is idempotent; a prior registry is replaced.
// When enabled is false every Observe*/Record* helper becomes a no-op,
// matching the teacher's zero-overhead-when-disabled contract.
func Init(enabled_ bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enabled_
	if !enabled {
		registry = nil
		return
	}

	reg := prometheus.NewRegistry()
	registry = reg

	scanDuration = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "majoorindex_scan_duration_seconds",
			Help:    "Duration of indexer scans by source and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "outcome"},
	)
	scanBatches = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "majoorindex_scan_batches_total",
			Help: "Indexer batch upserts by outcome (committed, failed).",
		},
		[]string{"source", "outcome"},
	)
	scanAssetsProcessed = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "majoorindex_scan_assets_total",
			Help: "Assets processed by an indexer scan, by disposition.",
		},
		[]string{"source", "disposition"}, // added, updated, skipped, errored
	)
	watcherQueueDepth = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "majoorindex_watcher_pending_paths",
			Help: "Filepaths currently awaiting a watcher flush.",
		},
	)
	watcherOverflowed = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name: "majoorindex_watcher_overflow_total",
			Help: "Filesystem events dropped into the watcher overflow bucket because pending_max was reached.",
		},
	)
	rateLimitRejections = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "majoorindex_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter, by endpoint.",
		},
		[]string{"endpoint"},
	)
	storagePoolInUse = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "majoorindex_storage_connections_in_use",
			Help: "Open database connections currently checked out from the pool.",
		},
	)
	storageSelfHeals = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "majoorindex_storage_self_heal_total",
			Help: "Storage self-heal attempts, by outcome (reset, skipped_cooldown, failed).",
		},
		[]string{"outcome"},
	)
	maintenanceStep = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "majoorindex_maintenance_steps_total",
			Help: "Maintenance state machine transitions, by step.",
		},
		[]string{"step"},
	)
	maintenanceActive = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "majoorindex_maintenance_active",
			Help: "1 while a maintenance operation holds the process-wide lock, 0 otherwise.",
		},
	)
	enrichmentQueueLen = promauto.With(reg).NewGauge(
		prometheus.GaugeOpts{
			Name: "majoorindex_enrichment_queue_length",
			Help: "Filepaths currently queued for background metadata enrichment.",
		},
	)
	httpRequests = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "majoorindex_http_requests_total",
			Help: "HTTP requests handled, by route and response code class.",
		},
		[]string{"route", "code"},
	)
	httpDuration = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "majoorindex_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
}

// IsEnabled reports whether Init was called with enabled=true.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Registry returns the active Prometheus registry, or nil when metrics
// are disabled.
func Registry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// ObserveScan records one completed scan's duration and outcome.
func ObserveScan(source, outcome string, d time.Duration) {
	if !IsEnabled() {
		return
	}
	scanDuration.WithLabelValues(source, outcome).Observe(d.Seconds())
}

// RecordScanBatch records one batch upsert attempt's outcome.
func RecordScanBatch(source, outcome string) {
	if !IsEnabled() {
		return
	}
	scanBatches.WithLabelValues(source, outcome).Inc()
}

// RecordScanAssets increments the processed-asset counter for one
// disposition (added, updated, skipped, errored).
func RecordScanAssets(source, disposition string, n int) {
	if !IsEnabled() || n <= 0 {
		return
	}
	scanAssetsProcessed.WithLabelValues(source, disposition).Add(float64(n))
}

// SetWatcherQueueDepth reports the watcher's current pending+overflow
// count.
func SetWatcherQueueDepth(n int) {
	if !IsEnabled() {
		return
	}
	watcherQueueDepth.Set(float64(n))
}

// RecordWatcherOverflow increments the overflow counter.
func RecordWatcherOverflow() {
	if !IsEnabled() {
		return
	}
	watcherOverflowed.Inc()
}

// RecordRateLimitRejection increments the rejection counter for an
// endpoint.
func RecordRateLimitRejection(endpoint string) {
	if !IsEnabled() {
		return
	}
	rateLimitRejections.WithLabelValues(endpoint).Inc()
}

// SetStoragePoolInUse reports the number of connections currently
// checked out of the storage pool.
func SetStoragePoolInUse(n int) {
	if !IsEnabled() {
		return
	}
	storagePoolInUse.Set(float64(n))
}

// RecordStorageSelfHeal increments the self-heal counter for an
// outcome (reset, skipped_cooldown, failed).
func RecordStorageSelfHeal(outcome string) {
	if !IsEnabled() {
		return
	}
	storageSelfHeals.WithLabelValues(outcome).Inc()
}

// RecordMaintenanceStep increments the counter for a maintenance state
// machine step and updates the active gauge.
func RecordMaintenanceStep(step string, active bool) {
	if !IsEnabled() {
		return
	}
	maintenanceStep.WithLabelValues(step).Inc()
	if active {
		maintenanceActive.Set(1)
	} else {
		maintenanceActive.Set(0)
	}
}

// SetEnrichmentQueueLength reports the current background enrichment
// backlog.
func SetEnrichmentQueueLength(n int) {
	if !IsEnabled() {
		return
	}
	enrichmentQueueLen.Set(float64(n))
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(route, codeClass string, d time.Duration) {
	if !IsEnabled() {
		return
	}
	httpRequests.WithLabelValues(route, codeClass).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
