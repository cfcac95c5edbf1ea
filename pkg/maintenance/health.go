package maintenance

import (
	"context"

	"github.com/majoor/assetindex/pkg/store"
)

// Counters aggregates the live backlog/connection figures surfaced by
// the health/counters endpoint, drawn from every component the
// maintenance manager already holds a reference to so the HTTP layer
// doesn't need its own fan-out.
type Counters struct {
	WatcherPending       int      `json:"watcher_pending"`
	WatcherPaths         []string `json:"watcher_paths"`
	EnrichmentQueueLen   int      `json:"enrichment_queue_length"`
	StorageActiveConns   int      `json:"storage_active_conns"`
	MaintenanceActive    bool     `json:"maintenance_active"`
}

// DBHealth is the health/db endpoint's shape: the storage engine's
// self-reported diagnostics plus the maintenance flag, since a caller
// asking "is the database healthy" also needs to know whether it is
// mid-maintenance rather than actually malformed.
type DBHealth struct {
	store.Diagnostics
	MaintenanceActive bool `json:"maintenance_active"`
}

// Counters gathers the current backlog snapshot.
func (m *Manager) Counters() Counters {
	c := Counters{MaintenanceActive: m.IsActive()}
	if m.watcher != nil {
		c.WatcherPending = m.watcher.PendingCount()
		c.WatcherPaths = m.watcher.WatchedPaths()
	}
	if m.queue != nil {
		c.EnrichmentQueueLen = m.queue.QueueLength()
	}
	return c
}

// DBHealth gathers the storage engine's diagnostics.
func (m *Manager) DBHealth(ctx context.Context) DBHealth {
	return DBHealth{Diagnostics: m.store.Diagnostics(ctx), MaintenanceActive: m.IsActive()}
}
