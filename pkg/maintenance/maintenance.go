// Package maintenance implements component H: the settings store's
// live-preferences surface, and the process-wide maintenance state
// machine that fences destructive operations (force-delete,
// backup/restore, case-duplicate cleanup) behind a single active flag,
// stopping the watcher and the enrichment workers for their duration
// and restarting both once the operation completes. It is
// grounded on original_source/mjr_am_backend/settings.py and
// routes/handlers/db_maintenance.py, adapted from Python module-level
// globals to a struct the same way pkg/security turned the original's
// security globals into a Guard.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/enrich"
	"github.com/majoor/assetindex/pkg/indexer"
	"github.com/majoor/assetindex/pkg/metrics"
	"github.com/majoor/assetindex/pkg/paths"
	"github.com/majoor/assetindex/pkg/store"
	"github.com/majoor/assetindex/pkg/watch"
)

// Step names the maintenance state machine's transitions, matching the
// original's status event vocabulary exactly so a long-polling UI client
// written against the original keeps working unmodified.
type Step string

const (
	StepStarted         Step = "started"
	StepStoppingWorkers Step = "stopping_workers"
	StepResettingDB     Step = "resetting_db"
	StepReplacingFiles  Step = "replacing_files"
	StepRecreateDB      Step = "recreate_db"
	StepRestartingScan  Step = "restarting_scan"
	StepDone            Step = "done"
	StepFailed          Step = "failed"
)

// Status is the maintenance flag's current public state.
type Status struct {
	Active    bool      `json:"active"`
	Operation string    `json:"operation,omitempty"`
	Step      Step      `json:"step,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// StatusEvent is one state transition, delivered to subscribers (the
// HTTP layer's long-poll/SSE status endpoint).
type StatusEvent struct {
	Operation string    `json:"operation"`
	Step      Step      `json:"step"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// RootsFunc recomputes the current set of watched roots (builtin
// output/input plus live custom roots) at restart time, since custom
// roots can change while a maintenance operation that needed them
// stopped is running.
type RootsFunc func() []watch.WatchedRoot

// Manager owns the process-wide maintenance flag and orchestrates every
// component that must pause while it is raised.
type Manager struct {
	store    *store.Store
	settings *assetdb.SettingsCache
	registry *paths.Registry
	idx      *indexer.Indexer
	watcher  watch.Observer
	queue    *enrich.Queue
	sidecar  *enrich.SidecarSync
	rootsFn  RootsFunc
	cfg      config.MaintenanceConfig
	roots    config.RootsConfig

	mu          sync.Mutex
	status      Status
	subscribers map[int]chan StatusEvent
	nextSub     int
	inactiveCh  chan struct{}
}

// NewManager builds a Manager. watcher/queue/sidecar may be nil in
// configurations that run without them (e.g. watcher disabled); their
// stop/restart steps become no-ops.
func NewManager(
	s *store.Store,
	settings *assetdb.SettingsCache,
	registry *paths.Registry,
	idx *indexer.Indexer,
	watcher watch.Observer,
	queue *enrich.Queue,
	sidecar *enrich.SidecarSync,
	rootsFn RootsFunc,
	cfg config.MaintenanceConfig,
	roots config.RootsConfig,
) *Manager {
	m := &Manager{
		store:       s,
		settings:    settings,
		registry:    registry,
		idx:         idx,
		watcher:     watcher,
		queue:       queue,
		sidecar:     sidecar,
		rootsFn:     rootsFn,
		cfg:         cfg,
		roots:       roots,
		subscribers: make(map[int]chan StatusEvent),
		inactiveCh:  closedChan(),
	}
	return m
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// IsActive reports whether a maintenance operation currently holds the
// flag.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Active
}

// RequireInactive returns DB_MAINTENANCE if an operation is in
// progress, for handlers (search/list/duplicates) that must short
// circuit rather than read a storage engine mid-reset.
func (m *Manager) RequireInactive() *apperr.Error {
	if m.IsActive() {
		return apperr.Maintenance()
	}
	return nil
}

// Current returns a snapshot of the maintenance flag's state.
func (m *Manager) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// WaitInactive blocks until the flag clears or timeout elapses,
// returning false on timeout. A zero or negative timeout waits
// indefinitely (bounded by ctx).
func (m *Manager) WaitInactive(ctx context.Context, timeout time.Duration) bool {
	m.mu.Lock()
	ch := m.inactiveCh
	m.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Subscribe registers a channel that receives every status event until
// unsubscribe is called. The channel is buffered; a slow subscriber
// drops events rather than blocking the state machine.
func (m *Manager) Subscribe() (events <-chan StatusEvent, unsubscribe func()) {
	ch := make(chan StatusEvent, 16)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = ch
	m.mu.Unlock()

	// The channel is never closed: broadcast snapshots the subscriber
	// set outside the lock, so closing here could race a pending send.
	// Subscribers bound their reads with a timer or request context.
	return ch, func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// begin raises the flag for operation, failing with CONFLICT if one is
// already in progress. It returns the transition function used to
// advance through steps and the end function that must be deferred to
// clear the flag.
func (m *Manager) begin(operation string) (advance func(Step), end func(failErr string), startErr *apperr.Error) {
	m.mu.Lock()
	if m.status.Active {
		m.mu.Unlock()
		return nil, nil, apperr.Conflictf("a maintenance operation (%s) is already in progress", m.status.Operation)
	}
	now := time.Now().UTC()
	m.status = Status{Active: true, Operation: operation, Step: StepStarted, StartedAt: now, UpdatedAt: now}
	m.inactiveCh = make(chan struct{})
	m.mu.Unlock()

	metrics.RecordMaintenanceStep(string(StepStarted), true)
	m.broadcast(StepStarted, "")

	advance = func(step Step) {
		m.mu.Lock()
		m.status.Step = step
		m.status.UpdatedAt = time.Now().UTC()
		m.mu.Unlock()
		metrics.RecordMaintenanceStep(string(step), true)
		m.broadcast(step, "")
	}

	end = func(failErr string) {
		m.mu.Lock()
		final := StepDone
		if failErr != "" {
			final = StepFailed
		}
		m.status.Step = final
		m.status.Error = failErr
		m.status.Active = false
		m.status.UpdatedAt = time.Now().UTC()
		closeCh := m.inactiveCh
		m.mu.Unlock()

		metrics.RecordMaintenanceStep(string(final), false)
		m.broadcast(final, failErr)
		close(closeCh)
	}
	return advance, end, nil
}

func (m *Manager) broadcast(step Step, errMsg string) {
	m.mu.Lock()
	op := m.status.Operation
	subs := make([]chan StatusEvent, 0, len(m.subscribers))
	for _, ch := range m.subscribers {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	ev := StatusEvent{Operation: op, Step: step, Error: errMsg, At: time.Now().UTC()}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("maintenance: status subscriber is slow, dropping event", "step", step)
		}
	}
}

// stopWorkers stops the watcher and the enrichment/sidecar workers for
// the duration of a destructive operation. It is idempotent against nil
// components.
func (m *Manager) stopWorkers() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.queue != nil {
		m.queue.Stop()
	}
	if m.sidecar != nil {
		m.sidecar.Stop()
	}
}

// restartWorkers resumes the watcher and enrichment/sidecar queues
// after a maintenance operation completes, and kicks off a fresh scan
// of every watched root so the index reflects whatever just changed on
// disk.
func (m *Manager) restartWorkers(ctx context.Context) {
	if m.queue != nil {
		m.queue.Start(ctx, 1)
	}
	if m.sidecar != nil {
		m.sidecar.Start(ctx)
	}
	if m.rootsFn == nil {
		return
	}
	roots := m.rootsFn()
	if m.watcher != nil {
		if err := m.watcher.Start(ctx, roots); err != nil {
			logger.ErrorCtx(ctx, "maintenance: failed to restart watcher", "error", err)
		}
	}
	if m.idx == nil {
		return
	}
	for _, r := range roots {
		if _, serr := m.idx.Scan(ctx, indexer.Options{
			RootDir: r.Path, Recursive: true, Incremental: true,
			Source: r.Source, RootID: r.RootID, Fast: false, BackgroundMetadata: true,
			Throttled: true,
		}); serr != nil {
			logger.WarnCtx(ctx, "maintenance: restart scan failed", "root", r.Path, "error", serr)
		}
	}
}
