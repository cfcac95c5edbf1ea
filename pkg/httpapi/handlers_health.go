package httpapi

import (
	"net/http"
	"time"
)

// handleHealth is the liveness probe: if the process can answer at all,
// it reports ok.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{"status": "ok"})
}

// handleHealthCounters reports the live backlog snapshot (watcher
// pending count and paths, enrichment queue length, active storage
// connections, maintenance flag).
func (s *Server) handleHealthCounters(w http.ResponseWriter, r *http.Request) {
	ok(w, s.app.Maintenance.Counters())
}

// handleHealthDB reports the storage engine's own diagnostics plus the
// maintenance flag.
func (s *Server) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	ok(w, s.app.Maintenance.DBHealth(r.Context()))
}

// handleStatus long-polls the maintenance status stream: it returns the
// current status immediately if a maintenance operation is active, or
// waits briefly for the next transition so clients can poll without
// busy-looping.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	current := s.app.Maintenance.Current()
	if !current.Active {
		ok(w, current)
		return
	}

	events, unsubscribe := s.app.Maintenance.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(25 * time.Second)
	defer timer.Stop()

	select {
	case evt, open := <-events:
		if !open {
			ok(w, s.app.Maintenance.Current())
			return
		}
		ok(w, evt)
	case <-timer.C:
		ok(w, s.app.Maintenance.Current())
	case <-r.Context().Done():
	}
}
