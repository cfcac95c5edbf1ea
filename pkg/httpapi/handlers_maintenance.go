package httpapi

import (
	"net/http"

	"github.com/majoor/assetindex/internal/apperr"
)

// handleForceDelete tries a clean storage reset first and, on failure,
// forces collection and best-effort file deletion with retry, raising
// the maintenance flag for the duration (spec §4.H).
func (s *Server) handleForceDelete(w http.ResponseWriter, r *http.Request) {
	if aerr := s.app.Maintenance.ForceDelete(r.Context()); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, s.app.Maintenance.Current())
}

// handleBackupSave writes a consistent file-level copy of the storage
// files into a timestamped archive subdirectory.
func (s *Server) handleBackupSave(w http.ResponseWriter, r *http.Request) {
	archive, aerr := s.app.Maintenance.BackupSave(r.Context())
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, map[string]any{"archive": archive})
}

type backupRestoreRequest struct {
	Archive string `json:"archive"`
}

// handleBackupRestore stops workers, resets storage, replaces files
// from the named archive, reinitializes the schema, and restarts
// opportunistic scans, lowering the maintenance flag when done.
func (s *Server) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	var req backupRestoreRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if req.Archive == "" {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("archive is required"))
		return
	}
	if aerr := s.app.Maintenance.BackupRestore(r.Context(), req.Archive); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, s.app.Maintenance.Current())
}

// handleListBackups lists the archive subdirectories available to
// restore from.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	names, aerr := s.app.Maintenance.ListBackups()
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, names)
}

// handleCleanupCaseDuplicates is the explicit admin endpoint for the
// Open Question (a) decision: case-only duplicate rows are never
// cleaned automatically, only on this call, keeping the row with the
// most recent mtime.
func (s *Server) handleCleanupCaseDuplicates(w http.ResponseWriter, r *http.Request) {
	n, aerr := s.app.Maintenance.CleanupCaseDuplicates(r.Context())
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, map[string]any{"removed": n})
}

type settingRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// handleGetSetting reads one settings-store key through the TTL cache.
func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("key is required"))
		return
	}
	view, aerr := s.app.Maintenance.GetSetting(r.Context(), key)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, view)
}

// handlePutSetting writes one settings-store key, bumping the monotonic
// __settings_version.
func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if req.Key == "" {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("key is required"))
		return
	}
	view, aerr := s.app.Maintenance.PutSetting(r.Context(), req.Key, req.Value)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, view)
}

// handleListSettings returns every known settings key and its current
// value, for the settings panel's initial load.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	ok(w, s.app.Maintenance.AllSettings(r.Context()))
}
