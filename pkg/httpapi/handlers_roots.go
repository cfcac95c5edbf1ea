package httpapi

import (
	"net/http"

	"github.com/majoor/assetindex/internal/apperr"
)

// handleListCustomRoots returns every registered custom root, with
// Offline refreshed against the live filesystem.
func (s *Server) handleListCustomRoots(w http.ResponseWriter, r *http.Request) {
	ok(w, s.app.CustomRoots.List())
}

type addCustomRootRequest struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// handleAddCustomRoot registers a new custom root, or returns the
// existing entry unchanged if an equivalent path is already registered.
func (s *Server) handleAddCustomRoot(w http.ResponseWriter, r *http.Request) {
	var req addCustomRootRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if req.Path == "" {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("path is required"))
		return
	}
	root, existed, aerr := s.app.CustomRoots.Add(req.Path, req.Label)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	okMeta(w, root, map[string]any{"already_exists": existed})
}

type removeCustomRootRequest struct {
	ID string `json:"id"`
}

// handleRemoveCustomRoot unregisters a custom root by id. Any assets
// already indexed under it are left in place; they simply stop being
// reachable via that root's browser/scan paths.
func (s *Server) handleRemoveCustomRoot(w http.ResponseWriter, r *http.Request) {
	var req removeCustomRootRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if aerr := s.app.CustomRoots.Remove(req.ID); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, map[string]any{"removed": true})
}
