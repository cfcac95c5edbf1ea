package httpapi

import (
	"net/http"
	"strconv"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/search"
	"github.com/majoor/assetindex/pkg/security"
)

// requireLoopbackScope rejects scope=browser requests from non-local
// clients: browsing a custom root's raw filesystem bypasses the index
// entirely, so it is restricted the same way local-only maintenance
// operations are.
func (s *Server) requireLoopbackScope(r *http.Request, scope search.Scope) *apperr.Error {
	if scope != search.ScopeBrowser {
		return nil
	}
	if security.IsLoopback(s.app.Guard.ResolveClientIP(r)) {
		return nil
	}
	return apperr.Forbiddenf("browser scope is restricted to loopback clients")
}

func (s *Server) limits() search.Limits {
	cfg := s.app.Cfg.Search
	return search.Limits{
		MaxListLimit:      cfg.MaxListLimit,
		MaxListOffset:     cfg.MaxListOffset,
		DirCacheTTL:       cfg.DirCacheTTL,
		InteractionPause:  cfg.InteractionPause,
		AutocompleteLimit: cfg.AutocompleteLimit,
	}
}

// handleList and handleSearch share a request shape and response
// envelope; /search additionally requires a non-empty query term.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	req, aerr := parseListRequest(r, s.limits())
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if aerr := s.requireLoopbackScope(r, req.Scope); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	resp, aerr := s.app.runListing(r.Context(), req)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	okMeta(w, resp, map[string]any{"scope": string(resp.Scope), "total": resp.Total})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, aerr := parseListRequest(r, s.limits())
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if req.Query == "" {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("search requires a non-empty q parameter"))
		return
	}
	if aerr := s.requireLoopbackScope(r, req.Scope); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	resp, aerr := s.app.runListing(r.Context(), req)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	okMeta(w, resp, map[string]any{"scope": string(resp.Scope), "total": resp.Total})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	out, aerr := search.Autocomplete(r.Context(), s.app.Store, q.Get("q"), limit)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, out)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	out, aerr := search.TagVocabulary(r.Context(), s.app.Store)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, out)
}

// handleWorkflowQuick resolves a single asset's raw workflow payload by
// (filename, subfolder, source, root_id) instead of asset id, for the
// UI's inline workflow-preview panel.
func (s *Server) handleWorkflowQuick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asset, aerr := s.resolveAssetByNameParams(r, q.Get("type"), q.Get("filename"), q.Get("subfolder"), q.Get("root_id"))
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	meta, aerr := s.app.metadataFor(r, asset.ID)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	if !meta.HasWorkflow {
		ok(w, nil)
		return
	}
	ok(w, rawPayloadJSON(meta.RawPayload))
}

// handleMetadata returns the opaque metadata dict for an asset located
// by (type, filename, subfolder, root_id), mirroring /workflow-quick's
// resolution but returning the full raw payload regardless of kind.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asset, aerr := s.resolveAssetByNameParams(r, q.Get("type"), q.Get("filename"), q.Get("subfolder"), q.Get("root_id"))
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	meta, aerr := s.app.metadataFor(r, asset.ID)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, rawPayloadJSON(meta.RawPayload))
}
