package httpapi

import (
	"net/http"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/indexer"
)

type scanRequest struct {
	Root        string `json:"root"`
	Recursive   *bool  `json:"recursive"`
	Incremental *bool  `json:"incremental"`
	RootID      string `json:"root_id"`
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// handleScan triggers an on-demand scan of one of the builtin roots or a
// registered custom root, per spec §4.C's scanning protocol.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if aerr := decodeJSON(r, &req); aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}

	var (
		rootDir string
		source  assetdb.Source
		rootID  string
	)
	switch req.Root {
	case "", "output":
		rootDir = s.app.Registry.OutputRoot()
		source = assetdb.SourceOutput
	case "input":
		if s.app.Registry.InputRoot() == "" {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("input directory is not configured"))
			return
		}
		rootDir = s.app.Registry.InputRoot()
		source = assetdb.SourceInput
	case "custom":
		cr, found := s.app.CustomRoots.Get(req.RootID)
		if !found {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.NotFoundf("custom root %q not found", req.RootID))
			return
		}
		if cr.Offline {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.Unavailable("custom root %q is offline", req.RootID))
			return
		}
		rootDir = cr.Path
		source = assetdb.SourceCustom
		rootID = cr.ID
	default:
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Invalid("unknown root %q", req.Root))
		return
	}

	stats, aerr := s.app.Indexer.Scan(r.Context(), indexer.Options{
		RootDir:            rootDir,
		Recursive:          boolOr(req.Recursive, true),
		Incremental:        boolOr(req.Incremental, true),
		Source:             source,
		RootID:             rootID,
		BackgroundMetadata: true,
	})
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}
	ok(w, stats)
}
