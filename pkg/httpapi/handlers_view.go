package httpapi

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/paths"
)

// allowedViewPrefixes is the strict content-type allowlist media serving
// is confined to; anything else (text, html, archives) is refused so
// this endpoint can never become a generic file server.
var allowedViewPrefixes = []string{"image/", "video/", "audio/"}

func isAllowedMediaType(contentType string) bool {
	for _, prefix := range allowedViewPrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// handleCustomView serves a single file's bytes either by an absolute
// filepath or by (root_id, filename, subfolder), confining resolution
// to an allowed root and rejecting any content type outside the image/
// video/audio allowlist.
func (s *Server) handleCustomView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	abs, aerr := s.resolveViewPath(q)
	if aerr != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, aerr)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(abs))
	if contentType == "" || !isAllowedMediaType(contentType) {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Forbiddenf("content type is not allowed for /custom-view"))
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.NotFoundf("file not found"))
			return
		}
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Wrap(apperr.DBError, "failed to open file", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fail(w, s.app.Cfg.Server.DebugErrors, apperr.Wrap(apperr.DBError, "failed to stat file", err))
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'")
	w.Header().Set("X-Frame-Options", "DENY")
	http.ServeContent(w, r, filepath.Base(abs), info.ModTime(), f)
}

func (s *Server) resolveViewPath(q map[string][]string) (string, *apperr.Error) {
	get := func(key string) string {
		if v, ok := q[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	if fp := get("filepath"); fp != "" {
		abs, err := filepath.Abs(fp)
		if err != nil {
			return "", apperr.Invalid("invalid filepath")
		}
		if _, _, within := s.app.Registry.FindContainingRoot(abs); !within {
			return "", apperr.Forbiddenf("path is not under any allowed root")
		}
		return abs, nil
	}

	filename := get("filename")
	if filename == "" {
		return "", apperr.Invalid("filepath or filename is required")
	}
	rel := filepath.Join(get("subfolder"), filename)
	rootID := get("root_id")

	var resolved *paths.Resolved
	var aerr *apperr.Error
	if rootID != "" {
		resolved, aerr = s.app.Registry.ResolveCustom(rootID, rel)
	} else {
		resolved, aerr = s.app.Registry.Resolve(paths.KindOutput, rel)
		if aerr != nil && s.app.Registry.InputRoot() != "" {
			if inResolved, inErr := s.app.Registry.Resolve(paths.KindInput, rel); inErr == nil {
				resolved, aerr = inResolved, nil
			}
		}
	}
	if aerr != nil {
		return "", aerr
	}
	return resolved.Abs, nil
}
