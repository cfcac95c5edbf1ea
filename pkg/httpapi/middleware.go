package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/logger"
	"github.com/majoor/assetindex/pkg/metrics"
)

// requestLogger logs every request's completion at INFO, mirroring the
// teacher's pkg/api/router.go requestLogger but routed through this
// system's own metrics recorder as well.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		logger.Info("http request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
		metrics.RecordHTTPRequest(r.URL.Path, statusClass(ww.Status()), duration)
	})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// limitBody caps request bodies at the configured JSON size ceiling so
// a misbehaving client can't exhaust memory decoding a giant payload.
func (s *Server) limitBody(next http.Handler) http.Handler {
	max := s.app.Cfg.Server.MaxJSONBytes
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

// maintenanceFence short-circuits any request with DB_MAINTENANCE while
// the process-wide flag is raised, per spec §4.H.
func (s *Server) maintenanceFence(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.app.Maintenance != nil && s.app.Maintenance.IsActive() {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.Maintenance())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeGuard wraps a mutating handler with the full security pipeline:
// CSRF, write-token auth, operation allowlist, then rate limiting. op
// is the operation name consulted by RequireOperationEnabled, or "" to
// skip the allowlist check for endpoints that only need write auth.
func (s *Server) writeGuard(op, endpoint string, maxRequests, windowSeconds int, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g := s.app.Guard
		if reason := g.CheckCSRF(r); reason != "" {
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.CSRFRejected(reason))
			return
		}
		if aerr := g.RequireWriteAccess(r); aerr != nil {
			fail(w, s.app.Cfg.Server.DebugErrors, aerr)
			return
		}
		if op != "" {
			if aerr := g.RequireOperationEnabled(r.Context(), op); aerr != nil {
				fail(w, s.app.Cfg.Server.DebugErrors, aerr)
				return
			}
		}
		if allowed, retryAfter := g.CheckRateLimit(r, endpoint, maxRequests, windowSeconds); !allowed {
			metrics.RecordRateLimitRejection(endpoint)
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.RateLimitedf(retryAfter))
			return
		}
		h(w, r)
	}
}

// readGuard applies only rate limiting, for read endpoints the original
// throttles more loosely than writes (search/autocomplete).
func (s *Server) readGuard(endpoint string, maxRequests, windowSeconds int, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allowed, retryAfter := s.app.Guard.CheckRateLimit(r, endpoint, maxRequests, windowSeconds); !allowed {
			metrics.RecordRateLimitRejection(endpoint)
			fail(w, s.app.Cfg.Server.DebugErrors, apperr.RateLimitedf(retryAfter))
			return
		}
		h(w, r)
	}
}

// touchPause records UI activity so background enrichment yields,
// implementing the interaction-pause design in spec §4.F/§9.
func (s *Server) touchPause(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.app.Pause != nil {
			s.app.Pause.Touch(s.app.Cfg.Search.InteractionPause)
		}
		next(w, r)
	}
}
