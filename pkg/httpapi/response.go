// Package httpapi is the thin HTTP handler layer (component I) that
// composes the storage, indexing, search, security and maintenance
// components into the uniform JSON envelope described by the HTTP
// surface: {ok, data, error, code, meta}. It is grounded on
// marmos91-dittofs/pkg/api's server/router/response split, adapted from
// that package's ad-hoc {status,data,error} shape to the envelope this
// system's routes/__init__.py equivalent actually returns.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/logger"
)

// Envelope is the uniform response wrapper every /mjr/am endpoint
// returns. HTTP status is always 200 for business errors; non-200 is
// reserved for infrastructure failures the handler layer itself can't
// classify (malformed routing, panics recovered by middleware).
type Envelope struct {
	OK    bool           `json:"ok"`
	Data  any            `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
	Code  string         `json:"code,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// writeJSON writes v as the body with status, setting Content-Type.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response body", "error", err)
	}
}

// ok writes a successful envelope.
func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{OK: true, Data: data, Meta: map[string]any{}})
}

// okMeta writes a successful envelope carrying extra meta fields, e.g.
// the scope echo on listing responses.
func okMeta(w http.ResponseWriter, data any, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	writeJSON(w, http.StatusOK, Envelope{OK: true, Data: data, Meta: meta})
}

// fail writes a business-error envelope derived from an *apperr.Error.
// debugErrors controls whether the wrapped internal cause (never the
// user-facing Message) leaks into meta, per spec §7's "internal details
// gated behind a debug env flag".
func fail(w http.ResponseWriter, debugErrors bool, aerr *apperr.Error) {
	meta := map[string]any{}
	for k, v := range aerr.Meta {
		meta[k] = v
	}
	if retryAfter, isInt := meta["retry_after"].(int); isInt {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	if debugErrors {
		if cause := aerr.Unwrap(); cause != nil {
			meta["debug_cause"] = cause.Error()
		}
	}
	writeJSON(w, http.StatusOK, Envelope{
		OK:    false,
		Error: aerr.Message,
		Code:  string(aerr.Code),
		Meta:  meta,
	})
}
