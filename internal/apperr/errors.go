// Package apperr defines the closed error taxonomy shared by every
// component and surfaced through the HTTP envelope. It is a leaf package
// with no internal dependencies so it can be imported by the storage
// engine, the indexer, the security layer and the HTTP layer alike without
// causing import cycles.
package apperr

import "fmt"

// Code is one of the fixed error kinds defined by the system.
type Code string

const (
	InvalidInput       Code = "INVALID_INPUT"
	InvalidJSON        Code = "INVALID_JSON"
	NotFound           Code = "NOT_FOUND"
	Forbidden          Code = "FORBIDDEN"
	CSRF               Code = "CSRF"
	AuthRequired       Code = "AUTH_REQUIRED"
	RateLimited        Code = "RATE_LIMITED"
	Conflict           Code = "CONFLICT"
	Timeout            Code = "TIMEOUT"
	DBError            Code = "DB_ERROR"
	ServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	DBMaintenance      Code = "DB_MAINTENANCE"
	DeleteFailed       Code = "DELETE_FAILED"
	RenameFailed       Code = "RENAME_FAILED"
	UpdateFailed       Code = "UPDATE_FAILED"
	MetadataFailed     Code = "METADATA_FAILED"
	Degraded           Code = "DEGRADED"
	Unsupported        Code = "UNSUPPORTED"
	ToolMissing        Code = "TOOL_MISSING"
	ExiftoolError      Code = "EXIFTOOL_ERROR"
	FFprobeError       Code = "FFPROBE_ERROR"
	ParseError         Code = "PARSE_ERROR"
)

// Error is the error type every component returns instead of ad-hoc errors.
// Message is a short, sanitized, user-facing string; wrapped carries the
// underlying cause for logging but is never serialized to clients.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]any
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// WithMeta returns a copy of e with an additional meta key set.
func (e *Error) WithMeta(key string, value any) *Error {
	meta := make(map[string]any, len(e.Meta)+1)
	for k, v := range e.Meta {
		meta[k] = v
	}
	meta[key] = value
	return &Error{Code: e.Code, Message: e.Message, Meta: meta, wrapped: e.wrapped}
}

func newErr(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches an internal cause to err without exposing it to clients.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, wrapped: cause}
}

func Invalid(format string, args ...any) *Error {
	return newErr(InvalidInput, fmt.Sprintf(format, args...))
}

func InvalidJSONBody(cause error) *Error {
	return Wrap(InvalidJSON, "request body is not valid JSON", cause)
}

func NotFoundf(format string, args ...any) *Error {
	return newErr(NotFound, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...any) *Error {
	return newErr(Forbidden, fmt.Sprintf(format, args...))
}

func CSRFRejected(reason string) *Error {
	return newErr(CSRF, reason)
}

func AuthRequiredf(format string, args ...any) *Error {
	return newErr(AuthRequired, fmt.Sprintf(format, args...))
}

func RateLimitedf(retryAfterSeconds int) *Error {
	return newErr(RateLimited, "too many requests").WithMeta("retry_after", retryAfterSeconds)
}

func Conflictf(format string, args ...any) *Error {
	return newErr(Conflict, fmt.Sprintf(format, args...))
}

func Timeoutf(format string, args ...any) *Error {
	return newErr(Timeout, fmt.Sprintf(format, args...))
}

func DB(cause error) *Error {
	return Wrap(DBError, "a database error occurred", cause)
}

func Unavailable(format string, args ...any) *Error {
	return newErr(ServiceUnavailable, fmt.Sprintf(format, args...))
}

func Maintenance() *Error {
	return newErr(DBMaintenance, "database maintenance is in progress")
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	ae, ok := err.(*Error)
	return ok && ae.Code == code
}

// As extracts *Error from err if possible.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}
