package apperr

import "encoding/json"

// Result is the uniform response envelope every HTTP handler returns:
// {ok, data, error, code, meta}. HTTP status stays 200 for business-logic
// outcomes; only infrastructure failures use a non-200 status.
type Result[T any] struct {
	OK   bool
	Data T
	Err  *Error
	Meta map[string]any
}

// Ok builds a successful Result.
func Ok[T any](data T, meta map[string]any) Result[T] {
	return Result[T]{OK: true, Data: data, Meta: meta}
}

// ErrResult builds a failed Result from an *Error.
func ErrResult[T any](err *Error) Result[T] {
	meta := err.Meta
	return Result[T]{OK: false, Err: err, Meta: meta}
}

// envelope is the wire shape; Data/Error are only emitted when present so a
// failed response never serializes a zero-valued Data payload.
type envelope struct {
	OK    bool           `json:"ok"`
	Data  any            `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
	Code  string         `json:"code,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

func (r Result[T]) MarshalJSON() ([]byte, error) {
	e := envelope{OK: r.OK, Meta: r.Meta}
	if r.OK {
		e.Data = r.Data
	} else if r.Err != nil {
		e.Error = r.Err.Message
		e.Code = string(r.Err.Code)
	}
	return json.Marshal(e)
}
