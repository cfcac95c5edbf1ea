package apperr

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := DB(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, DBError, err.Code)
}

func TestWithMetaCopies(t *testing.T) {
	base := RateLimitedf(5)
	derived := base.WithMeta("endpoint", "/asset/rating")
	assert.Equal(t, 5, base.Meta["retry_after"])
	assert.Nil(t, base.Meta["endpoint"])
	assert.Equal(t, "/asset/rating", derived.Meta["endpoint"])
}

func TestResultMarshalOK(t *testing.T) {
	r := Ok(map[string]int{"total": 2}, map[string]any{"scope": "output"})
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"data":{"total":2},"meta":{"scope":"output"}}`, string(b))
}

func TestResultMarshalError(t *testing.T) {
	r := ErrResult[any](Invalid("bad limit"))
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"error":"bad limit","code":"INVALID_INPUT"}`, string(b))
}

func TestIsAndAs(t *testing.T) {
	var err error = NotFoundf("asset %d", 7)
	assert.True(t, Is(err, NotFound))
	ae, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, NotFound, ae.Code)
}
