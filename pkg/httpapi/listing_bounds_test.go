package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/internal/apperr"
)

func TestListLimitZeroReturnsEmptyAssetsWithTotal(t *testing.T) {
	app := newTestApp(t)
	indexAsset(t, app, "/out/a.png")
	s := &Server{app: app}

	req := httptest.NewRequest(http.MethodGet, "/mjr/am/list?scope=output&limit=0", nil)
	rec := httptest.NewRecorder()
	s.handleList(rec, req)

	env := decodeEnvelope(t, rec)
	require.True(t, env.OK)
	data := env.Data.(map[string]any)
	assert.Empty(t, data["assets"])
	assert.Equal(t, float64(1), data["total"])
}

func TestListOffsetBeyondMaxIsInvalid(t *testing.T) {
	app := newTestApp(t)
	s := &Server{app: app}

	over := strconv.Itoa(app.Cfg.Search.MaxListOffset + 1)
	req := httptest.NewRequest(http.MethodGet, "/mjr/am/list?scope=output&offset="+over, nil)
	rec := httptest.NewRecorder()
	s.handleList(rec, req)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, string(apperr.InvalidInput), env.Code)
}

func TestDuplicatesAlertsEmptyIndex(t *testing.T) {
	app := newTestApp(t)
	s := &Server{app: app}

	rec := httptest.NewRecorder()
	s.handleDuplicatesAlerts(rec, httptest.NewRequest(http.MethodGet, "/mjr/am/duplicates/alerts", nil))

	env := decodeEnvelope(t, rec)
	require.True(t, env.OK)
	assert.Equal(t, float64(0), env.Meta["groups"])
}

func TestCalendarRejectsUnknownRange(t *testing.T) {
	app := newTestApp(t)
	s := &Server{app: app}

	rec := httptest.NewRecorder()
	s.handleCalendar(rec, httptest.NewRequest(http.MethodGet, "/mjr/am/calendar?range=fortnight", nil))

	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, string(apperr.InvalidInput), env.Code)
}

func TestCalendarDefaultWindowSucceeds(t *testing.T) {
	app := newTestApp(t)
	indexAsset(t, app, "/out/today.png")
	s := &Server{app: app}

	rec := httptest.NewRecorder()
	s.handleCalendar(rec, httptest.NewRequest(http.MethodGet, "/mjr/am/calendar?scope=output", nil))

	env := decodeEnvelope(t, rec)
	require.True(t, env.OK)
	assert.NotNil(t, env.Meta["start"])
	assert.NotNil(t, env.Meta["end"])
}
