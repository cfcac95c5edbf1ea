package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/config"
	"github.com/majoor/assetindex/pkg/assetdb"
	"github.com/majoor/assetindex/pkg/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Path = filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(context.Background(), cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return &App{Store: s, Cfg: cfg}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func indexAsset(t *testing.T, app *App, path string) {
	t.Helper()
	now := time.Now().Unix()
	err := app.Store.Transaction(context.Background(), store.TxImmediate, func(tx *store.Tx) error {
		return assetdb.UpsertAssetsTx(context.Background(), tx, filepath.Dir(path), []assetdb.UpsertAssetRow{{
			Filepath:  path,
			Filename:  filepath.Base(path),
			Source:    assetdb.SourceOutput,
			Kind:      assetdb.KindImage,
			Extension: ".png",
			SizeBytes: 123,
			Mtime:     now,
			Now:       now,
		}})
	})
	require.NoError(t, err)
}

func TestCollectionsLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	s := &Server{app: app}

	createBody, _ := json.Marshal(createCollectionRequest{Name: "favorites"})
	rec := httptest.NewRecorder()
	s.handleCreateCollection(rec, httptest.NewRequest(http.MethodPost, "/mjr/am/collections", bytes.NewReader(createBody)))
	env := decodeEnvelope(t, rec)
	require.True(t, env.OK)

	created := env.Data.(map[string]any)
	id := int64(created["id"].(float64))
	idStr := strconv.FormatInt(id, 10)
	assert.Equal(t, "favorites", created["name"])
	assert.Empty(t, created["items"].([]any))

	// Duplicate name is rejected.
	rec = httptest.NewRecorder()
	s.handleCreateCollection(rec, httptest.NewRequest(http.MethodPost, "/mjr/am/collections", bytes.NewReader(createBody)))
	env = decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, string(apperr.Conflict), env.Code)

	// Set items, then read back with (as yet unindexed) asset ids omitted.
	itemsBody, _ := json.Marshal(setCollectionItemsRequest{Filepaths: []string{"/out/a.png", "/out/b.png"}})
	itemsReq := withURLParam(httptest.NewRequest(http.MethodPost, "/mjr/am/collections/"+idStr+"/items", bytes.NewReader(itemsBody)), "id", idStr)
	rec = httptest.NewRecorder()
	s.handleSetCollectionItems(rec, itemsReq)
	env = decodeEnvelope(t, rec)
	require.True(t, env.OK)
	data := env.Data.(map[string]any)
	items := data["items"].([]any)
	require.Len(t, items, 2)
	firstItem := items[0].(map[string]any)
	assert.Equal(t, "/out/a.png", firstItem["filepath"])
	assert.Nil(t, firstItem["asset_id"])

	// List shows the collection without hydrated items.
	rec = httptest.NewRecorder()
	s.handleListCollections(rec, httptest.NewRequest(http.MethodGet, "/mjr/am/collections", nil))
	env = decodeEnvelope(t, rec)
	require.True(t, env.OK)
	assert.Len(t, env.Data.([]any), 1)

	// Get hydrates items with a real asset id once indexed.
	indexAsset(t, app, "/out/a.png")
	getReq := withURLParam(httptest.NewRequest(http.MethodGet, "/mjr/am/collections/"+idStr, nil), "id", idStr)
	rec = httptest.NewRecorder()
	s.handleGetCollection(rec, getReq)
	env = decodeEnvelope(t, rec)
	require.True(t, env.OK)
	data = env.Data.(map[string]any)
	items = data["items"].([]any)
	firstItem = items[0].(map[string]any)
	assert.Greater(t, firstItem["asset_id"].(float64), float64(0))

	// Delete removes it; a second delete 404s.
	delReq := withURLParam(httptest.NewRequest(http.MethodPost, "/mjr/am/collections/"+idStr+"/delete", nil), "id", idStr)
	rec = httptest.NewRecorder()
	s.handleDeleteCollection(rec, delReq)
	env = decodeEnvelope(t, rec)
	require.True(t, env.OK)

	rec = httptest.NewRecorder()
	s.handleDeleteCollection(rec, delReq)
	env = decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, string(apperr.NotFound), env.Code)
}

type stringErr string

func (e stringErr) Error() string { return string(e) }

func TestFailIncludesDebugCauseOnlyWhenEnabled(t *testing.T) {
	cause := apperr.Wrap(apperr.DBError, "lookup failed", stringErr("boom"))

	rec := httptest.NewRecorder()
	fail(rec, false, cause)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.NotContains(t, env.Meta, "debug_cause")

	rec = httptest.NewRecorder()
	fail(rec, true, cause)
	env = decodeEnvelope(t, rec)
	assert.Equal(t, "boom", env.Meta["debug_cause"])
}
