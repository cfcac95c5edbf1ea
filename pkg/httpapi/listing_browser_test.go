package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/pkg/paths"
	"github.com/majoor/assetindex/pkg/search"
	"github.com/majoor/assetindex/pkg/security"
)

type fakePrefs struct{}

func (fakePrefs) SecurityPrefs(ctx context.Context) security.Prefs { return security.Prefs{} }

func newBrowserTestApp(t *testing.T) (*App, string) {
	t.Helper()
	app := newTestApp(t)

	outputDir := t.TempDir()
	customDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(customDir, "photo.png"), []byte("x"), 0o644))

	custom, err := paths.NewCustomRootStore(filepath.Join(t.TempDir(), "custom_roots.json"), outputDir, "")
	require.NoError(t, err)
	root, _, aerr := custom.Add(customDir, "my root")
	require.Nil(t, aerr)

	registry, err := paths.NewRegistry(outputDir, "", custom)
	require.NoError(t, err)

	app.Registry = registry
	app.FSCache = search.NewFSCache(app.Cfg.Search.DirCacheTTL, 8)
	app.Guard = security.New(app.Cfg.Security, fakePrefs{})
	return app, root.ID
}

func TestBrowserScopeResolvesCustomRootAndWalksFilesystem(t *testing.T) {
	app, rootID := newBrowserTestApp(t)
	s := &Server{app: app}

	req := httptest.NewRequest(http.MethodGet, "/mjr/am/list?scope=browser&root_id="+rootID, nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	s.handleList(rec, req)

	env := decodeEnvelope(t, rec)
	require.True(t, env.OK)
	data := env.Data.(map[string]any)
	assets := data["assets"].([]any)
	require.Len(t, assets, 1)
}

func TestBrowserScopeWithoutRootIDIsInvalid(t *testing.T) {
	app, _ := newBrowserTestApp(t)
	s := &Server{app: app}

	req := httptest.NewRequest(http.MethodGet, "/mjr/am/list?scope=browser", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	s.handleList(rec, req)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, string(apperr.InvalidInput), env.Code)
}

func TestBrowserScopeRejectedForNonLoopbackClient(t *testing.T) {
	app, rootID := newBrowserTestApp(t)
	s := &Server{app: app}

	req := httptest.NewRequest(http.MethodGet, "/mjr/am/list?scope=browser&root_id="+rootID, nil)
	req.RemoteAddr = "203.0.113.5:5555"
	rec := httptest.NewRecorder()
	s.handleList(rec, req)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, string(apperr.Forbidden), env.Code)
}
