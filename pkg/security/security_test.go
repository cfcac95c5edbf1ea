package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/config"
)

func testCfg() config.SecurityConfig {
	return config.SecurityConfig{
		TrustedProxies:       []string{"127.0.0.1", "::1"},
		RateLimitMaxClients:  1000,
		RateLimitWindowSeconds: 60,
		RateLimitMaxRequests: 120,
		SafeMode:             true,
		AllowRemoteWrite:     true,
	}
}

func TestCheckCSRFRequiresAntiCSRFHeader(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	assert.NotEmpty(t, g.CheckCSRF(req))

	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	assert.Empty(t, g.CheckCSRF(req))
}

func TestCheckCSRFGetNeverChecked(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodGet, "/mjr/am/list", nil)
	assert.Empty(t, g.CheckCSRF(req))
}

func TestCheckCSRFRejectsNullOrigin(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", "null")
	assert.Contains(t, g.CheckCSRF(req), "Origin=null")
}

func TestCheckCSRFAllowsMatchingOrigin(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", "http://example.com:8188")
	req.Header.Set("Host", "example.com:8188")
	assert.Empty(t, g.CheckCSRF(req))
}

func TestCheckCSRFRejectsMismatchedOrigin(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", "http://evil.example:8188")
	req.Header.Set("Host", "example.com:8188")
	assert.Contains(t, g.CheckCSRF(req), "blocked")
}

func TestCheckCSRFAllowsLoopbackAliasMismatch(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", "http://localhost:8188")
	req.Header.Set("Host", "127.0.0.1:8188")
	assert.Empty(t, g.CheckCSRF(req))
}

func TestRateLimiterAllowsUpToMaxThenRejects(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodGet, "/mjr/am/list", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	for i := 0; i < 3; i++ {
		allowed, retryAfter := g.CheckRateLimit(req, "list", 3, 60)
		require.True(t, allowed, "request %d should be allowed", i)
		assert.Zero(t, retryAfter)
	}

	allowed, retryAfter := g.CheckRateLimit(req, "list", 3, 60)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, 0)
}

func TestRateLimiterIsPerEndpoint(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodGet, "/mjr/am/list", nil)
	req.RemoteAddr = "203.0.113.6:1234"

	allowed, _ := g.CheckRateLimit(req, "list", 1, 60)
	require.True(t, allowed)
	allowed, _ = g.CheckRateLimit(req, "list", 1, 60)
	require.False(t, allowed)

	allowed, _ = g.CheckRateLimit(req, "autocomplete", 1, 60)
	assert.True(t, allowed, "a different endpoint has its own budget")
}

func TestRateLimiterOverflowBucketCapsMemory(t *testing.T) {
	cfg := testCfg()
	cfg.RateLimitMaxClients = 2
	g := New(cfg, nil)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/mjr/am/list", nil)
		req.RemoteAddr = ipFor(i) + ":1234"
		g.CheckRateLimit(req, "list", 100, 60)
	}

	assert.LessOrEqual(t, len(g.limiter.elems), cfg.RateLimitMaxClients+1, "distinct client count should stay bounded, plus the shared overflow bucket")
}

func ipFor(i int) string {
	return "198.51.100." + string(rune('0'+i%10))
}

func TestResolveClientIPTrustsForwardedForOnlyFromTrustedProxy(t *testing.T) {
	g := New(testCfg(), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", g.ResolveClientIP(req))

	untrusted := httptest.NewRequest(http.MethodGet, "/", nil)
	untrusted.RemoteAddr = "203.0.113.50:9999"
	untrusted.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "203.0.113.50", g.ResolveClientIP(untrusted))
}

func TestParseTrustedProxiesDropsUniversalByDefault(t *testing.T) {
	nets := parseTrustedProxies([]string{"0.0.0.0/0"}, false)
	assert.Empty(t, nets)

	nets = parseTrustedProxies([]string{"0.0.0.0/0"}, true)
	assert.Len(t, nets, 1)
}

func TestRequireOperationEnabledDefaultsFailClosedInSafeMode(t *testing.T) {
	cfg := testCfg()
	g := New(cfg, nil)

	assert.NotNil(t, g.RequireOperationEnabled(context.Background(), OpDelete))
	assert.NotNil(t, g.RequireOperationEnabled(context.Background(), OpWrite))
	assert.NotNil(t, g.RequireOperationEnabled(context.Background(), "totally_unknown"))
}

func TestRequireOperationEnabledWriteAllowedOutsideSafeMode(t *testing.T) {
	cfg := testCfg()
	cfg.SafeMode = false
	g := New(cfg, nil)

	assert.Nil(t, g.RequireOperationEnabled(context.Background(), OpWrite))
	// Delete/rename/open_in_folder/reset_index stay opt-in even outside safe mode.
	assert.NotNil(t, g.RequireOperationEnabled(context.Background(), OpDelete))
}

func TestRequireOperationEnabledHonorsConfigOptIns(t *testing.T) {
	cfg := testCfg()
	cfg.AllowDelete = true
	g := New(cfg, nil)

	assert.Nil(t, g.RequireOperationEnabled(context.Background(), OpDelete))
}

type stubPrefs struct{ prefs Prefs }

func (s stubPrefs) SecurityPrefs(context.Context) Prefs { return s.prefs }

func TestRequireOperationEnabledPrefsOverrideConfig(t *testing.T) {
	cfg := testCfg()
	cfg.AllowDelete = false
	allow := true
	g := New(cfg, stubPrefs{prefs: Prefs{AllowDelete: &allow}})

	assert.Nil(t, g.RequireOperationEnabled(context.Background(), OpDelete))
}

func TestRequireWriteAccessNoTokenAllowsRemoteByDefault(t *testing.T) {
	g := New(testCfg(), nil)
	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	assert.Nil(t, g.RequireWriteAccess(req))
}

func TestRequireWriteAccessRemoteBlockedWhenDisallowed(t *testing.T) {
	cfg := testCfg()
	cfg.AllowRemoteWrite = false
	g := New(cfg, nil)

	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	err := g.RequireWriteAccess(req)
	require.NotNil(t, err)
	assert.Equal(t, apperr.Forbidden, err.Code)

	loopback := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	loopback.RemoteAddr = "127.0.0.1:1234"
	assert.Nil(t, g.RequireWriteAccess(loopback))
}

func TestRequireWriteAccessWithConfiguredToken(t *testing.T) {
	cfg := testCfg()
	cfg.APIToken = "s3cr3t"
	g := New(cfg, nil)

	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	err := g.RequireWriteAccess(req)
	require.NotNil(t, err)
	assert.Equal(t, apperr.AuthRequired, err.Code)

	req.Header.Set("X-MJR-Token", "s3cr3t")
	assert.Nil(t, g.RequireWriteAccess(req))

	bearer := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	bearer.Header.Set("Authorization", "Bearer s3cr3t")
	assert.Nil(t, g.RequireWriteAccess(bearer))
}

func TestRequireWriteAccessWithHashedToken(t *testing.T) {
	cfg := testCfg()
	cfg.APITokenPepper = "pepper123"
	cfg.APITokenHash = hashToken("pepper123", "s3cr3t")
	g := New(cfg, nil)

	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	req.Header.Set("X-MJR-Token", "s3cr3t")
	assert.Nil(t, g.RequireWriteAccess(req))

	wrong := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	wrong.Header.Set("X-MJR-Token", "nope")
	assert.NotNil(t, g.RequireWriteAccess(wrong))
}

func TestRequireWriteAccessRequireAuthWithoutToken(t *testing.T) {
	cfg := testCfg()
	cfg.RequireAuth = true
	g := New(cfg, nil)

	req := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	err := g.RequireWriteAccess(req)
	require.NotNil(t, err)
	assert.Equal(t, apperr.AuthRequired, err.Code)
}

func TestRequireWriteAccessTokenLoopbackExempt(t *testing.T) {
	cfg := testCfg()
	cfg.APIToken = "s3cr3t"
	g := New(cfg, nil)

	loopback := httptest.NewRequest(http.MethodPost, "/mjr/am/rate", nil)
	loopback.RemoteAddr = "127.0.0.1:1234"
	assert.Nil(t, g.RequireWriteAccess(loopback))

	cfg.RequireAuth = true
	strict := New(cfg, nil)
	err := strict.RequireWriteAccess(loopback)
	require.NotNil(t, err)
	assert.Equal(t, apperr.AuthRequired, err.Code)
}
