// Package security implements component G: CSRF protection, a
// per-client sliding-window rate limiter, trusted-proxy-aware client
// IP resolution, and the write-access/operation allowlist guard that
// gates destructive HTTP operations. It is grounded on
// routes/core/security.py from the original implementation, adapted
// from module-level globals to a struct so multiple Guards (and
// tests) never share state by accident.
package security

import (
	"context"
	"net"
	"strings"

	"github.com/majoor/assetindex/internal/apperr"
	"github.com/majoor/assetindex/internal/config"
)

// Prefs mirrors the security-relevant rows of the settings table. A nil
// field means "no stored override, fall back to the configured
// default."
type Prefs struct {
	SafeMode          *bool
	AllowWrite        *bool
	AllowDelete       *bool
	AllowRename       *bool
	AllowOpenInFolder *bool
	AllowResetIndex   *bool
}

// PrefsProvider supplies the live, possibly operator-edited security
// preferences. Implemented by pkg/maintenance; kept as an interface
// here so this package never imports it.
type PrefsProvider interface {
	SecurityPrefs(ctx context.Context) Prefs
}

// Guard is the request-time entry point for every check in this
// package. The zero value is not usable; build one with New.
type Guard struct {
	cfg          config.SecurityConfig
	trustedNets  []*net.IPNet
	limiter      *rateLimiter
	prefs        PrefsProvider
	tokenPepper  string
	tokenHash    string
	tokenPlain   string
	requireAuth  bool
	allowRemote  bool
}

// New builds a Guard from the security configuration. prefs may be nil,
// in which case operation gating always falls back to cfg's compiled
// defaults.
func New(cfg config.SecurityConfig, prefs PrefsProvider) *Guard {
	return &Guard{
		cfg:         cfg,
		trustedNets: parseTrustedProxies(cfg.TrustedProxies, cfg.AllowInsecureTrustedProxies),
		limiter:     newRateLimiter(cfg.RateLimitMaxClients),
		prefs:       prefs,
		tokenPepper: cfg.APITokenPepper,
		tokenHash:   cfg.APITokenHash,
		tokenPlain:  cfg.APIToken,
		requireAuth: cfg.RequireAuth,
		allowRemote: cfg.AllowRemoteWrite,
	}
}

func safeModeDefault(cfg config.SecurityConfig) bool {
	return cfg.SafeMode
}

func pickBool(override *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	return fallback
}

func (g *Guard) prefsFor(ctx context.Context) Prefs {
	if g.prefs == nil {
		return Prefs{}
	}
	return g.prefs.SecurityPrefs(ctx)
}

// Operation names accepted by RequireOperationEnabled, matching the
// original route handlers' vocabulary.
const (
	OpResetIndex     = "reset_index"
	OpDelete         = "delete"
	OpRename         = "rename"
	OpOpenInFolder   = "open_in_folder"
	OpWrite          = "write"
)

// RequireOperationEnabled gates a state-changing operation behind its
// configured opt-in, consulting live settings overrides first and the
// compiled configuration otherwise. Unknown operations fail closed
// while Safe Mode is on.
func (g *Guard) RequireOperationEnabled(ctx context.Context, operation string) *apperr.Error {
	op := strings.ToLower(strings.TrimSpace(operation))
	prefs := g.prefsFor(ctx)
	safeMode := pickBool(prefs.SafeMode, safeModeDefault(g.cfg))

	switch op {
	case OpResetIndex:
		if pickBool(prefs.AllowResetIndex, g.cfg.AllowResetIndex) {
			return nil
		}
		return apperr.Forbiddenf("reset index is disabled by default; enable allow_reset_index in settings or set MAJOOR_SECURITY_ALLOW_RESET_INDEX=1")
	case OpDelete:
		if pickBool(prefs.AllowDelete, g.cfg.AllowDelete) {
			return nil
		}
		return apperr.Forbiddenf("delete is disabled by default; enable allow_delete in settings or set MAJOOR_SECURITY_ALLOW_DELETE=1")
	case OpRename:
		if pickBool(prefs.AllowRename, g.cfg.AllowRename) {
			return nil
		}
		return apperr.Forbiddenf("rename is disabled by default; enable allow_rename in settings or set MAJOOR_SECURITY_ALLOW_RENAME=1")
	case OpOpenInFolder:
		if pickBool(prefs.AllowOpenInFolder, g.cfg.AllowOpenInFolder) {
			return nil
		}
		return apperr.Forbiddenf("open-in-folder is disabled by default; enable allow_open_in_folder in settings or set MAJOOR_SECURITY_ALLOW_OPEN_IN_FOLDER=1")
	case OpWrite:
		if !safeMode {
			return nil
		}
		if pickBool(prefs.AllowWrite, g.cfg.AllowWrite) {
			return nil
		}
		return apperr.Forbiddenf("write operations are disabled in safe mode; disable safe_mode or enable allow_write in settings")
	default:
		if safeMode {
			return apperr.Forbiddenf("operation %q blocked in safe mode", op)
		}
		return nil
	}
}
