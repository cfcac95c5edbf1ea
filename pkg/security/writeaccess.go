package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/majoor/assetindex/internal/apperr"
)

// hashToken applies the configured pepper the same way the settings
// store hashes a newly-set API token: sha256(pepper + "\0" + token).
func hashToken(pepper, token string) string {
	sum := sha256.Sum256([]byte(pepper + "\x00" + token))
	return hex.EncodeToString(sum[:])
}

func extractWriteToken(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		const prefix = "bearer "
		if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
			return strings.TrimSpace(auth[len(prefix):])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-MJR-Token"))
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RequireWriteAccess authorizes a state-changing request.
//
// When an API token (plain or hashed-with-pepper) is configured, it
// must be supplied on every remote write; loopback clients are exempt
// unless RequireAuth forces token auth for them too. Without a
// configured token, remote writes are allowed by default; operators
// can flip AllowRemoteWrite off to restrict writes to loopback.
func (g *Guard) RequireWriteAccess(r *http.Request) *apperr.Error {
	clientIP := g.ResolveClientIP(r)
	provided := extractWriteToken(r)
	loopbackExempt := IsLoopback(clientIP) && !g.requireAuth

	switch {
	case g.tokenHash != "":
		if provided != "" && constantTimeEqual(hashToken(g.tokenPepper, provided), g.tokenHash) {
			return nil
		}
		if loopbackExempt {
			return nil
		}
		return apperr.AuthRequiredf("write operation blocked: missing or invalid API token")
	case g.tokenPlain != "":
		if provided != "" && constantTimeEqual(provided, g.tokenPlain) {
			return nil
		}
		if loopbackExempt {
			return nil
		}
		return apperr.AuthRequiredf("write operation blocked: missing or invalid API token")
	}

	if g.requireAuth {
		return apperr.AuthRequiredf("write operation blocked: auth is required but no API token is configured")
	}

	if g.allowRemote {
		return nil
	}

	if IsLoopback(clientIP) {
		return nil
	}
	return apperr.Forbiddenf("write operation blocked for non-local clients; configure an API token or enable allow_remote_write")
}
