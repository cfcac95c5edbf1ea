package security

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var stateChangingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

var loopbackHostnames = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// CheckCSRF returns a human-readable rejection reason for request, or
// "" if the request passes. GET/HEAD/OPTIONS are never checked.
func (g *Guard) CheckCSRF(r *http.Request) string {
	if !stateChangingMethods[r.Method] {
		return ""
	}

	hasXRW := r.Header.Get("X-Requested-With") != ""
	hasToken := r.Header.Get("X-CSRF-Token") != ""
	if !hasXRW && !hasToken {
		return "missing anti-CSRF header (X-Requested-With or X-CSRF-Token)"
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return ""
	}
	if origin == "null" {
		return "cross-site request blocked (Origin=null)"
	}

	host := r.Header.Get("Host")
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return "missing Host header"
	}

	if g.isTrustedProxy(extractPeerIP(r)) {
		if xfHost := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); xfHost != "" {
			host = strings.TrimSpace(strings.SplitN(xfHost, ",", 2)[0])
		}
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "cross-site request blocked (invalid Origin)"
	}

	if parsed.Host == host {
		return ""
	}

	if loopbackEquivalent(parsed, host) {
		return ""
	}
	return fmt.Sprintf("cross-site request blocked (%s != %s)", parsed.Host, host)
}

// loopbackEquivalent allows Origin and Host to disagree on hostname
// when both name a loopback alias and either omits a port or they
// share one, so opening the UI via a different loopback alias than the
// server reports doesn't trip CSRF protection.
func loopbackEquivalent(origin *url.URL, host string) bool {
	originHost := origin.Hostname()
	originPort := origin.Port()

	hostName := host
	hostPort := ""
	if idx := strings.LastIndex(host, ":"); idx >= 0 && !strings.HasSuffix(host, "]") {
		hostName = host[:idx]
		hostPort = host[idx+1:]
	}

	if !loopbackHostnames[originHost] || !loopbackHostnames[hostName] {
		return false
	}
	return originPort == "" || hostPort == "" || originPort == hostPort
}
