// Package principal decides who a coaching client is for rate-limit
// bucketing: the validated API key when present, the client IP
// otherwise.
package principal

import (
	"net"
	"net/http"
	"strings"

	"github.com/echo-ai/coach-gateway/pkg/gateway/auth"
	"github.com/echo-ai/coach-gateway/pkg/gateway/config"
	"github.com/echo-ai/coach-gateway/pkg/gateway/ratelimit"
)

type Kind string

const (
	KindAPIKey Kind = "api_key"
	KindIP     Kind = "ip"
	KindAnon   Kind = "anonymous"
)

type Resolved struct {
	Kind Kind
	// Raw is the raw resolved identifier (API key or IP). It must not be logged.
	Raw string
	// Key is a hashed/bucketed identifier suitable for in-memory maps.
	Key string
}

var anonymous = Resolved{Kind: KindAnon, Key: "anonymous"}

// proxyIPHeaders are consulted in order when the deployment trusts its
// proxy layer. CDN headers carry a single address; X-Forwarded-For may
// carry a chain.
var proxyIPHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// Resolve picks the strongest identity available on the request.
// Proxy headers are only consulted when the deployment says to trust
// them; otherwise RemoteAddr wins.
func Resolve(r *http.Request, cfg config.Config) Resolved {
	if r == nil {
		return anonymous
	}

	if key := authenticatedKey(r); key != "" {
		return Resolved{Kind: KindAPIKey, Raw: key, Key: ratelimit.PrincipalKeyFromAPIKey(key)}
	}

	if ip := clientIP(r, cfg.TrustProxyHeaders); ip != "" {
		return Resolved{Kind: KindIP, Raw: ip, Key: ratelimit.PrincipalKeyFromIP(ip)}
	}
	return anonymous
}

// authenticatedKey returns the API key the auth middleware validated,
// or "" for unauthenticated requests.
func authenticatedKey(r *http.Request) string {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok || p == nil {
		return ""
	}
	return strings.TrimSpace(p.APIKey)
}

// clientIP returns the canonical client address, or "" when none can
// be established.
func clientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		for _, name := range proxyIPHeaders {
			val := r.Header.Get(name)
			if name == "X-Forwarded-For" {
				// XFF can be "client, proxy1, proxy2". Take the left-most.
				val, _, _ = strings.Cut(val, ",")
			}
			if ip := canonicalIP(val); ip != "" {
				return ip
			}
		}
	}
	return canonicalIP(r.RemoteAddr)
}

// canonicalIP normalizes an address that may carry whitespace or a
// port into its textual IP form. Anything unparseable becomes "".
func canonicalIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
