// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// SecurityHeaders hardens JSON responses. Every body this API returns is
// scoped to the authenticated caller (inboxes, agreements, notification
// badges), so responses are marked uncacheable for shared caches and vary
// on Authorization. Handlers that support conditional GETs override
// Cache-Control themselves.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only honored for HTTPS requests
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store plus legacy Pragma/Expires
	EnablePolicy bool          // Permissions-Policy and X-Permitted-Cross-Domain-Policies

	// Expose lists extra response headers browsers may read, such as ETag
	// or Idempotency-Replayed. X-Request-ID is exposed whenever present.
	Expose []string
}

type headerPair struct{ key, value string }

// SecurityHeaders returns the hardening middleware. The static header set
// is computed once.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := []headerPair{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		static = append(static,
			headerPair{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			headerPair{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if opt.NoStore {
		static = append(static,
			headerPair{"Cache-Control", "no-store"},
			headerPair{"Pragma", "no-cache"},
			headerPair{"Expires", "0"},
		)
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, p := range static {
			h.Set(p.key, p.value)
		}
		addToken(h, "Vary", "Authorization")

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			addToken(h, "Access-Control-Expose-Headers", requestIDHeader)
		}
		for _, name := range opt.Expose {
			addToken(h, "Access-Control-Expose-Headers", name)
		}

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS, directly or via a
// proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

// addToken appends token to a comma-separated header unless an equal token
// (case-insensitive) is already listed.
func addToken(h http.Header, key, token string) {
	cur := h.Get(key)
	if cur == "" {
		h.Set(key, token)
		return
	}
	for _, t := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(t), token) {
			return
		}
	}
	h.Set(key, cur+", "+token)
}
