// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It scrubs obvious
// PII from request metadata before emitting logs and installs the
// request-scoped logger used by handlers and services.
//
// Design goals:
//   - Default-safe: never logs request or response bodies
//   - Redacts common identifiers (emails, phone numbers, UUIDs)
//   - Masks sensitive headers (Authorization, Cookie, Set-Cookie, plus custom)
//     and the websocket ?token= query parameter
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RequestID())
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders specifies extra HTTP header names whose values will be fully
// replaced with "[REDACTED]". Matching is case-insensitive and merged with
// built-in sensitive headers ("Authorization", "Cookie", "Set-Cookie").
//
// QuietPaths lists exact request paths (e.g. "/health", "/metrics") whose
// successful access lines drop to DEBUG so probes do not flood the log.
type RedactOptions struct {
	MaskHeaders []string
	QuietPaths  []string
}

// redactor holds the compiled scrub patterns.
type redactor struct {
	uuidRE  *regexp.Regexp
	emailRE *regexp.Regexp
	phoneRE *regexp.Regexp
	tokenRE *regexp.Regexp
}

func newRedactor() *redactor {
	return &redactor{
		uuidRE:  regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`),
		emailRE: regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`),
		// Digits-only, so hex segments of ids never match.
		phoneRE: regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`),
		tokenRE: regexp.MustCompile(`(?i)(^|&)(token|access_token)=[^&]*`),
	}
}

// scrub redacts ids before phones: the phone pattern is the loosest and
// would otherwise eat the digit runs of a UUID.
func (r *redactor) scrub(s string) string {
	if s == "" {
		return s
	}
	s = r.uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = r.emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return r.phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func (r *redactor) query(raw string) string {
	return r.scrub(r.tokenRE.ReplaceAllString(raw, "${1}${2}=[REDACTED]"))
}

// RedactingLogger returns a Gin middleware that logs HTTP requests and
// responses with sensitive values scrubbed.
//
// Before the handler runs it installs a request-scoped logger carrying
// request_id, method and path (see LoggerFrom). After it runs one
// "http_request" line is written at INFO, WARN for 4xx, or ERROR for 5xx and
// when handlers attached errors to the Gin context.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	rd := newRedactor()

	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	quiet := make(map[string]struct{}, len(opts.QuietPaths))
	for _, p := range opts.QuietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(rd.query(c.Request.URL.RawQuery), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = rd.scrub(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		setLogger(c, log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger())

		c.Next()

		if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
			reqID = rid
		}
		status := c.Writer.Status()

		ev := log.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			if _, ok := quiet[c.Request.URL.Path]; ok {
				ev = log.Debug()
			}
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if uid := c.GetString(userIDKey); uid != "" {
			ev = ev.Str("user_id", uid)
		}

		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
