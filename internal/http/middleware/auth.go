// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements request authentication. Every API route runs behind
// Auth, which resolves the caller's user ID and stores it under the "userID"
// Gin key used by the rate limiter, the idempotency validator and handlers.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDKey = "userID"
	// HeaderUserID carries a plain user ID when AuthOptions.AllowHeader is set.
	HeaderUserID = "X-User-ID"
	// maxUserIDLen matches the width of user ID columns.
	maxUserIDLen = 64
)

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret verifies HS256 bearer tokens. Empty disables token auth.
	Secret []byte
	// AllowHeader accepts X-User-ID without a token. Development and tests only.
	AllowHeader bool
	// QueryTokenPaths lists the route patterns (gin FullPath) that accept
	// ?token=. Elsewhere the query parameter is ignored so tokens stay out
	// of ordinary URLs.
	QueryTokenPaths []string
}

var (
	errNoCredentials = errors.New("missing credentials")
	errBadToken      = errors.New("invalid or expired token")
	errBadSubject    = errors.New("invalid token subject")
)

// Auth resolves the caller from, in order:
//   - Authorization: Bearer <jwt>
//   - ?token=<jwt>, on opts.QueryTokenPaths only (browsers cannot set
//     headers on websocket upgrades)
//   - X-User-ID, when opts.AllowHeader is set
//
// A presented token that fails verification is rejected even when the header
// fallback is enabled. Failures respond 401 with code "unauthorized".
func Auth(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := authenticate(c, opts)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "unauthorized",
				"message":    err.Error(),
			})
			return
		}
		c.Set(userIDKey, uid)
		setLogger(c, LoggerFrom(c).With().Str("user_id", uid).Logger())
		c.Next()
	}
}

func authenticate(c *gin.Context, opts AuthOptions) (string, error) {
	raw := bearer(c.GetHeader("Authorization"))
	if raw == "" && queryTokenAllowed(c, opts.QueryTokenPaths) {
		raw = c.Query("token")
	}
	if raw != "" && len(opts.Secret) > 0 {
		return ParseToken(opts.Secret, raw)
	}
	if opts.AllowHeader {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" && len(uid) <= maxUserIDLen {
			return uid, nil
		}
	}
	if raw != "" {
		return "", errBadToken
	}
	return "", errNoCredentials
}

func queryTokenAllowed(c *gin.Context, paths []string) bool {
	full := c.FullPath()
	if full == "" {
		return false
	}
	for _, p := range paths {
		if p == full {
			return true
		}
	}
	return false
}

func bearer(h string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ParseToken verifies an HS256 token and returns its subject.
func ParseToken(secret []byte, raw string) (string, error) {
	tok, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return "", errBadToken
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" || len(sub) > maxUserIDLen {
		return "", errBadSubject
	}
	return sub, nil
}

// IssueToken signs an HS256 token for sub valid for ttl.
func IssueToken(secret []byte, sub string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// UserID returns the authenticated caller, or "" outside Auth.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
