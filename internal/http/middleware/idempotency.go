// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// IdempotencyValidator guards retried writes. A client that times out
// while posting a message resends it with the same Idempotency-Key; the
// middleware validates the key, stashes it for the handler, and flags the
// request as a replay when the store already holds a result for
// (caller, scope, key). Replays skip rate limiting. The handler still owns
// serving the stored result.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen key for a retryable write.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

// defaultIdemPattern accepts token characters plus ~ and :.
var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key and whether one was sent.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a stored result for this key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil uses defaultIdemPattern.
	Pattern *regexp.Regexp
	// Scope selects the resource a key is bound to. Nil scopes by ":id".
	Scope ScopeFunc
}

// IdempotencyLookup answers whether a still-valid result exists for
// (userID, scope, key) at now. Expiry is the lookup's concern. Errors are
// logged and the request proceeds as a first attempt.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (exists bool, err error)

// ScopeFunc derives the idempotency scope from a request.
type ScopeFunc func(*gin.Context) string

// ScopeByParam scopes keys by a route parameter.
func ScopeByParam(name string) ScopeFunc {
	return func(c *gin.Context) string { return c.Param(name) }
}

// IdempotencyValidator validates the Idempotency-Key header on unsafe
// methods and marks replays. Safe methods ignore the header since they
// have nothing to deduplicate. A malformed key is rejected with 400. The
// lookup runs only for authenticated callers and may be nil.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	scope := opts.Scope
	if scope == nil {
		scope = ScopeByParam("id")
	}

	return func(c *gin.Context) {
		if classOf(c.Request.Method) != bucketWrite {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := UserID(c)
		if lookup == nil || uid == "" {
			c.Next()
			return
		}
		exists, err := lookup(c.Request.Context(), uid, scope(c), key, time.Now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", scope(c)).Msg("idempotency lookup failed")
		}
		if exists {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
