// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the per-caller token-bucket limiter. Reads and writes
// draw from separate buckets: browsing an inbox should not be throttled
// because the same user just sent a burst of messages, and a spammer
// posting messages or proposals hits the tighter write budget first.
//
// The limiter is process-local; every instance enforces its own budget.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated callers by user id and everyone else by
// client IP. Keys are namespaced so the two can never collide.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// Limit is one bucket's budget.
type Limit struct {
	RPS   float64
	Burst int
}

func (l Limit) normalize() Limit {
	if l.Burst <= 0 {
		l.Burst = 1
	}
	return l
}

const (
	bucketRead  = "read"
	bucketWrite = "write"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces per-key token buckets. Safe for concurrent use.
type RateLimiter struct {
	read  Limit
	write Limit
	keyFn keyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time

	// Skip exempts matching requests from limiting.
	Skip func(*gin.Context) bool
}

// NewRateLimiter builds a limiter where every request draws from the read
// budget. Call WithWriteLimit to give unsafe methods their own bucket.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	read := Limit{RPS: rps, Burst: burst}.normalize()
	return &RateLimiter{
		read:    read,
		write:   read,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// WithWriteLimit sets the budget for POST, PUT, PATCH and DELETE requests.
func (rl *RateLimiter) WithWriteLimit(l Limit) *RateLimiter {
	rl.write = l.normalize()
	return rl
}

// limiterFor returns the bucket for key in class, creating it on first use.
// Idle buckets are swept at most once per idleTTL.
func (rl *RateLimiter) limiterFor(class, key string) *rate.Limiter {
	now := rl.now()
	id := class + "|" + key

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	if b, ok := rl.buckets[id]; ok {
		b.lastSeen = now
		return b.limiter
	}
	l := rl.read
	if class == bucketWrite {
		l = rl.write
	}
	lim := rate.NewLimiter(rate.Limit(l.RPS), l.Burst)
	rl.buckets[id] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as
// a replay, which is served without consuming tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func classOf(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return bucketWrite
	default:
		return bucketRead
	}
}

// Handler returns the limiting middleware. Rejections are 429 with the
// standard error envelope and a Retry-After derived from the bucket's
// refill rate.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || (rl.Skip != nil && rl.Skip(c)) {
			c.Next()
			return
		}

		class := classOf(c.Request.Method)
		key := rl.keyFn(c)
		lim := rl.limiterFor(class, key)

		now := rl.now()
		res := lim.ReserveN(now, 1)
		if res.OK() {
			delay := res.DelayFrom(now)
			if delay == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
			c.Header("Retry-After", retryAfter(delay))
		} else {
			c.Header("Retry-After", "60")
		}

		rateLimited.WithLabelValues(class).Inc()
		LoggerFrom(c).Warn().Str("key", key).Str("bucket", class).Msg("rate limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter renders d as whole seconds, never less than one.
func retryAfter(d time.Duration) string {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
