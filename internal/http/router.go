// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and rate
// limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Identity before anything keyed by user (Auth → idempotency → rate limit)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/config"
	"github.com/tbourn/go-swap-backend/internal/http/handlers"
	"github.com/tbourn/go-swap-backend/internal/http/middleware"
	"github.com/tbourn/go-swap-backend/internal/realtime"
	"github.com/tbourn/go-swap-backend/internal/repo"
	"github.com/tbourn/go-swap-backend/internal/services"
)

// maxBodyBytes caps every request body. Listing descriptions and messages
// are rune-limited well below this.
const maxBodyBytes = 1 << 20

// Deps are the collaborators RegisterRoutes mounts. Services may be nil, in
// which case a default graph is built over DB publishing to Hub.
type Deps struct {
	Config   config.Config
	DB       *gorm.DB
	Services *services.Services
	Hub      *realtime.Hub
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the marketplace API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (websocket route excluded)
//  8. CORS and Security headers
//
// Inside the API group:
//  1. Auth: resolve the caller
//  2. Idempotency validator (keyed by caller and conversation)
//  3. Rate limiter (per caller, realtime excluded)
func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	r.HandleMethodNotAllowed = true
	handlers.RegisterValidators()

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	realtimePath := strings.TrimRight(apiBase, "/") + "/realtime"

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Sec-WebSocket-Key"},
		QuietPaths:  []string{"/health", "/metrics"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression; hijacked websocket connections must not be wrapped
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{realtimePath, "/metrics"})))

	// 8) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Every API response is per-user, so nothing may sit in shared caches.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
		Expose:       []string{"ETag", "Idempotency-Replayed"},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/hub
	svc := d.Services
	if svc == nil {
		opts := services.Options{
			ListingTTL:     cfg.Domain.ListingTTL,
			OpTimeout:      cfg.Domain.RequestTimeout,
			IdempotencyTTL: cfg.IdempotencyTTL,
			MaxBodyRunes:   cfg.Domain.MessageMaxRunes,
		}
		if d.Hub != nil {
			opts.Publisher = d.Hub
		}
		svc = services.New(d.DB, opts)
	}
	h := handlers.FromServices(svc)
	if d.Hub != nil {
		h.WithRealtime(d.Hub, cfg.Realtime.Backlog)
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		WithWriteLimit(middleware.Limit{RPS: cfg.RateWriteRPS, Burst: cfg.RateWriteBurst})
	rl.Skip = func(c *gin.Context) bool { return c.FullPath() == realtimePath }

	// Public API
	api := groupWithPrefix(r, apiBase)
	api.Use(
		middleware.Auth(middleware.AuthOptions{
			Secret:          []byte(cfg.Auth.JWTSecret),
			AllowHeader:     cfg.Auth.AllowHeader,
			QueryTokenPaths: []string{realtimePath},
		}),
		middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{MaxLen: 200},
			func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
				rec, err := repo.GetIdempotency(ctx, d.DB, userID, scope, key, now)
				if errors.Is(err, repo.ErrNotFound) {
					return false, nil
				}
				if err != nil {
					return false, err
				}
				return rec != nil, nil
			},
		),
		rl.Handler(),
	)
	{
		// Listings
		api.POST("/listings", h.CreateListing)
		api.GET("/listings", h.BrowseListings)
		api.GET("/listings/mine", h.MyListings)
		api.GET("/listings/:id", h.GetListing)
		api.POST("/listings/:id/status", h.TransitionListing)
		api.DELETE("/listings/:id", h.RemoveListing)

		// Agreements and ledger
		api.POST("/agreements", h.ProposeAgreement)
		api.GET("/agreements", h.ListAgreements)
		api.GET("/agreements/:id", h.GetAgreement)
		api.POST("/agreements/:id/resolve", h.ResolveAgreement)
		api.GET("/transactions", h.ListTransactions)

		// Conversations
		api.POST("/conversations", h.OpenConversation)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id", h.GetConversation)
		api.POST("/conversations/:id/messages", h.SendMessage)
		api.POST("/conversations/:id/read", h.MarkConversationRead)
		api.POST("/conversations/:id/hide", h.HideConversation)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/unread-count", h.UnreadNotifications)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)
		api.POST("/notifications/read-all", h.MarkAllNotificationsRead)

		// Realtime
		api.GET("/realtime", h.Realtime)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
