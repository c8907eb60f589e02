// Command server runs the exchange coordination API.
//
// Usage:
//
//	server            start the HTTP server, realtime hub and jobs
//	server reindex    push every browsable listing to Meilisearch and exit
//
// Configuration comes from the environment (see internal/config).
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-swap-backend/docs"
	"github.com/tbourn/go-swap-backend/internal/config"
	httpapi "github.com/tbourn/go-swap-backend/internal/http"
	"github.com/tbourn/go-swap-backend/internal/jobs"
	"github.com/tbourn/go-swap-backend/internal/observability"
	"github.com/tbourn/go-swap-backend/internal/realtime"
	"github.com/tbourn/go-swap-backend/internal/repo"
	"github.com/tbourn/go-swap-backend/internal/search"
	"github.com/tbourn/go-swap-backend/internal/services"
	"github.com/tbourn/go-swap-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

// @title                       Swap exchange API
// @version                     1.0
// @description                 Listings, agreements, completed exchanges, conversations and notifications for a peer-to-peer marketplace.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 "Bearer <JWT>" with the user id in sub.
func main() {
	cfg := config.MustLoad()
	setupLogging(cfg)

	if len(os.Args) > 1 && os.Args[1] == "reindex" {
		fs := flag.NewFlagSet("reindex", flag.ExitOnError)
		batch := fs.Int("batch-size", 100, "listings per page")
		_ = fs.Parse(os.Args[2:])
		if err := reindex(cfg, *batch); err != nil {
			log.Fatal().Err(err).Msg("reindex failed")
		}
		return
	}

	if err := serve(cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level := sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, "go-swap-backend")).Str("version", version).Logger()
	log.Debug().Str("log_level", level.String()).Bool("pretty", cfg.LogPretty).Msg("logging configured")
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(repo.Options{
		Driver:       cfg.DB.Driver,
		Path:         cfg.DB.Path,
		DSN:          cfg.DB.URL,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		Tracing:      cfg.OTEL.Enabled,
		Silent:       cfg.LogLevel != "debug",
	})
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func serve(cfg config.Config) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	shutdownOTel, err := observability.SetupOTel(baseCtx, cfg.OTEL, version)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	log.Info().Str("driver", cfg.DB.Driver).Msg("database ready")

	// Realtime: in-process hub, optionally bridged across instances by Redis.
	hub := realtime.NewHub(cfg.Realtime.QueueSize)
	var pub realtime.Publisher = hub
	if cfg.Realtime.RedisURL != "" {
		client, err := realtime.NewRedisClient(cfg.Realtime.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		relay := realtime.NewRedisRelay(client, hub)
		go func() {
			if err := relay.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("redis relay stopped")
			}
		}()
		pub = relay
		log.Info().Msg("realtime fan-out via redis")
	}

	var syncer search.Syncer
	if cfg.Search.MeiliHost != "" {
		m := search.NewMeiliSync(cfg.Search.MeiliHost, cfg.Search.MeiliAPIKey, "")
		if err := m.EnsureSettings(); err != nil {
			log.Warn().Err(err).Msg("meilisearch settings not applied")
		}
		syncer = m
	}

	svcs := services.New(db, services.Options{
		Publisher:      pub,
		Search:         syncer,
		ListingTTL:     cfg.Domain.ListingTTL,
		OpTimeout:      cfg.Domain.RequestTimeout,
		IdempotencyTTL: cfg.IdempotencyTTL,
		MaxBodyRunes:   cfg.Domain.MessageMaxRunes,
	})

	sched, err := jobs.New(db, svcs.Listings, jobs.Config{
		ExpirySchedule: cfg.Jobs.ExpirySchedule,
		PurgeSchedule:  cfg.Jobs.PurgeSchedule,
	})
	if err != nil {
		return err
	}
	sched.Start()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Config: cfg, DB: db, Services: svcs, Hub: hub})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		sched.Stop()
		return err
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shut down")
	}
	// Hijacked websocket sessions and the relay hang off baseCtx.
	cancelBase()
	if err := shutdownOTel(ctx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

func reindex(cfg config.Config, batch int) error {
	if cfg.Search.MeiliHost == "" {
		return errors.New("MEILI_HOST is not set")
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	m := search.NewMeiliSync(cfg.Search.MeiliHost, cfg.Search.MeiliAPIKey, "")
	if err := m.EnsureSettings(); err != nil {
		return err
	}
	svcs := services.New(db, services.Options{Search: m})

	start := time.Now()
	n, err := svcs.Listings.Reindex(context.Background(), batch)
	if err != nil {
		return err
	}
	log.Info().Int("listings", n).Dur("took", time.Since(start)).Msg("reindex complete")
	return nil
}
