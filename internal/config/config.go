// Package config provides application configuration loaded from environment
// variables with defaults and validation. A .env file in the working
// directory is read first when present; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and sizes the store.
type DBConfig struct {
	Driver       string // sqlite|postgres
	Path         string // sqlite file
	URL          string // postgres DSN
	MaxOpenConns int
}

// AuthConfig controls how callers are identified.
type AuthConfig struct {
	JWTSecret string
	// AllowHeader trusts X-User-ID. Development only.
	AllowHeader bool
}

// RealtimeConfig tunes per-user delivery.
type RealtimeConfig struct {
	RedisURL  string // empty keeps fan-out in process
	QueueSize int    // envelopes buffered per session
	Backlog   int    // unread notifications replayed on connect
}

// SearchConfig points at an optional Meilisearch instance.
type SearchConfig struct {
	MeiliHost   string
	MeiliAPIKey string
}

// DomainConfig holds marketplace limits.
type DomainConfig struct {
	ListingTTL      time.Duration // 0 disables expiry
	MessageMaxRunes int
	RequestTimeout  time.Duration // bound on propose, resolve and send
}

// JobsConfig holds cron specs; "off" disables a job.
type JobsConfig struct {
	ExpirySchedule string
	PurgeSchedule  string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB       DBConfig
	Auth     AuthConfig
	Realtime RealtimeConfig
	Search   SearchConfig
	Domain   DomainConfig
	Jobs     JobsConfig

	// Rate limiting
	RateRPS        float64 // tokens per second (>= 0)
	RateBurst      int     // bucket size (>= 1)
	RateWriteRPS   float64 // POST/DELETE budget, tokens per second (>= 0)
	RateWriteBurst int     // POST/DELETE bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:         getenv("DB_PATH", "swap.db"),
			URL:          getenv("DATABASE_URL", ""),
			MaxOpenConns: getint("DB_MAX_OPEN_CONNS", 10),
		},
		Auth: AuthConfig{
			JWTSecret:   getenv("JWT_SECRET", ""),
			AllowHeader: getbool("AUTH_ALLOW_HEADER", false),
		},
		Realtime: RealtimeConfig{
			RedisURL:  getenv("REDIS_URL", ""),
			QueueSize: getint("REALTIME_QUEUE_SIZE", 64),
			Backlog:   getint("REALTIME_BACKLOG", 50),
		},
		Search: SearchConfig{
			MeiliHost:   getenv("MEILI_HOST", ""),
			MeiliAPIKey: getenv("MEILI_API_KEY", ""),
		},
		Domain: DomainConfig{
			ListingTTL:      getdur("LISTING_TTL", 30*24*time.Hour),
			MessageMaxRunes: getint("MESSAGE_MAX_RUNES", 2000),
			RequestTimeout:  getdur("REQUEST_TIMEOUT", 10*time.Second),
		},
		Jobs: JobsConfig{
			ExpirySchedule: getenv("EXPIRY_SCHEDULE", "@every 5m"),
			PurgeSchedule:  getenv("IDEMPOTENCY_PURGE_SCHEDULE", "@hourly"),
		},

		// Rate limiting
		RateRPS:        getfloat("RATE_RPS", 5.0),
		RateBurst:      getint("RATE_BURST", 10),
		RateWriteRPS:   getfloat("RATE_WRITE_RPS", 1.0),
		RateWriteBurst: getint("RATE_WRITE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-swap-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DB.Driver)
	}
	if cfg.DB.MaxOpenConns < 1 {
		return cfg, errors.New("DB_MAX_OPEN_CONNS must be >= 1")
	}
	if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowHeader {
		return cfg, errors.New("JWT_SECRET is required unless AUTH_ALLOW_HEADER is set")
	}
	if cfg.Realtime.QueueSize < 1 {
		return cfg, errors.New("REALTIME_QUEUE_SIZE must be >= 1")
	}
	if cfg.Realtime.Backlog < 0 {
		return cfg, errors.New("REALTIME_BACKLOG must be >= 0")
	}
	if cfg.Domain.ListingTTL < 0 {
		return cfg, errors.New("LISTING_TTL must be >= 0")
	}
	if cfg.Domain.MessageMaxRunes < 1 {
		return cfg, errors.New("MESSAGE_MAX_RUNES must be >= 1")
	}
	if cfg.Domain.RequestTimeout <= 0 {
		return cfg, errors.New("REQUEST_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.RateWriteRPS < 0 {
		return cfg, errors.New("RATE_WRITE_RPS must be >= 0")
	}
	if cfg.RateWriteBurst < 1 {
		return cfg, errors.New("RATE_WRITE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
