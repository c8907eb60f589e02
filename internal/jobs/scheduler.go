// Package jobs runs periodic maintenance: listing expiry and the purge of
// expired idempotency keys.
//
// Jobs are scheduled with robfig/cron. Overlapping runs of the same job are
// skipped rather than queued, and every run gets its own timeout so a stuck
// database cannot pin a worker forever.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/repo"
)

// Job names, used in logs and metric labels.
const (
	JobListingExpiry    = "listing_expiry"
	JobIdempotencyPurge = "idempotency_purge"
)

const (
	DefaultExpirySchedule = "@every 5m"
	DefaultPurgeSchedule  = "@hourly"
	DefaultRunTimeout     = 5 * time.Minute

	stopTimeout = 10 * time.Second
)

// Expirer is the slice of the listing service the expiry job needs.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// Config selects schedules. Empty schedules fall back to the defaults; a
// schedule of "off" disables that job.
type Config struct {
	ExpirySchedule string
	PurgeSchedule  string
	RunTimeout     time.Duration
	Now            func() time.Time
}

// Scheduler owns the cron instance and the registered jobs.
type Scheduler struct {
	cron    *cron.Cron
	db      *gorm.DB
	expirer Expirer
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	jobs    []string
}

// New builds a Scheduler and registers both jobs. It does not start it.
func New(db *gorm.DB, expirer Expirer, cfg Config) (*Scheduler, error) {
	logger := log.Logger.With().Str("component", "jobs").Logger()
	cl := NewCronLogger(logger)

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		db:      db,
		expirer: expirer,
		timeout: cfg.RunTimeout,
		now:     cfg.Now,
		logger:  logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRunTimeout
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	if err := s.add(JobListingExpiry, orDefault(cfg.ExpirySchedule, DefaultExpirySchedule), s.RunExpiry); err != nil {
		return nil, err
	}
	if err := s.add(JobIdempotencyPurge, orDefault(cfg.PurgeSchedule, DefaultPurgeSchedule), s.RunPurge); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, run func(context.Context) (int64, error)) error {
	if spec == "off" {
		s.logger.Warn().Str("job", name).Msg("job disabled")
		return nil
	}
	id, err := s.cron.AddFunc(spec, func() { s.runOnce(name, run) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.jobs = append(s.jobs, name)
	s.logger.Info().Str("job", name).Str("spec", spec).Int("entry_id", int(id)).Msg("job scheduled")
	return nil
}

// runOnce executes one run under its own timeout and records the outcome.
func (s *Scheduler) runOnce(name string, run func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = s.logger.With().Str("job", name).Logger().WithContext(ctx)

	start := time.Now()
	n, err := run(ctx)
	runDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		runsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error().Err(err).Str("job", name).Int64("affected", n).Msg("job run failed")
		return
	}
	runsTotal.WithLabelValues(name, "ok").Inc()
	affectedTotal.WithLabelValues(name).Add(float64(n))
	s.logger.Info().Str("job", name).Int64("affected", n).Dur("took", time.Since(start)).Msg("job run completed")
}

// RunExpiry expires every listing due at the scheduler's clock.
func (s *Scheduler) RunExpiry(ctx context.Context) (int64, error) {
	n, err := s.expirer.ExpireDue(ctx, s.now())
	return int64(n), err
}

// RunPurge deletes idempotency keys past their expiry.
func (s *Scheduler) RunPurge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.db, s.now())
}

// Jobs lists the registered job names in registration order.
func (s *Scheduler) Jobs() []string { return append([]string(nil), s.jobs...) }

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop halts scheduling and waits up to 10 seconds for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
	case <-time.After(stopTimeout):
		s.logger.Warn().Msg("scheduler stop timed out")
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	zl zerolog.Logger
}

// NewCronLogger returns a cron.Logger writing to zl.
func NewCronLogger(zl zerolog.Logger) cron.Logger {
	return &cronLogger{zl: zl.With().Str("component", "cron").Logger()}
}

// Info logs cron's routine messages. They fire on every tick, so they go
// out at debug.
func (cl *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	cl.zl.Debug().Fields(fields(keysAndValues)).Msg(msg)
}

// Error logs cron errors, including recovered panics.
func (cl *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	cl.zl.Error().Err(err).Fields(fields(keysAndValues)).Msg(msg)
}

func fields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		if i+1 < len(kv) {
			out[key] = kv[i+1]
		} else {
			out[key] = "MISSING_VALUE"
		}
	}
	return out
}
