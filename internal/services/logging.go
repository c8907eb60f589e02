package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFrom returns the request-scoped logger carried by ctx, falling back
// to the global logger.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// denied records an authorization failure for audit.
func denied(ctx context.Context, actor, resource, id string, reason error) {
	loggerFrom(ctx).Warn().
		Str("actor", actor).
		Str("resource", resource).
		Str("resource_id", id).
		Str("reason", reason.Error()).
		Msg("authorization denied")
}

// failed logs a failed operation at a level matching its kind. Validation
// and not-found errors are the caller's problem and are not logged.
func failed(ctx context.Context, op, actor string, err error) {
	l := loggerFrom(ctx)
	switch KindOf(err) {
	case KindConflict:
		l.Info().Str("op", op).Str("actor", actor).Err(err).Msg("state conflict")
	case KindTransient:
		l.Error().Str("op", op).Str("actor", actor).Err(err).Msg("transient failure")
	case KindInternal:
		l.Error().Str("op", op).Str("actor", actor).Err(err).Msg("operation failed")
	}
}
