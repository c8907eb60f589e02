// Package services – NotificationService
//
// This file implements the Notification Dispatcher. Notifications are
// staged inside the caller's transaction, so a rolled-back operation leaves
// no trace, and are pushed to realtime sessions only after commit.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/realtime"
	"github.com/tbourn/go-swap-backend/internal/repo"
	"github.com/tbourn/go-swap-backend/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NotificationService persists notifications and delivers them in realtime.
type NotificationService struct {
	DB *gorm.DB
	// Publisher receives envelopes after commit. Nil disables realtime push.
	Publisher realtime.Publisher
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Stage inserts one notification per recipient of ev using tx. The returned
// rows are in creation order and must be passed to Deliver once tx commits.
func (s *NotificationService) Stage(ctx context.Context, tx *gorm.DB, ev Event) ([]domain.Notification, error) {
	to := ev.recipients()
	if len(to) == 0 {
		return nil, nil
	}
	payload, err := ev.payloadJSON()
	if err != nil {
		return nil, err
	}
	at := ev.At
	if at.IsZero() {
		at = clock(s.Now)
	}
	rows := make([]domain.Notification, 0, len(to))
	for i, r := range to {
		rows = append(rows, domain.Notification{
			ID:          uuid.NewString(),
			RecipientID: r,
			ActorID:     ev.Actor,
			Type:        ev.Type,
			Payload:     payload,
			Link:        ev.Link,
			// Nanosecond offsets keep created_at ordering stable within a batch.
			CreatedAt: at.Add(time.Duration(i)),
		})
	}
	if err := repo.CreateNotifications(ctx, tx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Deliver publishes staged notifications to their recipients in order.
// Publish failures are logged; the rows are already durable and will be
// replayed from the backlog on the next connect.
func (s *NotificationService) Deliver(ctx context.Context, staged ...domain.Notification) {
	if s == nil || s.Publisher == nil {
		return
	}
	for _, n := range staged {
		env, err := NotificationEnvelope(n)
		if err != nil {
			loggerFrom(ctx).Error().Err(err).Str("notification_id", n.ID).Msg("encode notification envelope")
			continue
		}
		if err := s.Publisher.Publish(ctx, n.RecipientID, env); err != nil {
			loggerFrom(ctx).Warn().Err(err).Str("recipient_id", n.RecipientID).Str("type", n.Type).Msg("notification publish failed")
		}
	}
}

// List returns a page of the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("unread_only", unreadOnly),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	offset, limit := utils.PageBounds(page, pageSize)
	return repo.ListNotifications(ctx, s.DB, userID, unreadOnly, offset, limit)
}

// UnreadCount returns how many unread notifications the user has.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return repo.CountUnreadNotifications(ctx, s.DB, userID)
}

// MarkRead marks one notification read. Only the recipient may do so;
// repeating the call is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("notification.id", id),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	n, err := repo.GetNotification(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	if n.RecipientID != userID {
		denied(ctx, userID, "notification", id, ErrNotRecipient)
		return nil, ErrNotRecipient
	}
	if n.Read {
		return n, nil
	}
	at := clock(s.Now)
	if _, err := repo.MarkNotificationRead(ctx, s.DB, id, userID, at); err != nil {
		return nil, err
	}
	n.Read = true
	n.ReadAt = &at
	return n, nil
}

// MarkAllRead marks every unread notification of the user read and returns
// how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return repo.MarkAllNotificationsRead(ctx, s.DB, userID, clock(s.Now))
}

// Backlog returns up to limit unread notifications, oldest first, for replay
// into a fresh realtime session.
func (s *NotificationService) Backlog(ctx context.Context, userID string, limit int) ([]realtime.Envelope, error) {
	ns, err := repo.ListUnreadNotifications(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]realtime.Envelope, 0, len(ns))
	for _, n := range ns {
		env, err := NotificationEnvelope(n)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// NotificationView is the client shape of a notification: the payload is
// embedded as JSON rather than as an encoded string.
type NotificationView struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ActorID   string          `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
	Link      string          `json:"link"`
	Read      bool            `json:"read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ViewOf converts a stored notification to its client shape.
func ViewOf(n domain.Notification) NotificationView {
	p := json.RawMessage(n.Payload)
	if !json.Valid(p) {
		p = json.RawMessage("{}")
	}
	return NotificationView{
		ID:        n.ID,
		Type:      n.Type,
		ActorID:   n.ActorID,
		Payload:   p,
		Link:      n.Link,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

// NotificationEnvelope wraps n for realtime delivery.
func NotificationEnvelope(n domain.Notification) (realtime.Envelope, error) {
	return realtime.NewEnvelope(realtime.TypeNotification, n.ID, n.CreatedAt, ViewOf(n))
}
