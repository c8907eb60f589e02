// Package services – ConversationService
//
// This file implements the Conversation & Messaging Engine. A conversation
// is keyed by the unordered participant pair plus an optional listing, so
// repeated or concurrent get-or-create calls converge on one row. Hiding is
// per viewer and any inbound message makes the thread visible again for its
// recipient.
//
// Send is optionally idempotent on a client-supplied key: the key row and
// the message commit together, and a retry returns the original message
// without a second event.
package services

import (
	"context"
	"errors"
	"net/http"
	"sort"
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

const (
	defaultMaxBodyRunes   = 2000
	defaultIdempotencyTTL = 24 * time.Hour
	previewRunes          = 80
)

// errReplay aborts a send transaction whose idempotency key already exists.
var errReplay = errors.New("idempotent replay")

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	Conversation domain.Conversation `json:"conversation"`
	Participants []string            `json:"participants"`
	Listing      *domain.Listing     `json:"listing,omitempty"`
	Messages     []domain.Message    `json:"messages"`
}

// SendResult carries the stored message and whether it was a replay of an
// earlier request with the same key.
type SendResult struct {
	Message  domain.Message
	Replayed bool
}

// ConversationStats summarizes a thread for cache validation.
type ConversationStats struct {
	Count         int64
	Read          int64
	LastMessageAt *time.Time
}

// ConversationService manages conversations and messages.
type ConversationService struct {
	DB        *gorm.DB
	Notifier  *NotificationService
	Publisher realtime.Publisher

	MaxBodyRunes   int
	IdempotencyTTL time.Duration
	// Timeout bounds Send independently of the caller's cancellation.
	Timeout time.Duration
	// HistoryLimit caps messages returned by Get; zero returns all.
	HistoryLimit int

	Now func() time.Time
}

// PairKey orders a and b and returns them with the conversation key.
func PairKey(a, b string, listingID *string) (first, second, key string) {
	p := []string{a, b}
	sort.Strings(p)
	l := "-"
	if listingID != nil && *listingID != "" {
		l = *listingID
	}
	return p[0], p[1], p[0] + "|" + p[1] + "|" + l
}

// GetOrCreate returns the conversation between a and b about listingID,
// creating it and both member rows on first use.
func (s *ConversationService) GetOrCreate(ctx context.Context, a, b string, listingID *string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "GetOrCreate",
		trace.WithAttributes(
			attribute.String("user.id", a),
			attribute.String("peer.id", b),
		),
	)
	defer span.End()

	var c *domain.Conversation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = s.getOrCreateTx(ctx, tx, a, b, listingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// getOrCreateTx is GetOrCreate inside the caller's transaction. The insert
// uses ON CONFLICT DO NOTHING so that losing the race leaves tx usable for
// the follow-up read.
func (s *ConversationService) getOrCreateTx(ctx context.Context, tx *gorm.DB, a, b string, listingID *string) (*domain.Conversation, error) {
	if a == "" || b == "" {
		return nil, ErrInvalidID
	}
	if a == b {
		return nil, ErrSelfConversation
	}
	if listingID != nil && *listingID == "" {
		listingID = nil
	}
	if listingID != nil {
		if _, err := repo.GetListing(ctx, tx, *listingID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrListingNotFound
			}
			return nil, err
		}
	}

	first, second, key := PairKey(a, b, listingID)
	now := clock(s.Now)
	c := &domain.Conversation{
		ID:             uuid.NewString(),
		ParticipantA:   first,
		ParticipantB:   second,
		ListingID:      listingID,
		PairKey:        key,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	created, err := repo.InsertConversation(ctx, tx, c)
	if err != nil {
		return nil, err
	}
	if !created {
		if c, err = repo.GetConversationByPairKey(ctx, tx, key); err != nil {
			return nil, err
		}
	}
	if err := repo.EnsureMembers(ctx, tx, c.ID, c.ParticipantA, c.ParticipantB); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the full thread. Unknown ids and non-participants both yield
// ErrConversationNotFound so existence is not revealed.
func (s *ConversationService) Get(ctx context.Context, id, viewer string) (*ConversationView, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("conversation.id", id),
			attribute.String("user.id", viewer),
		),
	)
	defer span.End()

	c, err := s.participantConversation(ctx, id, viewer, ErrConversationNotFound)
	if err != nil {
		return nil, err
	}
	view := &ConversationView{
		Conversation: *c,
		Participants: []string{c.ParticipantA, c.ParticipantB},
	}
	if c.ListingID != nil {
		l, err := repo.GetListing(ctx, s.DB, *c.ListingID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		view.Listing = l
	}
	view.Messages, err = repo.ListMessages(ctx, s.DB, c.ID, s.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Send appends a message from sender. The thread is bumped and un-hidden
// for the recipient in the same transaction; the sender's own hidden flag
// is left alone. A non-empty clientKey makes the call idempotent.
func (s *ConversationService) Send(ctx context.Context, conversationID, senderID, body, clientKey string) (*SendResult, error) {
	ctx, cancel := detach(ctx, s.Timeout)
	defer cancel()

	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", senderID),
			attribute.Bool("idempotent", clientKey != ""),
		),
	)
	defer span.End()

	c, err := s.participantConversation(ctx, conversationID, senderID, ErrNotParticipant)
	if err != nil {
		return nil, err
	}
	body = cleanText(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if tooLong(body, orDefault(s.MaxBodyRunes, defaultMaxBodyRunes)) {
		return nil, ErrBodyTooLong
	}

	now := clock(s.Now)
	if clientKey != "" {
		if res, err := s.replay(ctx, senderID, conversationID, clientKey, now); err == nil {
			return res, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	recipient := c.Other(senderID)
	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		SenderID:       senderID,
		RecipientID:    recipient,
		Body:           body,
		CreatedAt:      now,
	}
	var staged []domain.Notification
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clientKey != "" {
			if err := repo.DeleteExpiredIdempotencyKey(ctx, tx, senderID, c.ID, clientKey, now); err != nil {
				return err
			}
			ttl := s.IdempotencyTTL
			if ttl <= 0 {
				ttl = defaultIdempotencyTTL
			}
			_, err := repo.CreateIdempotency(ctx, tx, senderID, c.ID, clientKey, msg.ID, http.StatusCreated, now, ttl)
			if errors.Is(err, repo.ErrDuplicate) {
				return errReplay
			}
			if err != nil {
				return err
			}
		}
		if err := repo.CreateMessage(ctx, tx, &msg); err != nil {
			return err
		}
		if err := repo.TouchConversation(ctx, tx, c.ID, now); err != nil {
			return err
		}
		if err := repo.SetHidden(ctx, tx, c.ID, recipient, false, now); err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			if err := repo.EnsureMembers(ctx, tx, c.ID, recipient); err != nil {
				return err
			}
		}
		var err error
		staged, err = s.Notifier.Stage(ctx, tx, Event{
			Type:           EventMessageSent,
			Actor:          senderID,
			Parties:        []string{recipient},
			ConversationID: c.ID,
			MessageID:      msg.ID,
			Link:           conversationLink(c.ID),
			Payload:        map[string]any{"preview": preview(body)},
			At:             now,
		})
		return err
	})
	if errors.Is(err, errReplay) {
		// A concurrent request with the same key committed first.
		return s.replay(ctx, senderID, c.ID, clientKey, now)
	}
	if err != nil {
		failed(ctx, "conversation.send", senderID, err)
		return nil, err
	}

	if env, err := realtime.NewEnvelope(realtime.TypeMessage, msg.ID, msg.CreatedAt, msg); err == nil {
		s.publish(ctx, recipient, env)
		s.publish(ctx, senderID, env)
	}
	s.Notifier.Deliver(ctx, staged...)
	return &SendResult{Message: msg}, nil
}

// replay returns the message recorded under an existing idempotency key,
// or repo.ErrNotFound when the key is unused.
func (s *ConversationService) replay(ctx context.Context, userID, conversationID, key string, now time.Time) (*SendResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, conversationID, key, now)
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.ResourceID)
	if err != nil {
		return nil, err
	}
	return &SendResult{Message: *m, Replayed: true}, nil
}

// MarkRead marks the receiver's unread messages in the conversation read
// and tells the other participant. It returns how many rows changed.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", receiverID),
		),
	)
	defer span.End()

	c, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrConversationNotFound
		}
		return 0, err
	}
	if !c.HasParticipant(receiverID) {
		denied(ctx, receiverID, "conversation", conversationID, ErrNotParticipant)
		return 0, ErrNotParticipant
	}
	now := clock(s.Now)
	n, err := repo.MarkMessagesRead(ctx, s.DB, c.ID, receiverID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		env, err := realtime.NewEnvelope(realtime.TypeMessageRead, c.ID, now, map[string]any{
			"conversation_id": c.ID,
			"reader_id":       receiverID,
			"count":           n,
		})
		if err == nil {
			s.publish(ctx, c.Other(receiverID), env)
		}
	}
	return n, nil
}

// Hide removes the conversation from userID's inbox only. Hiding an already
// hidden thread is a no-op.
func (s *ConversationService) Hide(ctx context.Context, conversationID, userID string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Hide",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	c, err := s.participantConversation(ctx, conversationID, userID, ErrNotParticipant)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return ErrNotParticipant
		}
		return err
	}
	m, err := repo.GetMember(ctx, s.DB, c.ID, userID)
	switch {
	case err == nil && m.Hidden:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		if err := repo.EnsureMembers(ctx, s.DB, c.ID, userID); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	return repo.SetHidden(ctx, s.DB, c.ID, userID, true, clock(s.Now))
}

// ListFor returns the user's visible conversations, most recently active
// first, each with its unread count.
func (s *ConversationService) ListFor(ctx context.Context, userID string, page, pageSize int) ([]repo.ConversationSummary, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListFor",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	offset, limit := utils.PageBounds(page, pageSize)
	return repo.ListVisibleConversations(ctx, s.DB, userID, offset, limit)
}

// Stats returns message aggregates used to build the thread's ETag.
func (s *ConversationService) Stats(ctx context.Context, conversationID string) (ConversationStats, error) {
	count, read, last, err := repo.ConversationStats(ctx, s.DB, conversationID)
	if err != nil {
		return ConversationStats{}, err
	}
	return ConversationStats{Count: count, Read: read, LastMessageAt: last}, nil
}

// participantConversation loads a conversation and checks membership.
// Unknown ids return ErrConversationNotFound; non-members get notMember.
func (s *ConversationService) participantConversation(ctx context.Context, id, userID string, notMember error) (*domain.Conversation, error) {
	if id == "" || userID == "" {
		return nil, ErrConversationNotFound
	}
	c, err := repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !c.HasParticipant(userID) {
		denied(ctx, userID, "conversation", id, notMember)
		return nil, notMember
	}
	return c, nil
}

func (s *ConversationService) publish(ctx context.Context, userID string, env realtime.Envelope) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, userID, env); err != nil {
		loggerFrom(ctx).Warn().Err(err).Str("user_id", userID).Str("type", env.Type).Msg("realtime publish failed")
	}
}

// preview returns the first previewRunes runes of body on one line.
func preview(body string) string {
	line := whitespaceRE.ReplaceAllString(body, " ")
	r := []rune(line)
	if len(r) <= previewRunes {
		return line
	}
	return string(r[:previewRunes]) + "…"
}
