// Package handlers exposes the marketplace REST and websocket endpoints.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
// Every route sits behind middleware.Auth, so the caller's identity is always
// present in the Gin context.
package handlers

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/http/middleware"
	"github.com/tbourn/go-swap-backend/internal/realtime"
	"github.com/tbourn/go-swap-backend/internal/repo"
	"github.com/tbourn/go-swap-backend/internal/services"
	"github.com/tbourn/go-swap-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ListingService defines listing lifecycle and browse operations.
type ListingService interface {
	Create(ctx context.Context, ownerID string, in services.NewListing) (*domain.Listing, error)
	Get(ctx context.Context, id string) (*domain.Listing, error)
	Transition(ctx context.Context, id, actor, to string) (*domain.Listing, error)
	Remove(ctx context.Context, id, actor string) (*domain.Listing, error)
	BrowseActive(ctx context.Context, f services.BrowseFilter) ([]domain.Listing, int64, error)
	ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Listing, int64, error)
}

// AgreementService defines proposal and resolution operations.
type AgreementService interface {
	Propose(ctx context.Context, listingID, proposerID, counterpartyID string) (*services.AgreementView, error)
	Resolve(ctx context.Context, agreementID, actorID, outcome string) (*services.ResolveResult, error)
	Get(ctx context.Context, id, viewer string) (*services.AgreementView, error)
	ListFor(ctx context.Context, userID, role, status string, page, pageSize int) ([]services.AgreementView, int64, error)
}

// LedgerService answers exchange history queries.
type LedgerService interface {
	ListFor(ctx context.Context, userID, role string, page, pageSize int) ([]services.LedgerEntry, int64, error)
}

// ConversationService defines conversation and messaging operations.
type ConversationService interface {
	GetOrCreate(ctx context.Context, a, b string, listingID *string) (*domain.Conversation, error)
	Get(ctx context.Context, id, viewer string) (*services.ConversationView, error)
	Send(ctx context.Context, conversationID, senderID, body, clientKey string) (*services.SendResult, error)
	MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error)
	Hide(ctx context.Context, conversationID, userID string) error
	ListFor(ctx context.Context, userID string, page, pageSize int) ([]repo.ConversationSummary, int64, error)
	Stats(ctx context.Context, conversationID string) (services.ConversationStats, error)
}

// NotificationService defines inbox operations.
type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Backlog(ctx context.Context, userID string, limit int) ([]realtime.Envelope, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	listings      ListingService
	agreements    AgreementService
	ledger        LedgerService
	conversations ConversationService
	notifications NotificationService

	hub     *realtime.Hub
	backlog int
}

// New constructs Handlers bound to the given services.
func New(l ListingService, a AgreementService, g LedgerService, cs ConversationService, n NotificationService) *Handlers {
	return &Handlers{listings: l, agreements: a, ledger: g, conversations: cs, notifications: n}
}

// FromServices binds Handlers to the wired service graph.
func FromServices(s *services.Services) *Handlers {
	return New(s.Listings, s.Agreements, s.Ledger, s.Conversations, s.Notifications)
}

// WithRealtime enables /realtime against hub, replaying up to backlog unread
// notifications on connect.
func (h *Handlers) WithRealtime(hub *realtime.Hub, backlog int) *Handlers {
	h.hub = hub
	h.backlog = backlog
	return h
}

// userID returns the authenticated caller set by middleware.Auth.
func userID(c *gin.Context) string { return middleware.UserID(c) }

//
// Binding validators
//

var registerOnce sync.Once

// RegisterValidators installs the "intent" and "listing_status" tags on
// gin's validator. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("intent", func(fl validator.FieldLevel) bool {
			return domain.ValidIntent(fl.Field().String())
		})
		_ = v.RegisterValidation("listing_status", func(fl validator.FieldLevel) bool {
			return domain.ValidListingStatus(fl.Field().String())
		})
	})
}

//
// Pagination
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
