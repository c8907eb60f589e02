package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/realtime"
	"github.com/tbourn/go-swap-backend/internal/search"
)

// Options configures New. Zero values fall back to package defaults.
type Options struct {
	Publisher realtime.Publisher
	Search    search.Syncer
	Ranker    *search.Ranker

	ListingTTL     time.Duration
	OpTimeout      time.Duration
	IdempotencyTTL time.Duration
	MaxBodyRunes   int

	Now func() time.Time
}

// Services bundles the wired service graph.
type Services struct {
	Listings      *ListingService
	Agreements    *AgreementService
	Ledger        *LedgerService
	Conversations *ConversationService
	Notifications *NotificationService
}

// New wires every service over db.
func New(db *gorm.DB, opts Options) *Services {
	notes := &NotificationService{DB: db, Publisher: opts.Publisher, Now: opts.Now}
	listings := &ListingService{
		DB:       db,
		Notifier: notes,
		Search:   opts.Search,
		Ranker:   opts.Ranker,
		TTL:      opts.ListingTTL,
		Now:      opts.Now,
	}
	ledger := &LedgerService{DB: db}
	convs := &ConversationService{
		DB:             db,
		Notifier:       notes,
		Publisher:      opts.Publisher,
		MaxBodyRunes:   opts.MaxBodyRunes,
		IdempotencyTTL: opts.IdempotencyTTL,
		Timeout:        opts.OpTimeout,
		Now:            opts.Now,
	}
	return &Services{
		Listings: listings,
		Agreements: &AgreementService{
			DB:            db,
			Listings:      listings,
			Ledger:        ledger,
			Conversations: convs,
			Notifier:      notes,
			Timeout:       opts.OpTimeout,
			Now:           opts.Now,
		},
		Ledger:        ledger,
		Conversations: convs,
		Notifications: notes,
	}
}
