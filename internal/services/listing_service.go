// Package services – ListingService
//
// This file implements the Listing Store: creation with text normalization,
// the listing status machine, system expiry, and active browse. Status
// changes are conditional updates keyed on the status the caller observed,
// so two actors racing on one listing cannot both succeed.
//
// Observability: public methods are OpenTelemetry-instrumented; after every
// committed change the external search index is re-synced best-effort.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/repo"
	"github.com/tbourn/go-swap-backend/internal/search"
	"github.com/tbourn/go-swap-backend/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTitleMaxRunes       = 120
	defaultDescriptionMaxRunes = 4000

	// maxRankCandidates is the default number of prefiltered rows ranked in
	// memory. The window grows to reach the requested page.
	maxRankCandidates = 500

	expiryBatch = 100
)

// NewListing is the input to Create.
type NewListing struct {
	Title       string
	Description string
	Intent      string
}

// BrowseFilter narrows BrowseActive. Query switches ordering from newest
// first to relevance.
type BrowseFilter struct {
	Intent   string
	Query    string
	OwnerID  string
	Page     int
	PageSize int
}

// ListingService owns listing lifecycle and browse.
type ListingService struct {
	DB       *gorm.DB
	Notifier *NotificationService
	// Search mirrors the active set to an external index. Nil disables it.
	Search search.Syncer
	// Ranker orders query results. Nil uses the default ranker.
	Ranker *search.Ranker
	// RankWindow is how many of the newest matches are ranked per query.
	// Zero uses maxRankCandidates.
	RankWindow int

	// TTL sets expires_at on new listings; zero means listings never expire.
	TTL                 time.Duration
	TitleMaxRunes       int
	DescriptionMaxRunes int

	Now func() time.Time
}

// transition causes. Each cause has its own edge set.
type cause int

const (
	byOwner cause = iota
	byAgreement
	bySystem
)

var edges = map[cause]map[string][]string{
	byOwner: {
		domain.ListingActive:  {domain.ListingPending, domain.ListingRemoved},
		domain.ListingPending: {domain.ListingActive, domain.ListingRemoved},
	},
	byAgreement: {
		domain.ListingActive:  {domain.ListingPending},
		domain.ListingPending: {domain.ListingActive, domain.ListingCompleted},
	},
	bySystem: {
		domain.ListingActive:  {domain.ListingExpired},
		domain.ListingPending: {domain.ListingExpired},
	},
}

// allowed reports whether c may move a listing from -> to.
func allowed(from, to string, c cause) bool {
	for _, t := range edges[c][from] {
		if t == to {
			return true
		}
	}
	return false
}

// Create validates and stores a new active listing owned by ownerID.
func (s *ListingService) Create(ctx context.Context, ownerID string, in NewListing) (*domain.Listing, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", ownerID),
			attribute.String("listing.intent", in.Intent),
		),
	)
	defer span.End()

	if ownerID == "" {
		return nil, ErrInvalidID
	}
	title := cleanLine(in.Title)
	if title == "" {
		return nil, ErrInvalidTitle
	}
	if tooLong(title, orDefault(s.TitleMaxRunes, defaultTitleMaxRunes)) {
		return nil, ErrTitleTooLong
	}
	desc := cleanText(in.Description)
	if tooLong(desc, orDefault(s.DescriptionMaxRunes, defaultDescriptionMaxRunes)) {
		return nil, ErrDescriptionTooLong
	}
	if !domain.ValidIntent(in.Intent) {
		return nil, ErrInvalidIntent
	}

	now := clock(s.Now)
	l := &domain.Listing{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: desc,
		Intent:      in.Intent,
		Status:      domain.ListingActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.Slug = listingSlug(title, l.ID)
	if s.TTL > 0 {
		exp := now.Add(s.TTL)
		l.ExpiresAt = &exp
	}
	if err := repo.CreateListing(ctx, s.DB, l); err != nil {
		return nil, err
	}
	s.sync(ctx, *l)
	return l, nil
}

// Get returns a listing by id.
func (s *ListingService) Get(ctx context.Context, id string) (*domain.Listing, error) {
	l, err := repo.GetListing(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return l, nil
}

// Transition applies an owner-driven status change. Completion happens only
// through an accepted agreement and expiry only through ExpireDue, so both
// are rejected here. Leaving pending withdraws the listing's open
// agreements in the same transaction and notifies their counterparties.
func (s *ListingService) Transition(ctx context.Context, id, actor, to string) (*domain.Listing, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Transition",
		trace.WithAttributes(
			attribute.String("listing.id", id),
			attribute.String("user.id", actor),
			attribute.String("listing.to", to),
		),
	)
	defer span.End()

	if id == "" || actor == "" {
		return nil, ErrInvalidID
	}
	if !domain.ValidListingStatus(to) {
		return nil, ErrInvalidStatus
	}

	var (
		l      *domain.Listing
		staged []domain.Notification
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		got, err := repo.GetListing(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if got.OwnerID != actor {
			denied(ctx, actor, "listing", id, ErrNotOwner)
			return ErrNotOwner
		}
		staged, err = s.transitionTx(ctx, tx, got, actor, to, byOwner)
		l = got
		return err
	})
	if err != nil {
		failed(ctx, "listing.transition", actor, err)
		return nil, err
	}
	s.Notifier.Deliver(ctx, staged...)
	s.sync(ctx, *l)
	return l, nil
}

// Remove soft-deletes a listing. It is Transition to removed.
func (s *ListingService) Remove(ctx context.Context, id, actor string) (*domain.Listing, error) {
	return s.Transition(ctx, id, actor, domain.ListingRemoved)
}

// transitionTx moves l to `to` inside tx and updates l in place. The update
// is conditional on l.Status, so a concurrent change yields
// ErrInvalidTransition. Owner and system transitions out of pending
// withdraw open agreements and stage a listing event; agreement-driven
// transitions stage nothing because the agreement event covers them.
func (s *ListingService) transitionTx(ctx context.Context, tx *gorm.DB, l *domain.Listing, actor, to string, c cause) ([]domain.Notification, error) {
	if !allowed(l.Status, to, c) {
		return nil, ErrInvalidTransition
	}
	now := clock(s.Now)
	n, err := repo.UpdateListingStatus(ctx, tx, l.ID, []string{l.Status}, to, now)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrInvalidTransition
	}
	from := l.Status
	l.Status, l.UpdatedAt = to, now
	if c == byAgreement {
		return nil, nil
	}

	var parties []string
	if c == bySystem {
		parties = append(parties, l.OwnerID)
	}
	if from == domain.ListingPending {
		open, err := repo.ListPendingForListing(ctx, tx, l.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range open {
			rows, err := repo.ResolveAgreement(ctx, tx, a.ID, domain.AgreementWithdrawn, now)
			if err != nil {
				return nil, err
			}
			if rows == 1 {
				parties = append(parties, a.CounterpartyID)
			}
		}
	}
	return s.Notifier.Stage(ctx, tx, Event{
		Type:      EventListingPrefix + to,
		Actor:     actor,
		Parties:   parties,
		ListingID: l.ID,
		Link:      listingLink(l.Slug),
		Payload:   map[string]any{"from": from, "to": to, "title": l.Title},
		At:        now,
	})
}

// ExpireDue moves every active or pending listing whose expiry is at or
// before now to expired, one transaction per listing, and returns how many
// were expired. Listings that changed status concurrently are skipped.
func (s *ListingService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "ExpireDue")
	defer span.End()

	expired := 0
	for {
		due, err := repo.ListExpiredListings(ctx, s.DB, now, expiryBatch)
		if err != nil {
			return expired, err
		}
		progressed := false
		for i := range due {
			l := due[i]
			var staged []domain.Notification
			err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var err error
				staged, err = s.transitionTx(ctx, tx, &l, SystemActor, domain.ListingExpired, bySystem)
				return err
			})
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return expired, err
			}
			expired++
			progressed = true
			s.Notifier.Deliver(ctx, staged...)
			s.sync(ctx, l)
		}
		if !progressed || len(due) < expiryBatch {
			break
		}
	}
	span.SetAttributes(attribute.Int("listings.expired", expired))
	return expired, nil
}

// Reindex pushes every browsable listing to the search index in batches of
// batch and returns how many were sent. Unlike the per-change sync, errors
// stop the run.
func (s *ListingService) Reindex(ctx context.Context, batch int) (int, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Reindex")
	defer span.End()

	if s.Search == nil {
		return 0, nil
	}
	batch = orDefault(batch, expiryBatch)
	sent := 0
	for offset := 0; ; offset += batch {
		rows, _, err := repo.ListListings(ctx, s.DB, repo.ListingFilter{
			Status:        domain.ListingActive,
			ExcludeTraded: true,
			Offset:        offset,
			Limit:         batch,
		})
		if err != nil {
			return sent, err
		}
		for _, l := range rows {
			if err := s.Search.Upsert(ctx, l); err != nil {
				return sent, err
			}
			sent++
		}
		if len(rows) < batch {
			break
		}
	}
	span.SetAttributes(attribute.Int("listings.indexed", sent))
	return sent, nil
}

// BrowseActive returns browsable listings: status active and no ledger
// entry. Without a query the order is newest first; with one, the newest
// RankWindow rows matching any query term are ranked by relevance. The
// window is widened to cover the requested page, and matches beyond it are
// still counted in the total.
func (s *ListingService) BrowseActive(ctx context.Context, f BrowseFilter) ([]domain.Listing, int64, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "BrowseActive",
		trace.WithAttributes(
			attribute.String("query", f.Query),
			attribute.String("listing.intent", f.Intent),
			attribute.Int("page", f.Page),
		),
	)
	defer span.End()

	if f.Intent != "" && !domain.ValidIntent(f.Intent) {
		return nil, 0, ErrInvalidIntent
	}
	offset, limit := utils.PageBounds(f.Page, f.PageSize)
	filter := repo.ListingFilter{
		Status:        domain.ListingActive,
		Intent:        f.Intent,
		OwnerID:       f.OwnerID,
		ExcludeTraded: true,
	}

	ranker := s.ranker()
	terms := ranker.Terms(f.Query)
	if len(terms) == 0 {
		filter.Offset, filter.Limit = offset, limit
		return repo.ListListings(ctx, s.DB, filter)
	}

	filter.Terms = terms
	filter.Limit = orDefault(s.RankWindow, maxRankCandidates)
	if offset+limit > filter.Limit {
		filter.Limit = offset + limit
	}
	cands, matched, err := repo.ListListings(ctx, s.DB, filter)
	if err != nil {
		return nil, 0, err
	}
	docs := make([]search.Doc, len(cands))
	byID := make(map[string]domain.Listing, len(cands))
	for i, l := range cands {
		docs[i] = search.Doc{ID: l.ID, Title: l.Title, Body: l.Description}
		byID[l.ID] = l
	}
	ranked := ranker.Rank(f.Query, docs)
	total := int64(len(ranked))
	if unranked := matched - int64(len(cands)); unranked > 0 {
		total += unranked
	}
	if offset >= len(ranked) {
		return []domain.Listing{}, total, nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	out := make([]domain.Listing, 0, end-offset)
	for _, r := range ranked[offset:end] {
		out = append(out, byID[r.ID])
	}
	return out, total, nil
}

// ListByOwner returns the owner's listings in every status, newest first.
func (s *ListingService) ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Listing, int64, error) {
	offset, limit := utils.PageBounds(page, pageSize)
	return repo.ListListings(ctx, s.DB, repo.ListingFilter{OwnerID: ownerID, Offset: offset, Limit: limit})
}

// sync pushes l to the search index; failures are logged and swallowed
// because the database stays authoritative for browse.
func (s *ListingService) sync(ctx context.Context, l domain.Listing) {
	if s.Search == nil {
		return
	}
	if err := s.Search.Upsert(ctx, l); err != nil {
		loggerFrom(ctx).Warn().Err(err).Str("listing_id", l.ID).Msg("search sync failed")
	}
}

func (s *ListingService) ranker() *search.Ranker {
	if s.Ranker != nil {
		return s.Ranker
	}
	return defaultRanker
}

var defaultRanker = search.NewRanker()

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
