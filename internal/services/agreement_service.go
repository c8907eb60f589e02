// Package services – AgreementService
//
// This file implements the Agreement Service. An agreement names a listing,
// its owner as proposer and one counterparty. While pending it holds the
// pending key (listing, counterparty) under a unique index, which is what
// makes "at most one pending agreement per pair" hold under concurrency.
// Resolution is a conditional update on status = pending, so of two racing
// accepts exactly one changes a row.
//
// Every mutation runs in one database transaction. Notifications are staged
// in that transaction and published only after it commits.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/repo"
	"github.com/tbourn/go-swap-backend/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Resolve outcomes.
const (
	OutcomeAccept   = "accept"
	OutcomeDecline  = "decline"
	OutcomeWithdraw = "withdraw"
)

var outcomeStatus = map[string]string{
	OutcomeAccept:   domain.AgreementAccepted,
	OutcomeDecline:  domain.AgreementDeclined,
	OutcomeWithdraw: domain.AgreementWithdrawn,
}

// AgreementView is an agreement composed with its listing.
type AgreementView struct {
	Agreement domain.Agreement `json:"agreement"`
	Listing   domain.Listing   `json:"listing"`
}

// ResolveResult is the state after a successful Resolve. Transaction is set
// only on accept.
type ResolveResult struct {
	Agreement   domain.Agreement    `json:"agreement"`
	Listing     domain.Listing      `json:"listing"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

// AgreementService coordinates proposals and their resolution.
type AgreementService struct {
	DB            *gorm.DB
	Listings      *ListingService
	Ledger        *LedgerService
	Conversations *ConversationService
	Notifier      *NotificationService

	// Timeout bounds Propose and Resolve independently of the caller's
	// cancellation.
	Timeout time.Duration
	Now     func() time.Time
}

// Propose records a pending agreement from the listing owner to
// counterpartyID, moves the listing to pending, and opens (or reuses) the
// conversation between them.
func (s *AgreementService) Propose(ctx context.Context, listingID, proposerID, counterpartyID string) (*AgreementView, error) {
	ctx, cancel := detach(ctx, s.Timeout)
	defer cancel()

	tr := otel.Tracer("services/AgreementService")
	ctx, span := tr.Start(ctx, "Propose",
		trace.WithAttributes(
			attribute.String("listing.id", listingID),
			attribute.String("user.id", proposerID),
			attribute.String("counterparty.id", counterpartyID),
		),
	)
	defer span.End()

	if listingID == "" || proposerID == "" || counterpartyID == "" {
		return nil, ErrInvalidID
	}

	var (
		view   AgreementView
		staged []domain.Notification
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := repo.GetListing(ctx, tx, listingID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if l.OwnerID != proposerID {
			denied(ctx, proposerID, "listing", listingID, ErrNotOwner)
			return ErrNotOwner
		}
		if proposerID == counterpartyID {
			return ErrSelfDealing
		}
		if l.Status != domain.ListingActive {
			// A retry of an accepted proposal should read as a duplicate.
			_, err := repo.FindPendingAgreement(ctx, tx, listingID, counterpartyID)
			if err == nil {
				return ErrDuplicatePending
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			return ErrListingNotActive
		}

		now := clock(s.Now)
		key := repo.PendingKey(listingID, counterpartyID)
		a := domain.Agreement{
			ID:             uuid.NewString(),
			ListingID:      listingID,
			ProposerID:     proposerID,
			CounterpartyID: counterpartyID,
			Status:         domain.AgreementPending,
			PendingKey:     &key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repo.CreateAgreement(ctx, tx, &a); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicatePending
			}
			return err
		}
		if _, err := s.Listings.transitionTx(ctx, tx, l, proposerID, domain.ListingPending, byAgreement); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				return ErrListingNotActive
			}
			return err
		}

		conv, err := s.Conversations.getOrCreateTx(ctx, tx, proposerID, counterpartyID, &listingID)
		if err != nil {
			return err
		}
		if err := repo.SetAgreementConversation(ctx, tx, a.ID, conv.ID); err != nil {
			return err
		}
		a.ConversationID = &conv.ID

		staged, err = s.Notifier.Stage(ctx, tx, Event{
			Type:           EventAgreementProposed,
			Actor:          proposerID,
			Parties:        []string{counterpartyID},
			ListingID:      listingID,
			AgreementID:    a.ID,
			ConversationID: conv.ID,
			Link:           agreementLink(a.ID),
			Payload:        map[string]any{"listing_title": l.Title, "intent": l.Intent},
			At:             now,
		})
		view = AgreementView{Agreement: a, Listing: *l}
		return err
	})
	if err != nil {
		failed(ctx, "agreement.propose", proposerID, err)
		return nil, err
	}

	s.Notifier.Deliver(ctx, staged...)
	s.Listings.sync(ctx, view.Listing)
	return &view, nil
}

// Resolve accepts, declines or withdraws a pending agreement.
//
// Accept and decline belong to the counterparty, withdraw to the proposer.
// The role check runs before the status check so that outsiders learn
// nothing about an agreement's state. Accept appends the ledger entry and
// completes the listing; decline and withdraw return the listing to active
// unless another agreement still holds it.
func (s *AgreementService) Resolve(ctx context.Context, agreementID, actorID, outcome string) (*ResolveResult, error) {
	ctx, cancel := detach(ctx, s.Timeout)
	defer cancel()

	tr := otel.Tracer("services/AgreementService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(
			attribute.String("agreement.id", agreementID),
			attribute.String("user.id", actorID),
			attribute.String("agreement.outcome", outcome),
		),
	)
	defer span.End()

	status, ok := outcomeStatus[outcome]
	if !ok {
		return nil, ErrInvalidOutcome
	}
	if agreementID == "" || actorID == "" {
		return nil, ErrInvalidID
	}

	var (
		res    ResolveResult
		staged []domain.Notification
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := repo.GetAgreement(ctx, tx, agreementID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrAgreementNotFound
			}
			return err
		}
		party := a.CounterpartyID
		if outcome == OutcomeWithdraw {
			party = a.ProposerID
		}
		if actorID != party {
			denied(ctx, actorID, "agreement", agreementID, ErrNotParty)
			return ErrNotParty
		}
		if a.Status != domain.AgreementPending {
			return ErrAlreadyResolved
		}

		now := clock(s.Now)
		n, err := repo.ResolveAgreement(ctx, tx, a.ID, status, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrAlreadyResolved
		}
		a.Status, a.PendingKey, a.ResolvedAt, a.UpdatedAt = status, nil, &now, now

		l, err := repo.GetListing(ctx, tx, a.ListingID)
		if err != nil {
			return err
		}
		if outcome == OutcomeAccept {
			if _, err := s.Listings.transitionTx(ctx, tx, l, actorID, domain.ListingCompleted, byAgreement); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					return ErrListingNotActive
				}
				return err
			}
			t, err := s.Ledger.recordCompletion(ctx, tx, a)
			if err != nil {
				return err
			}
			res.Transaction = t
		} else if err := s.release(ctx, tx, l, actorID); err != nil {
			return err
		}

		ev := Event{
			Type:        "agreement." + status,
			Actor:       actorID,
			Parties:     []string{a.ProposerID, a.CounterpartyID},
			ListingID:   a.ListingID,
			AgreementID: a.ID,
			Link:        agreementLink(a.ID),
			Payload:     map[string]any{"listing_title": l.Title, "status": status},
			At:          now,
		}
		if a.ConversationID != nil {
			ev.ConversationID = *a.ConversationID
		}
		staged, err = s.Notifier.Stage(ctx, tx, ev)
		res.Agreement, res.Listing = *a, *l
		return err
	})
	if err != nil {
		failed(ctx, "agreement.resolve", actorID, err)
		return nil, err
	}

	s.Notifier.Deliver(ctx, staged...)
	s.Listings.sync(ctx, res.Listing)
	return &res, nil
}

// release reverts a pending listing to active once no pending agreement
// holds it. A listing that already left pending is left alone.
func (s *AgreementService) release(ctx context.Context, tx *gorm.DB, l *domain.Listing, actorID string) error {
	if l.Status != domain.ListingPending {
		return nil
	}
	open, err := repo.CountPendingForListing(ctx, tx, l.ID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	_, err = s.Listings.transitionTx(ctx, tx, l, actorID, domain.ListingActive, byAgreement)
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

// Get returns the agreement composed with its listing. Users who are not a
// party see ErrAgreementNotFound.
func (s *AgreementService) Get(ctx context.Context, id, viewer string) (*AgreementView, error) {
	tr := otel.Tracer("services/AgreementService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("agreement.id", id),
			attribute.String("user.id", viewer),
		),
	)
	defer span.End()

	a, err := repo.GetAgreement(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAgreementNotFound
		}
		return nil, err
	}
	if viewer == "" || (viewer != a.ProposerID && viewer != a.CounterpartyID) {
		denied(ctx, viewer, "agreement", id, ErrNotParty)
		return nil, ErrAgreementNotFound
	}
	l, err := repo.GetListing(ctx, s.DB, a.ListingID)
	if err != nil {
		return nil, err
	}
	return &AgreementView{Agreement: *a, Listing: *l}, nil
}

// ListFor returns agreements where userID is the counterparty (incoming),
// the proposer (outgoing), or either when role is empty, newest first.
func (s *AgreementService) ListFor(ctx context.Context, userID, role, status string, page, pageSize int) ([]AgreementView, int64, error) {
	tr := otel.Tracer("services/AgreementService")
	ctx, span := tr.Start(ctx, "ListFor",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("agreement.role", role),
			attribute.String("agreement.status", status),
		),
	)
	defer span.End()

	if role != "" && role != repo.RoleIncoming && role != repo.RoleOutgoing {
		return nil, 0, ErrInvalidRole
	}
	if status != "" {
		if _, ok := validAgreementStatus[status]; !ok {
			return nil, 0, ErrInvalidStatus
		}
	}
	offset, limit := utils.PageBounds(page, pageSize)
	rows, total, err := repo.ListAgreementsFor(ctx, s.DB, userID, role, status, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]string, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.ListingID)
	}
	listings, err := repo.GetListingsByIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, 0, err
	}
	out := make([]AgreementView, len(rows))
	for i, a := range rows {
		out[i] = AgreementView{Agreement: a, Listing: listings[a.ListingID]}
	}
	return out, total, nil
}

var validAgreementStatus = map[string]struct{}{
	domain.AgreementPending:   {},
	domain.AgreementAccepted:  {},
	domain.AgreementDeclined:  {},
	domain.AgreementWithdrawn: {},
}
