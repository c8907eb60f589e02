// Package services – LedgerService
//
// This file implements the Transaction Ledger. The ledger is append-only:
// a Transaction is written exactly once, by the accept path, and nothing
// in the codebase updates or deletes one.
package services

import (
	"context"
	"errors"

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

// LedgerEntry is a completed exchange joined to its listing.
type LedgerEntry struct {
	Transaction domain.Transaction `json:"transaction"`
	Listing     domain.Listing     `json:"listing"`
}

// LedgerService answers history queries over completed exchanges.
type LedgerService struct {
	DB *gorm.DB
}

// recordCompletion appends the Transaction for an accepted agreement inside
// tx. The proposer (listing owner) gives; the counterparty receives. A
// second completion for the same listing or agreement is reported as
// ErrListingNotActive.
func (s *LedgerService) recordCompletion(ctx context.Context, tx *gorm.DB, a *domain.Agreement) (*domain.Transaction, error) {
	at := a.UpdatedAt
	if a.ResolvedAt != nil {
		at = *a.ResolvedAt
	}
	t := &domain.Transaction{
		ID:          uuid.NewString(),
		ListingID:   a.ListingID,
		AgreementID: a.ID,
		FromParty:   a.ProposerID,
		ToParty:     a.CounterpartyID,
		CompletedAt: at,
	}
	if err := repo.CreateTransaction(ctx, tx, t); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrListingNotActive
		}
		return nil, err
	}
	return t, nil
}

// ListFor returns the user's history in one role, newest first.
func (s *LedgerService) ListFor(ctx context.Context, userID, role string, page, pageSize int) ([]LedgerEntry, int64, error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "ListFor",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("ledger.role", role),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	if role != repo.RoleGiven && role != repo.RoleReceived {
		return nil, 0, ErrInvalidRole
	}
	offset, limit := utils.PageBounds(page, pageSize)
	rows, total, err := repo.ListTransactionsFor(ctx, s.DB, userID, role, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]LedgerEntry, len(rows))
	for i, t := range rows {
		out[i] = LedgerEntry{Transaction: t, Listing: t.Listing}
	}
	return out, total, nil
}

// HasTransaction reports whether the listing has been exchanged.
func (s *LedgerService) HasTransaction(ctx context.Context, listingID string) (bool, error) {
	n, err := repo.CountTransactionsForListing(ctx, s.DB, listingID)
	return n > 0, err
}
