// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Agreement
// model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

// Agreement roles relative to a viewer.
const (
	RoleIncoming = "incoming" // viewer is the counterparty
	RoleOutgoing = "outgoing" // viewer is the proposer
)

// PendingKey builds the value stored in agreements.pending_key while an
// agreement is pending.
func PendingKey(listingID, counterpartyID string) string {
	return listingID + ":" + counterpartyID
}

// CreateAgreement inserts a. A unique violation on the pending key is
// reported as ErrDuplicate.
func CreateAgreement(ctx context.Context, db *gorm.DB, a *domain.Agreement) error {
	return dupOr(db.WithContext(ctx).Omit("Listing").Create(a).Error)
}

// GetAgreement fetches an agreement by id or returns ErrNotFound.
func GetAgreement(ctx context.Context, db *gorm.DB, id string) (*domain.Agreement, error) {
	var a domain.Agreement
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FindPendingAgreement returns the pending agreement for (listing,
// counterparty) or ErrNotFound.
func FindPendingAgreement(ctx context.Context, db *gorm.DB, listingID, counterpartyID string) (*domain.Agreement, error) {
	var a domain.Agreement
	err := db.WithContext(ctx).
		Where("pending_key = ?", PendingKey(listingID, counterpartyID)).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ResolveAgreement moves a pending agreement to status and clears its
// pending key. It returns 0 when the agreement was no longer pending.
func ResolveAgreement(ctx context.Context, db *gorm.DB, id, status string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Agreement{}).
		Where("id = ? AND status = ?", id, domain.AgreementPending).
		Updates(map[string]any{
			"status":      status,
			"pending_key": gorm.Expr("NULL"),
			"resolved_at": now,
			"updated_at":  now,
		})
	return res.RowsAffected, res.Error
}

// SetAgreementConversation links an agreement to its conversation thread.
func SetAgreementConversation(ctx context.Context, db *gorm.DB, id, conversationID string) error {
	return db.WithContext(ctx).
		Model(&domain.Agreement{}).
		Where("id = ?", id).
		Update("conversation_id", conversationID).Error
}

// ListPendingForListing returns every pending agreement on a listing.
func ListPendingForListing(ctx context.Context, db *gorm.DB, listingID string) ([]domain.Agreement, error) {
	var out []domain.Agreement
	err := db.WithContext(ctx).
		Where("listing_id = ? AND status = ?", listingID, domain.AgreementPending).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// CountPendingForListing returns how many agreements on a listing are pending.
func CountPendingForListing(ctx context.Context, db *gorm.DB, listingID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Agreement{}).
		Where("listing_id = ? AND status = ?", listingID, domain.AgreementPending).
		Count(&n).Error
	return n, err
}

// ListAgreementsFor returns agreements where userID plays role, optionally
// filtered by status, newest first, with the total count.
func ListAgreementsFor(ctx context.Context, db *gorm.DB, userID, role, status string, offset, limit int) ([]domain.Agreement, int64, error) {
	q := db.WithContext(ctx).Model(&domain.Agreement{})
	switch role {
	case RoleIncoming:
		q = q.Where("counterparty_id = ?", userID)
	case RoleOutgoing:
		q = q.Where("proposer_id = ?", userID)
	default:
		q = q.Where("(counterparty_id = ? OR proposer_id = ?)", userID, userID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Agreement{}, 0, nil
	}
	var out []domain.Agreement
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}
