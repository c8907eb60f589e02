// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only ledger of completed
// transactions. There are no update or delete functions.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

// Ledger roles relative to a viewer.
const (
	RoleGiven    = "given"    // viewer is from_party
	RoleReceived = "received" // viewer is to_party
)

// CreateTransaction appends a ledger entry. A second entry for the same
// listing or agreement is reported as ErrDuplicate.
func CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	return dupOr(db.WithContext(ctx).Omit("Listing").Create(t).Error)
}

// GetTransactionByListing returns the ledger entry for a listing or ErrNotFound.
func GetTransactionByListing(ctx context.Context, db *gorm.DB, listingID string) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := db.WithContext(ctx).Where("listing_id = ?", listingID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTransactionsForListing returns 0 or 1.
func CountTransactionsForListing(ctx context.Context, db *gorm.DB, listingID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Transaction{}).Where("listing_id = ?", listingID).Count(&n).Error
	return n, err
}

// ListTransactionsFor returns the viewer's ledger entries for role, each
// joined with its listing, most recent first, plus the total count.
func ListTransactionsFor(ctx context.Context, db *gorm.DB, userID, role string, offset, limit int) ([]domain.Transaction, int64, error) {
	col := "transactions.from_party"
	if role == RoleReceived {
		col = "transactions.to_party"
	}

	var total int64
	if err := db.WithContext(ctx).Model(&domain.Transaction{}).Where(col+" = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Transaction{}, 0, nil
	}

	var out []domain.Transaction
	err := db.WithContext(ctx).
		Joins("Listing").
		Where(col+" = ?", userID).
		Order("transactions.completed_at DESC, transactions.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}
