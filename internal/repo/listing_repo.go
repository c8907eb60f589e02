// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Listing
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a listing is not found, functions return ErrNotFound.
//   - Status updates are conditional on the expected current status and
//     report the affected row count so callers can detect lost races.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

// ListingFilter narrows a listing query. Zero values mean "no filter".
type ListingFilter struct {
	Status  string
	Intent  string
	OwnerID string
	Query   string // case-insensitive substring over title and description

	// Terms keeps listings whose title or description contains any of the
	// given lowercase terms. It is the candidate prefilter for ranking.
	Terms []string

	// ExcludeTraded drops listings that have a ledger entry.
	ExcludeTraded bool

	Offset int
	Limit  int
}

// CreateListing inserts l. ID and timestamps must already be set.
func CreateListing(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	return db.WithContext(ctx).Create(l).Error
}

// GetListing fetches a listing by id or returns ErrNotFound.
func GetListing(ctx context.Context, db *gorm.DB, id string) (*domain.Listing, error) {
	var l domain.Listing
	if err := db.WithContext(ctx).Where("id = ?", id).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// GetListingsByIDs returns the listings with the given ids keyed by id.
func GetListingsByIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Listing, error) {
	out := make(map[string]domain.Listing, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Listing
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, l := range rows {
		out[l.ID] = l
	}
	return out, nil
}

// UpdateListingStatus moves a listing to status `to` only while its current
// status is one of `from`. It returns the number of rows changed (0 or 1).
func UpdateListingStatus(ctx context.Context, db *gorm.DB, id string, from []string, to string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	return res.RowsAffected, res.Error
}

// ListListings returns one page of listings matching f, newest first, and
// the total count of matches.
func ListListings(ctx context.Context, db *gorm.DB, f ListingFilter) ([]domain.Listing, int64, error) {
	q := db.WithContext(ctx).Model(&domain.Listing{})
	if f.Status != "" {
		q = q.Where("listings.status = ?", f.Status)
	}
	if f.Intent != "" {
		q = q.Where("listings.intent = ?", f.Intent)
	}
	if f.OwnerID != "" {
		q = q.Where("listings.owner_id = ?", f.OwnerID)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + escapeLike(strings.ToLower(s)) + "%"
		q = q.Where("(LOWER(listings.title) LIKE ? ESCAPE '\\' OR LOWER(listings.description) LIKE ? ESCAPE '\\')", like, like)
	}
	if len(f.Terms) > 0 {
		var parts []string
		var args []any
		for _, term := range f.Terms {
			like := "%" + escapeLike(term) + "%"
			parts = append(parts, "LOWER(listings.title) LIKE ? ESCAPE '\\' OR LOWER(listings.description) LIKE ? ESCAPE '\\'")
			args = append(args, like, like)
		}
		q = q.Where("("+strings.Join(parts, " OR ")+")", args...)
	}
	if f.ExcludeTraded {
		q = q.Where("NOT EXISTS (SELECT 1 FROM transactions t WHERE t.listing_id = listings.id)")
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Listing{}, 0, nil
	}

	var out []domain.Listing
	q = q.Order("listings.created_at DESC, listings.id DESC")
	if f.Limit > 0 {
		q = q.Offset(f.Offset).Limit(f.Limit)
	}
	err := q.Find(&out).Error
	return out, total, err
}

// ListExpiredListings returns up to limit active or pending listings whose
// expiry is at or before now, oldest expiry first.
func ListExpiredListings(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Listing, error) {
	var out []domain.Listing
	q := db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
			[]string{domain.ListingActive, domain.ListingPending}, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return out, q.Find(&out).Error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
