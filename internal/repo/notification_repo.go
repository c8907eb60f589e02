// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

// CreateNotifications inserts ns in one statement.
func CreateNotifications(ctx context.Context, db *gorm.DB, ns []domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&ns).Error
}

// GetNotification fetches a notification by id or returns ErrNotFound.
func GetNotification(ctx context.Context, db *gorm.DB, id string) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotifications returns a page of the user's notifications, newest
// first, and the total count.
func ListNotifications(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool, offset, limit int) ([]domain.Notification, int64, error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("recipient_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	var out []domain.Notification
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// ListUnreadNotifications returns up to limit unread notifications for the
// user, oldest first, for replay into a fresh realtime connection.
func ListUnreadNotifications(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	q := db.WithContext(ctx).
		Where("recipient_id = ? AND read = ?", userID, false).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return out, q.Find(&out).Error
}

// CountUnreadNotifications returns the user's unread notification count.
func CountUnreadNotifications(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Count(&n).Error
	return n, err
}

// MarkNotificationRead marks one notification read. The recipient filter is
// part of the update so a foreign id never changes state.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, recipientID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ? AND read = ?", id, recipientID, false).
		Updates(map[string]any{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

// MarkAllNotificationsRead marks every unread notification for the user read.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, recipientID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Updates(map[string]any{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}
