// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

// ConversationStats returns aggregate metadata for messages within a
// conversation: the total number of rows, how many of them are read, and the
// newest CreatedAt. Any new message or read receipt changes the triple.
//
// When the conversation has no messages, count is 0 and maxCreatedAt is nil.
func ConversationStats(ctx context.Context, db *gorm.DB, conversationID string) (count, readCount int64, maxCreatedAt *time.Time, err error) {
	q := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)
	}

	if err = q().Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}
	if err = q().Where("read = ?", true).Count(&readCount).Error; err != nil {
		return 0, 0, nil, err
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q().Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, readCount, &row.CreatedAt, nil
}

// NotificationStats returns the user's notification count, unread count and
// newest CreatedAt.
func NotificationStats(ctx context.Context, db *gorm.DB, userID string) (count, unread int64, maxCreatedAt *time.Time, err error) {
	q := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Notification{}).Where("recipient_id = ?", userID)
	}
	if err = q().Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}
	if err = q().Where("read = ?", false).Count(&unread).Error; err != nil {
		return 0, 0, nil, err
	}
	var row struct {
		CreatedAt time.Time
	}
	if err = q().Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, unread, &row.CreatedAt, nil
}
