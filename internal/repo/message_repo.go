// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

// CreateMessage inserts a new message row.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	return db.WithContext(ctx).Omit("Conversation").Create(m).Error
}

// GetMessage fetches a message by id or returns ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
// A non-positive limit returns every message.
func ListMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return out, q.Find(&out).Error
}

// CountMessages returns the number of messages in a conversation.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID).Count(&n).Error
	return n, err
}

// MarkMessagesRead marks every unread message addressed to recipientID in
// the conversation as read and returns how many rows changed.
func MarkMessagesRead(ctx context.Context, db *gorm.DB, conversationID, recipientID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND read = ?", conversationID, recipientID, false).
		Updates(map[string]any{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}
