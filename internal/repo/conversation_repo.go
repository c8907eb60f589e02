// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation and ConversationMember models.
//
// Functions:
//
//   - InsertConversation(ctx, db, c) -> created, error
//     Inserts a conversation unless its pair key already exists.
//
//   - GetConversation / GetConversationByPairKey -> *domain.Conversation, error
//     Fetch a single conversation, or ErrNotFound if missing.
//
//   - EnsureMembers(ctx, db, convID, users...) -> error
//     Inserts per-viewer rows, ignoring ones that already exist.
//
//   - SetHidden(ctx, db, convID, userID, hidden, at) -> rows, error
//     Flips a single viewer's hidden flag.
//
//   - ListVisibleConversations(ctx, db, userID, offset, limit) -> page, total, error
//     Inbox query: the viewer's non-hidden threads with unread counts.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

// ConversationSummary is an inbox row: the conversation plus how many
// messages the viewer has not read.
type ConversationSummary struct {
	domain.Conversation
	Unread int64 `json:"unread"`
}

// InsertConversation inserts c unless a conversation with the same pair key
// exists, in which case it reports created=false and leaves the table
// untouched. ON CONFLICT keeps a surrounding Postgres transaction usable.
func InsertConversation(ctx context.Context, db *gorm.DB, c *domain.Conversation) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "pair_key"}}, DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetConversation fetches a conversation by id or returns ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversationByPairKey fetches a conversation by its pair key.
func GetConversationByPairKey(ctx context.Context, db *gorm.DB, key string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("pair_key = ?", key).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchConversation sets last_activity_at.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("last_activity_at", at).Error
}

// EnsureMembers inserts a member row for each user, leaving existing rows
// untouched.
func EnsureMembers(ctx context.Context, db *gorm.DB, conversationID string, users ...string) error {
	rows := make([]domain.ConversationMember, 0, len(users))
	for _, u := range users {
		rows = append(rows, domain.ConversationMember{ConversationID: conversationID, UserID: u})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Omit("Conversation").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// GetMember returns the viewer state row or ErrNotFound.
func GetMember(ctx context.Context, db *gorm.DB, conversationID, userID string) (*domain.ConversationMember, error) {
	var m domain.ConversationMember
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetHidden sets one viewer's hidden flag. It returns ErrNotFound when no
// member row exists.
func SetHidden(ctx context.Context, db *gorm.DB, conversationID, userID string, hidden bool, at time.Time) error {
	updates := map[string]any{"hidden": hidden, "hidden_at": nil}
	if hidden {
		updates["hidden_at"] = at
	}
	res := db.WithContext(ctx).
		Model(&domain.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListVisibleConversations returns the viewer's non-hidden conversations,
// most recently active first, with per-thread unread counts.
func ListVisibleConversations(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]ConversationSummary, int64, error) {
	base := db.WithContext(ctx).
		Table("conversations").
		Joins("JOIN conversation_members cm ON cm.conversation_id = conversations.id").
		Where("cm.user_id = ? AND cm.hidden = ?", userID, false).
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []ConversationSummary{}, 0, nil
	}

	var out []ConversationSummary
	err := base.
		Select("conversations.*, (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = conversations.id AND m.recipient_id = ? AND m.read = ?) AS unread", userID, false).
		Order("conversations.last_activity_at DESC, conversations.id DESC").
		Offset(offset).
		Limit(limit).
		Scan(&out).Error
	return out, total, err
}
