package repo

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

func seedConversation(t *testing.T, db *gorm.DB, id, a, b string, at time.Time) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{ID: id, ParticipantA: a, ParticipantB: b, PairKey: a + "|" + b + "|" + id, LastActivityAt: at, CreatedAt: at}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed conversation %s: %v", id, err)
	}
	if err := EnsureMembers(context.Background(), db, id, a, b); err != nil {
		t.Fatalf("seed members %s: %v", id, err)
	}
	return c
}

func seedMessage(t *testing.T, db *gorm.DB, id, conv, from, to string, at time.Time, read bool) {
	t.Helper()
	m := &domain.Message{ID: id, ConversationID: conv, SenderID: from, RecipientID: to, Body: "x", Read: read, CreatedAt: at}
	if err := CreateMessage(context.Background(), db, m); err != nil {
		t.Fatalf("seed message %s: %v", id, err)
	}
}

func TestConversationStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, _, err := ConversationStats(context.Background(), db, "c1"); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestConversationStats_ZeroRows(t *testing.T) {
	db := newMigratedDB(t)
	count, read, maxAt, err := ConversationStats(context.Background(), db, "c1")
	if err != nil {
		t.Fatalf("ConversationStats error: %v", err)
	}
	if count != 0 || read != 0 || maxAt != nil {
		t.Fatalf("expected (0, 0, nil), got (%d, %d, %v)", count, read, maxAt)
	}
}

func TestConversationStats_Success_FilterAndMax(t *testing.T) {
	db := newMigratedDB(t)

	t1 := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 4, 1, 12, 5, 0, 0, time.UTC) // max for cX
	t3 := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)  // other conversation

	seedConversation(t, db, "cX", "a", "b", t1)
	seedConversation(t, db, "cY", "a", "c", t1)
	seedMessage(t, db, "m1", "cX", "a", "b", t1, true)
	seedMessage(t, db, "m2", "cX", "b", "a", t2, false)
	seedMessage(t, db, "m3", "cY", "a", "c", t3, false)

	count, read, maxAt, err := ConversationStats(context.Background(), db, "cX")
	if err != nil {
		t.Fatalf("ConversationStats error: %v", err)
	}
	if count != 2 || read != 1 {
		t.Fatalf("expected count 2 read 1, got %d %d", count, read)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected maxCreatedAt %v, got %v", t2, maxAt)
	}
}

func TestNotificationStats(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	t1 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	ns := []domain.Notification{
		{ID: "n1", RecipientID: "u1", ActorID: "u2", Type: "x", Payload: "{}", CreatedAt: t1, Read: true},
		{ID: "n2", RecipientID: "u1", ActorID: "u2", Type: "x", Payload: "{}", CreatedAt: t2},
		{ID: "n3", RecipientID: "u2", ActorID: "u1", Type: "x", Payload: "{}", CreatedAt: t2},
	}
	if err := CreateNotifications(ctx, db, ns); err != nil {
		t.Fatalf("seed: %v", err)
	}
	count, unread, maxAt, err := NotificationStats(ctx, db, "u1")
	if err != nil {
		t.Fatalf("NotificationStats: %v", err)
	}
	if count != 2 || unread != 1 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("unexpected stats: %d %d %v", count, unread, maxAt)
	}

	count, _, maxAt, err = NotificationStats(ctx, db, "nobody")
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected zero stats, got %d %v %v", count, maxAt, err)
	}
}
