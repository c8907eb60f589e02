package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-swap-backend/internal/domain"
)

func TestInsertConversation_DuplicatePairKey(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c1 := &domain.Conversation{ID: "c1", ParticipantA: "a", ParticipantB: "b", PairKey: "a|b|-", LastActivityAt: now}
	if created, err := InsertConversation(ctx, db, c1); err != nil || !created {
		t.Fatalf("create: %v %v", created, err)
	}
	c2 := &domain.Conversation{ID: "c2", ParticipantA: "a", ParticipantB: "b", PairKey: "a|b|-", LastActivityAt: now}
	if created, err := InsertConversation(ctx, db, c2); err != nil || created {
		t.Fatalf("expected no-op on duplicate pair key, got %v %v", created, err)
	}
	got, err := GetConversationByPairKey(ctx, db, "a|b|-")
	if err != nil || got.ID != "c1" {
		t.Fatalf("by pair key: %+v %v", got, err)
	}
	if _, err := GetConversation(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMembers_HideIsPerViewer(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedConversation(t, db, "c1", "a", "b", now)

	// Idempotent insert.
	if err := EnsureMembers(ctx, db, "c1", "a", "b"); err != nil {
		t.Fatalf("EnsureMembers again: %v", err)
	}

	if err := SetHidden(ctx, db, "c1", "a", true, now); err != nil {
		t.Fatalf("hide: %v", err)
	}
	// Hiding twice is fine.
	if err := SetHidden(ctx, db, "c1", "a", true, now); err != nil {
		t.Fatalf("hide again: %v", err)
	}
	ma, _ := GetMember(ctx, db, "c1", "a")
	mb, _ := GetMember(ctx, db, "c1", "b")
	if !ma.Hidden || ma.HiddenAt == nil || mb.Hidden {
		t.Fatalf("unexpected member state: a=%+v b=%+v", ma, mb)
	}
	if err := SetHidden(ctx, db, "c1", "stranger", true, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}

	if err := SetHidden(ctx, db, "c1", "a", false, now); err != nil {
		t.Fatalf("unhide: %v", err)
	}
	ma, _ = GetMember(ctx, db, "c1", "a")
	if ma.Hidden || ma.HiddenAt != nil {
		t.Fatalf("expected visible after unhide: %+v", ma)
	}
}

func TestListVisibleConversations_OrderUnreadAndHidden(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	seedConversation(t, db, "c1", "a", "b", base)
	seedConversation(t, db, "c2", "a", "c", base.Add(time.Hour))
	seedConversation(t, db, "c3", "a", "d", base.Add(2*time.Hour))
	seedMessage(t, db, "m1", "c1", "b", "a", base, false)
	seedMessage(t, db, "m2", "c1", "b", "a", base, false)
	seedMessage(t, db, "m3", "c1", "a", "b", base, false) // addressed to b
	if err := TouchConversation(ctx, db, "c1", base.Add(3*time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := SetHidden(ctx, db, "c3", "a", true, base); err != nil {
		t.Fatalf("hide: %v", err)
	}

	rows, total, err := ListVisibleConversations(ctx, db, "a", 0, 10)
	if err != nil {
		t.Fatalf("ListVisibleConversations: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected 2 visible, got total=%d rows=%d", total, len(rows))
	}
	if rows[0].ID != "c1" || rows[0].Unread != 2 || rows[1].ID != "c2" || rows[1].Unread != 0 {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	// d still sees c3.
	rows, total, _ = ListVisibleConversations(ctx, db, "d", 0, 10)
	if total != 1 || rows[0].ID != "c3" {
		t.Fatalf("other viewer affected by hide: %+v", rows)
	}
}
