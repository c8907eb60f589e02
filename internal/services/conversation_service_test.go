package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-swap-backend/internal/domain"
	"github.com/tbourn/go-swap-backend/internal/realtime"
	"github.com/tbourn/go-swap-backend/internal/repo"
)

func strp(s string) *string { return &s }

// ---------- GetOrCreate() ----------

func TestGetOrCreate_ConvergesOnOneRow(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	l := st.listing(t, "a", "Lamp")

	c1, err := st.Conversations.GetOrCreate(ctx, "a", "b", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c2, err := st.Conversations.GetOrCreate(ctx, "b", "a", nil)
	if err != nil || c2.ID != c1.ID {
		t.Fatalf("reverse order should reuse the row: %v %v", c2, err)
	}
	c3, err := st.Conversations.GetOrCreate(ctx, "a", "b", &l.ID)
	if err != nil || c3.ID == c1.ID {
		t.Fatalf("listing-scoped conversation should be distinct: %v %v", c3, err)
	}
	c4, _ := st.Conversations.GetOrCreate(ctx, "a", "b", strp(""))
	if c4.ID != c1.ID {
		t.Fatalf("empty listing id should mean no listing")
	}

	var wg sync.WaitGroup
	ids := make([]string, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := st.Conversations.GetOrCreate(ctx, "c", "d", nil)
			if err != nil {
				t.Errorf("concurrent get-or-create: %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent calls diverged: %v", ids)
		}
	}
	if n := st.countRows(t, &domain.Conversation{}, "participant_a = ? AND participant_b = ?", "c", "d"); n != 1 {
		t.Fatalf("conversations for pair = %d", n)
	}
}

func TestGetOrCreate_Validation(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	if _, err := st.Conversations.GetOrCreate(ctx, "a", "a", nil); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("want ErrSelfConversation, got %v", err)
	}
	if _, err := st.Conversations.GetOrCreate(ctx, "", "b", nil); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("want ErrInvalidID, got %v", err)
	}
	if _, err := st.Conversations.GetOrCreate(ctx, "a", "b", strp("ghost")); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("want ErrListingNotFound, got %v", err)
	}
}

// ---------- Send() ----------

func TestSend_ValidationAndAuthorization(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	c, _ := st.Conversations.GetOrCreate(ctx, "a", "b", nil)
	st.Conversations.MaxBodyRunes = 5

	if _, err := st.Conversations.Send(ctx, c.ID, "a", "  \r\n\t ", ""); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("want ErrEmptyBody, got %v", err)
	}
	if _, err := st.Conversations.Send(ctx, c.ID, "a", "toolong", ""); !errors.Is(err, ErrBodyTooLong) {
		t.Fatalf("want ErrBodyTooLong, got %v", err)
	}
	if _, err := st.Conversations.Send(ctx, c.ID, "z", "hi", ""); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
	if _, err := st.Conversations.Send(ctx, "missing", "a", "hi", ""); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("want ErrConversationNotFound, got %v", err)
	}
	// Membership is judged before the body.
	if _, err := st.Conversations.Send(ctx, c.ID, "z", "  ", ""); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("blank body from outsider: want ErrNotParticipant, got %v", err)
	}
	if _, err := st.Conversations.Send(ctx, "missing", "a", "", ""); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("blank body to unknown conversation: want ErrConversationNotFound, got %v", err)
	}
	if n := st.countRows(t, &domain.Message{}, "conversation_id = ?", c.ID); n != 0 {
		t.Fatalf("rejected sends must not persist, got %d", n)
	}
}

func TestSend_PersistsNotifiesAndPublishes(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	c, _ := st.Conversations.GetOrCreate(ctx, "a", "b", nil)

	res, err := st.Conversations.Send(ctx, c.ID, "a", " if a<b and c>d, &lt;b&gt;swap ", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Replayed || res.Message.Body != "if a<b and c>d, &lt;b&gt;swap" || res.Message.RecipientID != "b" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.notificationsOf(t, "b", EventMessageSent) != 1 || st.notificationsOf(t, "a", EventMessageSent) != 0 {
		t.Fatalf("only the recipient receives a notification")
	}
	if st.Pub.Count("b", realtime.TypeMessage) != 1 || st.Pub.Count("b", realtime.TypeNotification) != 1 {
		t.Fatalf("recipient envelopes: %+v", st.Pub.For("b"))
	}
	// The sender's other sessions see the message, but no notification.
	if st.Pub.Count("a", realtime.TypeMessage) != 1 || st.Pub.Count("a", realtime.TypeNotification) != 0 {
		t.Fatalf("sender envelopes: %+v", st.Pub.For("a"))
	}
	got, _ := repo.GetConversation(ctx, st.DB, c.ID)
	if !got.LastActivityAt.After(c.LastActivityAt) {
		t.Fatalf("last activity should be bumped")
	}
}

func TestSend_IdempotentReplay(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	c, _ := st.Conversations.GetOrCreate(ctx, "a", "b", nil)

	first, err := st.Conversations.Send(ctx, c.ID, "a", "hi", "key-1")
	if err != nil || first.Replayed {
		t.Fatalf("first send: %+v %v", first, err)
	}
	again, err := st.Conversations.Send(ctx, c.ID, "a", "hi", "key-1")
	if err != nil || !again.Replayed || again.Message.ID != first.Message.ID {
		t.Fatalf("replay: %+v %v", again, err)
	}
	if n := st.countRows(t, &domain.Message{}, "conversation_id = ?", c.ID); n != 1 {
		t.Fatalf("messages = %d", n)
	}
	if n := st.notificationsOf(t, "b", EventMessageSent); n != 1 {
		t.Fatalf("a replay must not emit a second event, got %d", n)
	}
	// Keys are scoped per sender.
	other, err := st.Conversations.Send(ctx, c.ID, "b", "yo", "key-1")
	if err != nil || other.Replayed {
		t.Fatalf("other sender with same key: %+v %v", other, err)
	}
}

func TestSend_KeyExpiresOnServiceClock(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	c, _ := st.Conversations.GetOrCreate(ctx, "a", "b", nil)
	st.Conversations.IdempotencyTTL = time.Hour

	first, err := st.Conversations.Send(ctx, c.ID, "a", "hi", "key-ttl")
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	st.Clock.Advance(59 * time.Minute)
	if again, err := st.Conversations.Send(ctx, c.ID, "a", "hi", "key-ttl"); err != nil || !again.Replayed {
		t.Fatalf("within ttl should replay: %+v %v", again, err)
	}
	st.Clock.Advance(2 * time.Minute)
	later, err := st.Conversations.Send(ctx, c.ID, "a", "hi", "key-ttl")
	if err != nil || later.Replayed || later.Message.ID == first.Message.ID {
		t.Fatalf("after ttl the key should be free: %+v %v", later, err)
	}
	if n := st.countRows(t, &domain.Message{}, "conversation_id = ?", c.ID); n != 2 {
		t.Fatalf("messages = %d", n)
	}
}

func TestSend_ConcurrentSameKey(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	c, _ := st.Conversations.GetOrCreate(ctx, "a", "b", nil)

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := st.Conversations.Send(ctx, c.ID, "a", "once", "k")
			if err != nil {
				t.Errorf("send: %v", err)
				return
			}
			ids[i] = res.Message.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("replays returned different messages: %v", ids)
		}
	}
	if n := st.countRows(t, &domain.Message{}, "conversation_id = ?", c.ID); n != 1 {
		t.Fatalf("messages = %d", n)
	}
}

// ---------- Hide() / ListFor() / MarkRead() ----------

func TestHide_IsPerViewerAndInboundMessageUnhides(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	c, _ := st.Conversations.GetOrCreate(ctx, "a", "b", nil)
	if _, err := st.Conversations.Send(ctx, c.ID, "a", "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	notesBefore := st.countRows(t, &domain.Notification{}, "recipient_id = ?", "b")

	if err := st.Conversations.Hide(ctx, c.ID, "a"); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if err := st.Conversations.Hide(ctx, c.ID, "a"); err != nil {
		t.Fatalf("hide is idempotent: %v", err)
	}

	_, totalA, _ := st.Conversations.ListFor(ctx, "a", 1, 10)
	rowsB, totalB, _ := st.Conversations.ListFor(ctx, "b", 1, 10)
	if totalA != 0 || totalB != 1 || rowsB[0].Unread != 1 {
		t.Fatalf("a=%d b=%d rowsB=%+v", totalA, totalB, rowsB)
	}
	if n := st.countRows(t, &domain.Notification{}, "recipient_id = ?", "b"); n != notesBefore {
		t.Fatalf("hiding must not touch the other party's notifications")
	}

	// b replies: a sees the thread again.
	if _, err := st.Conversations.Send(ctx, c.ID, "b", "back", ""); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if _, totalA, _ = st.Conversations.ListFor(ctx, "a", 1, 10); totalA != 1 {
		t.Fatalf("inbound message should unhide for a")
	}

	if err := st.Conversations.Hide(ctx, c.ID, "z"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
	if err := st.Conversations.Hide(ctx, "missing", "a"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("unknown id: want ErrNotParticipant, got %v", err)
	}
}

func TestMarkRead_OnlyReceiverMessages(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	c, _ := st.Conversations.GetOrCreate(ctx, "a", "b", nil)
	for _, body := range []string{"one", "two"} {
		if _, err := st.Conversations.Send(ctx, c.ID, "a", body, ""); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if _, err := st.Conversations.Send(ctx, c.ID, "b", "reply", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	n, err := st.Conversations.MarkRead(ctx, c.ID, "b")
	if err != nil || n != 2 {
		t.Fatalf("mark read: n=%d err=%v", n, err)
	}
	if n, _ = st.Conversations.MarkRead(ctx, c.ID, "b"); n != 0 {
		t.Fatalf("second mark read should be a no-op, got %d", n)
	}
	if st.Pub.Count("a", realtime.TypeMessageRead) != 1 {
		t.Fatalf("sender should get one read receipt")
	}
	if _, err := st.Conversations.MarkRead(ctx, c.ID, "z"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}

	stats, err := st.Conversations.Stats(ctx, c.ID)
	if err != nil || stats.Count != 3 || stats.Read != 2 || stats.LastMessageAt == nil {
		t.Fatalf("stats: %+v %v", stats, err)
	}
}

// ---------- Get() ----------

func TestConversationGet_ViewAndPrivacy(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	l := st.listing(t, "a", "Lamp")
	c, _ := st.Conversations.GetOrCreate(ctx, "a", "b", &l.ID)
	_, _ = st.Conversations.Send(ctx, c.ID, "a", "first", "")
	_, _ = st.Conversations.Send(ctx, c.ID, "b", "second", "")

	v, err := st.Conversations.Get(ctx, c.ID, "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(v.Messages) != 2 || v.Messages[0].Body != "first" || v.Listing == nil || v.Listing.ID != l.ID {
		t.Fatalf("unexpected view: %+v", v)
	}
	if strings.Join(v.Participants, ",") != "a,b" {
		t.Fatalf("participants = %v", v.Participants)
	}
	if _, err := st.Conversations.Get(ctx, c.ID, "z"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("non-participant: want ErrConversationNotFound, got %v", err)
	}
	if _, err := st.Conversations.Get(ctx, "missing", "a"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("unknown: want ErrConversationNotFound, got %v", err)
	}
}

func TestPreviewAndPairKey(t *testing.T) {
	if preview("short\nline") != "short line" {
		t.Fatalf("preview should fold lines")
	}
	long := strings.Repeat("é", previewRunes+5)
	if p := preview(long); len([]rune(p)) != previewRunes+1 {
		t.Fatalf("preview length = %d", len([]rune(p)))
	}
	a, b, key := PairKey("zed", "amy", strp("l1"))
	if a != "amy" || b != "zed" || key != "amy|zed|l1" {
		t.Fatalf("PairKey = %s %s %s", a, b, key)
	}
}
