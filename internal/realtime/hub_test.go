package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func env(id string) Envelope { return Envelope{Type: TypeNotification, ID: id} }

func TestHub_PublishDeliversInOrder(t *testing.T) {
	h := NewHub(8)
	s := h.Subscribe("u1")
	defer h.Unsubscribe(s)

	for _, id := range []string{"a", "b", "c"} {
		if err := h.Publish(context.Background(), "u1", env(id)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got.ID != want {
			t.Fatalf("got %q want %q", got.ID, want)
		}
	}
}

func TestHub_DropsOldestOnOverflow(t *testing.T) {
	h := NewHub(2)
	s := h.Subscribe("u1")
	defer h.Unsubscribe(s)

	for _, id := range []string{"1", "2", "3", "4"} {
		_ = h.Publish(context.Background(), "u1", env(id))
	}
	if s.Len() != 2 || s.Dropped() != 2 {
		t.Fatalf("len=%d dropped=%d; want 2/2", s.Len(), s.Dropped())
	}
	first, _ := s.Next(context.Background())
	second, _ := s.Next(context.Background())
	if first.ID != "3" || second.ID != "4" {
		t.Fatalf("expected newest two kept, got %q %q", first.ID, second.ID)
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe("u1") // never drained
	defer h.Unsubscribe(s)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			_ = h.Publish(context.Background(), "u1", env("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher blocked on a full subscriber")
	}
}

func TestHub_UnsubscribeClosesNextAndIsIdempotent(t *testing.T) {
	h := NewHub(4)
	s := h.Subscribe("u1")

	errc := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	h.Unsubscribe(s)
	h.Unsubscribe(s)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("want ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Next did not return after Unsubscribe")
	}
	if h.Subscribers("u1") != 0 {
		t.Fatalf("subscription should be gone")
	}
	// Publishing to a closed session is a no-op.
	_ = h.Publish(context.Background(), "u1", env("late"))
	if s.Len() != 0 {
		t.Fatalf("closed subscription must not buffer")
	}
}

func TestSubscription_NextHonoursContext(t *testing.T) {
	h := NewHub(4)
	s := h.Subscribe("u1")
	defer h.Unsubscribe(s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestHub_FanOutToEverySession(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("u1")
	b := h.Subscribe("u1")
	other := h.Subscribe("u2")
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)
	defer h.Unsubscribe(other)

	_ = h.Publish(context.Background(), "u1", env("m"))
	if a.Len() != 1 || b.Len() != 1 || other.Len() != 0 {
		t.Fatalf("a=%d b=%d other=%d", a.Len(), b.Len(), other.Len())
	}
	if h.Subscribers("u1") != 2 {
		t.Fatalf("Subscribers = %d", h.Subscribers("u1"))
	}
}

func TestHub_ConcurrentPublishAndSubscribe(t *testing.T) {
	h := NewHub(16)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := h.Subscribe("u1")
			h.Unsubscribe(s)
		}()
		go func() {
			defer wg.Done()
			_ = h.Publish(context.Background(), "u1", env("x"))
		}()
	}
	wg.Wait()
	if h.Subscribers("u1") != 0 {
		t.Fatalf("leaked subscriptions: %d", h.Subscribers("u1"))
	}
}

func TestNewEnvelope(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	e, err := NewEnvelope(TypeMessage, "m1", at, map[string]string{"body": "hi"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if e.Type != TypeMessage || e.ID != "m1" || !e.At.Equal(at) || string(e.Data) != `{"body":"hi"}` {
		t.Fatalf("unexpected envelope: %+v", e)
	}
	if _, err := NewEnvelope(TypeMessage, "m1", at, make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}
