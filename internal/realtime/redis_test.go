package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisRelay_DispatchRoutesByChannel(t *testing.T) {
	h := NewHub(4)
	s := h.Subscribe("u1")
	defer h.Unsubscribe(s)
	r := NewRedisRelay(nil, h)

	b, _ := json.Marshal(env("n1"))
	r.dispatch(context.Background(), "user_events:u1", string(b))
	r.dispatch(context.Background(), "user_events:u2", string(b))
	r.dispatch(context.Background(), "other:u1", string(b))
	r.dispatch(context.Background(), "user_events:u1", "{not json")

	if s.Len() != 1 {
		t.Fatalf("expected exactly one routed envelope, got %d", s.Len())
	}
	got, _ := s.Next(context.Background())
	if got.ID != "n1" || got.Type != TypeNotification {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestRedisRelay_PublishFallsBackToLocalHub(t *testing.T) {
	h := NewHub(4)
	s := h.Subscribe("u1")
	defer h.Unsubscribe(s)

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	r := NewRedisRelay(client, h)

	if err := r.Publish(context.Background(), "u1", env("n1")); err != nil {
		t.Fatalf("fallback publish should succeed: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected local delivery, got %d", s.Len())
	}
}

func TestNewRedisClient(t *testing.T) {
	c, err := NewRedisClient("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer c.Close()
	if c.Options().DB != 2 {
		t.Fatalf("DB = %d", c.Options().DB)
	}
	if _, err := NewRedisClient("::bad"); err == nil {
		t.Fatalf("expected parse error")
	}
	if NewRedisRelay(c, NewHub(1)).Channel("u9") != "user_events:u9" {
		t.Fatalf("unexpected channel name")
	}
}
