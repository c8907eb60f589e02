package realtime

import (
	"context"
	"errors"
	"sync"
)

// DefaultQueueSize bounds each subscription when no size is configured.
const DefaultQueueSize = 256

// ErrClosed is returned by Next after the subscription was closed.
var ErrClosed = errors.New("subscription closed")

// Hub is an in-process registry of per-user subscriptions. It is safe for
// concurrent use.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]map[*Subscription]struct{}
	queueSize int
}

// NewHub returns a Hub whose subscriptions buffer up to queueSize envelopes.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[string]map[*Subscription]struct{}),
		queueSize: queueSize,
	}
}

// Subscribe registers a new session for userID.
func (h *Hub) Subscribe(userID string) *Subscription {
	s := &Subscription{
		UserID: userID,
		buf:    make([]Envelope, h.queueSize),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	set := h.subs[userID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	subscriptionsGauge.Inc()
	return s
}

// Unsubscribe removes s and wakes any pending Next. It is idempotent and is
// the only side effect of a client disconnect.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	set, ok := h.subs[s.UserID]
	if ok {
		if _, present := set[s]; present {
			delete(set, s)
			subscriptionsGauge.Dec()
		}
		if len(set) == 0 {
			delete(h.subs, s.UserID)
		}
	}
	h.mu.Unlock()
	s.close()
}

// Publish enqueues env on every subscription of userID. It never blocks
// and never fails; a user with no sessions is a no-op.
func (h *Hub) Publish(_ context.Context, userID string, env Envelope) error {
	h.mu.RLock()
	set := h.subs[userID]
	targets := make([]*Subscription, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if s.push(env) {
			droppedTotal.Inc()
		}
		publishedTotal.WithLabelValues(env.Type).Inc()
	}
	return nil
}

// Subscribers returns how many sessions userID currently has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Subscription is one session's bounded, drop-oldest FIFO.
type Subscription struct {
	UserID string

	mu      sync.Mutex
	buf     []Envelope // ring buffer
	head    int
	n       int
	closed  bool
	dropped uint64

	notify chan struct{} // cap 1, signals "queue non-empty"
	done   chan struct{}
}

// push appends env, evicting the oldest entry when full. It reports
// whether an eviction happened.
func (s *Subscription) push(env Envelope) (evicted bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	size := len(s.buf)
	if s.n == size {
		s.buf[s.head] = Envelope{}
		s.head = (s.head + 1) % size
		s.n--
		s.dropped++
		evicted = true
	}
	s.buf[(s.head+s.n)%size] = env
	s.n++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return evicted
}

// pop removes the oldest envelope, if any.
func (s *Subscription) pop() (Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return Envelope{}, false
	}
	env := s.buf[s.head]
	s.buf[s.head] = Envelope{}
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return env, true
}

// Next blocks until an envelope is available, the subscription is closed
// (ErrClosed), or ctx is done (ctx.Err()).
func (s *Subscription) Next(ctx context.Context) (Envelope, error) {
	for {
		if env, ok := s.pop(); ok {
			return env, nil
		}
		select {
		case <-s.notify:
		case <-s.done:
			return Envelope{}, ErrClosed
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// Len returns the number of queued envelopes.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Dropped returns how many envelopes were evicted from this queue.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
