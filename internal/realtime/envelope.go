// Package realtime delivers per-user events to connected clients.
//
// Each connected session owns a Subscription with a bounded FIFO queue.
// Publishing never blocks: when a queue is full the oldest envelope is
// dropped, and the client recovers it through backlog replay on reconnect.
// A Hub fans out within one process; RedisRelay fans out across processes.
package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope types.
const (
	TypeMessage      = "message"
	TypeMessageRead  = "message.read"
	TypeNotification = "notification"
)

// Envelope is the wire frame pushed to a client.
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals v into an Envelope.
func NewEnvelope(typ, id string, at time.Time, v any) (Envelope, error) {
	env := Envelope{Type: typ, ID: id, At: at.UTC()}
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = b
	}
	return env, nil
}

// Publisher routes an envelope to every live session of a user.
// Implementations must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, userID string, env Envelope) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, userID string, env Envelope) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, userID string, env Envelope) error {
	return f(ctx, userID, env)
}
