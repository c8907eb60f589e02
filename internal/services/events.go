package services

import (
	"context"
	"encoding/json"
	"time"
)

// Event types. Listing transitions use "listing.<status>".
const (
	EventAgreementProposed  = "agreement.proposed"
	EventAgreementAccepted  = "agreement.accepted"
	EventAgreementDeclined  = "agreement.declined"
	EventAgreementWithdrawn = "agreement.withdrawn"
	EventMessageSent        = "message.sent"
	EventListingPrefix      = "listing."
)

// SystemActor is the actor recorded for time-triggered changes.
const SystemActor = "system"

// Event describes a committed state change and who should hear about it.
// Parties are candidate recipients; the actor is always excluded.
type Event struct {
	Type           string
	Actor          string
	Parties        []string
	ListingID      string
	AgreementID    string
	ConversationID string
	MessageID      string
	Link           string
	Payload        map[string]any
	At             time.Time
}

// payloadJSON merges the event references into Payload and encodes it.
func (e Event) payloadJSON() (string, error) {
	p := make(map[string]any, len(e.Payload)+4)
	for k, v := range e.Payload {
		p[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	set("listing_id", e.ListingID)
	set("agreement_id", e.AgreementID)
	set("conversation_id", e.ConversationID)
	set("message_id", e.MessageID)
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// recipients returns Parties without the actor, blanks and duplicates, in
// first-seen order.
func (e Event) recipients() []string {
	seen := make(map[string]struct{}, len(e.Parties))
	out := make([]string, 0, len(e.Parties))
	for _, p := range e.Parties {
		if p == "" || p == e.Actor {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Links clients follow from a notification.
func listingLink(slug string) string { return "/listings/" + slug }
func agreementLink(id string) string { return "/agreements/" + id }
func conversationLink(id string) string { return "/conversations/" + id }

// clock returns now() when set, otherwise wall-clock UTC.
func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

// DefaultOpTimeout bounds propose, resolve and send when no timeout is
// configured.
const DefaultOpTimeout = 10 * time.Second

// detach derives a context that ignores the caller's cancellation but not
// its values, bounded by d. A client hanging up mid-request must not abort
// a half-finished business operation; the deadline still caps it.
func detach(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultOpTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}
