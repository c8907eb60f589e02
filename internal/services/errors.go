// Package services defines the business logic for listings, agreements, the
// transaction ledger, conversations and notifications. This file centralizes
// the service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// Errors are grouped by kind. Translation into HTTP status codes happens in
// the handler layer through KindOf; services never return transport codes.
package services

import (
	"context"
	"errors"

	"github.com/tbourn/go-swap-backend/internal/repo"
)

// Validation errors.
var (
	// ErrInvalidID is returned when a required identifier is blank.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidTitle is returned when a listing title is empty after
	// normalization.
	ErrInvalidTitle = errors.New("title is required")

	// ErrTitleTooLong is returned when a listing title exceeds the rune limit.
	ErrTitleTooLong = errors.New("title too long")

	// ErrDescriptionTooLong is returned when a listing description exceeds
	// the rune limit.
	ErrDescriptionTooLong = errors.New("description too long")

	// ErrInvalidIntent is returned for an unknown listing intent.
	ErrInvalidIntent = errors.New("invalid intent")

	// ErrInvalidStatus is returned for an unknown listing or agreement status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidOutcome is returned when resolve is asked for anything other
	// than accept, decline or withdraw.
	ErrInvalidOutcome = errors.New("outcome must be accept, decline or withdraw")

	// ErrInvalidRole is returned for an unknown listing role filter.
	ErrInvalidRole = errors.New("invalid role")

	// ErrEmptyBody is returned when a message body is blank after sanitizing.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrBodyTooLong is returned when a message body exceeds the rune limit.
	ErrBodyTooLong = errors.New("message body too long")

	// ErrSelfConversation is returned when both participants are the same user.
	ErrSelfConversation = errors.New("cannot open a conversation with yourself")
)

// Authorization errors.
var (
	// ErrNotOwner is returned when a non-owner acts on a listing.
	ErrNotOwner = errors.New("only the listing owner can do this")

	// ErrNotParty is returned when a user resolves an agreement in a role
	// they do not hold.
	ErrNotParty = errors.New("not permitted for this agreement")

	// ErrNotParticipant is returned when a user acts on a conversation they
	// do not belong to.
	ErrNotParticipant = errors.New("not a participant of this conversation")

	// ErrNotRecipient is returned when a user marks someone else's
	// notification read.
	ErrNotRecipient = errors.New("not the recipient of this notification")
)

// Not-found errors.
var (
	// ErrListingNotFound indicates that the listing does not exist.
	ErrListingNotFound = errors.New("listing not found")

	// ErrAgreementNotFound indicates that the agreement does not exist or is
	// not visible to the viewer.
	ErrAgreementNotFound = errors.New("agreement not found")

	// ErrConversationNotFound indicates that the conversation does not exist
	// or the viewer is not a participant.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrNotificationNotFound indicates that the notification does not exist.
	ErrNotificationNotFound = errors.New("notification not found")
)

// State-conflict errors. Messages are returned verbatim to clients.
var (
	// ErrSelfDealing is returned when the proposer names themselves as the
	// counterparty.
	ErrSelfDealing = errors.New("cannot make an agreement with yourself")

	// ErrListingNotActive is returned when a listing is not in a status that
	// accepts the operation.
	ErrListingNotActive = errors.New("listing is not active")

	// ErrDuplicatePending is returned when a pending agreement already exists
	// for the listing and counterparty.
	ErrDuplicatePending = errors.New("a pending agreement already exists for this listing and counterparty")

	// ErrAlreadyResolved is returned when resolving an agreement that is no
	// longer pending.
	ErrAlreadyResolved = errors.New("agreement already resolved")

	// ErrInvalidTransition is returned for a listing status change outside
	// the state machine, or one that lost a race.
	ErrInvalidTransition = errors.New("invalid listing status transition")
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

var kinds = map[error]Kind{
	ErrInvalidID:          KindValidation,
	ErrInvalidTitle:       KindValidation,
	ErrTitleTooLong:       KindValidation,
	ErrDescriptionTooLong: KindValidation,
	ErrInvalidIntent:      KindValidation,
	ErrInvalidStatus:      KindValidation,
	ErrInvalidOutcome:     KindValidation,
	ErrInvalidRole:        KindValidation,
	ErrEmptyBody:          KindValidation,
	ErrBodyTooLong:        KindValidation,
	ErrSelfConversation:   KindValidation,

	ErrNotOwner:       KindAuthorization,
	ErrNotParty:       KindAuthorization,
	ErrNotParticipant: KindAuthorization,
	ErrNotRecipient:   KindAuthorization,

	ErrListingNotFound:      KindNotFound,
	ErrAgreementNotFound:    KindNotFound,
	ErrConversationNotFound: KindNotFound,
	ErrNotificationNotFound: KindNotFound,

	ErrSelfDealing:       KindConflict,
	ErrListingNotActive:  KindConflict,
	ErrDuplicatePending:  KindConflict,
	ErrAlreadyResolved:   KindConflict,
	ErrInvalidTransition: KindConflict,
}

// KindOf returns the kind of err. Deadline expiry and database lock
// contention are transient; anything unrecognized is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for target, k := range kinds {
		if errors.Is(err, target) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || repo.IsBusy(err) {
		return KindTransient
	}
	return KindInternal
}
