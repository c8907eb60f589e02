// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via `fail()` and `failErr()` in this package). These codes give
// clients a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes keep each exchange state conflict distinguishable,
//     so a client can tell "already resolved" from "duplicate proposal"
//     without parsing messages.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "duplicate_pending",
//	  "message": "a pending agreement already exists for this listing and counterparty"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeUnavailable  = "service_unavailable"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeListingNotActive  = "listing_not_active"
	ErrCodeDuplicatePending  = "duplicate_pending"
	ErrCodeAlreadyResolved   = "already_resolved"
	ErrCodeSelfDealing       = "self_dealing"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)
