// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including structured error envelopes, consistent JSON serialization, and
// helpers for common HTTP patterns. The goal is to guarantee uniform responses
// for both success and failure cases, making the API predictable and
// machine-friendly.
//
// Conventions:
//   - All error responses must return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `failErr()` translates service errors by kind, so handlers never pick
//     a status for a domain error themselves.
//   - `ok()` and `noContent()` simplify writing success responses in a consistent
//     shape across handlers.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "resource not found"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "id": "abc123", "title": "Oak desk", "status": "active" }
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-swap-backend/internal/http/middleware"
	"github.com/tbourn/go-swap-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: Optional correlation ID, echoed from X-Request-ID header, used
//     to correlate server logs with client-side errors.
//   - Code: A stable, machine-readable string (see errors.go constants).
//   - Message: A human-readable error description, safe for display to users.
//
// This struct is used in OpenAPI documentation via Swagger annotations.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// It constructs an ErrorResponse, writes it as JSON with the given HTTP status,
// and calls gin.Context.AbortWithStatusJSON to stop further processing.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	middleware.CountError(code)

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// conflictCodes gives each state conflict its own code. Conflicts caused by
// the request itself rather than by concurrent state are reported as 400.
var conflictCodes = map[error]struct {
	status int
	code   string
}{
	services.ErrListingNotActive:  {http.StatusBadRequest, ErrCodeListingNotActive},
	services.ErrSelfDealing:       {http.StatusBadRequest, ErrCodeSelfDealing},
	services.ErrInvalidTransition: {http.StatusBadRequest, ErrCodeInvalidTransition},
	services.ErrDuplicatePending:  {http.StatusConflict, ErrCodeDuplicatePending},
	services.ErrAlreadyResolved:   {http.StatusConflict, ErrCodeAlreadyResolved},
}

// failErr maps a service error to the error envelope.
//
//	validation    -> 400 bad_request
//	authorization -> 403 forbidden
//	not found     -> 404 not_found
//	conflict      -> 409 conflict, or the specific code above
//	transient     -> 503 service_unavailable with Retry-After
//	internal      -> 500 internal_error (message not echoed)
func failErr(c *gin.Context, err error) {
	switch services.KindOf(err) {
	case services.KindValidation:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case services.KindAuthorization:
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case services.KindNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case services.KindConflict:
		for target, m := range conflictCodes {
			if errors.Is(err, target) {
				fail(c, m.status, m.code, target.Error())
				return
			}
		}
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case services.KindTransient:
		c.Header("Retry-After", "1")
		middleware.LoggerFrom(c).Warn().Err(err).Msg("transient failure")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "temporarily unavailable, retry")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// ok writes a success JSON response.
//
// It serializes `body` as JSON with the given HTTP status code.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
//
// Used when the operation succeeds but there is no response body.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
