// Package errors defines the engine's error taxonomy and maps it to HTTP.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/campusmatch/engine/internal/utils/pagination"
)

type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindUnauthorized  Kind = "UNAUTHORIZED"
	KindForbidden     Kind = "FORBIDDEN"
	KindNotFound      Kind = "NOT_FOUND"
	KindQuotaExceeded Kind = "QUOTA_EXCEEDED"
	KindTimeout       Kind = "TIMEOUT"
	KindInternal      Kind = "INTERNAL_ERROR"
)

// Error is a classified failure safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Kind so callers can test errors.Is(err, errors.ErrForbidden).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrQuotaExceeded = &Error{Kind: KindQuotaExceeded}
	ErrUnauthorized  = &Error{Kind: KindUnauthorized}
	ErrInternal      = &Error{Kind: KindInternal}
)

// InvalidArgument creates a validation error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Forbidden creates an authorization error (blocked pair, non-attendee, non-match).
func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}


// QuotaExceeded carries the remaining count so clients can render the cap.
func QuotaExceeded(limit int) error {
	return &Error{
		Kind:    KindQuotaExceeded,
		Message: "daily swipe limit reached",
		Details: map[string]any{"remainingSwipes": 0, "freeDailyLimit": limit},
	}
}

// Internal wraps an unexpected failure; the cause is kept for logs only.
func Internal(err error) error {
	return &Error{Kind: KindInternal, Message: "internal server error", cause: err}
}

// Map converts repo/infra errors into classified errors.
// Already classified errors pass through untouched.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Message: "record not found", cause: err}

	case errors.Is(err, pagination.ErrInvalidToken):
		return &Error{Kind: KindValidation, Message: err.Error(), cause: err}

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindTimeout, Message: "request timed out", cause: err}

	default:
		return Internal(err)
	}
}

// HTTPStatus returns the status code for a classified error.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(Map(err), &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
