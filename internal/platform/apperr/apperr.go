// Package apperr defines the error taxonomy shared by all domain services and
// the mapping from those errors to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindAuthorization    Kind = "authorization"
	KindNotFound         Kind = "not_found"
	KindInvalidState     Kind = "invalid_state"
	KindSlotConflict     Kind = "slot_conflict"
	KindAlreadyResponded Kind = "already_responded"
	KindConflict         Kind = "conflict"
	KindStorage          Kind = "storage"
)

// Sentinels. Domain code wraps these with fmt.Errorf("...: %w", ErrX) so that
// the message stays specific while errors.Is keeps working.
var (
	ErrValidation       = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrAuthorization    = &Error{Kind: KindAuthorization, Message: "not permitted"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState     = &Error{Kind: KindInvalidState, Message: "operation not allowed in current state"}
	ErrSlotConflict     = &Error{Kind: KindSlotConflict, Message: "time slot is already booked"}
	ErrAlreadyResponded = &Error{Kind: KindAlreadyResponded, Message: "alert already responded"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "resource already exists"}
	ErrStorage          = &Error{Kind: KindStorage, Message: "storage failure"}
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Validation returns a formatted validation error.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// NotFound returns "<what> not found".
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// Forbidden returns a formatted authorization error.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrAuthorization)
}

// InvalidState returns a formatted invalid-state error.
func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidState)
}

// Storage wraps a persistence failure. The cause is kept for logging but the
// caller only ever sees the generic message.
func Storage(op string, cause error) error {
	return &storageError{op: op, cause: cause}
}

type storageError struct {
	op    string
	cause error
}

func (e *storageError) Error() string { return e.op + ": " + e.cause.Error() }
func (e *storageError) Unwrap() []error {
	return []error{ErrStorage, e.cause}
}

// KindOf returns the Kind of err, defaulting to KindStorage for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// StatusCode maps a Kind onto an HTTP status.
func StatusCode(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindSlotConflict, KindAlreadyResponded, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope.
type Body struct {
	Error BodyDetail `json:"error"`
}

type BodyDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPErrorHandler renders domain errors and echo.HTTPErrors in a single
// envelope. Storage failures are logged with their cause and reported to the
// client generically.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

// Status is the HTTP status HTTPErrorHandler will answer err with.
func Status(err error) int {
	status, _ := render(err)
	return status
}

func render(err error) (int, Body) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, Body{Error: BodyDetail{Code: codeForStatus(he.Code), Message: msg}}
	}

	kind := KindOf(err)
	status := StatusCode(kind)
	msg := err.Error()
	if kind == KindStorage {
		msg = "internal server error"
	}
	return status, Body{Error: BodyDetail{Code: string(kind), Message: msg}}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(KindValidation)
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return string(KindAuthorization)
	case http.StatusNotFound:
		return string(KindNotFound)
	case http.StatusConflict:
		return string(KindConflict)
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		return "error"
	}
}
