// Package apperr defines the error kinds shared by the portal's services
// and their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"
)

// Error kinds. Match with errors.Is.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrAuthentication = errors.New("not authenticated")
	ErrAuthorization  = errors.New("not authorized")
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrRateLimited    = errors.New("too many attempts")
	ErrIntegration    = errors.New("integration failed")
)

// Error carries a kind, a user-facing message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// New creates an error of the given kind with a user-facing message.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind that wraps cause.
func Wrap(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Validation is shorthand for New(ErrValidation, message).
func Validation(message string) *Error { return New(ErrValidation, message) }

// NotFound is shorthand for New(ErrNotFound, message).
func NotFound(message string) *Error { return New(ErrNotFound, message) }

// Conflict is shorthand for New(ErrConflict, message).
func Conflict(message string) *Error { return New(ErrConflict, message) }

// Integration wraps a failure of an outbound collaborator (email, SMS, lookup).
func Integration(message string, cause error) *Error {
	return Wrap(ErrIntegration, message, cause)
}

// HTTPStatus maps an error onto the status code a JSON boundary answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrIntegration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text that may be shown to a user. Errors that are not
// an *Error (or carry no message) collapse to a generic text for their kind,
// so internal causes never leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch HTTPStatus(err) {
	case http.StatusBadRequest:
		return "Invalid request."
	case http.StatusUnauthorized:
		return "Unauthorized."
	case http.StatusForbidden:
		return "Forbidden."
	case http.StatusNotFound:
		return "Not found."
	case http.StatusConflict:
		return "Already exists."
	case http.StatusTooManyRequests:
		return "Too many attempts. Try again later."
	case http.StatusBadGateway:
		return "Upstream service failed."
	default:
		return "Internal server error."
	}
}
