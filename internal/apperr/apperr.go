// Package apperr defines the error taxonomy surfaced at the HTTP boundary.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindTokenExpired
	KindNoContent
	KindUpstream
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindTokenExpired:
		return "token_expired"
	case KindNoContent:
		return "no_content"
	case KindUpstream:
		return "upstream_error"
	case KindExternalService:
		return "external_service_error"
	default:
		return "internal"
	}
}

// Error is a classified failure with a human-readable message. Detail carries
// upstream diagnostics (e.g. "invalid_grant") that must reach the caller as-is.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

// Sentinels usable with errors.Is to test for a kind.
var (
	ErrBadRequest      = &Error{Kind: KindBadRequest}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTokenExpired    = &Error{Kind: KindTokenExpired}
	ErrNoContent       = &Error{Kind: KindNoContent}
	ErrUpstream        = &Error{Kind: KindUpstream}
	ErrExternalService = &Error{Kind: KindExternalService}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels: an *Error with no message equals any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Detail == "" && t.Err == nil && t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func TokenExpired(message string) *Error { return New(KindTokenExpired, message) }
func NoContent(message string) *Error    { return New(KindNoContent, message) }

// Upstream reports an OAuth provider or video platform failure. detail is
// passed through to the response body untouched.
func Upstream(message, detail string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Detail: detail, Err: err}
}

// ExternalService reports an AI service failure.
func ExternalService(message string, err error) *Error {
	return Wrap(KindExternalService, message, err)
}

// KindOf returns the kind of err, KindInternal when err is not classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps err onto the response status used by the API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized, KindTokenExpired:
		return http.StatusUnauthorized
	case KindNotFound, KindNoContent:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing message and diagnostic detail for err.
func Message(err error, fallback string) (message, detail string) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return fallback, err.Error()
	}
	message = appErr.Message
	if message == "" {
		message = fallback
	}
	detail = appErr.Detail
	if detail == "" && appErr.Err != nil {
		detail = appErr.Err.Error()
	}
	return message, detail
}
