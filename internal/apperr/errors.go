package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the HTTP boundary. Business rules raise
// a typed *Error at the point of detection; the handler layer maps the
// kind onto a status code and the uniform response envelope.
type Kind int

const (
	// KindUnexpected covers anything uncaught; clients see a generic message.
	KindUnexpected Kind = iota
	// KindAuthentication covers missing/invalid/expired credentials,
	// wrong OTP codes, and unknown principals.
	KindAuthentication
	// KindAuthorization covers authenticated principals that lack the
	// required role or are inactive.
	KindAuthorization
	// KindValidation covers malformed input.
	KindValidation
	// KindNotFound covers absent referenced resources.
	KindNotFound
	// KindRateLimited covers throttled requests.
	KindRateLimited
)

type Error struct {
	Kind    Kind
	Message string // client-visible
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a typed error with a client-visible message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an underlying cause that is logged but never shown to
// the client.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithField annotates a validation error with field-level detail.
func (e *Error) WithField(field, detail string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string, 1)
	}
	e.Fields[field] = detail
	return e
}

// Unauthenticated builds an authentication failure.
func Unauthenticated(message string) *Error { return New(KindAuthentication, message) }

// Forbidden builds an authorization failure.
func Forbidden(message string) *Error { return New(KindAuthorization, message) }

// Invalid builds a validation failure.
func Invalid(message string) *Error { return New(KindValidation, message) }

// NotFound builds a missing-resource failure.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// RateLimited builds a throttling failure.
func RateLimited(message string) *Error { return New(KindRateLimited, message) }

// Internal wraps a lower-level failure as unexpected. The cause never
// reaches the client.
func Internal(cause error) *Error {
	return Wrap(cause, KindUnexpected, "something went wrong, please try again later")
}

// KindOf extracts the kind from any error chain, defaulting to
// KindUnexpected for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// MessageOf extracts the client-visible message, substituting a generic
// one for untyped errors so internals never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "something went wrong, please try again later"
}

// FieldsOf extracts field-level detail when present.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// StatusCode maps an error kind onto its HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
