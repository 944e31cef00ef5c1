// Package apperr defines the error taxonomy shared by the gateway components
// and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for callers and for the HTTP layer.
type Kind string

const (
	KindConfigUnavailable        Kind = "config_unavailable"
	KindMalformedToken           Kind = "malformed_token"
	KindUnknownSigningKey        Kind = "unknown_signing_key"
	KindInvalidToken             Kind = "invalid_token"
	KindUnauthenticated          Kind = "unauthenticated"
	KindUnverifiedToken          Kind = "unverified_token"
	KindInvalidRequest           Kind = "invalid_request"
	KindProviderTransientFailure Kind = "provider_transient_failure"
	KindProviderFailure          Kind = "provider_failure"
	KindMalformedEvent           Kind = "malformed_event"
	KindCustomerNotProvisioned   Kind = "customer_not_provisioned"
	KindInvalidSignature         Kind = "invalid_signature"
	KindInternal                 Kind = "internal"
)

// Error is a classified failure. Detail carries diagnostic text (for example a
// provider's raw response) that is safe to return to the caller.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Code    string
	Status  int // upstream status, when the failure came from a provider
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail creates an error of the given kind carrying diagnostic detail.
func WithDetail(kind Kind, message, detail string) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps an error onto the HTTP status returned to clients.
func Status(err error) int {
	switch KindOf(err) {
	case KindMalformedToken, KindUnknownSigningKey, KindInvalidToken, KindUnauthenticated, KindUnverifiedToken:
		return http.StatusUnauthorized
	case KindInvalidRequest, KindMalformedEvent, KindInvalidSignature, KindProviderTransientFailure:
		return http.StatusBadRequest
	case KindCustomerNotProvisioned:
		return http.StatusConflict
	case KindProviderFailure:
		return http.StatusBadGateway
	case KindConfigUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// From returns the first classified error in the chain, or wraps err as
// KindInternal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "internal error", Cause: err}
}

// Body is the JSON error envelope returned to HTTP clients.
func (e *Error) Body() map[string]any {
	body := map[string]any{"error": string(e.Kind), "message": e.Message}
	if e.Detail != "" {
		body["detail"] = e.Detail
	}
	if e.Code != "" {
		body["code"] = e.Code
	}
	if e.Status != 0 {
		body["provider_status"] = e.Status
	}
	return body
}
