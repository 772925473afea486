// Package apperr classifies failures so transports can map them to status codes
// and every failure carries a human-readable reason.
package apperr

import "errors"

// Kind is the class of a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindBadRequest
	KindForbidden
	KindNotFound
	KindConflict
	KindTransactionConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransactionConflict:
		return "transaction_conflict"
	}
	return "internal"
}

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap classifies err with a reason.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func Unauthorized(reason string) *Error { return New(KindUnauthorized, reason) }
func BadRequest(reason string) *Error   { return New(KindBadRequest, reason) }
func Forbidden(reason string) *Error    { return New(KindForbidden, reason) }
func NotFound(reason string) *Error     { return New(KindNotFound, reason) }
func Conflict(reason string) *Error     { return New(KindConflict, reason) }

// KindOf returns the kind of err; unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason of a classified error, or fallback.
func ReasonOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return fallback
}
