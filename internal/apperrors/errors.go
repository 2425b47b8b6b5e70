// Package apperrors defines the node's error taxonomy and the
// propagation rules the rest of the node relies on.
package apperrors

import "fmt"

// Kind enumerates the node's error taxonomy.
type Kind string

const (
	InvalidItem          Kind = "invalid_item"
	InvalidKey           Kind = "invalid_key"
	RateLimited          Kind = "rate_limited"
	OfferExpired         Kind = "offer_expired"
	OfferNotFound        Kind = "offer_not_found"
	PaymentFailed        Kind = "payment_failed"
	PreimageMismatch     Kind = "preimage_mismatch"
	PeerUnreachable      Kind = "peer_unreachable"
	PeerProtocolViolation Kind = "peer_protocol_violation"
	LightningUnavailable Kind = "lightning_unavailable"
	StoreIntegrity       Kind = "store_integrity"
	Timeout              Kind = "timeout"
	Cancelled            Kind = "cancelled"
)

// Error is the node's structured error type: a taxonomy Kind, a message,
// and the wrapped cause (if any).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is treats two *Error values as equal if their Kind matches, so callers
// can do errors.Is(err, apperrors.New(apperrors.OfferNotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// OfKind reports whether err is an *Error of the given kind.
func OfKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// Idempotent reports whether a StoreIntegrity violation on this
// operation is expected and should be swallowed rather than surfaced:
// saving a received offer and recording a settlement are idempotent by
// construction (a unique constraint double-insert is a successful
// no-op, not a failure).
func Idempotent(err error) bool {
	return OfKind(err, StoreIntegrity)
}
