// Package gwerr defines the gateway error taxonomy shared by every
// service and mapped once at each transport boundary.
package gwerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of the transport that reports it.
type Kind int

const (
	// Internal is any unclassified failure.
	Internal Kind = iota
	// InvalidArgument is a malformed DTO, unknown symbol format or missing field.
	InvalidArgument
	// Unauthenticated means the API key is missing or not in the allow-list.
	Unauthenticated
	// SessionNotFound means the session identifier is not registered.
	SessionNotFound
	// ModeRefused means a mutating op was attempted in a non-LIVE_RW mode,
	// or a disabled feature (whole-market subscribe) was requested.
	ModeRefused
	// UpstreamUnavailable means the vendor connect/subscribe returned non-zero.
	UpstreamUnavailable
	// VendorError wraps a non-zero vendor result code from any other call.
	VendorError
	// Timeout means the per-operation deadline expired.
	Timeout
	// SubscriptionNotFound means the subscription identifier is not registered.
	SubscriptionNotFound
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid-argument"
	case Unauthenticated:
		return "unauthenticated"
	case SessionNotFound:
		return "session-not-found"
	case ModeRefused:
		return "mode-refused"
	case UpstreamUnavailable:
		return "upstream-unavailable"
	case VendorError:
		return "vendor-error"
	case Timeout:
		return "timeout"
	case SubscriptionNotFound:
		return "subscription-not-found"
	default:
		return "internal"
	}
}

// Error is the kinded error returned by all gateway services.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "trading.submit_order".
	Op string
	// Code carries the vendor result code verbatim for VendorError
	// and UpstreamUnavailable.
	Code int
	// Msg is an optional human-readable detail.
	Msg string
	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Kind == VendorError || e.Kind == UpstreamUnavailable {
		s = fmt.Sprintf("%s (code %d)", s, e.Code)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can match with errors.Is(err, gwerr.E(kind)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds a sentinel for errors.Is comparisons.
func E(k Kind) error { return &Error{Kind: k} }

// New returns a kinded error with a message.
func New(k Kind, op, msg string) error {
	return &Error{Kind: k, Op: op, Msg: msg}
}

// Newf returns a kinded error with a formatted message.
func Newf(k Kind, op, format string, args ...any) error {
	return &Error{Kind: k, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and op to an underlying cause. A cause that is
// already kinded keeps its kind and vendor code.
func Wrap(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return &Error{Kind: ge.Kind, Op: op, Code: ge.Code, Msg: ge.Msg, Err: ge.Err}
	}
	return &Error{Kind: k, Op: op, Err: err}
}

// Vendor returns a VendorError carrying the vendor result code verbatim.
func Vendor(op string, code int) error {
	return &Error{Kind: VendorError, Op: op, Code: code}
}

// Upstream returns an UpstreamUnavailable error carrying the vendor code.
func Upstream(op string, code int) error {
	return &Error{Kind: UpstreamUnavailable, Op: op, Code: code}
}

// KindOf extracts the kind of err, defaulting to Internal.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return Internal
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool { return err != nil && KindOf(err) == k }
