// Package upstream provides the shared plumbing for the two external HTTP
// services (Ordinals and Address/Tx): error classification, a retry
// combinator with growing per-attempt timeouts, and endpoint probing with
// external fallback.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrKind classifies an upstream failure. Every call either returns a decoded
// payload or an *Error carrying one of these kinds.
type ErrKind int

const (
	KindTransient ErrKind = iota // timeouts, 5xx, DNS, connection resets
	KindNotFound                 // 404 — a negative result, not an error
	KindMalformed                // undecodable payload, unexpected shape
	KindUnauthorized             // 401/403/406
)

func (k ErrKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not-found"
	case KindMalformed:
		return "malformed"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is a classified upstream failure.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name.
func NewError(kind ErrKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the classification of err. Unclassified errors (including
// context cancellation and raw network failures) count as transient so the
// retry loop gets a chance at them.
func KindOf(err error) ErrKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindTransient
}

// IsNotFound reports whether err is a classified 404.
func IsNotFound(err error) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Kind == KindNotFound
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(status int) ErrKind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusNotAcceptable:
		return KindUnauthorized
	case status >= 500, status == http.StatusTooManyRequests:
		return KindTransient
	default:
		return KindMalformed
	}
}

// classifyNetErr maps a transport-level error. DNS and timeout failures are
// transient; everything else at this layer is too, since the payload was
// never seen.
func classifyNetErr(err error) ErrKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindTransient
}
