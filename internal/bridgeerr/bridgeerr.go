// Package bridgeerr defines the error-kind taxonomy shared by every component
// of the bridge, so that HTTP/WS adapters can map a failure to the right
// protocol-level response without caring which component produced it.
package bridgeerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure the way §7 of the spec requires.
type Kind int

const (
	// KindUnknown is the zero value; never returned deliberately.
	KindUnknown Kind = iota
	// KindNotConnected means the backend session is not up.
	KindNotConnected
	// KindTimeout means a call deadline was exceeded.
	KindTimeout
	// KindBadRequest means the caller supplied invalid input.
	KindBadRequest
	// KindConflict means the operation is refused by an invariant (e.g. deleting Default).
	KindConflict
	// KindTransport means a socket/HTTP transport error occurred.
	KindTransport
	// KindProtocol means frame/message decoding failed.
	KindProtocol
	// KindNotFound means the referenced hash/category/entry is unknown.
	KindNotFound
	// KindUnavailable means an optional external dependency (e.g. Apprise) is missing.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "NotConnected"
	case KindTimeout:
		return "Timeout"
	case KindBadRequest:
		return "BadRequest"
	case KindConflict:
		return "Conflict"
	case KindTransport:
		return "Transport"
	case KindProtocol:
		return "Protocol"
	case KindNotFound:
		return "NotFound"
	case KindUnavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// Error is a classified, wrapped error. Op names the operation that failed
// (e.g. "clientmgr.Call", "qbittorrent.Add") so logs can be grepped by site.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err (which may be nil) with a Kind and an operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindTransport for
// unclassified errors since most unclassified failures in this codebase
// originate at a network boundary.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if err == nil {
		return KindUnknown
	}
	return KindTransport
}
