// Package walleterr defines the small set of error kinds every component
// of the wallet engine maps its failures onto, so callers can branch on
// errors.Is/errors.As instead of matching message strings.
package walleterr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, independent of which component
// raised it.
type Kind int

const (
	// KindUnknown is the zero value; Wrap never produces it deliberately.
	KindUnknown Kind = iota
	// KindNotFound means the requested row/coin/asset/peak does not exist.
	KindNotFound
	// KindRejected means a peer or the chain rejected a submitted bundle.
	KindRejected
	// KindTimeout means a peer call exceeded its deadline.
	KindTimeout
	// KindWireError means the connection to a peer failed at the
	// transport/framing level (dropped socket, malformed envelope)
	// rather than because of anything the peer's payload asserted.
	KindWireError
	// KindPeerMisbehaved means a peer sent a malformed or inconsistent
	// response and should be banned.
	KindPeerMisbehaved
	// KindInsufficientFunds means the spend planner could not select
	// enough spendable coins to cover an action list plus fee.
	KindInsufficientFunds
	// KindInvariantViolation means a persisted or derived invariant of
	// this engine's data model was about to be broken.
	KindInvariantViolation
	// KindDatabaseBusy means SQLITE_BUSY was returned after the configured
	// busy-timeout window.
	KindDatabaseBusy
	// KindDatabaseCorrupt means the store detected a corrupt or
	// unreadable database file.
	KindDatabaseCorrupt
	// KindAuthRequired means a caller attempted a signing-dependent
	// operation without first unlocking the wallet.
	KindAuthRequired
	// KindUnknownFingerprint means a requested wallet fingerprint has no
	// matching database file.
	KindUnknownFingerprint
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	case KindWireError:
		return "wire_error"
	case KindPeerMisbehaved:
		return "peer_misbehaved"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindDatabaseBusy:
		return "database_busy"
	case KindDatabaseCorrupt:
		return "database_corrupt"
	case KindAuthRequired:
		return "auth_required"
	case KindUnknownFingerprint:
		return "unknown_fingerprint"
	default:
		return "unknown"
	}
}

// Error is a walleterr-tagged error: a Kind, a component-supplied message,
// and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Op      string // component/operation that raised it, e.g. "peer.FetchCoin"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, walleterr.NotFound) style sentinel comparisons
// work by comparing Kind rather than identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds a walleterr.Error with no wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds a walleterr.Error around an existing error, preserving it
// for errors.Unwrap/errors.As while attaching a Kind and an op label.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Of returns the Kind carried by err, or KindUnknown if err is not (or
// does not wrap) a *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}

// Sentinel values usable with errors.Is(err, walleterr.NotFound) where the
// Kind alone is enough context; components needing Op/Message detail
// should call New/Wrap directly instead.
var (
	NotFound            = &Error{Kind: KindNotFound}
	Rejected            = &Error{Kind: KindRejected}
	Timeout             = &Error{Kind: KindTimeout}
	WireError           = &Error{Kind: KindWireError}
	PeerMisbehaved      = &Error{Kind: KindPeerMisbehaved}
	InsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	InvariantViolation  = &Error{Kind: KindInvariantViolation}
	DatabaseBusy        = &Error{Kind: KindDatabaseBusy}
	DatabaseCorrupt     = &Error{Kind: KindDatabaseCorrupt}
	AuthRequired        = &Error{Kind: KindAuthRequired}
	UnknownFingerprint  = &Error{Kind: KindUnknownFingerprint}
)
