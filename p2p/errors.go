package p2p

import (
	"errors"
	"fmt"
)

// Kind classifies an [*Error].
type Kind string

const (
	// KindRemoteCall is a transport or method-call failure from the
	// control-service layer.
	KindRemoteCall Kind = "remote_call"
	// KindSerialization is a failure converting values crossing the
	// remote boundary.
	KindSerialization Kind = "serialization"
	// KindChannelClosed means the named endpoint (command queue or
	// result slot) is gone.
	KindChannelClosed Kind = "channel_closed"
	// KindInvalidInput is a caller error, such as an empty interface
	// name or peer address.
	KindInvalidInput Kind = "invalid_input"
)

// Error is the typed failure produced anywhere in the stack. Callers can
// use errors.As to extract it:
//
//	var p2pErr *p2p.Error
//	if errors.As(err, &p2pErr) {
//	    if p2pErr.Kind == p2p.KindChannelClosed { ... }
//	}
type Error struct {
	// Kind is the failure classification.
	Kind Kind
	// Endpoint names the channel endpoint for KindChannelClosed
	// ("commands" or "result").
	Endpoint string
	// Message describes the failure when there is no wrapped cause.
	Message string
	// Err is the wrapped underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Endpoint != "":
		return fmt.Sprintf("p2p: %s: %s", e.Kind, e.Endpoint)
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("p2p: %s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("p2p: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("p2p: %s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind checks whether err is a *Error with the given kind.
func IsKind(err error, kind Kind) bool {
	var p2pErr *Error
	if errors.As(err, &p2pErr) {
		return p2pErr.Kind == kind
	}
	return false
}
