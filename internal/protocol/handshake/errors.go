package handshake

import (
	"errors"
	"fmt"
)

// ErrRejected wraps every protocol violation the machine detects. A
// rejected connection must be closed without a reply.
var ErrRejected = errors.New("handshake: rejected")

// Error names the phase and the check that failed.
type Error struct {
	Phase  Phase
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("handshake: %s: %s", e.Phase, e.Reason)
}

func (e *Error) Unwrap() error { return ErrRejected }

func reject(p Phase, format string, args ...any) *Error {
	return &Error{Phase: p, Reason: fmt.Sprintf(format, args...)}
}
