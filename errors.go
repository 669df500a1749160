package qutex

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrDeadlockDetected is returned by [Serialized.Invoke] when, with debug
	// lock tracking enabled, the new step's lock set intersects a lock set
	// still held by one of its ancestor steps (same-sequence re-acquisition).
	ErrDeadlockDetected = errors.New("qutex: deadlock detected")

	// ErrNotOnTargetThread is the cause carried by the panic raised when a
	// lockvoker executes on a worker other than its target.
	ErrNotOnTargetThread = errors.New("qutex: lockvoker executed off its target thread")
)

// ProtocolError is the value carried by fail-fast panics raised when a qutex
// or lock set operation is invoked in an impossible state (empty queue,
// unowned release, head-of-queue backoff with a single-lock set, reuse of a
// released lock set). It always indicates a bug in the core or in a user of
// the core, never a recoverable condition: the core holds no state that
// unwinding would corrupt, because every spin lock is released on the way
// out, but the process should terminate.
type ProtocolError struct {
	// Op is the operation that observed the broken invariant.
	Op string
	// Qutex is the name of the involved qutex, if any.
	Qutex string
	// Message describes the failing invariant.
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Qutex != "" {
		return fmt.Sprintf("qutex: %s: %s: %s", e.Op, e.Qutex, e.Message)
	}
	return fmt.Sprintf("qutex: %s: %s", e.Op, e.Message)
}

// Is implements matching such that all protocol errors compare equal by
// type, regardless of operation, for use with [errors.Is].
func (e *ProtocolError) Is(target error) bool {
	var pe *ProtocolError
	return errors.As(target, &pe)
}

// protocolViolation panics with a *ProtocolError. Callers must have released
// any spin locks they hold.
func protocolViolation(op, qutexName, message string) {
	panic(&ProtocolError{Op: op, Qutex: qutexName, Message: message})
}
