package session

import "errors"

// Sentinel errors returned (wrapped with call context) through operation
// callbacks. All of them are recoverable, caller-reportable conditions; the
// registry never escalates them and never retries on the caller's behalf.
var (
	// ErrSessionNotFound reports an operation against an unregistered sid.
	ErrSessionNotFound = errors.New("session does not exist")

	// ErrAlreadyBound reports a bind against a session already bound to a
	// different uid.
	ErrAlreadyBound = errors.New("session already bound to another uid")

	// ErrNotBound reports an unbind against a session whose current uid is
	// empty or differs from the given uid.
	ErrNotBound = errors.New("session not bound to uid")

	// ErrSingleSessionViolation reports a bind that would give a uid a second
	// concurrent session while the single-session policy is enabled.
	ErrSingleSessionViolation = errors.New("single session policy violated")
)
