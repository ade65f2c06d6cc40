// Package domain holds the failure taxonomy shared by the scheduling engine packages.
// Engine code wraps these sentinels so transports can classify errors with errors.Is
// without importing each other.
package domain

import "errors"

var (
	// ErrInvalidTimezone reports an unrecognised IANA zone identifier.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrValidation reports a malformed time range, participant list or payload.
	ErrValidation = errors.New("validation error")
	// ErrNotAuthorized reports an actor/role mismatch.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidStateTransition reports a state machine precondition violation.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConflict reports a concurrent mutation detected at commit time.
	ErrConflict = errors.New("conflict")
	// ErrNotFound reports a missing event, invitation or user.
	ErrNotFound = errors.New("not found")
)
