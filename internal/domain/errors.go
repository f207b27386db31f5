package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionExists             = errors.New("session already exists")
	ErrSessionClosed             = errors.New("session is closed")
	ErrAlreadyJoined             = errors.New("user already joined")
	ErrNotInSession              = errors.New("user is not in session")
	ErrNotOwner                  = errors.New("only the session owner can do this")
	ErrInsufficientPlayers       = errors.New("at least two players are required")
	ErrTooManyConcurrentAttempts = errors.New("too many concurrent attempts")
	ErrStoreUnavailable          = errors.New("session store unavailable")
	ErrUnknownAction             = errors.New("unknown action")

	// ErrPermissionDenied is returned by document editors when the backing platform refuses
	// a read or write. The optimistic coordinator never retries it.
	ErrPermissionDenied = errors.New("permission denied by document store")
)

// Reason is the stable, user-facing name of a rejection.
type Reason string

const (
	ReasonNone                      Reason = ""
	ReasonNotFound                  Reason = "not_found"
	ReasonSessionExists             Reason = "session_exists"
	ReasonSessionClosed             Reason = "session_closed"
	ReasonAlreadyJoined             Reason = "already_joined"
	ReasonNotInSession              Reason = "not_in_session"
	ReasonNotOwner                  Reason = "not_owner"
	ReasonInsufficientPlayers       Reason = "insufficient_players"
	ReasonTooManyConcurrentAttempts Reason = "too_many_concurrent_attempts"
	ReasonStoreUnavailable          Reason = "store_unavailable"
	ReasonUnknownAction             Reason = "unknown_action"
	ReasonPermissionDenied          Reason = "permission_denied"
)

var reasons = []struct {
	err    error
	reason Reason
}{
	{ErrSessionNotFound, ReasonNotFound},
	{ErrSessionExists, ReasonSessionExists},
	{ErrSessionClosed, ReasonSessionClosed},
	{ErrAlreadyJoined, ReasonAlreadyJoined},
	{ErrNotInSession, ReasonNotInSession},
	{ErrNotOwner, ReasonNotOwner},
	{ErrInsufficientPlayers, ReasonInsufficientPlayers},
	{ErrTooManyConcurrentAttempts, ReasonTooManyConcurrentAttempts},
	{ErrPermissionDenied, ReasonPermissionDenied},
	{ErrStoreUnavailable, ReasonStoreUnavailable},
	{ErrUnknownAction, ReasonUnknownAction},
}

// ReasonOf maps err to its Reason. Errors outside the taxonomy are reported as
// ReasonStoreUnavailable since they can only originate from I/O.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonStoreUnavailable
}

// IsRejection reports whether err is a business rule rejection rather than an I/O failure.
func IsRejection(err error) bool {
	switch ReasonOf(err) {
	case ReasonNone, ReasonStoreUnavailable, ReasonPermissionDenied:
		return false
	default:
		return true
	}
}

type storeError struct {
	op    string
	cause error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.op, e.cause)
}

func (e *storeError) Unwrap() []error { return []error{ErrStoreUnavailable, e.cause} }

// StoreUnavailable wraps an I/O failure so it matches both ErrStoreUnavailable and cause.
// Errors already in the taxonomy are returned unchanged.
func StoreUnavailable(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if IsRejection(cause) || errors.Is(cause, ErrStoreUnavailable) {
		return cause
	}
	return &storeError{op: op, cause: cause}
}
