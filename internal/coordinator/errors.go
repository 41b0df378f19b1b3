package coordinator

import "errors"

// Stable error kinds surfaced to callers. They are never coerced into a
// generic failure so clients can tell a retryable condition
// (ErrStoreUnavailable) from a dead pairing (ErrRoomClosed) from their own
// mistake (ErrAuthMismatch, ErrRoomFull, ErrNotUploaded).
var (
	// ErrNotFound means the room is unknown or its TTL has elapsed.
	ErrNotFound = errors.New("room not found")
	// ErrRoomClosed means the room no longer accepts this operation: it is
	// evaluating, finished, failed, or the party already signalled ready.
	ErrRoomClosed = errors.New("room closed")
	// ErrAuthMismatch means the secret does not match the claimed identity.
	ErrAuthMismatch = errors.New("secret does not match identity")
	// ErrRoomFull means two other identities already occupy both slots.
	ErrRoomFull = errors.New("room already has two parties")
	// ErrNotUploaded means ready was signalled before uploading data.
	ErrNotUploaded = errors.New("party has not uploaded data")
	// ErrStoreUnavailable means the room store could not complete the
	// operation; the room's persisted state is unchanged.
	ErrStoreUnavailable = errors.New("room store unavailable")
	// ErrEvaluationFailed marks evaluator errors; it never carries
	// evaluator output into room state.
	ErrEvaluationFailed = errors.New("evaluation failed")
)
