package model

import "errors"

// Sentinel kinds for mutation errors. Controllers return these wrapped with
// context; callers branch with errors.Is.
var (
	// ErrInvalidTransition means the state machine rejects the requested move.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrPreconditionFailed means a guard condition is false, e.g. unready
	// participants or a value-4 field without notes.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUnauthorized means the caller's role or scope does not permit the
	// operation. Never silently downgraded.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict means an optimistic-concurrency version mismatch on write.
	// Recoverable by refetch-and-retry.
	ErrConflict = errors.New("version conflict")

	// ErrResyncRequired means a subscriber fell behind the replay buffer and
	// must pull a full snapshot instead of trusting incremental replay.
	ErrResyncRequired = errors.New("resync required")

	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)
