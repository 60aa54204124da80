package kuroko2

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("kuroko2: no store configured")
	ErrStoreClosed     = errors.New("kuroko2: store closed")
	ErrMigrationFailed = errors.New("kuroko2: migration failed")

	// Not found errors.
	ErrDefinitionNotFound = errors.New("kuroko2: job definition not found")
	ErrInstanceNotFound   = errors.New("kuroko2: job instance not found")
	ErrTokenNotFound      = errors.New("kuroko2: token not found")

	// Conflict errors.
	ErrDefinitionExists = errors.New("kuroko2: job definition already exists")
	ErrVersionConflict  = errors.New("kuroko2: job definition version conflict")

	// Configuration errors. An unknown prevent-multi code indicates a bug or
	// data corruption upstream, never a recoverable business condition.
	ErrInvalidPreventMulti = errors.New("kuroko2: invalid prevent-multi mode")

	// ErrDeletionBlocked is the sentinel behind ValidationError: the lifecycle
	// guard refused to destroy a definition that still carries tokens.
	ErrDeletionBlocked = errors.New("kuroko2: deletion blocked by existing tokens")

	// Lock errors.
	ErrLockHeld = errors.New("kuroko2: definition lock held by another process")
)

// ValidationError is a recoverable, user-facing denial attached to a destroy
// attempt. The destroy operation as a whole is aborted; no children are
// partially deleted. It unwraps to ErrDeletionBlocked so callers can branch
// with errors.Is.
type ValidationError struct {
	// Op names the operation that was denied, e.g. "destroy definition".
	Op string

	// Reason is a display-ready explanation of the denial.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("kuroko2: %s denied: %s", e.Op, e.Reason)
}

// Unwrap returns the sentinel this validation error wraps.
func (e *ValidationError) Unwrap() error { return ErrDeletionBlocked }
