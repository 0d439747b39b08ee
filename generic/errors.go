/*
errors.go - Centralized error taxonomy

PURPOSE:
  All failure categories in one place for consistency and discoverability.
  Domain packages wrap these sentinels with structured context
  (see timeoff/errors.go); callers only ever need errors.Is.

ERROR CATEGORIES:
  1. Lookup    - ErrNotFound
  2. Input     - ErrValidation, ErrInvalidRange
  3. Business  - ErrInsufficientBalance, ErrDateConflict,
                 ErrInvalidStateTransition, ErrUnauthorized
  4. Storage   - ErrStorage (cause preserved via multi-%w wrapping)

USAGE:
  if errors.Is(err, generic.ErrDateConflict) {
      var conflict *timeoff.DateConflictError
      errors.As(err, &conflict)
  }
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input or a violated business rule
	// that is not covered by a more specific category.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrInsufficientBalance is returned when requested days exceed remaining days.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDateConflict is returned when a leave overlaps another live leave.
	ErrDateConflict = errors.New("date conflict")

	// ErrInvalidStateTransition is returned when an action is not allowed from
	// the current state (approving a non-pending leave, deleting a used balance).
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrUnauthorized is returned when the actor may not perform the action.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStorage wraps unexpected persistence failures.
	ErrStorage = errors.New("storage failure")

	// ErrLockNotAcquired is returned when a key lock could not be taken.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// StorageError wraps a driver error with the operation that failed.
// errors.Is matches both ErrStorage and the original cause.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input or a
// business rule, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDateConflict) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrUnauthorized)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockNotAcquired)
}
