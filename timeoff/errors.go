package timeoff

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// STRUCTURED ERRORS - Each unwraps to a generic sentinel
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return generic.ErrNotFound }

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError reports a malformed input or a violated business rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return generic.ErrValidation }

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientBalanceError provides details about the shortfall.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: requested %s, remaining %s",
		e.Key, e.Requested.String(), e.Remaining.String())
}

func (e *InsufficientBalanceError) Unwrap() error { return generic.ErrInsufficientBalance }

// Shortfall returns how many days are missing.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Remaining)
}

// DateConflictError lists the live leaves overlapping the requested range.
type DateConflictError struct {
	PersonID  PersonID
	Start     generic.TimePoint
	End       generic.TimePoint
	Conflicts []LeaveID
}

func (e *DateConflictError) Error() string {
	ids := make([]string, len(e.Conflicts))
	for i, id := range e.Conflicts {
		ids[i] = string(id)
	}
	return fmt.Sprintf("date conflict for %s between %s and %s: overlaps %s",
		e.PersonID, e.Start, e.End, strings.Join(ids, ", "))
}

func (e *DateConflictError) Unwrap() error { return generic.ErrDateConflict }

// StateTransitionError reports an action not allowed from the current state.
type StateTransitionError struct {
	Entity string
	ID     string
	From   string
	Action string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %q in state %s", e.Action, e.Entity, e.ID, e.From)
}

func (e *StateTransitionError) Unwrap() error { return generic.ErrInvalidStateTransition }

// UnauthorizedError reports an actor that may not perform an action.
type UnauthorizedError struct {
	ActorID string
	Action  string
	Reason  string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s may not %s: %s", e.ActorID, e.Action, e.Reason)
}

func (e *UnauthorizedError) Unwrap() error { return generic.ErrUnauthorized }
