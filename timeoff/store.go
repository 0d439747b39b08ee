/*
store.go - Persistence contract for the leave domain

PURPOSE:
  Defines the interface between the ledger/lifecycle services and the
  database. Unlike an append-only event log, balances and leaves are rows
  that are updated in place; correctness comes from recomputation
  (RecalculateBalance) and from running every read-validate-write
  sequence inside WithTx under a per-key lock.

KEY INTERFACES:
  Store:   leave types, balances, leaves and the audit log
  TxStore: Store + WithTx (all-or-nothing unit of work)

NOT FOUND:
  Get* methods return an error matching generic.ErrNotFound when the row
  does not exist. Any other failure matches generic.ErrStorage.

IMPLEMENTATIONS:
  - store/sqlite: database/sql + go-sqlite3
  - store/memory: in-memory, for tests and local runs

SEE ALSO:
  - ledger.go, request.go: the only writers of balances and leaves
*/
package timeoff

import (
	"context"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Leave types
	SaveLeaveType(ctx context.Context, lt LeaveType) error
	GetLeaveType(ctx context.Context, id LeaveTypeID) (LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)
	DeleteLeaveType(ctx context.Context, id LeaveTypeID) error
	// LeaveTypeInUse is true while any leave or balance references the type.
	LeaveTypeInUse(ctx context.Context, id LeaveTypeID) (bool, error)

	// Balances. SaveBalance upserts on ID; the (person, type, year) key is unique.
	SaveBalance(ctx context.Context, b LeaveBalance) error
	GetBalance(ctx context.Context, key BalanceKey) (LeaveBalance, error)
	GetBalanceByID(ctx context.Context, id BalanceID) (LeaveBalance, error)
	ListBalances(ctx context.Context, filter BalanceFilter) ([]LeaveBalance, error)
	DeleteBalance(ctx context.Context, id BalanceID) error

	// Leaves
	SaveLeave(ctx context.Context, l Leave) error
	GetLeave(ctx context.Context, id LeaveID) (Leave, error)
	ListLeaves(ctx context.Context, filter LeaveFilter) ([]Leave, error)

	generic.AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is
	// rolled back. If fn returns nil, they are committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// FILTERS
// =============================================================================

// BalanceFilter selects balances. Zero fields match everything.
type BalanceFilter struct {
	PersonID    PersonID
	LeaveTypeID LeaveTypeID
	Year        int
	ActiveOnly  bool
}

func (f BalanceFilter) Matches(b LeaveBalance) bool {
	switch {
	case f.PersonID != "" && b.PersonID != f.PersonID:
		return false
	case f.LeaveTypeID != "" && b.LeaveTypeID != f.LeaveTypeID:
		return false
	case f.Year != 0 && b.Year != f.Year:
		return false
	case f.ActiveOnly && !b.IsActive:
		return false
	}
	return true
}

// LeaveFilter selects leaves. Zero fields match everything.
//
// Year matches the balance year (the year of StartDate). From/To select
// leaves overlapping [From, To]; either bound may be zero for open-ended.
type LeaveFilter struct {
	PersonID    PersonID
	LeaveTypeID LeaveTypeID
	Year        int
	Statuses    []LeaveStatus
	From        generic.TimePoint
	To          generic.TimePoint
	ExcludeID   LeaveID
}

func (f LeaveFilter) Matches(l Leave) bool {
	switch {
	case f.PersonID != "" && l.PersonID != f.PersonID:
		return false
	case f.LeaveTypeID != "" && l.LeaveTypeID != f.LeaveTypeID:
		return false
	case f.Year != 0 && l.Year() != f.Year:
		return false
	case f.ExcludeID != "" && l.ID == f.ExcludeID:
		return false
	case !f.From.IsZero() && l.EndDate.Before(f.From):
		return false
	case !f.To.IsZero() && l.StartDate.After(f.To):
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == l.Status {
			return true
		}
	}
	return false
}

// liveStatuses are the statuses that occupy calendar days.
var liveStatuses = []LeaveStatus{StatusPending, StatusApproved, StatusInProgress, StatusCompleted}
