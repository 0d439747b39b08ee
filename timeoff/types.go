// Package timeoff implements the leave balance ledger and the leave request
// lifecycle on top of the generic building blocks.
package timeoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PersonID string
type LeaveTypeID string
type LeaveID string
type BalanceID string

// =============================================================================
// LEAVE TYPE - Category with policy flags
// =============================================================================

type LeaveType struct {
	ID               LeaveTypeID
	Name             string
	Description      string
	MaxDaysPerYear   decimal.Decimal
	CanCarryOver     bool
	MaxCarryOverDays decimal.Decimal
	NotificationDays int // minimum calendar days between today and StartDate
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks the policy flags. It does not check name uniqueness.
func (lt LeaveType) Validate() error {
	switch {
	case strings.TrimSpace(lt.Name) == "":
		return newValidationError("name", "is required")
	case lt.MaxDaysPerYear.IsNegative():
		return newValidationError("max_days_per_year", "must be >= 0")
	case lt.MaxCarryOverDays.IsNegative():
		return newValidationError("max_carry_over_days", "must be >= 0")
	case lt.CanCarryOver && !lt.MaxCarryOverDays.IsPositive():
		return newValidationError("max_carry_over_days", "must be > 0 when carry-over is allowed")
	case lt.NotificationDays < 0:
		return newValidationError("notification_days", "must be >= 0")
	}
	return nil
}

// DefaultMonthlyAccrual is MaxDaysPerYear spread over twelve months.
func (lt LeaveType) DefaultMonthlyAccrual() decimal.Decimal {
	return lt.MaxDaysPerYear.Div(decimal.NewFromInt(12))
}

// =============================================================================
// LEAVE BALANCE - Per person / type / year entitlement
// =============================================================================

// BalanceKey identifies the single balance row a leave draws from.
type BalanceKey struct {
	PersonID    PersonID
	LeaveTypeID LeaveTypeID
	Year        int
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.PersonID, k.LeaveTypeID, k.Year)
}

// LockKey is the KeyLocker key serializing mutations of this balance.
func (k BalanceKey) LockKey() string {
	return "balance:" + k.String()
}

// LeaveBalance is the ledger row for one BalanceKey.
//
// AvailableDays and RemainingDays are derived. They are recomputed by
// Recompute after every mutation and are never a source of truth.
type LeaveBalance struct {
	ID          BalanceID
	PersonID    PersonID
	LeaveTypeID LeaveTypeID
	Year        int

	AllocatedDays    decimal.Decimal
	UsedDays         decimal.Decimal
	PendingDays      decimal.Decimal
	CarriedOverDays  decimal.Decimal
	ManualAdjustment decimal.Decimal
	MonthlyAccrual   decimal.Decimal
	AccruedToDate    decimal.Decimal
	LastAccrualDate  generic.TimePoint

	AdjustmentReason string
	AdjustmentDate   *time.Time

	AvailableDays decimal.Decimal
	RemainingDays decimal.Decimal

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b *LeaveBalance) Key() BalanceKey {
	return BalanceKey{PersonID: b.PersonID, LeaveTypeID: b.LeaveTypeID, Year: b.Year}
}

// Recompute refreshes the derived fields:
//
//	AvailableDays = AllocatedDays + CarriedOverDays + ManualAdjustment
//	RemainingDays = AvailableDays - UsedDays - PendingDays
func (b *LeaveBalance) Recompute() {
	b.AvailableDays = b.AllocatedDays.Add(b.CarriedOverDays).Add(b.ManualAdjustment)
	b.RemainingDays = b.AvailableDays.Sub(b.UsedDays).Sub(b.PendingDays)
}

// CanDelete is false once any day has been used or reserved.
func (b *LeaveBalance) CanDelete() bool {
	return !b.UsedDays.IsPositive() && !b.PendingDays.IsPositive()
}

// =============================================================================
// LEAVE - A single request and its state machine
// =============================================================================

type LeaveStatus string

const (
	StatusPending    LeaveStatus = "pending"
	StatusApproved   LeaveStatus = "approved"
	StatusInProgress LeaveStatus = "in_progress"
	StatusCompleted  LeaveStatus = "completed"
	StatusRejected   LeaveStatus = "rejected"
	StatusCancelled  LeaveStatus = "cancelled"
)

// transitions lists the allowed next states for each state.
var transitions = map[LeaveStatus][]LeaveStatus{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s LeaveStatus) CanTransitionTo(next LeaveStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s LeaveStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// IsLive is true for every status that still occupies calendar days.
func (s LeaveStatus) IsLive() bool {
	return s != StatusRejected && s != StatusCancelled
}

// Consumes is true for statuses counted as used days.
func (s LeaveStatus) Consumes() bool {
	return s == StatusApproved || s == StatusInProgress || s == StatusCompleted
}

func (s LeaveStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusInProgress, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

type Leave struct {
	ID          LeaveID
	PersonID    PersonID
	LeaveTypeID LeaveTypeID
	StartDate   generic.TimePoint
	EndDate     generic.TimePoint
	TotalDays   decimal.Decimal // working days, computed at create/update
	Status      LeaveStatus
	Reason      string

	ApprovedByID    PersonID
	ApprovedAt      *time.Time
	ApprovalNotes   string
	RejectionReason string
	CancelledByID   PersonID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Year is the balance year the leave draws from (the year it starts in).
func (l *Leave) Year() int {
	return l.StartDate.Year()
}

func (l *Leave) BalanceKey() BalanceKey {
	return BalanceKey{PersonID: l.PersonID, LeaveTypeID: l.LeaveTypeID, Year: l.Year()}
}

// Overlaps reports whether the leave shares a day with [start, end].
func (l *Leave) Overlaps(start, end generic.TimePoint) bool {
	return generic.Overlaps(l.StartDate, l.EndDate, start, end)
}
