/*
request.go - Leave request lifecycle

PURPOSE:
  Owns the Leave entity and its state machine. Every transition that
  changes which days are pending or used asks the ledger to recompute the
  affected balance inside the same transaction.

STATE MACHINE:
  Pending --approve--> Approved --(start reached)--> InProgress --(end passed)--> Completed
  Pending --reject---> Rejected
  Pending | Approved | InProgress --cancel--> Cancelled

  Completed, Rejected and Cancelled are terminal.

CREATE CHECK ORDER (first failure wins):
  1. references  person exists and is active, leave type exists and is active
  2. dates       start >= today, end >= start, advance notice
  3. days        working days in [start, end] > 0
  4. balance     RemainingDays >= TotalDays
  5. conflicts   no live leave of the same person overlaps [start, end]

LOCKING:
  Mutations hold the person lock (conflict window) and the balance key
  lock(s) of the leave. Keys are taken in sorted order via
  generic.LockAll.

SEE ALSO:
  - ledger.go: recalculate, ensureBalance
  - generic/calendar.go: working-day computation
*/
package timeoff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// REQUEST SERVICE
// =============================================================================

type RequestService struct {
	Store      TxStore
	Ledger     *LedgerService
	Types      LeaveTypeLookup
	Persons    PersonDirectory    // nil skips the person check
	Authorizer ApprovalAuthorizer // nil allows every non-self approver
	Calendar   generic.Calendar
	Clock      generic.Clock
	Logger     *zap.Logger
	Metrics    Recorder

	// ReconcileOnApprove recomputes the balance right after approval so
	// the approved days move from PendingDays to UsedDays immediately.
	ReconcileOnApprove bool
}

// NewRequestService shares store, types, clock, logger and metrics with
// the ledger and uses the weekends-only calendar.
func NewRequestService(ledger *LedgerService, persons PersonDirectory) *RequestService {
	return &RequestService{
		Store:    ledger.Store,
		Ledger:   ledger,
		Types:    ledger.Types,
		Persons:  persons,
		Calendar: generic.NewWeekendCalendar(),
		Clock:    ledger.Clock,
		Logger:   ledger.Logger,
		Metrics:  ledger.Metrics,
	}
}

// LeaveRequest is the input of Create and Update.
type LeaveRequest struct {
	PersonID    PersonID
	LeaveTypeID LeaveTypeID
	StartDate   generic.TimePoint
	EndDate     generic.TimePoint
	Reason      string
}

func personLockKey(id PersonID) string {
	return "person:" + string(id)
}

func (rs *RequestService) withLeaveLocks(ctx context.Context, personID PersonID, keys []BalanceKey, fn func(Store) error) error {
	lockKeys := []string{personLockKey(personID)}
	for _, k := range keys {
		lockKeys = append(lockKeys, k.LockKey())
	}
	unlock, err := generic.LockAll(ctx, rs.Ledger.Locker, lockKeys...)
	if err != nil {
		return err
	}
	defer unlock()
	return rs.Store.WithTx(ctx, fn)
}

// =============================================================================
// READS
// =============================================================================

func (rs *RequestService) Get(ctx context.Context, id LeaveID) (Leave, error) {
	return rs.Store.GetLeave(ctx, id)
}

func (rs *RequestService) List(ctx context.Context, filter LeaveFilter) ([]Leave, error) {
	return rs.Store.ListLeaves(ctx, filter)
}

// CheckConflicts returns the live leaves of personID intersecting
// [start, end], skipping excludeID when set.
func (rs *RequestService) CheckConflicts(ctx context.Context, personID PersonID, start, end generic.TimePoint, excludeID LeaveID) ([]Leave, error) {
	if end.Before(start) {
		return nil, newValidationError("end_date", "must not be before start_date")
	}
	return conflicting(ctx, rs.Store, personID, start, end, excludeID)
}

func conflicting(ctx context.Context, s Store, personID PersonID, start, end generic.TimePoint, excludeID LeaveID) ([]Leave, error) {
	return s.ListLeaves(ctx, LeaveFilter{
		PersonID:  personID,
		From:      start,
		To:        end,
		Statuses:  liveStatuses,
		ExcludeID: excludeID,
	})
}

func checkNoConflict(ctx context.Context, s Store, l Leave) error {
	found, err := conflicting(ctx, s, l.PersonID, l.StartDate, l.EndDate, l.ID)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}
	conflict := &DateConflictError{PersonID: l.PersonID, Start: l.StartDate, End: l.EndDate}
	for _, other := range found {
		conflict.Conflicts = append(conflict.Conflicts, other.ID)
	}
	return conflict
}

// =============================================================================
// VALIDATION
// =============================================================================

func (rs *RequestService) resolve(ctx context.Context, personID PersonID, typeID LeaveTypeID) (LeaveType, error) {
	if personID == "" {
		return LeaveType{}, newValidationError("person_id", "is required")
	}
	if typeID == "" {
		return LeaveType{}, newValidationError("leave_type_id", "is required")
	}
	if rs.Persons != nil {
		p, err := rs.Persons.GetPerson(ctx, personID)
		if err != nil {
			return LeaveType{}, err
		}
		if !p.Exists {
			return LeaveType{}, notFound("person", string(personID))
		}
		if !p.IsActive {
			return LeaveType{}, newValidationError("person_id", "is not active")
		}
	}
	lt, err := rs.Types.GetLeaveType(ctx, typeID)
	if err != nil {
		return LeaveType{}, err
	}
	if !lt.IsActive {
		return LeaveType{}, newValidationError("leave_type_id", "is not active")
	}
	return lt, nil
}

func (rs *RequestService) validateDates(lt LeaveType, start, end generic.TimePoint) error {
	if start.IsZero() {
		return newValidationError("start_date", "is required")
	}
	if end.IsZero() {
		return newValidationError("end_date", "is required")
	}
	today := generic.Today(rs.Clock)
	if start.Before(today) {
		return newValidationError("start_date", "must not be in the past")
	}
	if end.Before(start) {
		return newValidationError("end_date", "must not be before start_date")
	}
	if lt.NotificationDays > 0 && start.Before(today.AddDays(lt.NotificationDays)) {
		return newValidationError("start_date",
			fmt.Sprintf("requires %d days notice for %s", lt.NotificationDays, lt.Name))
	}
	return nil
}

func (rs *RequestService) workingDays(start, end generic.TimePoint) (decimal.Decimal, error) {
	n, err := rs.Calendar.WorkingDaysBetween(start, end)
	if err != nil {
		return decimal.Zero, err
	}
	if n <= 0 {
		return decimal.Zero, newValidationError("end_date", "range contains no working days")
	}
	return generic.DaysFromInt(n), nil
}

func (rs *RequestService) authorize(ctx context.Context, l Leave, actorID PersonID, action string) error {
	if actorID == "" {
		return newValidationError("actor_id", "is required")
	}
	if rs.Authorizer == nil {
		return nil
	}
	ok, err := rs.Authorizer.CanApprove(ctx, l.ID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return &UnauthorizedError{ActorID: string(actorID), Action: action, Reason: "no approval authority"}
	}
	return nil
}

func (rs *RequestService) record(ctx context.Context, s Store, actorID PersonID, action generic.AuditAction, l Leave, extra map[string]any) error {
	payload := map[string]any{
		"person_id":     string(l.PersonID),
		"leave_type_id": string(l.LeaveTypeID),
		"start_date":    l.StartDate.String(),
		"end_date":      l.EndDate.String(),
		"total_days":    l.TotalDays.String(),
		"status":        string(l.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return rs.Ledger.audit(ctx, s, string(actorID), action, string(l.ID), payload)
}

// =============================================================================
// CREATE / UPDATE
// =============================================================================

// Create validates and persists a Pending leave, reserving its days.
func (rs *RequestService) Create(ctx context.Context, req LeaveRequest) (Leave, error) {
	l, err := rs.create(ctx, req)
	rs.Metrics.ObserveRequest("create", err)
	return l, err
}

func (rs *RequestService) create(ctx context.Context, req LeaveRequest) (Leave, error) {
	lt, err := rs.resolve(ctx, req.PersonID, req.LeaveTypeID)
	if err != nil {
		return Leave{}, err
	}
	if err := rs.validateDates(lt, req.StartDate, req.EndDate); err != nil {
		return Leave{}, err
	}
	days, err := rs.workingDays(req.StartDate, req.EndDate)
	if err != nil {
		return Leave{}, err
	}

	now := rs.Clock.Now()
	leave := Leave{
		ID:          LeaveID(uuid.NewString()),
		PersonID:    req.PersonID,
		LeaveTypeID: req.LeaveTypeID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		TotalDays:   days,
		Status:      StatusPending,
		Reason:      strings.TrimSpace(req.Reason),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	key := leave.BalanceKey()

	err = rs.withLeaveLocks(ctx, leave.PersonID, []BalanceKey{key}, func(s Store) error {
		if _, _, err := rs.Ledger.ensureBalance(ctx, s, key, string(leave.PersonID)); err != nil {
			return err
		}
		b, err := rs.Ledger.recalculate(ctx, s, key)
		if err != nil {
			return err
		}
		if b.RemainingDays.LessThan(days) {
			return &InsufficientBalanceError{Key: key, Requested: days, Remaining: b.RemainingDays}
		}
		if err := checkNoConflict(ctx, s, leave); err != nil {
			return err
		}
		if err := s.SaveLeave(ctx, leave); err != nil {
			return err
		}
		if _, err := rs.Ledger.recalculate(ctx, s, key); err != nil {
			return err
		}
		return rs.record(ctx, s, leave.PersonID, generic.AuditLeaveCreated, leave, nil)
	})
	if err != nil {
		return Leave{}, err
	}

	rs.Logger.Info("leave created",
		zap.String("leave_id", string(leave.ID)),
		zap.String("person_id", string(leave.PersonID)),
		zap.String("days", days.String()))
	return leave, nil
}

// Update changes the type, dates or reason of a Pending leave. Dates,
// balance and conflicts are validated again; the leave's own days count
// as available when it stays on the same balance.
func (rs *RequestService) Update(ctx context.Context, id LeaveID, req LeaveRequest, actorID PersonID) (Leave, error) {
	l, err := rs.update(ctx, id, req, actorID)
	rs.Metrics.ObserveRequest("update", err)
	return l, err
}

func (rs *RequestService) update(ctx context.Context, id LeaveID, req LeaveRequest, actorID PersonID) (Leave, error) {
	current, err := rs.Store.GetLeave(ctx, id)
	if err != nil {
		return Leave{}, err
	}
	if current.Status != StatusPending {
		return Leave{}, &StateTransitionError{Entity: "leave", ID: string(id), From: string(current.Status), Action: "update"}
	}

	updated := current
	if req.LeaveTypeID != "" {
		updated.LeaveTypeID = req.LeaveTypeID
	}
	if !req.StartDate.IsZero() {
		updated.StartDate = req.StartDate
	}
	if !req.EndDate.IsZero() {
		updated.EndDate = req.EndDate
	}
	if req.Reason != "" {
		updated.Reason = strings.TrimSpace(req.Reason)
	}

	lt, err := rs.resolve(ctx, updated.PersonID, updated.LeaveTypeID)
	if err != nil {
		return Leave{}, err
	}
	if err := rs.validateDates(lt, updated.StartDate, updated.EndDate); err != nil {
		return Leave{}, err
	}
	days, err := rs.workingDays(updated.StartDate, updated.EndDate)
	if err != nil {
		return Leave{}, err
	}
	updated.TotalDays = days
	updated.UpdatedAt = rs.Clock.Now()

	oldKey, newKey := current.BalanceKey(), updated.BalanceKey()
	err = rs.withLeaveLocks(ctx, current.PersonID, []BalanceKey{oldKey, newKey}, func(s Store) error {
		fresh, err := s.GetLeave(ctx, id)
		if err != nil {
			return err
		}
		if fresh.Status != StatusPending {
			return &StateTransitionError{Entity: "leave", ID: string(id), From: string(fresh.Status), Action: "update"}
		}

		if _, _, err := rs.Ledger.ensureBalance(ctx, s, newKey, string(actorID)); err != nil {
			return err
		}
		b, err := rs.Ledger.recalculate(ctx, s, newKey)
		if err != nil {
			return err
		}
		available := b.RemainingDays
		if fresh.BalanceKey() == newKey {
			available = available.Add(fresh.TotalDays)
		}
		if available.LessThan(days) {
			return &InsufficientBalanceError{Key: newKey, Requested: days, Remaining: available}
		}
		if err := checkNoConflict(ctx, s, updated); err != nil {
			return err
		}
		if err := s.SaveLeave(ctx, updated); err != nil {
			return err
		}
		if _, err := rs.Ledger.recalculate(ctx, s, newKey); err != nil {
			return err
		}
		if oldKey != newKey {
			if _, err := rs.Ledger.recalculate(ctx, s, oldKey); err != nil {
				return err
			}
		}
		return rs.record(ctx, s, actorID, generic.AuditLeaveUpdated, updated, map[string]any{
			"previous_days": fresh.TotalDays.String(),
		})
	})
	if err != nil {
		return Leave{}, err
	}

	rs.Logger.Info("leave updated", zap.String("leave_id", string(id)), zap.String("days", days.String()))
	return updated, nil
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

// Approve moves a Pending leave to Approved. The approver may not be the
// requester. Remaining days are re-checked under the balance lock.
func (rs *RequestService) Approve(ctx context.Context, id LeaveID, approverID PersonID, notes string) (Leave, error) {
	l, err := rs.decide(ctx, id, approverID, StatusApproved, notes)
	rs.Metrics.ObserveRequest("approve", err)
	return l, err
}

// Reject moves a Pending leave to Rejected and releases its pending days.
func (rs *RequestService) Reject(ctx context.Context, id LeaveID, approverID PersonID, reason string) (Leave, error) {
	l, err := rs.decide(ctx, id, approverID, StatusRejected, reason)
	rs.Metrics.ObserveRequest("reject", err)
	return l, err
}

func (rs *RequestService) decide(ctx context.Context, id LeaveID, approverID PersonID, next LeaveStatus, note string) (Leave, error) {
	action := "approve"
	if next == StatusRejected {
		action = "reject"
	}

	current, err := rs.Store.GetLeave(ctx, id)
	if err != nil {
		return Leave{}, err
	}
	if current.Status != StatusPending {
		return Leave{}, &StateTransitionError{Entity: "leave", ID: string(id), From: string(current.Status), Action: action}
	}
	if approverID != "" && approverID == current.PersonID {
		return Leave{}, &UnauthorizedError{ActorID: string(approverID), Action: action, Reason: "requester cannot decide own leave"}
	}
	if err := rs.authorize(ctx, current, approverID, action); err != nil {
		return Leave{}, err
	}

	key := current.BalanceKey()
	var decided Leave
	err = rs.withLeaveLocks(ctx, current.PersonID, []BalanceKey{key}, func(s Store) error {
		l, err := s.GetLeave(ctx, id)
		if err != nil {
			return err
		}
		if l.Status != StatusPending {
			return &StateTransitionError{Entity: "leave", ID: string(id), From: string(l.Status), Action: action}
		}

		now := rs.Clock.Now()
		l.Status = next
		l.UpdatedAt = now
		auditAction := generic.AuditLeaveRejected
		reconcile := true

		if next == StatusApproved {
			b, err := rs.Ledger.recalculate(ctx, s, key)
			if err != nil {
				return err
			}
			if b.RemainingDays.IsNegative() {
				return &InsufficientBalanceError{Key: key, Requested: l.TotalDays, Remaining: b.RemainingDays.Add(l.TotalDays)}
			}
			l.ApprovedByID = approverID
			l.ApprovedAt = &now
			l.ApprovalNotes = note
			auditAction = generic.AuditLeaveApproved
			reconcile = rs.ReconcileOnApprove
		} else {
			l.RejectionReason = note
		}

		if err := s.SaveLeave(ctx, l); err != nil {
			return err
		}
		if reconcile {
			if _, err := rs.Ledger.recalculate(ctx, s, key); err != nil {
				return err
			}
		}
		decided = l
		return rs.record(ctx, s, approverID, auditAction, l, map[string]any{"note": note})
	})
	if err != nil {
		return Leave{}, err
	}

	rs.Logger.Info("leave "+string(next),
		zap.String("leave_id", string(id)),
		zap.String("approver_id", string(approverID)))
	return decided, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel is allowed from Pending, Approved and InProgress. The requester
// may always cancel; anyone else needs approval authority.
//
// Days already taken stay taken: a leave that started before today is cut
// short to end yesterday and marked Completed, releasing only the rest. A
// leave with no working days behind it is cancelled outright.
func (rs *RequestService) Cancel(ctx context.Context, id LeaveID, userID PersonID) (Leave, error) {
	l, err := rs.cancel(ctx, id, userID)
	rs.Metrics.ObserveRequest("cancel", err)
	return l, err
}

func (rs *RequestService) cancel(ctx context.Context, id LeaveID, userID PersonID) (Leave, error) {
	if userID == "" {
		return Leave{}, newValidationError("user_id", "is required")
	}
	current, err := rs.Store.GetLeave(ctx, id)
	if err != nil {
		return Leave{}, err
	}
	if !current.Status.CanTransitionTo(StatusCancelled) {
		return Leave{}, &StateTransitionError{Entity: "leave", ID: string(id), From: string(current.Status), Action: "cancel"}
	}
	if userID != current.PersonID {
		if err := rs.authorize(ctx, current, userID, "cancel"); err != nil {
			return Leave{}, err
		}
	}

	key := current.BalanceKey()
	var cancelled Leave
	err = rs.withLeaveLocks(ctx, current.PersonID, []BalanceKey{key}, func(s Store) error {
		l, err := s.GetLeave(ctx, id)
		if err != nil {
			return err
		}
		if !l.Status.CanTransitionTo(StatusCancelled) {
			return &StateTransitionError{Entity: "leave", ID: string(id), From: string(l.Status), Action: "cancel"}
		}
		previous, requested := l.Status, l.TotalDays
		taken, err := rs.takenDays(l)
		if err != nil {
			return err
		}
		extra := map[string]any{
			"from":          string(previous),
			"released_days": requested.Sub(taken).String(),
		}
		if taken.IsPositive() {
			extra["original_end_date"] = l.EndDate.String()
			if yesterday := generic.Today(rs.Clock).AddDays(-1); yesterday.Before(l.EndDate) {
				l.EndDate = yesterday
			}
			l.TotalDays = taken
			l.Status = StatusCompleted
		} else {
			l.Status = StatusCancelled
		}
		l.CancelledByID = userID
		l.UpdatedAt = rs.Clock.Now()
		if err := s.SaveLeave(ctx, l); err != nil {
			return err
		}
		if _, err := rs.Ledger.recalculate(ctx, s, key); err != nil {
			return err
		}
		cancelled = l
		return rs.record(ctx, s, userID, generic.AuditLeaveCancelled, l, extra)
	})
	if err != nil {
		return Leave{}, err
	}

	rs.Logger.Info("leave cancelled",
		zap.String("leave_id", string(id)),
		zap.String("user_id", string(userID)),
		zap.String("status", string(cancelled.Status)))
	return cancelled, nil
}

// takenDays counts the working days of a consuming leave that lie before
// today. Pending leaves and leaves that have not started took nothing.
func (rs *RequestService) takenDays(l Leave) (decimal.Decimal, error) {
	today := generic.Today(rs.Clock)
	if !l.Status.Consumes() || !l.StartDate.Before(today) {
		return decimal.Zero, nil
	}
	last := today.AddDays(-1)
	if l.EndDate.Before(last) {
		last = l.EndDate
	}
	n, err := rs.Calendar.WorkingDaysBetween(l.StartDate, last)
	if err != nil {
		return decimal.Zero, err
	}
	return generic.DaysFromInt(n), nil
}

// =============================================================================
// AGING - Date-driven transitions
// =============================================================================

type AgingSummary struct {
	Examined  int
	Started   int // Approved -> InProgress
	Completed int // Approved or InProgress -> Completed
	Failed    int
}

// agedStatus returns the status l should be in on today, or "" when it
// should not change.
func agedStatus(l Leave, today generic.TimePoint) LeaveStatus {
	switch {
	case l.Status != StatusApproved && l.Status != StatusInProgress:
		return ""
	case today.After(l.EndDate):
		return StatusCompleted
	case l.Status == StatusApproved && today.AfterOrEqual(l.StartDate):
		return StatusInProgress
	}
	return ""
}

// AgeStatuses moves approved leaves along the calendar. Idempotent for a
// given day.
func (rs *RequestService) AgeStatuses(ctx context.Context) (AgingSummary, error) {
	var summary AgingSummary
	today := generic.Today(rs.Clock)
	leaves, err := rs.Store.ListLeaves(ctx, LeaveFilter{Statuses: []LeaveStatus{StatusApproved, StatusInProgress}})
	if err != nil {
		rs.Metrics.ObserveBatch("aging", 0, err)
		return summary, err
	}

	var errs []error
	for _, candidate := range leaves {
		summary.Examined++
		if agedStatus(candidate, today) == "" {
			continue
		}

		var moved LeaveStatus
		err := rs.withLeaveLocks(ctx, candidate.PersonID, []BalanceKey{candidate.BalanceKey()}, func(s Store) error {
			l, err := s.GetLeave(ctx, candidate.ID)
			if err != nil {
				return err
			}
			next := agedStatus(l, today)
			if next == "" {
				return nil
			}
			previous := l.Status
			l.Status = next
			l.UpdatedAt = rs.Clock.Now()
			if err := s.SaveLeave(ctx, l); err != nil {
				return err
			}
			moved = next
			return rs.record(ctx, s, generic.SystemActor, generic.AuditLeaveAged, l, map[string]any{"from": string(previous)})
		})

		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, fmt.Errorf("aging %s: %w", candidate.ID, err))
			rs.Logger.Warn("leave aging failed", zap.String("leave_id", string(candidate.ID)), zap.Error(err))
		case moved == StatusInProgress:
			summary.Started++
		case moved == StatusCompleted:
			summary.Completed++
		}
	}

	err = errors.Join(errs...)
	rs.Metrics.ObserveBatch("aging", summary.Started+summary.Completed, err)
	rs.Logger.Info("leave aging complete",
		zap.String("today", today.String()),
		zap.Int("started", summary.Started),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed))
	return summary, err
}
