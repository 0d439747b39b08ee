/*
ledger.go - Leave balance ledger

PURPOSE:
  Owns the per person / leave type / year balance row and all of its
  arithmetic: default allocation, recomputation from leave rows, monthly
  accrual, year-end carry-over and manual adjustment.

SOURCE OF TRUTH:
  UsedDays and PendingDays are never incremented or decremented in place.
  recalculate() sums them from the leave rows of the key every time:

    UsedDays    = sum(TotalDays) over Approved, InProgress, Completed
    PendingDays = sum(TotalDays) over Pending

  Derived fields are refreshed by LeaveBalance.Recompute after every write.

ATOMICITY:
  Every mutation takes the balance key lock (see generic.KeyLocker) and
  runs read -> validate -> write -> recompute inside one Store.WithTx.
  Audit entries are written in the same transaction.

BATCH JOBS:
  ProcessMonthlyAccrual and ProcessYearEndCarryOver lock one key at a time.
  A failing balance is logged and counted; the run continues and the
  joined error is returned with the summary.

SEE ALSO:
  - request.go: the lifecycle that triggers recalculation
  - api/scheduler.go: periodic trigger for the batch jobs
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
// LEDGER SERVICE
// =============================================================================

type LedgerService struct {
	Store   TxStore
	Types   LeaveTypeLookup
	Locker  generic.KeyLocker
	Clock   generic.Clock
	Logger  *zap.Logger
	Metrics Recorder
}

// NewLedgerService returns a ledger with an in-process locker, the system
// clock and no logging. Override the fields before first use.
func NewLedgerService(store TxStore, types LeaveTypeLookup) *LedgerService {
	return &LedgerService{
		Store:   store,
		Types:   types,
		Locker:  generic.NewMutexLocker(),
		Clock:   generic.SystemClock{},
		Logger:  zap.NewNop(),
		Metrics: nopRecorder{},
	}
}

// withKeys locks keys and runs fn in a transaction.
func (ls *LedgerService) withKeys(ctx context.Context, fn func(Store) error, keys ...string) error {
	unlock, err := generic.LockAll(ctx, ls.Locker, keys...)
	if err != nil {
		return err
	}
	defer unlock()
	return ls.Store.WithTx(ctx, fn)
}

func (ls *LedgerService) audit(ctx context.Context, s Store, actorID string, action generic.AuditAction, subject string, payload map[string]any) error {
	if actorID == "" {
		actorID = generic.SystemActor
	}
	return s.AppendAudit(ctx, generic.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: ls.Clock.Now(),
		ActorID:   actorID,
		Action:    action,
		Subject:   subject,
		Payload:   payload,
	})
}

// =============================================================================
// READS
// =============================================================================

// GetBalance returns the balance for the key or a NotFound error.
func (ls *LedgerService) GetBalance(ctx context.Context, personID PersonID, typeID LeaveTypeID, year int) (LeaveBalance, error) {
	return ls.Store.GetBalance(ctx, BalanceKey{PersonID: personID, LeaveTypeID: typeID, Year: year})
}

func (ls *LedgerService) ListBalances(ctx context.Context, filter BalanceFilter) ([]LeaveBalance, error) {
	return ls.Store.ListBalances(ctx, filter)
}

// CanDelete is false while the balance has used or pending days.
func (ls *LedgerService) CanDelete(ctx context.Context, id BalanceID) (bool, error) {
	b, err := ls.Store.GetBalanceByID(ctx, id)
	if err != nil {
		return false, err
	}
	return b.CanDelete(), nil
}

// =============================================================================
// ALLOCATION
// =============================================================================

// EnsureBalanceExists creates the default balance for the key if absent.
// The default grants LeaveType.MaxDaysPerYear upfront, accrues
// MaxDaysPerYear/12 per month, and starts accruing from today.
func (ls *LedgerService) EnsureBalanceExists(ctx context.Context, personID PersonID, typeID LeaveTypeID, year int) (LeaveBalance, error) {
	key := BalanceKey{PersonID: personID, LeaveTypeID: typeID, Year: year}
	var out LeaveBalance
	err := ls.withKeys(ctx, func(s Store) error {
		b, _, err := ls.ensureBalance(ctx, s, key, generic.SystemActor)
		out = b
		return err
	}, key.LockKey())
	return out, err
}

func (ls *LedgerService) ensureBalance(ctx context.Context, s Store, key BalanceKey, actorID string) (LeaveBalance, bool, error) {
	b, err := s.GetBalance(ctx, key)
	if err == nil {
		return b, false, nil
	}
	if !errors.Is(err, generic.ErrNotFound) {
		return LeaveBalance{}, false, err
	}
	if key.Year <= 0 {
		return LeaveBalance{}, false, newValidationError("year", "must be positive")
	}

	// read through the transaction so a concurrent Registry.Delete cannot
	// slip in between the lookup and the insert
	lt, err := s.GetLeaveType(ctx, key.LeaveTypeID)
	if err != nil {
		return LeaveBalance{}, false, err
	}
	now := ls.Clock.Now()
	b = LeaveBalance{
		ID:              BalanceID(uuid.NewString()),
		PersonID:        key.PersonID,
		LeaveTypeID:     key.LeaveTypeID,
		Year:            key.Year,
		AllocatedDays:   lt.MaxDaysPerYear,
		MonthlyAccrual:  lt.DefaultMonthlyAccrual(),
		AccruedToDate:   lt.MaxDaysPerYear,
		LastAccrualDate: generic.DateOf(now),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.Recompute()
	if err := s.SaveBalance(ctx, b); err != nil {
		return LeaveBalance{}, false, err
	}
	err = ls.audit(ctx, s, actorID, generic.AuditBalanceAllocated, string(b.ID), map[string]any{
		"key":       key.String(),
		"allocated": b.AllocatedDays.String(),
		"source":    "default",
	})
	if err != nil {
		return LeaveBalance{}, false, err
	}
	ls.Logger.Info("balance created", zap.String("key", key.String()), zap.String("allocated", b.AllocatedDays.String()))
	return b, true, nil
}

// AllocateBalance sets the allocation of a key explicitly, creating the
// row if needed. Fails if the new allocation leaves remaining days negative.
func (ls *LedgerService) AllocateBalance(ctx context.Context, key BalanceKey, allocated, monthlyAccrual decimal.Decimal, actorID string) (LeaveBalance, error) {
	var out LeaveBalance
	err := ls.allocate(ctx, key, allocated, monthlyAccrual, actorID, &out)
	ls.Metrics.ObserveRequest("allocate", err)
	return out, err
}

func (ls *LedgerService) allocate(ctx context.Context, key BalanceKey, allocated, monthlyAccrual decimal.Decimal, actorID string, out *LeaveBalance) error {
	switch {
	case allocated.IsNegative():
		return newValidationError("allocated_days", "must be >= 0")
	case monthlyAccrual.IsNegative():
		return newValidationError("monthly_accrual", "must be >= 0")
	case key.PersonID == "":
		return newValidationError("person_id", "is required")
	}

	return ls.withKeys(ctx, func(s Store) error {
		if _, _, err := ls.ensureBalance(ctx, s, key, actorID); err != nil {
			return err
		}
		b, err := ls.recalculate(ctx, s, key)
		if err != nil {
			return err
		}
		b.AllocatedDays = allocated
		b.MonthlyAccrual = monthlyAccrual
		b.AccruedToDate = allocated
		b.Recompute()
		if b.RemainingDays.IsNegative() {
			return newValidationError("allocated_days",
				fmt.Sprintf("would leave %s remaining days", b.RemainingDays))
		}
		b.UpdatedAt = ls.Clock.Now()
		if err := s.SaveBalance(ctx, b); err != nil {
			return err
		}
		*out = b
		return ls.audit(ctx, s, actorID, generic.AuditBalanceAllocated, string(b.ID), map[string]any{
			"key":             key.String(),
			"allocated":       allocated.String(),
			"monthly_accrual": monthlyAccrual.String(),
			"source":          "explicit",
		})
	}, key.LockKey())
}

// =============================================================================
// RECALCULATION - The single authoritative aggregation
// =============================================================================

// RecalculateBalance recomputes UsedDays and PendingDays from leave rows.
func (ls *LedgerService) RecalculateBalance(ctx context.Context, personID PersonID, typeID LeaveTypeID, year int) (LeaveBalance, error) {
	key := BalanceKey{PersonID: personID, LeaveTypeID: typeID, Year: year}
	var out LeaveBalance
	err := ls.withKeys(ctx, func(s Store) error {
		b, err := ls.recalculate(ctx, s, key)
		out = b
		return err
	}, key.LockKey())
	ls.Metrics.ObserveRequest("recalculate", err)
	return out, err
}

// recalculate must run under the key lock inside a transaction.
func (ls *LedgerService) recalculate(ctx context.Context, s Store, key BalanceKey) (LeaveBalance, error) {
	b, err := s.GetBalance(ctx, key)
	if err != nil {
		return LeaveBalance{}, err
	}
	leaves, err := s.ListLeaves(ctx, LeaveFilter{
		PersonID:    key.PersonID,
		LeaveTypeID: key.LeaveTypeID,
		Year:        key.Year,
		Statuses:    liveStatuses,
	})
	if err != nil {
		return LeaveBalance{}, err
	}

	used, pending := decimal.Zero, decimal.Zero
	for _, l := range leaves {
		switch {
		case l.Status == StatusPending:
			pending = pending.Add(l.TotalDays)
		case l.Status.Consumes():
			used = used.Add(l.TotalDays)
		}
	}
	if b.UsedDays.Equal(used) && b.PendingDays.Equal(pending) {
		b.Recompute()
		return b, nil
	}

	b.UsedDays = used
	b.PendingDays = pending
	b.Recompute()
	b.UpdatedAt = ls.Clock.Now()
	if err := s.SaveBalance(ctx, b); err != nil {
		return LeaveBalance{}, err
	}
	return b, nil
}

// =============================================================================
// MANUAL ADJUSTMENT
// =============================================================================

// AdjustBalance adds delta to ManualAdjustment. Requires a reason and a
// non-zero delta; refuses deltas that would leave remaining days negative.
func (ls *LedgerService) AdjustBalance(ctx context.Context, personID PersonID, typeID LeaveTypeID, year int, delta decimal.Decimal, reason, actorID string) (LeaveBalance, error) {
	var out LeaveBalance
	err := ls.adjust(ctx, BalanceKey{PersonID: personID, LeaveTypeID: typeID, Year: year}, delta, reason, actorID, &out)
	ls.Metrics.ObserveRequest("adjust", err)
	return out, err
}

func (ls *LedgerService) adjust(ctx context.Context, key BalanceKey, delta decimal.Decimal, reason, actorID string, out *LeaveBalance) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return newValidationError("reason", "is required")
	}
	if delta.IsZero() {
		return newValidationError("delta_days", "must not be zero")
	}

	return ls.withKeys(ctx, func(s Store) error {
		b, err := ls.recalculate(ctx, s, key)
		if err != nil {
			return err
		}
		projected := b.AvailableDays.Add(delta).Sub(b.UsedDays).Sub(b.PendingDays)
		if projected.IsNegative() {
			return newValidationError("delta_days",
				fmt.Sprintf("would leave %s remaining days", projected))
		}

		now := ls.Clock.Now()
		b.ManualAdjustment = b.ManualAdjustment.Add(delta)
		b.AdjustmentReason = reason
		b.AdjustmentDate = &now
		b.UpdatedAt = now
		b.Recompute()
		if err := s.SaveBalance(ctx, b); err != nil {
			return err
		}
		*out = b

		ls.Logger.Info("balance adjusted",
			zap.String("key", key.String()),
			zap.String("delta", delta.String()),
			zap.String("actor", actorID))
		return ls.audit(ctx, s, actorID, generic.AuditManualAdjust, string(b.ID), map[string]any{
			"key":       key.String(),
			"delta":     delta.String(),
			"reason":    reason,
			"remaining": b.RemainingDays.String(),
		})
	}, key.LockKey())
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteBalance removes a balance with no used or pending days.
func (ls *LedgerService) DeleteBalance(ctx context.Context, id BalanceID, actorID string) error {
	b, err := ls.Store.GetBalanceByID(ctx, id)
	if err != nil {
		return err
	}
	key := b.Key()
	err = ls.withKeys(ctx, func(s Store) error {
		fresh, err := ls.recalculate(ctx, s, key)
		if err != nil {
			return err
		}
		if !fresh.CanDelete() {
			return &StateTransitionError{Entity: "balance", ID: string(id), From: "in use", Action: "delete"}
		}
		if err := s.DeleteBalance(ctx, id); err != nil {
			return err
		}
		return ls.audit(ctx, s, actorID, generic.AuditBalanceDeleted, string(id), map[string]any{
			"key": key.String(),
		})
	}, key.LockKey())
	ls.Metrics.ObserveRequest("delete_balance", err)
	return err
}

// =============================================================================
// MONTHLY ACCRUAL
// =============================================================================

type AccrualSummary struct {
	Cutoff      generic.TimePoint
	Processed   int // balances with a positive MonthlyAccrual
	Accrued     int // balances that received days
	Initialized int // balances with no LastAccrualDate, stamped without accrual
	Skipped     int
	Failed      int
	TotalDays   decimal.Decimal
}

// ProcessMonthlyAccrual credits every active balance with
// monthsElapsed * MonthlyAccrual, where monthsElapsed counts calendar
// months from LastAccrualDate to cutoff. LastAccrualDate moves to cutoff,
// so a second run with the same cutoff accrues nothing.
func (ls *LedgerService) ProcessMonthlyAccrual(ctx context.Context, cutoff generic.TimePoint) (AccrualSummary, error) {
	summary := AccrualSummary{Cutoff: cutoff, TotalDays: decimal.Zero}
	balances, err := ls.Store.ListBalances(ctx, BalanceFilter{ActiveOnly: true})
	if err != nil {
		ls.Metrics.ObserveBatch("accrual", 0, err)
		return summary, err
	}

	var errs []error
	for _, candidate := range balances {
		if !candidate.MonthlyAccrual.IsPositive() {
			summary.Skipped++
			continue
		}
		summary.Processed++

		key := candidate.Key()
		var added decimal.Decimal
		var initialized bool
		err := ls.withKeys(ctx, func(s Store) error {
			var err error
			added, initialized, err = ls.accrue(ctx, s, key, cutoff)
			return err
		}, key.LockKey())

		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, fmt.Errorf("accrual %s: %w", key, err))
			ls.Logger.Warn("accrual failed", zap.String("key", key.String()), zap.Error(err))
		case initialized:
			summary.Initialized++
		case added.IsPositive():
			summary.Accrued++
			summary.TotalDays = summary.TotalDays.Add(added)
		default:
			summary.Skipped++
		}
	}

	err = errors.Join(errs...)
	ls.Metrics.ObserveBatch("accrual", summary.Accrued, err)
	ls.Logger.Info("monthly accrual complete",
		zap.String("cutoff", cutoff.String()),
		zap.Int("processed", summary.Processed),
		zap.Int("accrued", summary.Accrued),
		zap.Int("failed", summary.Failed),
		zap.String("total_days", summary.TotalDays.String()))
	return summary, err
}

func (ls *LedgerService) accrue(ctx context.Context, s Store, key BalanceKey, cutoff generic.TimePoint) (decimal.Decimal, bool, error) {
	b, err := s.GetBalance(ctx, key)
	if err != nil {
		return decimal.Zero, false, err
	}
	if !b.IsActive || !b.MonthlyAccrual.IsPositive() {
		return decimal.Zero, false, nil
	}

	now := ls.Clock.Now()
	if b.LastAccrualDate.IsZero() {
		b.LastAccrualDate = cutoff
		b.UpdatedAt = now
		return decimal.Zero, true, s.SaveBalance(ctx, b)
	}

	months := generic.MonthsBetween(b.LastAccrualDate, cutoff)
	if months <= 0 {
		return decimal.Zero, false, nil
	}
	added := b.MonthlyAccrual.Mul(decimal.NewFromInt(int64(months)))
	b.AccruedToDate = b.AccruedToDate.Add(added)
	b.AllocatedDays = b.AllocatedDays.Add(added)
	b.LastAccrualDate = cutoff
	b.UpdatedAt = now
	b.Recompute()
	if err := s.SaveBalance(ctx, b); err != nil {
		return decimal.Zero, false, err
	}
	err = ls.audit(ctx, s, generic.SystemActor, generic.AuditAccrual, string(b.ID), map[string]any{
		"key":    key.String(),
		"months": months,
		"added":  added.String(),
		"cutoff": cutoff.String(),
	})
	return added, false, err
}

// =============================================================================
// YEAR-END CARRY-OVER
// =============================================================================

type CarryOverSummary struct {
	FromYear  int
	ToYear    int
	Processed int
	Carried   int
	Reverted  int // earlier carry reset to zero, nothing left to carry
	Skipped   int // type not eligible or nothing remaining
	Failed    int
	TotalDays decimal.Decimal
}

// ProcessYearEndCarryOver moves min(remaining, MaxCarryOverDays) of every
// eligible fromYear balance into CarriedOverDays of the toYear balance.
// CarriedOverDays is set, not added: a rerun replaces the earlier amount,
// and a source with nothing left resets it to zero. A change that would
// leave the toYear balance with negative remaining days fails that
// balance and keeps the earlier amount.
func (ls *LedgerService) ProcessYearEndCarryOver(ctx context.Context, fromYear, toYear int) (CarryOverSummary, error) {
	summary := CarryOverSummary{FromYear: fromYear, ToYear: toYear, TotalDays: decimal.Zero}
	if toYear <= fromYear {
		return summary, newValidationError("to_year", "must be after from_year")
	}
	balances, err := ls.Store.ListBalances(ctx, BalanceFilter{Year: fromYear, ActiveOnly: true})
	if err != nil {
		ls.Metrics.ObserveBatch("carryover", 0, err)
		return summary, err
	}

	var errs []error
	for _, candidate := range balances {
		summary.Processed++
		lt, err := ls.Types.GetLeaveType(ctx, candidate.LeaveTypeID)
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("carry-over %s: %w", candidate.Key(), err))
			continue
		}
		if !lt.CanCarryOver {
			summary.Skipped++
			continue
		}

		fromKey := candidate.Key()
		toKey := BalanceKey{PersonID: fromKey.PersonID, LeaveTypeID: fromKey.LeaveTypeID, Year: toYear}
		var (
			carried  decimal.Decimal
			reverted bool
		)
		err = ls.withKeys(ctx, func(s Store) error {
			var err error
			carried, reverted, err = ls.carryOver(ctx, s, lt, fromKey, toKey)
			return err
		}, fromKey.LockKey(), toKey.LockKey())

		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, fmt.Errorf("carry-over %s: %w", fromKey, err))
			ls.Logger.Warn("carry-over failed", zap.String("key", fromKey.String()), zap.Error(err))
		case carried.IsPositive():
			summary.Carried++
			summary.TotalDays = summary.TotalDays.Add(carried)
		case reverted:
			summary.Reverted++
		default:
			summary.Skipped++
		}
	}

	err = errors.Join(errs...)
	ls.Metrics.ObserveBatch("carryover", summary.Carried, err)
	ls.Logger.Info("year-end carry-over complete",
		zap.Int("from_year", fromYear),
		zap.Int("to_year", toYear),
		zap.Int("carried", summary.Carried),
		zap.Int("failed", summary.Failed),
		zap.String("total_days", summary.TotalDays.String()))
	return summary, err
}

// carryOver sets the toYear carry to min(remaining, MaxCarryOverDays) of
// fromYear. reverted is true when an earlier positive carry was reset to zero.
func (ls *LedgerService) carryOver(ctx context.Context, s Store, lt LeaveType, fromKey, toKey BalanceKey) (carry decimal.Decimal, reverted bool, err error) {
	from, err := ls.recalculate(ctx, s, fromKey)
	if err != nil {
		return decimal.Zero, false, err
	}
	carry = generic.MinDays(from.RemainingDays, lt.MaxCarryOverDays)
	if carry.IsNegative() {
		carry = decimal.Zero
	}

	if carry.IsPositive() {
		if _, _, err := ls.ensureBalance(ctx, s, toKey, generic.SystemActor); err != nil {
			return decimal.Zero, false, err
		}
	} else if _, err := s.GetBalance(ctx, toKey); err != nil {
		if generic.IsNotFound(err) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}

	to, err := ls.recalculate(ctx, s, toKey)
	if err != nil {
		return decimal.Zero, false, err
	}
	previous := to.CarriedOverDays
	if previous.Equal(carry) {
		return carry, false, nil
	}

	to.CarriedOverDays = carry
	to.Recompute()
	if to.RemainingDays.IsNegative() {
		return decimal.Zero, false, newValidationError("carried_over_days",
			fmt.Sprintf("changing %s to %s would leave %s remaining days in %s",
				previous, carry, to.RemainingDays, toKey))
	}
	to.UpdatedAt = ls.Clock.Now()
	if err := s.SaveBalance(ctx, to); err != nil {
		return decimal.Zero, false, err
	}
	err = ls.audit(ctx, s, generic.SystemActor, generic.AuditCarryOver, string(to.ID), map[string]any{
		"from":      fromKey.String(),
		"to":        toKey.String(),
		"remaining": from.RemainingDays.String(),
		"previous":  previous.String(),
		"carried":   carry.String(),
	})
	return carry, !carry.IsPositive(), err
}
