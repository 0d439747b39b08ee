package timeoff_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/store/memory"
	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	alice timeoff.PersonID = "alice"
	bob   timeoff.PersonID = "bob"
	carol timeoff.PersonID = "carol" // inactive

	vacationID timeoff.LeaveTypeID = "vacation"
)

// monday is "today" for every test unless the clock is moved.
var monday = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	store  *memory.Store
	clock  *generic.FixedClock
	types  *timeoff.Registry
	ledger *timeoff.LedgerService
	leaves *timeoff.RequestService
}

// newFixture wires the services on a memory store with three persons and
// a 14 day "vacation" type that needs no notice.
func newFixture(t require.TestingT) *fixture {
	ctx := context.Background()
	store := memory.New()
	clock := generic.NewFixedClock(monday)

	types := timeoff.NewRegistry(store, clock, nil)
	ledger := timeoff.NewLedgerService(store, types)
	ledger.Clock = clock
	leaves := timeoff.NewRequestService(ledger, store)

	for _, p := range []timeoff.Person{
		{ID: alice, Name: "Alice", IsActive: true},
		{ID: bob, Name: "Bob", IsActive: true},
		{ID: carol, Name: "Carol", IsActive: false},
	} {
		require.NoError(t, store.SavePerson(ctx, p))
	}
	_, err := types.Create(ctx, vacation(), generic.SystemActor)
	require.NoError(t, err)

	return &fixture{ctx: ctx, store: store, clock: clock, types: types, ledger: ledger, leaves: leaves}
}

func vacation() timeoff.LeaveType {
	return timeoff.LeaveType{
		ID:               vacationID,
		Name:             "Vacation",
		MaxDaysPerYear:   generic.Days(14),
		CanCarryOver:     true,
		MaxCarryOverDays: generic.Days(5),
		IsActive:         true,
	}
}

func day(s string) generic.TimePoint {
	d, err := generic.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (f *fixture) request(person timeoff.PersonID, start, end string) (timeoff.Leave, error) {
	return f.leaves.Create(f.ctx, timeoff.LeaveRequest{
		PersonID:    person,
		LeaveTypeID: vacationID,
		StartDate:   day(start),
		EndDate:     day(end),
		Reason:      "holiday",
	})
}

func (f *fixture) mustRequest(t require.TestingT, person timeoff.PersonID, start, end string) timeoff.Leave {
	l, err := f.request(person, start, end)
	require.NoError(t, err)
	return l
}

func (f *fixture) balance(t require.TestingT, person timeoff.PersonID) timeoff.LeaveBalance {
	b, err := f.ledger.GetBalance(f.ctx, person, vacationID, 2025)
	require.NoError(t, err)
	return b
}

func (f *fixture) setToday(s string) {
	f.clock.Set(day(s).Time.Add(9 * time.Hour))
}

func assertDays(t assert.TestingT, want float64, got decimal.Decimal, field string) {
	assert.Truef(t, generic.Days(want).Equal(got), "%s: want %v, got %s", field, want, got)
}

type denyAll struct{}

func (denyAll) CanApprove(context.Context, timeoff.LeaveID, timeoff.PersonID) (bool, error) {
	return false, nil
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestLeaveStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to timeoff.LeaveStatus
		want     bool
	}{
		{timeoff.StatusPending, timeoff.StatusApproved, true},
		{timeoff.StatusPending, timeoff.StatusRejected, true},
		{timeoff.StatusPending, timeoff.StatusCancelled, true},
		{timeoff.StatusPending, timeoff.StatusInProgress, false},
		{timeoff.StatusApproved, timeoff.StatusInProgress, true},
		{timeoff.StatusApproved, timeoff.StatusCancelled, true},
		{timeoff.StatusApproved, timeoff.StatusRejected, false},
		{timeoff.StatusInProgress, timeoff.StatusCompleted, true},
		{timeoff.StatusInProgress, timeoff.StatusCancelled, true},
		{timeoff.StatusCompleted, timeoff.StatusCancelled, false},
		{timeoff.StatusRejected, timeoff.StatusPending, false},
		{timeoff.StatusCancelled, timeoff.StatusApproved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, timeoff.StatusCompleted.IsTerminal())
	assert.False(t, timeoff.StatusInProgress.IsTerminal())
	assert.False(t, timeoff.StatusRejected.IsLive())
	assert.True(t, timeoff.StatusCompleted.Consumes())
	assert.False(t, timeoff.StatusPending.Consumes())
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_ReservesPendingDays(t *testing.T) {
	// GIVEN: Alice has the default 14 day vacation allocation
	// WHEN: She requests Mon 10 - Fri 14 March
	// THEN: The leave is pending for 5 days and 9 days remain
	f := newFixture(t)

	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	assert.Equal(t, timeoff.StatusPending, l.Status)
	assertDays(t, 5, l.TotalDays, "total")

	b := f.balance(t, alice)
	assertDays(t, 14, b.AllocatedDays, "allocated")
	assertDays(t, 5, b.PendingDays, "pending")
	assertDays(t, 0, b.UsedDays, "used")
	assertDays(t, 9, b.RemainingDays, "remaining")

	entries, err := f.store.QueryAudit(f.ctx, generic.AuditFilter{Subject: string(l.ID)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, generic.AuditLeaveCreated, entries[0].Action)
	assert.Equal(t, string(alice), entries[0].ActorID)
}

func TestCreate_WeekendsAreFree(t *testing.T) {
	// GIVEN: A range spanning a weekend (Thu 13 - Tue 18 March)
	// WHEN: Requested
	// THEN: Only the four working days are charged
	f := newFixture(t)

	l := f.mustRequest(t, alice, "2025-03-13", "2025-03-18")

	assertDays(t, 4, l.TotalDays, "total")
}

func TestCreate_StartingToday(t *testing.T) {
	f := newFixture(t)

	l := f.mustRequest(t, alice, "2025-03-03", "2025-03-03")

	assertDays(t, 1, l.TotalDays, "total")
}

func TestCreate_RejectsInvalidDates(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"start in the past", "2025-03-02", "2025-03-04"},
		{"end before start", "2025-03-12", "2025-03-10"},
		{"weekend only", "2025-03-08", "2025-03-09"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.request(alice, tt.start, tt.end)

			require.ErrorIs(t, err, generic.ErrValidation)
			leaves, err := f.leaves.List(f.ctx, timeoff.LeaveFilter{PersonID: alice})
			require.NoError(t, err)
			assert.Empty(t, leaves)
		})
	}
}

func TestCreate_EnforcesNotice(t *testing.T) {
	// GIVEN: Annual leave needs 7 days notice
	f := newFixture(t)
	_, err := f.types.Create(f.ctx, timeoff.AnnualLeave(20, 5), generic.SystemActor)
	require.NoError(t, err)

	req := timeoff.LeaveRequest{PersonID: alice, LeaveTypeID: timeoff.AnnualLeaveID}

	// WHEN: Requested two days ahead
	// THEN: Refused
	req.StartDate, req.EndDate = day("2025-03-05"), day("2025-03-06")
	_, err = f.leaves.Create(f.ctx, req)
	var verr *timeoff.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "start_date", verr.Field)

	// WHEN: Requested exactly seven days ahead
	// THEN: Accepted
	req.StartDate, req.EndDate = day("2025-03-10"), day("2025-03-11")
	_, err = f.leaves.Create(f.ctx, req)
	require.NoError(t, err)
}

func TestCreate_ChecksReferences(t *testing.T) {
	f := newFixture(t)
	inactive := timeoff.SickLeave(10)
	inactive.IsActive = false
	_, err := f.types.Create(f.ctx, inactive, generic.SystemActor)
	require.NoError(t, err)

	_, err = f.request("nobody", "2025-03-10", "2025-03-14")
	assert.ErrorIs(t, err, generic.ErrNotFound, "unknown person")

	_, err = f.request(carol, "2025-03-10", "2025-03-14")
	assert.ErrorIs(t, err, generic.ErrValidation, "inactive person")

	_, err = f.leaves.Create(f.ctx, timeoff.LeaveRequest{
		PersonID: alice, LeaveTypeID: "unknown",
		StartDate: day("2025-03-10"), EndDate: day("2025-03-14"),
	})
	assert.ErrorIs(t, err, generic.ErrNotFound, "unknown type")

	_, err = f.leaves.Create(f.ctx, timeoff.LeaveRequest{
		PersonID: alice, LeaveTypeID: timeoff.SickLeaveID,
		StartDate: day("2025-03-10"), EndDate: day("2025-03-14"),
	})
	assert.ErrorIs(t, err, generic.ErrValidation, "inactive type")
}

func TestCreate_InsufficientBalance(t *testing.T) {
	// GIVEN: 14 days allocated
	// WHEN: Requesting three full weeks (15 working days)
	// THEN: InsufficientBalanceError with a shortfall of 1
	f := newFixture(t)

	_, err := f.request(alice, "2025-03-10", "2025-03-28")

	var insufficient *timeoff.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
	assertDays(t, 15, insufficient.Requested, "requested")
	assertDays(t, 1, insufficient.Shortfall(), "shortfall")

	b := f.balance(t, alice)
	assertDays(t, 0, b.PendingDays, "pending")
}

func TestCreate_OverlapConflicts(t *testing.T) {
	// GIVEN: A pending leave 10-14 March
	// WHEN: Requesting 12-18 March, of the same type or another
	// THEN: DateConflictError naming the first leave
	f := newFixture(t)
	_, err := f.types.Create(f.ctx, timeoff.SickLeave(10), generic.SystemActor)
	require.NoError(t, err)
	first := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	_, err = f.request(alice, "2025-03-12", "2025-03-18")
	var conflict *timeoff.DateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []timeoff.LeaveID{first.ID}, conflict.Conflicts)

	_, err = f.leaves.Create(f.ctx, timeoff.LeaveRequest{
		PersonID: alice, LeaveTypeID: timeoff.SickLeaveID,
		StartDate: day("2025-03-14"), EndDate: day("2025-03-14"),
	})
	assert.ErrorIs(t, err, generic.ErrDateConflict)

	// Other people are unaffected
	f.mustRequest(t, bob, "2025-03-10", "2025-03-14")

	b := f.balance(t, alice)
	assertDays(t, 5, b.PendingDays, "pending")
}

func TestCreate_RejectedLeaveFreesDates(t *testing.T) {
	f := newFixture(t)
	first := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
	_, err := f.leaves.Reject(f.ctx, first.ID, bob, "team offsite")
	require.NoError(t, err)

	f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
}

func TestCreate_ConcurrentRequestsCannotOverdraw(t *testing.T) {
	// GIVEN: 14 days allocated
	// WHEN: Three non-overlapping 5 day requests race
	// THEN: Exactly two succeed; remaining never goes negative
	f := newFixture(t)
	ranges := [][2]string{
		{"2025-03-10", "2025-03-14"},
		{"2025-03-17", "2025-03-21"},
		{"2025-03-24", "2025-03-28"},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ranges))
	for i, r := range ranges {
		wg.Add(1)
		go func(i int, start, end string) {
			defer wg.Done()
			_, errs[i] = f.request(alice, start, end)
		}(i, r[0], r[1])
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, generic.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, insufficient)

	b := f.balance(t, alice)
	assertDays(t, 10, b.PendingDays, "pending")
	assertDays(t, 4, b.RemainingDays, "remaining")
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_RecomputesDays(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	updated, err := f.leaves.Update(f.ctx, l.ID, timeoff.LeaveRequest{EndDate: day("2025-03-12")}, alice)
	require.NoError(t, err)

	assertDays(t, 3, updated.TotalDays, "total")
	assert.Equal(t, "holiday", updated.Reason)
	b := f.balance(t, alice)
	assertDays(t, 3, b.PendingDays, "pending")
	assertDays(t, 11, b.RemainingDays, "remaining")
}

func TestUpdate_CountsOwnDaysAsAvailable(t *testing.T) {
	// GIVEN: 14 allocated, a pending 5 day leave (9 remaining)
	// WHEN: Growing it to 14 working days
	// THEN: Allowed, because its own 5 days are released first
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	_, err := f.leaves.Update(f.ctx, l.ID, timeoff.LeaveRequest{EndDate: day("2025-03-27")}, alice)
	require.NoError(t, err)
	assertDays(t, 0, f.balance(t, alice).RemainingDays, "remaining")

	// 15 working days is one too many
	_, err = f.leaves.Update(f.ctx, l.ID, timeoff.LeaveRequest{EndDate: day("2025-03-28")}, alice)
	assert.ErrorIs(t, err, generic.ErrInsufficientBalance)
}

func TestUpdate_ChangingTypeMovesPendingDays(t *testing.T) {
	f := newFixture(t)
	_, err := f.types.Create(f.ctx, timeoff.SickLeave(10), generic.SystemActor)
	require.NoError(t, err)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	_, err = f.leaves.Update(f.ctx, l.ID, timeoff.LeaveRequest{LeaveTypeID: timeoff.SickLeaveID}, alice)
	require.NoError(t, err)

	assertDays(t, 0, f.balance(t, alice).PendingDays, "vacation pending")
	sick, err := f.ledger.GetBalance(f.ctx, alice, timeoff.SickLeaveID, 2025)
	require.NoError(t, err)
	assertDays(t, 5, sick.PendingDays, "sick pending")
}

func TestUpdate_OnlyPending(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
	require.NoError(t, err)

	_, err = f.leaves.Update(f.ctx, l.ID, timeoff.LeaveRequest{EndDate: day("2025-03-12")}, alice)

	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestApprove_BalanceMovesOnRecalculate(t *testing.T) {
	// GIVEN: A pending 5 day leave, approval without reconciliation
	// WHEN: Bob approves it
	// THEN: Stored pending/used stay until the balance is recalculated,
	//       and remaining is 9 either way
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	approved, err := f.leaves.Approve(f.ctx, l.ID, bob, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, approved.Status)
	assert.Equal(t, bob, approved.ApprovedByID)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, "enjoy", approved.ApprovalNotes)

	b := f.balance(t, alice)
	assertDays(t, 5, b.PendingDays, "pending before recalc")
	assertDays(t, 0, b.UsedDays, "used before recalc")

	b, err = f.ledger.RecalculateBalance(f.ctx, alice, vacationID, 2025)
	require.NoError(t, err)
	assertDays(t, 0, b.PendingDays, "pending")
	assertDays(t, 5, b.UsedDays, "used")
	assertDays(t, 9, b.RemainingDays, "remaining")
}

func TestApprove_ReconcileOnApprove(t *testing.T) {
	f := newFixture(t)
	f.leaves.ReconcileOnApprove = true
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
	require.NoError(t, err)

	b := f.balance(t, alice)
	assertDays(t, 0, b.PendingDays, "pending")
	assertDays(t, 5, b.UsedDays, "used")
}

func TestApprove_RequiresPending(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
	require.NoError(t, err)

	_, err = f.leaves.Approve(f.ctx, l.ID, bob, "")
	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)

	_, err = f.leaves.Reject(f.ctx, l.ID, bob, "too late")
	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)

	_, err = f.leaves.Approve(f.ctx, "missing", bob, "")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestDecide_SelfApprovalRefused(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	_, err := f.leaves.Approve(f.ctx, l.ID, alice, "")
	assert.ErrorIs(t, err, generic.ErrUnauthorized)

	_, err = f.leaves.Reject(f.ctx, l.ID, alice, "changed my mind")
	assert.ErrorIs(t, err, generic.ErrUnauthorized)

	got, err := f.leaves.Get(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusPending, got.Status)
}

func TestDecide_AuthorizerDenies(t *testing.T) {
	f := newFixture(t)
	f.leaves.Authorizer = denyAll{}
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")

	var unauthorized *timeoff.UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, "approve", unauthorized.Action)
}

func TestDecide_RequiresApprover(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	_, err := f.leaves.Approve(f.ctx, l.ID, "", "")

	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestReject_ReleasesPendingDays(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	rejected, err := f.leaves.Reject(f.ctx, l.ID, bob, "release week")
	require.NoError(t, err)

	assert.Equal(t, timeoff.StatusRejected, rejected.Status)
	assert.Equal(t, "release week", rejected.RejectionReason)
	b := f.balance(t, alice)
	assertDays(t, 0, b.PendingDays, "pending")
	assertDays(t, 14, b.RemainingDays, "remaining")
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_ByRequesterReleasesDays(t *testing.T) {
	tests := []struct {
		name    string
		approve bool
	}{
		{"pending", false},
		{"approved", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.leaves.ReconcileOnApprove = true
			l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
			if tt.approve {
				_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
				require.NoError(t, err)
			}

			cancelled, err := f.leaves.Cancel(f.ctx, l.ID, alice)
			require.NoError(t, err)

			assert.Equal(t, timeoff.StatusCancelled, cancelled.Status)
			assert.Equal(t, alice, cancelled.CancelledByID)
			b := f.balance(t, alice)
			assertDays(t, 0, b.PendingDays, "pending")
			assertDays(t, 0, b.UsedDays, "used")
			assertDays(t, 14, b.RemainingDays, "remaining")
		})
	}
}

func TestCancel_OthersNeedAuthority(t *testing.T) {
	f := newFixture(t)
	f.leaves.Authorizer = denyAll{}
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	_, err := f.leaves.Cancel(f.ctx, l.ID, bob)
	assert.ErrorIs(t, err, generic.ErrUnauthorized)

	_, err = f.leaves.Cancel(f.ctx, l.ID, alice)
	assert.NoError(t, err)
}

func TestCancel_TerminalStatesRefused(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
	require.NoError(t, err)
	f.setToday("2025-03-17")
	_, err = f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)

	_, err = f.leaves.Cancel(f.ctx, l.ID, alice)

	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)
}

func TestCancel_InProgressKeepsTakenDays(t *testing.T) {
	// GIVEN: An approved leave 10-14 March, running since monday
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
	require.NoError(t, err)
	f.setToday("2025-03-12")
	_, err = f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)

	// WHEN: Alice comes back on wednesday and cancels the rest
	ended, err := f.leaves.Cancel(f.ctx, l.ID, alice)
	require.NoError(t, err)

	// THEN: Monday and tuesday stay used, the remaining three are released
	assert.Equal(t, timeoff.StatusCompleted, ended.Status)
	assert.Equal(t, "2025-03-11", ended.EndDate.String())
	assertDays(t, 2, ended.TotalDays, "total")
	assert.Equal(t, alice, ended.CancelledByID)
	b := f.balance(t, alice)
	assertDays(t, 2, b.UsedDays, "used")
	assertDays(t, 12, b.RemainingDays, "remaining")

	entries, err := f.store.QueryAudit(f.ctx, generic.AuditFilter{Subject: string(l.ID), Actions: []generic.AuditAction{generic.AuditLeaveCancelled}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "3", entries[0].Payload["released_days"])
	assert.Equal(t, "2025-03-14", entries[0].Payload["original_end_date"])

	// A completed leave cannot be cancelled again
	_, err = f.leaves.Cancel(f.ctx, l.ID, alice)
	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)
}

func TestCancel_InProgressOnFirstDayReleasesAll(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
	require.NoError(t, err)
	f.setToday("2025-03-10")
	_, err = f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)

	cancelled, err := f.leaves.Cancel(f.ctx, l.ID, alice)
	require.NoError(t, err)

	assert.Equal(t, timeoff.StatusCancelled, cancelled.Status)
	assert.Equal(t, "2025-03-14", cancelled.EndDate.String())
	b := f.balance(t, alice)
	assertDays(t, 0, b.UsedDays, "used")
	assertDays(t, 14, b.RemainingDays, "remaining")
}

// =============================================================================
// AGING
// =============================================================================

func TestAgeStatuses_FollowsCalendar(t *testing.T) {
	// GIVEN: An approved leave 10-14 March
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")
	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
	require.NoError(t, err)

	// WHEN: Aged before it starts
	// THEN: Nothing moves
	summary, err := f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, timeoff.AgingSummary{Examined: 1}, summary)

	// WHEN: Aged on its first day, twice
	// THEN: InProgress once
	f.setToday("2025-03-10")
	summary, err = f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Started)
	summary, err = f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Started)

	got, err := f.leaves.Get(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusInProgress, got.Status)

	// WHEN: Aged the day after it ends
	// THEN: Completed, and the days stay used
	f.setToday("2025-03-15")
	summary, err = f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	got, err = f.leaves.Get(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusCompleted, got.Status)

	b, err := f.ledger.RecalculateBalance(f.ctx, alice, vacationID, 2025)
	require.NoError(t, err)
	assertDays(t, 5, b.UsedDays, "used")
}

func TestAgeStatuses_ApprovedPastEndCompletes(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-11")
	_, err := f.leaves.Approve(f.ctx, l.ID, bob, "")
	require.NoError(t, err)

	f.setToday("2025-04-01")
	summary, err := f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Completed)
	assert.Zero(t, summary.Started)
}

func TestAgeStatuses_IgnoresPending(t *testing.T) {
	f := newFixture(t)
	f.mustRequest(t, alice, "2025-03-10", "2025-03-11")

	f.setToday("2025-04-01")
	summary, err := f.leaves.AgeStatuses(f.ctx)
	require.NoError(t, err)

	assert.Zero(t, summary.Examined)
}

// =============================================================================
// CONFLICT CHECK
// =============================================================================

func TestCheckConflicts(t *testing.T) {
	f := newFixture(t)
	l := f.mustRequest(t, alice, "2025-03-10", "2025-03-14")

	found, err := f.leaves.CheckConflicts(f.ctx, alice, day("2025-03-14"), day("2025-03-20"), "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, l.ID, found[0].ID)

	found, err = f.leaves.CheckConflicts(f.ctx, alice, day("2025-03-14"), day("2025-03-20"), l.ID)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = f.leaves.CheckConflicts(f.ctx, alice, day("2025-03-15"), day("2025-03-16"), "")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = f.leaves.CheckConflicts(f.ctx, alice, day("2025-03-20"), day("2025-03-14"), "")
	assert.ErrorIs(t, err, generic.ErrValidation)
}
