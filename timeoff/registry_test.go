package timeoff_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/timeoff"
)

func TestRegistry_CreateValidates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*timeoff.LeaveType)
		field  string
	}{
		{"blank name", func(lt *timeoff.LeaveType) { lt.Name = " " }, "name"},
		{"negative max", func(lt *timeoff.LeaveType) { lt.MaxDaysPerYear = generic.Days(-1) }, "max_days_per_year"},
		{"carry without cap", func(lt *timeoff.LeaveType) { lt.MaxCarryOverDays = generic.Days(0) }, "max_carry_over_days"},
		{"negative notice", func(lt *timeoff.LeaveType) { lt.NotificationDays = -1 }, "notification_days"},
		{"duplicate name", func(lt *timeoff.LeaveType) { lt.ID = "other"; lt.Name = "VACATION" }, "name"},
		{"duplicate id", func(lt *timeoff.LeaveType) { lt.Name = "Something else" }, "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			lt := vacation()
			tt.mutate(&lt)

			_, err := f.types.Create(f.ctx, lt, "hr")

			var verr *timeoff.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegistry_CreateGeneratesID(t *testing.T) {
	f := newFixture(t)

	lt, err := f.types.Create(f.ctx, timeoff.LeaveType{Name: "Study", MaxDaysPerYear: generic.Days(3), IsActive: true}, "hr")
	require.NoError(t, err)

	assert.NotEmpty(t, lt.ID)
	assert.True(t, monday.Equal(lt.CreatedAt))
	got, err := f.types.GetLeaveType(f.ctx, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Study", got.Name)

	entries, err := f.store.QueryAudit(f.ctx, generic.AuditFilter{Subject: string(lt.ID)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, generic.AuditLeaveTypeChanged, entries[0].Action)
}

func TestRegistry_Update(t *testing.T) {
	f := newFixture(t)
	lt := vacation()
	lt.Name = "Holidays"
	lt.MaxDaysPerYear = generic.Days(20)

	updated, err := f.types.Update(f.ctx, lt, "hr")
	require.NoError(t, err)

	assert.Equal(t, "Holidays", updated.Name)
	got, err := f.types.GetLeaveType(f.ctx, vacationID)
	require.NoError(t, err)
	assertDays(t, 20, got.MaxDaysPerYear, "max")

	// The store is the source the cache reloads from
	f.types.Invalidate()
	got, err = f.types.GetLeaveType(f.ctx, vacationID)
	require.NoError(t, err)
	assert.Equal(t, "Holidays", got.Name)

	_, err = f.types.Update(f.ctx, timeoff.LeaveType{ID: "missing", Name: "Missing"}, "hr")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRegistry_DeleteRefusesInUse(t *testing.T) {
	// GIVEN: A balance references the vacation type
	f := newFixture(t)
	_, err := f.ledger.EnsureBalanceExists(f.ctx, alice, vacationID, 2025)
	require.NoError(t, err)
	_, err = f.types.Create(f.ctx, timeoff.SickLeave(10), "hr")
	require.NoError(t, err)

	// WHEN/THEN: Deleting it is refused; the unused type goes
	err = f.types.Delete(f.ctx, vacationID, "hr")
	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)

	require.NoError(t, f.types.Delete(f.ctx, timeoff.SickLeaveID, "hr"))
	_, err = f.types.GetLeaveType(f.ctx, timeoff.SickLeaveID)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	err = f.types.Delete(f.ctx, timeoff.SickLeaveID, "hr")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestRegistry_DeletedTypeCannotGainReferences(t *testing.T) {
	// GIVEN: The registry cache still holds a type already gone from the store
	f := newFixture(t)
	_, err := f.types.Create(f.ctx, timeoff.SickLeave(10), "hr")
	require.NoError(t, err)
	_, err = f.types.GetLeaveType(f.ctx, timeoff.SickLeaveID)
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteLeaveType(f.ctx, timeoff.SickLeaveID))

	// WHEN: A balance and a leave are created for it
	_, balanceErr := f.ledger.EnsureBalanceExists(f.ctx, alice, timeoff.SickLeaveID, 2025)
	_, leaveErr := f.leaves.Create(f.ctx, timeoff.LeaveRequest{
		PersonID:    alice,
		LeaveTypeID: timeoff.SickLeaveID,
		StartDate:   day("2025-03-10"),
		EndDate:     day("2025-03-10"),
	})

	// THEN: Both fail and nothing references the type
	assert.ErrorIs(t, balanceErr, generic.ErrNotFound)
	assert.ErrorIs(t, leaveErr, generic.ErrNotFound)
	inUse, err := f.store.LeaveTypeInUse(f.ctx, timeoff.SickLeaveID)
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestRegistry_DeleteRacingCreate(t *testing.T) {
	// GIVEN: A leave request and a delete of its type running at once
	// THEN: Either the type survives or nothing references it
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		_, err := f.types.Create(f.ctx, timeoff.SickLeave(10), "hr")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.leaves.Create(f.ctx, timeoff.LeaveRequest{
				PersonID:    alice,
				LeaveTypeID: timeoff.SickLeaveID,
				StartDate:   day("2025-03-10"),
				EndDate:     day("2025-03-11"),
			})
		}()
		go func() {
			defer wg.Done()
			_ = f.types.Delete(f.ctx, timeoff.SickLeaveID, "hr")
		}()
		wg.Wait()

		if _, err := f.store.GetLeaveType(f.ctx, timeoff.SickLeaveID); generic.IsNotFound(err) {
			inUse, err := f.store.LeaveTypeInUse(f.ctx, timeoff.SickLeaveID)
			require.NoError(t, err)
			assert.False(t, inUse, "run %d: deleted type is still referenced", i)
		}
	}
}

func TestRegistry_ListOrderedByName(t *testing.T) {
	f := newFixture(t)
	_, err := timeoff.SeedDefaults(f.ctx, f.types)
	require.NoError(t, err)

	types, err := f.types.List(f.ctx)
	require.NoError(t, err)

	names := make([]string, len(types))
	for i, lt := range types {
		names[i] = lt.Name
	}
	assert.IsNonDecreasing(t, names)
	assert.Len(t, types, 6)
}

func TestSeedDefaults_Idempotent(t *testing.T) {
	f := newFixture(t)

	created, err := timeoff.SeedDefaults(f.ctx, f.types)
	require.NoError(t, err)
	assert.Equal(t, len(timeoff.DefaultLeaveTypes()), created)

	created, err = timeoff.SeedDefaults(f.ctx, f.types)
	require.NoError(t, err)
	assert.Zero(t, created)

	annual, err := f.types.GetLeaveType(f.ctx, timeoff.AnnualLeaveID)
	require.NoError(t, err)
	assert.Equal(t, 7, annual.NotificationDays)
	assert.True(t, annual.CanCarryOver)
}

func TestPresets_Notice(t *testing.T) {
	tests := []struct {
		lt   timeoff.LeaveType
		want int
	}{
		{timeoff.AnnualLeave(20, 5), 7},
		{timeoff.SickLeave(10), 0},
		{timeoff.PersonalLeave(3), 1},
		{timeoff.ParentalLeave(60), 30},
		{timeoff.BereavementLeave(5), 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.lt.ID), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lt.NotificationDays)
			assert.NoError(t, tt.lt.Validate())
		})
	}
}
