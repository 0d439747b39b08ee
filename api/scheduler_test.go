package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/timeoff"
)

func newTestScheduler(t *testing.T) (*Scheduler, *testServer) {
	t.Helper()
	ts := newTestServer(t)
	s := NewScheduler(ts.ledger, ts.leaves, ts.ledger.Locker, nil)
	s.LockWait = 20 * time.Millisecond
	return s, ts
}

func TestScheduler_RunNow(t *testing.T) {
	// GIVEN: A 2024 annual balance with 8 days left and an approved leave
	// starting today
	s, ts := newTestScheduler(t)
	ctx := context.Background()
	_, err := ts.ledger.AllocateBalance(ctx, timeoff.BalanceKey{PersonID: "bob", LeaveTypeID: timeoff.AnnualLeaveID, Year: 2024},
		generic.Days(8), generic.Days(0), "hr")
	require.NoError(t, err)
	leave := ts.createLeave(t, "2025-03-17", "2025-03-18")
	_, err = ts.leaves.Approve(ctx, timeoff.LeaveID(leave.ID), "bob", "")
	require.NoError(t, err)
	ts.clock.AdvanceDays(14)

	// WHEN: The jobs run
	res := s.RunNow(ctx)

	// THEN: Every job ran and carry-over capped the 8 days at 5
	assert.False(t, res.Skipped)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Aging.Started)
	require.NotNil(t, res.CarryOver)
	assert.Equal(t, 1, res.CarryOver.Carried)

	b, err := ts.ledger.GetBalance(ctx, "bob", timeoff.AnnualLeaveID, 2025)
	require.NoError(t, err)
	assert.True(t, b.CarriedOverDays.Equal(generic.Days(5)), "carried %s", b.CarriedOverDays)

	// Carry-over runs once per year per process
	again := s.RunNow(ctx)
	assert.Nil(t, again.CarryOver)
	assert.Zero(t, again.Aging.Started)
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.running.Store(true)

	res := s.RunNow(context.Background())

	assert.True(t, res.Skipped)
}

func TestScheduler_JobLockBusy(t *testing.T) {
	// GIVEN: Another instance holds the accrual job key
	s, _ := newTestScheduler(t)
	unlock, err := s.Locker.Lock(context.Background(), "job:"+JobAccrual)
	require.NoError(t, err)
	defer unlock()

	// WHEN: The jobs run
	res := s.RunNow(context.Background())

	// THEN: Accrual is skipped and the other jobs still run
	require.Contains(t, res.Errors, JobAccrual)
	assert.ErrorIs(t, res.Errors[JobAccrual], generic.ErrLockNotAcquired)
	assert.NotContains(t, res.Errors, JobAging)
	assert.NotNil(t, res.CarryOver)
}

func TestScheduler_StartStop(t *testing.T) {
	s, _ := newTestScheduler(t)

	s.Enabled = false
	s.Start()
	assert.Nil(t, s.ticker, "disabled scheduler does not start")

	s.Enabled = true
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
	assert.Nil(t, s.ticker)
}

func TestScheduler_NextRunTime(t *testing.T) {
	s, ts := newTestScheduler(t)
	s.CheckInterval = 30 * time.Minute

	assert.True(t, s.NextRunTime().Equal(ts.clock.Now().Add(30*time.Minute)))
}
