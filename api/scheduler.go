/*
scheduler.go - Background leave jobs

PURPOSE:
  Periodically runs the batch operations that keep leaves and balances
  current without user action.

JOBS (in order, once per tick):
  1. aging:     Approved -> InProgress -> Completed by date
  2. accrual:   monthly accrual up to today
  3. carryover: year-end carry-over into the current year, once per
                year per process (the operation is idempotent, so a
                restart repeating it is harmless)

DESIGN:
  - Runs a background goroutine with configurable check interval
  - One run at a time per process; a tick arriving during a run is skipped
  - Each job holds the "job:<name>" key on the shared KeyLocker, so with the
    Redis locker only one instance runs a job at a time
  - Failures are logged per job; the next job still runs

USAGE:
  scheduler := NewScheduler(ledger, leaves, locker, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: /api/admin/* endpoints (manual runs)
  - timeoff/ledger.go, timeoff/request.go: the jobs themselves
*/
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/timeoff"
)

// Job names, also used as lock key suffixes.
const (
	JobAging     = "aging"
	JobAccrual   = "accrual"
	JobCarryOver = "carryover"
)

// Scheduler runs the leave batch jobs on a ticker.
type Scheduler struct {
	Ledger        *timeoff.LedgerService
	Leaves        *timeoff.RequestService
	Locker        generic.KeyLocker
	Clock         generic.Clock
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	// LockWait bounds how long a job waits for its key before skipping.
	LockWait time.Duration

	ticker  *time.Ticker
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running atomic.Bool

	carriedInto int // last year carried into by this process
}

// RunResult reports what one run did. CarryOver is nil when it did not run.
type RunResult struct {
	Skipped   bool
	Aging     timeoff.AgingSummary
	Accrual   timeoff.AccrualSummary
	CarryOver *timeoff.CarryOverSummary
	Errors    map[string]error
}

// NewScheduler creates a scheduler sharing the ledger's clock.
func NewScheduler(ledger *timeoff.LedgerService, leaves *timeoff.RequestService, locker generic.KeyLocker, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Ledger:        ledger,
		Leaves:        leaves,
		Locker:        locker,
		Clock:         ledger.Clock,
		Logger:        logger.Named("scheduler"),
		CheckInterval: time.Hour,
		Enabled:       true,
		LockWait:      2 * time.Second,
	}
}

// Start begins the scheduler. The first run happens immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(ctx)

	s.Logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.RunNow(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow runs every job once (for testing/admin). If a run is already in
// progress it returns immediately with Skipped set.
func (s *Scheduler) RunNow(ctx context.Context) RunResult {
	if !s.running.CompareAndSwap(false, true) {
		s.Logger.Debug("run already in progress, skipping")
		return RunResult{Skipped: true}
	}
	defer s.running.Store(false)

	res := RunResult{Errors: make(map[string]error)}
	today := generic.Today(s.Clock)

	s.job(ctx, &res, JobAging, func(ctx context.Context) error {
		var err error
		res.Aging, err = s.Leaves.AgeStatuses(ctx)
		s.Logger.Info("aging done",
			zap.Int("examined", res.Aging.Examined),
			zap.Int("started", res.Aging.Started),
			zap.Int("completed", res.Aging.Completed),
			zap.Int("failed", res.Aging.Failed))
		return err
	})

	s.job(ctx, &res, JobAccrual, func(ctx context.Context) error {
		var err error
		res.Accrual, err = s.Ledger.ProcessMonthlyAccrual(ctx, today)
		s.Logger.Info("accrual done",
			zap.Stringer("cutoff", today),
			zap.Int("accrued", res.Accrual.Accrued),
			zap.Int("initialized", res.Accrual.Initialized),
			zap.Int("failed", res.Accrual.Failed),
			zap.Stringer("total_days", res.Accrual.TotalDays))
		return err
	})

	if s.carriedInto < today.Year() {
		s.job(ctx, &res, JobCarryOver, func(ctx context.Context) error {
			summary, err := s.Ledger.ProcessYearEndCarryOver(ctx, today.Year()-1, today.Year())
			res.CarryOver = &summary
			s.Logger.Info("carry-over done",
				zap.Int("from_year", summary.FromYear),
				zap.Int("to_year", summary.ToYear),
				zap.Int("carried", summary.Carried),
				zap.Int("failed", summary.Failed),
				zap.Stringer("total_days", summary.TotalDays))
			if err == nil {
				s.carriedInto = today.Year()
			}
			return err
		})
	}

	return res
}

// job runs fn while holding the job key. A busy key skips the job.
func (s *Scheduler) job(ctx context.Context, res *RunResult, name string, fn func(context.Context) error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.LockWait)
	unlock, err := s.Locker.Lock(lockCtx, "job:"+name)
	cancel()
	if err != nil {
		s.Logger.Warn("job lock busy, skipping", zap.String("job", name), zap.Error(err))
		res.Errors[name] = err
		return
	}
	defer unlock()

	if err := fn(ctx); err != nil {
		s.Logger.Error("job failed", zap.String("job", name), zap.Error(err))
		res.Errors[name] = err
	}
}

// NextRunTime returns when the next scheduled check will occur.
func (s *Scheduler) NextRunTime() time.Time {
	return s.Clock.Now().Add(s.CheckInterval)
}
