/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Populates the store with realistic leave data for demos and manual
	testing. Every scenario is built through the services, so the balances
	and audit entries it leaves behind are exactly what real traffic would
	produce.

AVAILABLE SCENARIOS:
	new-employee:   One person, default balance, one pending request
	team-calendar:  A small team with approved, pending, rejected and
	                cancelled requests around the same weeks
	year-end:       Last year's unused days carried into this year, capped

HOW SCENARIOS WORK:
 1. Reset the store (clear all data) and the leave type cache
 2. Seed the default leave types
 3. Run the scenario's loader relative to today

USAGE VIA API:

	GET  /api/scenarios
	GET  /api/scenarios/current
	POST /api/scenarios/load {"scenario_id": "team-calendar"}

NOTE:

	Scenarios reset the store. The routes are only mounted when the
	handler has a Reset function.

SEE ALSO:
  - handlers.go: Handler fields used by the loaders
  - timeoff/presets.go: the default leave types
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/logging"
	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	ScenarioNewEmployee  = "new-employee"
	ScenarioTeamCalendar = "team-calendar"
	ScenarioYearEnd      = "year-end"
)

var scenarios = []ScenarioDTO{
	{
		ID:          ScenarioNewEmployee,
		Name:        "New Employee",
		Description: "Default annual balance with one pending request",
	},
	{
		ID:          ScenarioTeamCalendar,
		Name:        "Team Calendar",
		Description: "Three people, overlapping weeks, every decision outcome",
	},
	{
		ID:          ScenarioYearEnd,
		Name:        "Year-End Carry-Over",
		Description: "Unused days from last year carried over up to the cap",
	},
}

// scenarioManager approves and rejects in the demo data.
const scenarioManager timeoff.PersonID = "mgr-001"

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		var unknown unknownScenarioError
		if errors.As(err, &unknown) {
			writeBadRequest(w, err)
			return
		}
		writeDomainError(w, r, err)
		return
	}
	h.currentScenario = req.ScenarioID
	logging.FromContext(r.Context()).Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

type unknownScenarioError string

func (e unknownScenarioError) Error() string { return fmt.Sprintf("unknown scenario %q", string(e)) }

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case ScenarioNewEmployee:
		load = h.loadNewEmployeeScenario
	case ScenarioTeamCalendar:
		load = h.loadTeamCalendarScenario
	case ScenarioYearEnd:
		load = h.loadYearEndScenario
	default:
		return unknownScenarioError(id)
	}

	h.currentScenario = ""
	if err := h.Reset(ctx); err != nil {
		return err
	}
	h.Types.Invalidate()
	if _, err := timeoff.SeedDefaults(ctx, h.Types); err != nil {
		return err
	}
	if err := h.savePersons(ctx,
		timeoff.Person{ID: scenarioManager, Name: "Morgan Lee", DepartmentID: "eng"},
	); err != nil {
		return err
	}
	return load(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewEmployeeScenario(ctx context.Context) error {
	if err := h.savePersons(ctx,
		timeoff.Person{ID: "emp-001", Name: "Alice Johnson", DepartmentID: "eng"},
	); err != nil {
		return err
	}

	year := generic.Today(h.Clock).Year()
	if _, err := h.Ledger.EnsureBalanceExists(ctx, "emp-001", timeoff.AnnualLeaveID, year); err != nil {
		return err
	}

	start, err := h.scenarioStart(14)
	if err != nil {
		return err
	}
	_, err = h.Leaves.Create(ctx, timeoff.LeaveRequest{
		PersonID:    "emp-001",
		LeaveTypeID: timeoff.AnnualLeaveID,
		StartDate:   start,
		EndDate:     start.AddDays(4),
		Reason:      "First holiday",
	})
	return err
}

func (h *Handler) loadTeamCalendarScenario(ctx context.Context) error {
	if err := h.savePersons(ctx,
		timeoff.Person{ID: "emp-001", Name: "Alice Johnson", DepartmentID: "eng"},
		timeoff.Person{ID: "emp-002", Name: "Bob Smith", DepartmentID: "eng"},
		timeoff.Person{ID: "emp-003", Name: "Carol Davis", DepartmentID: "eng"},
	); err != nil {
		return err
	}

	start, err := h.scenarioStart(21)
	if err != nil {
		return err
	}

	// Alice: approved week off
	alice, err := h.Leaves.Create(ctx, timeoff.LeaveRequest{
		PersonID: "emp-001", LeaveTypeID: timeoff.AnnualLeaveID,
		StartDate: start, EndDate: start.AddDays(4), Reason: "Family trip",
	})
	if err != nil {
		return err
	}
	if _, err := h.Leaves.Approve(ctx, alice.ID, scenarioManager, "Enjoy"); err != nil {
		return err
	}

	// Bob: overlapping request still pending, plus a rejected one
	if _, err := h.Leaves.Create(ctx, timeoff.LeaveRequest{
		PersonID: "emp-002", LeaveTypeID: timeoff.AnnualLeaveID,
		StartDate: start.AddDays(2), EndDate: start.AddDays(8), Reason: "Conference",
	}); err != nil {
		return err
	}
	rejected, err := h.Leaves.Create(ctx, timeoff.LeaveRequest{
		PersonID: "emp-002", LeaveTypeID: timeoff.PersonalLeaveID,
		StartDate: start.AddDays(14), EndDate: start.AddDays(14), Reason: "Moving",
	})
	if err != nil {
		return err
	}
	if _, err := h.Leaves.Reject(ctx, rejected.ID, scenarioManager, "Release week"); err != nil {
		return err
	}

	// Carol: cancelled her own sick day
	sick, err := h.Leaves.Create(ctx, timeoff.LeaveRequest{
		PersonID: "emp-003", LeaveTypeID: timeoff.SickLeaveID,
		StartDate: start, EndDate: start, Reason: "Appointment",
	})
	if err != nil {
		return err
	}
	_, err = h.Leaves.Cancel(ctx, sick.ID, "emp-003")
	return err
}

func (h *Handler) loadYearEndScenario(ctx context.Context) error {
	if err := h.savePersons(ctx,
		timeoff.Person{ID: "emp-001", Name: "Alice Johnson", DepartmentID: "eng"},
		timeoff.Person{ID: "emp-002", Name: "Bob Smith", DepartmentID: "eng"},
	); err != nil {
		return err
	}

	year := generic.Today(h.Clock).Year()
	annual, err := h.Types.GetLeaveType(ctx, timeoff.AnnualLeaveID)
	if err != nil {
		return err
	}

	// Alice leaves 12 days unused, Bob 3; the cap trims Alice only
	unused := map[timeoff.PersonID]int{"emp-001": 12, "emp-002": 3}
	for _, person := range []timeoff.PersonID{"emp-001", "emp-002"} {
		key := timeoff.BalanceKey{PersonID: person, LeaveTypeID: annual.ID, Year: year - 1}
		if _, err := h.Ledger.AllocateBalance(ctx, key, annual.MaxDaysPerYear, annual.DefaultMonthlyAccrual(), generic.SystemActor); err != nil {
			return err
		}
		spent := annual.MaxDaysPerYear.Sub(generic.DaysFromInt(unused[person]))
		if _, err := h.Ledger.AdjustBalance(ctx, person, annual.ID, year-1, spent.Neg(),
			"Leave taken before the ledger existed", generic.SystemActor); err != nil {
			return err
		}
	}

	_, err = h.Ledger.ProcessYearEndCarryOver(ctx, year-1, year)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// savePersons stores active persons created today.
func (h *Handler) savePersons(ctx context.Context, persons ...timeoff.Person) error {
	for _, p := range persons {
		p.Exists = true
		p.IsActive = true
		p.CreatedAt = h.Clock.Now()
		if err := h.Persons.SavePerson(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// scenarioStart is the first working day at least days from today.
func (h *Handler) scenarioStart(days int) (generic.TimePoint, error) {
	date := generic.Today(h.Clock).AddDays(days)
	if h.Leaves.Calendar.IsWorkingDay(date) {
		return date, nil
	}
	return h.Leaves.Calendar.NextWorkingDay(date)
}
