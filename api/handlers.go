/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the timeoff services via REST API. Handles HTTP request/response,
  JSON serialization and shape validation, and delegates every rule to the
  services.

ENDPOINTS:
  Persons (lookup data):
    GET    /api/persons                        List persons
    POST   /api/persons                        Create or update a person
    GET    /api/persons/{id}/balances?year=    Balances of one person

  Leave types:
    GET    /api/leave-types                    List (sorted by name)
    POST   /api/leave-types                    Create
    GET    /api/leave-types/{id}               Get
    PUT    /api/leave-types/{id}               Update
    DELETE /api/leave-types/{id}               Delete (refused while in use)

  Balances:
    GET    /api/balances?person_id&leave_type_id&year   List
    POST   /api/balances                       Allocate
    GET    /api/balances/{person}/{type}/{year}          Get or create
    POST   /api/balances/{person}/{type}/{year}/recalculate
    POST   /api/balances/{person}/{type}/{year}/adjust
    DELETE /api/balances/{id}?actor_id=        Delete an unused balance

  Leaves:
    GET    /api/leaves?person_id&leave_type_id&year&status&from&to
    POST   /api/leaves                         Create (Pending)
    GET    /api/leaves/conflicts?person_id&start&end&exclude_id
    GET    /api/leaves/{id}
    PUT    /api/leaves/{id}                    Update a Pending leave
    POST   /api/leaves/{id}/approve|reject|cancel

  Holidays, admin batch jobs, the audit log and demo scenarios
  (scenarios.go): see server.go.

ERROR HANDLING:
  Errors are returned as JSON {error, code, details} with the status from
  statusFor (errors.go).

SECURITY NOTE:
  No authentication. Actor ids come from the request body or query and are
  trusted as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger   *timeoff.LedgerService
	Leaves   *timeoff.RequestService
	Types    *timeoff.Registry
	Persons  timeoff.PersonStore
	Holidays generic.HolidayStore
	Audit    generic.AuditLog
	Clock    generic.Clock

	// Ping reports storage health for /healthz. Optional.
	Ping func(ctx context.Context) error
	// Reset clears the store before a demo scenario loads. Nil leaves the
	// scenario routes unmounted.
	Reset func(ctx context.Context) error

	validate *validator.Validate

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler wires the services. Audit and Clock are taken from the ledger.
func NewHandler(ledger *timeoff.LedgerService, leaves *timeoff.RequestService, types *timeoff.Registry,
	persons timeoff.PersonStore, holidays generic.HolidayStore) *Handler {
	return &Handler{
		Ledger:   ledger,
		Leaves:   leaves,
		Types:    types,
		Persons:  persons,
		Holidays: holidays,
		Audit:    ledger.Store,
		Clock:    ledger.Clock,
		validate: newValidator(),
	}
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads an optional JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PERSON HANDLERS
// =============================================================================

func (h *Handler) ListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := h.Persons.ListPersons(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]PersonDTO, len(persons))
	for i, p := range persons {
		dtos[i] = toPersonDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePerson upserts lookup data. is_active defaults to true.
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	p := timeoff.Person{
		ID:           timeoff.PersonID(req.ID),
		Name:         req.Name,
		DepartmentID: req.DepartmentID,
		Exists:       true,
		IsActive:     req.IsActive == nil || *req.IsActive,
		CreatedAt:    h.Clock.Now(),
	}
	if err := h.Persons.SavePerson(r.Context(), p); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonDTO(p))
}

func (h *Handler) ListPersonBalances(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", generic.Today(h.Clock).Year())
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	balances, err := h.Ledger.ListBalances(r.Context(), timeoff.BalanceFilter{
		PersonID: timeoff.PersonID(chi.URLParam(r, "id")),
		Year:     year,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceDTOs(balances))
}

// =============================================================================
// LEAVE TYPE HANDLERS
// =============================================================================

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Types.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		dtos[i] = toLeaveTypeDTO(lt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetLeaveType(w http.ResponseWriter, r *http.Request) {
	lt, err := h.Types.GetLeaveType(r.Context(), timeoff.LeaveTypeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(lt))
}

func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req LeaveTypeRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	lt := timeoff.LeaveType{ID: timeoff.LeaveTypeID(req.ID), IsActive: true}
	applyLeaveTypeRequest(&lt, req)
	created, err := h.Types.Create(r.Context(), lt, actorOrSystem(req.ActorID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveTypeDTO(created))
}

func (h *Handler) UpdateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req LeaveTypeRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	ctx := r.Context()
	lt, err := h.Types.GetLeaveType(ctx, timeoff.LeaveTypeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	applyLeaveTypeRequest(&lt, req)
	updated, err := h.Types.Update(ctx, lt, actorOrSystem(req.ActorID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveTypeDTO(updated))
}

func (h *Handler) DeleteLeaveType(w http.ResponseWriter, r *http.Request) {
	id := timeoff.LeaveTypeID(chi.URLParam(r, "id"))
	if err := h.Types.Delete(r.Context(), id, actorOrSystem(r.URL.Query().Get("actor_id"))); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// applyLeaveTypeRequest copies the fields present in req onto lt.
func applyLeaveTypeRequest(lt *timeoff.LeaveType, req LeaveTypeRequest) {
	if req.Name != "" {
		lt.Name = req.Name
	}
	if req.Description != "" {
		lt.Description = req.Description
	}
	if req.MaxDaysPerYear != nil {
		lt.MaxDaysPerYear = *req.MaxDaysPerYear
	}
	if req.CanCarryOver != nil {
		lt.CanCarryOver = *req.CanCarryOver
	}
	if req.MaxCarryOverDays != nil {
		lt.MaxCarryOverDays = *req.MaxCarryOverDays
	}
	if req.NotificationDays != nil {
		lt.NotificationDays = *req.NotificationDays
	}
	if req.IsActive != nil {
		lt.IsActive = *req.IsActive
	}
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", 0)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	q := r.URL.Query()
	balances, err := h.Ledger.ListBalances(r.Context(), timeoff.BalanceFilter{
		PersonID:    timeoff.PersonID(q.Get("person_id")),
		LeaveTypeID: timeoff.LeaveTypeID(q.Get("leave_type_id")),
		Year:        year,
		ActiveOnly:  q.Get("active") == "true",
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceDTOs(balances))
}

// GetBalance returns the balance for the key, creating the default one
// on first read.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	key, err := balanceKeyParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	b, err := h.Ledger.EnsureBalanceExists(r.Context(), key.PersonID, key.LeaveTypeID, key.Year)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) AllocateBalance(w http.ResponseWriter, r *http.Request) {
	var req AllocateBalanceRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	ctx := r.Context()
	key := timeoff.BalanceKey{
		PersonID:    timeoff.PersonID(req.PersonID),
		LeaveTypeID: timeoff.LeaveTypeID(req.LeaveTypeID),
		Year:        req.Year,
	}
	monthly := req.AllocatedDays.Div(decimal.NewFromInt(12))
	if req.MonthlyAccrual != nil {
		monthly = *req.MonthlyAccrual
	}
	b, err := h.Ledger.AllocateBalance(ctx, key, req.AllocatedDays, monthly, req.ActorID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) RecalculateBalance(w http.ResponseWriter, r *http.Request) {
	key, err := balanceKeyParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	b, err := h.Ledger.RecalculateBalance(r.Context(), key.PersonID, key.LeaveTypeID, key.Year)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	key, err := balanceKeyParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req AdjustBalanceRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	b, err := h.Ledger.AdjustBalance(r.Context(), key.PersonID, key.LeaveTypeID, key.Year, req.Delta, req.Reason, req.ActorID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) DeleteBalance(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		writeBadRequest(w, errors.New("actor_id query parameter is required"))
		return
	}
	if err := h.Ledger.DeleteBalance(r.Context(), timeoff.BalanceID(chi.URLParam(r, "id")), actorID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func balanceKeyParam(r *http.Request) (timeoff.BalanceKey, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return timeoff.BalanceKey{}, fmt.Errorf("invalid year %q", chi.URLParam(r, "year"))
	}
	return timeoff.BalanceKey{
		PersonID:    timeoff.PersonID(chi.URLParam(r, "person")),
		LeaveTypeID: timeoff.LeaveTypeID(chi.URLParam(r, "type")),
		Year:        year,
	}, nil
}

func balanceDTOs(balances []timeoff.LeaveBalance) []BalanceDTO {
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	return dtos
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := queryInt(r, "year", 0)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	filter := timeoff.LeaveFilter{
		PersonID:    timeoff.PersonID(q.Get("person_id")),
		LeaveTypeID: timeoff.LeaveTypeID(q.Get("leave_type_id")),
		Year:        year,
		From:        from,
		To:          to,
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			status := timeoff.LeaveStatus(strings.TrimSpace(part))
			if !status.Valid() {
				writeBadRequest(w, fmt.Errorf("unknown status %q", part))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	leaves, err := h.Leaves.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaveDTOs(leaves))
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	l, err := h.Leaves.Get(r.Context(), timeoff.LeaveID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	// layouts were checked by the validator
	start, _ := generic.ParseDate(req.StartDate)
	end, _ := generic.ParseDate(req.EndDate)

	l, err := h.Leaves.Create(r.Context(), timeoff.LeaveRequest{
		PersonID:    timeoff.PersonID(req.PersonID),
		LeaveTypeID: timeoff.LeaveTypeID(req.LeaveTypeID),
		StartDate:   start,
		EndDate:     end,
		Reason:      req.Reason,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(l))
}

func (h *Handler) UpdateLeave(w http.ResponseWriter, r *http.Request) {
	var req UpdateLeaveRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	update := timeoff.LeaveRequest{
		LeaveTypeID: timeoff.LeaveTypeID(req.LeaveTypeID),
		Reason:      req.Reason,
	}
	if req.StartDate != "" {
		update.StartDate, _ = generic.ParseDate(req.StartDate)
	}
	if req.EndDate != "" {
		update.EndDate, _ = generic.ParseDate(req.EndDate)
	}

	l, err := h.Leaves.Update(r.Context(), timeoff.LeaveID(chi.URLParam(r, "id")), update, timeoff.PersonID(req.ActorID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	l, err := h.Leaves.Approve(r.Context(), timeoff.LeaveID(chi.URLParam(r, "id")), timeoff.PersonID(req.ApproverID), req.Notes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	l, err := h.Leaves.Reject(r.Context(), timeoff.LeaveID(chi.URLParam(r, "id")), timeoff.PersonID(req.ApproverID), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	l, err := h.Leaves.Cancel(r.Context(), timeoff.LeaveID(chi.URLParam(r, "id")), timeoff.PersonID(req.UserID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

// CheckConflicts lists live leaves of the person overlapping [start, end].
func (h *Handler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	personID := q.Get("person_id")
	if personID == "" {
		writeBadRequest(w, errors.New("person_id query parameter is required"))
		return
	}
	start, err := queryDate(r, "start")
	if err == nil && start.IsZero() {
		err = errors.New("start query parameter is required")
	}
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	end, err := queryDate(r, "end")
	if err == nil && end.IsZero() {
		err = errors.New("end query parameter is required")
	}
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	conflicts, err := h.Leaves.CheckConflicts(r.Context(), timeoff.PersonID(personID), start, end, timeoff.LeaveID(q.Get("exclude_id")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"has_conflicts": len(conflicts) > 0,
		"conflicts":     leaveDTOs(conflicts),
	})
}

func leaveDTOs(leaves []timeoff.Leave) []LeaveDTO {
	dtos := make([]LeaveDTO, len(leaves))
	for i, l := range leaves {
		dtos[i] = toLeaveDTO(l)
	}
	return dtos
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns holidays for a company (plus global ones).
// GET /api/holidays?company_id=&year=
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", 0)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	holidays, err := h.Holidays.ListHolidays(r.Context(), r.URL.Query().Get("company_id"), year)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	date, _ := generic.ParseDate(req.Date)

	hol := generic.Holiday{
		ID:        uuid.NewString(),
		CompanyID: req.CompanyID,
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Holidays.SaveHoliday(r.Context(), hol); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(hol))
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Holidays.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS - Batch jobs on demand
// =============================================================================

// RunAccrual runs monthly accrual up to cutoff (default today). Per-balance
// failures are reported in the summary with status 200.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req AccrualRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	cutoff := generic.Today(h.Clock)
	if req.Cutoff != "" {
		cutoff, _ = generic.ParseDate(req.Cutoff)
	}

	summary, err := h.Ledger.ProcessMonthlyAccrual(r.Context(), cutoff)
	if err != nil && summary.Failed == 0 {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccrualSummaryDTO{
		Cutoff:      summary.Cutoff.String(),
		Processed:   summary.Processed,
		Accrued:     summary.Accrued,
		Initialized: summary.Initialized,
		Skipped:     summary.Skipped,
		Failed:      summary.Failed,
		TotalDays:   summary.TotalDays,
		Error:       errString(err),
	})
}

func (h *Handler) RunCarryOver(w http.ResponseWriter, r *http.Request) {
	var req CarryOverRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	summary, err := h.Ledger.ProcessYearEndCarryOver(r.Context(), req.FromYear, req.ToYear)
	if err != nil && summary.Failed == 0 {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CarryOverSummaryDTO{
		FromYear:  summary.FromYear,
		ToYear:    summary.ToYear,
		Processed: summary.Processed,
		Carried:   summary.Carried,
		Reverted:  summary.Reverted,
		Skipped:   summary.Skipped,
		Failed:    summary.Failed,
		TotalDays: summary.TotalDays,
		Error:     errString(err),
	})
}

func (h *Handler) RunAging(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Leaves.AgeStatuses(r.Context())
	if err != nil && summary.Failed == 0 {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AgingSummaryDTO{
		Examined:  summary.Examined,
		Started:   summary.Started,
		Completed: summary.Completed,
		Failed:    summary.Failed,
		Error:     errString(err),
	})
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAudit returns audit entries, newest first.
// GET /api/audit?subject=&actor_id=&action=&limit=
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		writeBadRequest(w, errors.New("limit must be a positive integer"))
		return
	}
	q := r.URL.Query()
	filter := generic.AuditFilter{
		Subject: q.Get("subject"),
		ActorID: q.Get("actor_id"),
		Limit:   limit,
	}
	if a := q.Get("action"); a != "" {
		filter.Actions = []generic.AuditAction{generic.AuditAction(a)}
	}

	entries, err := h.Audit.QueryAudit(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

// queryDate parses an optional YYYY-MM-DD parameter; absent is zero.
func queryDate(r *http.Request, name string) (generic.TimePoint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return generic.TimePoint{}, nil
	}
	tp, err := generic.ParseDate(raw)
	if err != nil {
		return generic.TimePoint{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", name, raw)
	}
	return tp, nil
}

func actorOrSystem(actorID string) string {
	if actorID == "" {
		return generic.SystemActor
	}
	return actorID
}
