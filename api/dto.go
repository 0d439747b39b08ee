/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the timeoff domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required, date layout, ranges). Business rules stay in the services.

DAY QUANTITIES:
  decimal.Decimal encodes as a JSON string ("2.5") and decodes from either
  a string or a number.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// PERSONS
// =============================================================================

type PersonDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id,omitempty"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type CreatePersonRequest struct {
	ID           string `json:"id" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=200"`
	DepartmentID string `json:"department_id" validate:"max=64"`
	IsActive     *bool  `json:"is_active"`
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveTypeDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	MaxDaysPerYear   decimal.Decimal `json:"max_days_per_year"`
	CanCarryOver     bool            `json:"can_carry_over"`
	MaxCarryOverDays decimal.Decimal `json:"max_carry_over_days"`
	NotificationDays int             `json:"notification_days"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        string          `json:"created_at,omitempty"`
	UpdatedAt        string          `json:"updated_at,omitempty"`
}

// LeaveTypeRequest is the body of create and update. On update, zero
// fields keep their current value except the booleans, which are pointers.
type LeaveTypeRequest struct {
	ID               string           `json:"id" validate:"max=64"`
	Name             string           `json:"name" validate:"max=200"`
	Description      string           `json:"description" validate:"max=1000"`
	MaxDaysPerYear   *decimal.Decimal `json:"max_days_per_year"`
	CanCarryOver     *bool            `json:"can_carry_over"`
	MaxCarryOverDays *decimal.Decimal `json:"max_carry_over_days"`
	NotificationDays *int             `json:"notification_days" validate:"omitempty,gte=0,lte=365"`
	IsActive         *bool            `json:"is_active"`
	ActorID          string           `json:"actor_id"`
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDTO struct {
	ID               string          `json:"id"`
	PersonID         string          `json:"person_id"`
	LeaveTypeID      string          `json:"leave_type_id"`
	Year             int             `json:"year"`
	AllocatedDays    decimal.Decimal `json:"allocated_days"`
	UsedDays         decimal.Decimal `json:"used_days"`
	PendingDays      decimal.Decimal `json:"pending_days"`
	CarriedOverDays  decimal.Decimal `json:"carried_over_days"`
	ManualAdjustment decimal.Decimal `json:"manual_adjustment"`
	MonthlyAccrual   decimal.Decimal `json:"monthly_accrual"`
	AccruedToDate    decimal.Decimal `json:"accrued_to_date"`
	LastAccrualDate  string          `json:"last_accrual_date,omitempty"`
	AdjustmentReason string          `json:"adjustment_reason,omitempty"`
	AdjustmentDate   string          `json:"adjustment_date,omitempty"`
	AvailableDays    decimal.Decimal `json:"available_days"`
	RemainingDays    decimal.Decimal `json:"remaining_days"`
	IsActive         bool            `json:"is_active"`
	CanDelete        bool            `json:"can_delete"`
	UpdatedAt        string          `json:"updated_at,omitempty"`
}

type AllocateBalanceRequest struct {
	PersonID       string           `json:"person_id" validate:"required"`
	LeaveTypeID    string           `json:"leave_type_id" validate:"required"`
	Year           int              `json:"year" validate:"required,gte=1900,lte=9999"`
	AllocatedDays  decimal.Decimal  `json:"allocated_days"`
	MonthlyAccrual *decimal.Decimal `json:"monthly_accrual"`
	ActorID        string           `json:"actor_id" validate:"required"`
}

type AdjustBalanceRequest struct {
	Delta   decimal.Decimal `json:"delta"`
	Reason  string          `json:"reason" validate:"required,max=500"`
	ActorID string          `json:"actor_id" validate:"required"`
}

// =============================================================================
// LEAVES
// =============================================================================

type LeaveDTO struct {
	ID              string          `json:"id"`
	PersonID        string          `json:"person_id"`
	LeaveTypeID     string          `json:"leave_type_id"`
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	TotalDays       decimal.Decimal `json:"total_days"`
	Status          string          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	ApprovedByID    string          `json:"approved_by_id,omitempty"`
	ApprovedAt      string          `json:"approved_at,omitempty"`
	ApprovalNotes   string          `json:"approval_notes,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CancelledByID   string          `json:"cancelled_by_id,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

type CreateLeaveRequest struct {
	PersonID    string `json:"person_id" validate:"required"`
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason      string `json:"reason" validate:"max=1000"`
}

// UpdateLeaveRequest changes a pending leave. Empty fields are kept.
type UpdateLeaveRequest struct {
	LeaveTypeID string `json:"leave_type_id"`
	StartDate   string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Reason      string `json:"reason" validate:"max=1000"`
	ActorID     string `json:"actor_id" validate:"required"`
}

type DecisionRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Notes      string `json:"notes" validate:"max=1000"`
}

type RejectRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=1000"`
}

type CancelRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type HolidayDTO struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id,omitempty"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

type CreateHolidayRequest struct {
	CompanyID string `json:"company_id"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required,max=200"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// ADMIN / BATCH
// =============================================================================

type AccrualRequest struct {
	Cutoff string `json:"cutoff" validate:"omitempty,datetime=2006-01-02"`
}

type AccrualSummaryDTO struct {
	Cutoff      string          `json:"cutoff"`
	Processed   int             `json:"processed"`
	Accrued     int             `json:"accrued"`
	Initialized int             `json:"initialized"`
	Skipped     int             `json:"skipped"`
	Failed      int             `json:"failed"`
	TotalDays   decimal.Decimal `json:"total_days"`
	Error       string          `json:"error,omitempty"`
}

type CarryOverRequest struct {
	FromYear int `json:"from_year" validate:"required,gte=1900"`
	ToYear   int `json:"to_year" validate:"required,gtfield=FromYear"`
}

type CarryOverSummaryDTO struct {
	FromYear  int             `json:"from_year"`
	ToYear    int             `json:"to_year"`
	Processed int             `json:"processed"`
	Carried   int             `json:"carried"`
	Reverted  int             `json:"reverted"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	TotalDays decimal.Decimal `json:"total_days"`
	Error     string          `json:"error,omitempty"`
}

type AgingSummaryDTO struct {
	Examined  int    `json:"examined"`
	Started   int    `json:"started"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Subject   string         `json:"subject"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDay(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.String()
}

func toPersonDTO(p timeoff.Person) PersonDTO {
	return PersonDTO{
		ID:           string(p.ID),
		Name:         p.Name,
		DepartmentID: p.DepartmentID,
		IsActive:     p.IsActive,
		CreatedAt:    formatTimestamp(p.CreatedAt),
	}
}

func toLeaveTypeDTO(lt timeoff.LeaveType) LeaveTypeDTO {
	return LeaveTypeDTO{
		ID:               string(lt.ID),
		Name:             lt.Name,
		Description:      lt.Description,
		MaxDaysPerYear:   lt.MaxDaysPerYear,
		CanCarryOver:     lt.CanCarryOver,
		MaxCarryOverDays: lt.MaxCarryOverDays,
		NotificationDays: lt.NotificationDays,
		IsActive:         lt.IsActive,
		CreatedAt:        formatTimestamp(lt.CreatedAt),
		UpdatedAt:        formatTimestamp(lt.UpdatedAt),
	}
}

func toBalanceDTO(b timeoff.LeaveBalance) BalanceDTO {
	dto := BalanceDTO{
		ID:               string(b.ID),
		PersonID:         string(b.PersonID),
		LeaveTypeID:      string(b.LeaveTypeID),
		Year:             b.Year,
		AllocatedDays:    b.AllocatedDays,
		UsedDays:         b.UsedDays,
		PendingDays:      b.PendingDays,
		CarriedOverDays:  b.CarriedOverDays,
		ManualAdjustment: b.ManualAdjustment,
		MonthlyAccrual:   b.MonthlyAccrual,
		AccruedToDate:    b.AccruedToDate,
		LastAccrualDate:  formatDay(b.LastAccrualDate),
		AdjustmentReason: b.AdjustmentReason,
		AvailableDays:    b.AvailableDays,
		RemainingDays:    b.RemainingDays,
		IsActive:         b.IsActive,
		CanDelete:        b.CanDelete(),
		UpdatedAt:        formatTimestamp(b.UpdatedAt),
	}
	if b.AdjustmentDate != nil {
		dto.AdjustmentDate = formatTimestamp(*b.AdjustmentDate)
	}
	return dto
}

func toLeaveDTO(l timeoff.Leave) LeaveDTO {
	dto := LeaveDTO{
		ID:              string(l.ID),
		PersonID:        string(l.PersonID),
		LeaveTypeID:     string(l.LeaveTypeID),
		StartDate:       l.StartDate.String(),
		EndDate:         l.EndDate.String(),
		TotalDays:       l.TotalDays,
		Status:          string(l.Status),
		Reason:          l.Reason,
		ApprovedByID:    string(l.ApprovedByID),
		ApprovalNotes:   l.ApprovalNotes,
		RejectionReason: l.RejectionReason,
		CancelledByID:   string(l.CancelledByID),
		CreatedAt:       formatTimestamp(l.CreatedAt),
		UpdatedAt:       formatTimestamp(l.UpdatedAt),
	}
	if l.ApprovedAt != nil {
		dto.ApprovedAt = formatTimestamp(*l.ApprovedAt)
	}
	return dto
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		CompanyID: h.CompanyID,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}

func toAuditEntryDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: formatTimestamp(e.Timestamp),
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		Subject:   e.Subject,
		Payload:   e.Payload,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
