package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Separate from balances, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string // who performed the action; "system" for batch jobs
	Action    AuditAction
	Subject   string // leave id, balance id, or leave type id
	Payload   map[string]any
}

type AuditAction string

const (
	AuditLeaveCreated     AuditAction = "leave_created"
	AuditLeaveUpdated     AuditAction = "leave_updated"
	AuditLeaveApproved    AuditAction = "leave_approved"
	AuditLeaveRejected    AuditAction = "leave_rejected"
	AuditLeaveCancelled   AuditAction = "leave_cancelled"
	AuditLeaveAged        AuditAction = "leave_aged"
	AuditBalanceAllocated AuditAction = "balance_allocated"
	AuditBalanceDeleted   AuditAction = "balance_deleted"
	AuditManualAdjust     AuditAction = "manual_adjustment"
	AuditAccrual          AuditAction = "accrual"
	AuditCarryOver        AuditAction = "carry_over"
	AuditLeaveTypeChanged AuditAction = "leave_type_changed"
)

// SystemActor is the actor id recorded for scheduled jobs.
const SystemActor = "system"

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	Subject string
	ActorID string
	Actions []AuditAction
	Limit   int
}

// Matches reports whether e satisfies the filter. Limit is not considered.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
