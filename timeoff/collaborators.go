package timeoff

import (
	"context"
	"time"
)

// =============================================================================
// PERSON LOOKUP - Master data owned elsewhere
// =============================================================================

// Person is the slice of employee master data the lifecycle needs.
type Person struct {
	ID           PersonID
	Name         string
	DepartmentID string
	Exists       bool
	IsActive     bool
	CreatedAt    time.Time
}

// PersonDirectory answers "does person X exist and is active".
// A missing person is reported as Exists=false, not as an error.
type PersonDirectory interface {
	GetPerson(ctx context.Context, id PersonID) (Person, error)
}

// PersonStore is the writable side used to load lookup data.
type PersonStore interface {
	PersonDirectory
	SavePerson(ctx context.Context, p Person) error
	ListPersons(ctx context.Context) ([]Person, error)
}

// =============================================================================
// LEAVE TYPE LOOKUP
// =============================================================================

// LeaveTypeLookup is the read path for leave type policy. Registry
// satisfies it.
type LeaveTypeLookup interface {
	GetLeaveType(ctx context.Context, id LeaveTypeID) (LeaveType, error)
}

// =============================================================================
// APPROVAL AUTHORITY
// =============================================================================

// ApprovalAuthorizer decides whether userID may approve or reject a leave.
// Self-approval is refused before the authorizer is consulted.
type ApprovalAuthorizer interface {
	CanApprove(ctx context.Context, leaveID LeaveID, userID PersonID) (bool, error)
}

// AllowAll approves every capability check.
type AllowAll struct{}

func (AllowAll) CanApprove(context.Context, LeaveID, PersonID) (bool, error) { return true, nil }

// =============================================================================
// RECORDER - Outcome counters (see metrics/)
// =============================================================================

type Recorder interface {
	ObserveRequest(action string, err error)
	ObserveBatch(job string, items int, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, error)    {}
func (nopRecorder) ObserveBatch(string, int, error) {}
