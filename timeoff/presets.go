/*
presets.go - Pre-built leave type configurations

PURPOSE:
  Ready-to-use leave types for common HR categories. SeedDefaults installs
  them on an empty catalog at startup.

AVAILABLE TYPES:
  AnnualLeave:      vacation, carries over up to 5 days, one week notice
  SickLeave:        no carry-over, no notice
  PersonalLeave:    small allowance, one day notice
  ParentalLeave:    large one-off allowance, 30 days notice
  BereavementLeave: small allowance, no notice

CUSTOMIZATION:
  These are starting points. Administrators edit them through the
  registry like any other type.

SEE ALSO:
  - registry.go: catalog these are installed into
*/
package timeoff

import (
	"context"

	"github.com/warp/leave-ledger/generic"
)

const (
	AnnualLeaveID      LeaveTypeID = "annual"
	SickLeaveID        LeaveTypeID = "sick"
	PersonalLeaveID    LeaveTypeID = "personal"
	ParentalLeaveID    LeaveTypeID = "parental"
	BereavementLeaveID LeaveTypeID = "bereavement"
)

// AnnualLeave returns a typical vacation type with capped carry-over.
func AnnualLeave(annualDays, maxCarryOver float64) LeaveType {
	return LeaveType{
		ID:               AnnualLeaveID,
		Name:             "Annual Leave",
		Description:      "Paid vacation",
		MaxDaysPerYear:   generic.Days(annualDays),
		CanCarryOver:     maxCarryOver > 0,
		MaxCarryOverDays: generic.Days(maxCarryOver),
		NotificationDays: 7,
		IsActive:         true,
	}
}

func SickLeave(annualDays float64) LeaveType {
	return LeaveType{
		ID:             SickLeaveID,
		Name:           "Sick Leave",
		Description:    "Illness or medical appointments",
		MaxDaysPerYear: generic.Days(annualDays),
		IsActive:       true,
	}
}

func PersonalLeave(annualDays float64) LeaveType {
	return LeaveType{
		ID:               PersonalLeaveID,
		Name:             "Personal Leave",
		MaxDaysPerYear:   generic.Days(annualDays),
		NotificationDays: 1,
		IsActive:         true,
	}
}

// ParentalLeave is granted upfront and needs a month of notice.
func ParentalLeave(days float64) LeaveType {
	return LeaveType{
		ID:               ParentalLeaveID,
		Name:             "Parental Leave",
		Description:      "Birth or adoption of a child",
		MaxDaysPerYear:   generic.Days(days),
		NotificationDays: 30,
		IsActive:         true,
	}
}

func BereavementLeave(days float64) LeaveType {
	return LeaveType{
		ID:             BereavementLeaveID,
		Name:           "Bereavement Leave",
		MaxDaysPerYear: generic.Days(days),
		IsActive:       true,
	}
}

// DefaultLeaveTypes is the catalog installed by SeedDefaults.
func DefaultLeaveTypes() []LeaveType {
	return []LeaveType{
		AnnualLeave(20, 5),
		SickLeave(10),
		PersonalLeave(3),
		ParentalLeave(60),
		BereavementLeave(5),
	}
}

// SeedDefaults creates every default type whose ID is not yet present.
// Returns the number created. Safe to call on every startup.
func SeedDefaults(ctx context.Context, r *Registry) (int, error) {
	created := 0
	for _, lt := range DefaultLeaveTypes() {
		if _, err := r.GetLeaveType(ctx, lt.ID); err == nil {
			continue
		} else if !generic.IsNotFound(err) {
			return created, err
		}
		if _, err := r.Create(ctx, lt, generic.SystemActor); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
