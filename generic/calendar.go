/*
calendar.go - Working-day arithmetic

PURPOSE:
  Decides which calendar days count against a leave request. A leave of
  Mon-Fri costs 5 days; a weekend inside a range costs nothing.

STRATEGY:
  Calendar is an interface so the day rule is pluggable. WorkweekCalendar
  excludes Saturday/Sunday and, when a HolidaySource is attached, company
  holidays as well. With no source it is the plain weekends-only rule.

BOUNDS:
  NextWorkingDay gives up after MaxWorkingDayScan days. A calendar where ten
  consecutive days are all non-working is treated as misconfigured.

SEE ALSO:
  - store/sqlite/holidays.go: HolidaySource backed by the holidays table
  - timeoff/request.go: TotalDays computation at create/update
*/
package generic

import "context"

// MaxWorkingDayScan bounds the forward scan in NextWorkingDay.
const MaxWorkingDayScan = 10

// Calendar decides working days.
type Calendar interface {
	IsWorkingDay(date TimePoint) bool
	WorkingDaysBetween(start, end TimePoint) (int, error)
	NextWorkingDay(date TimePoint) (TimePoint, error)
}

// =============================================================================
// HOLIDAYS - Company-specific non-working days
// =============================================================================

// Holiday represents a company holiday that should not count against leave.
type Holiday struct {
	ID        string
	CompanyID string    // Empty string = global/default holidays
	Date      TimePoint // The holiday date
	Name      string    // e.g., "Christmas Day"
	Recurring bool      // true = same month/day every year
}

// HolidaySource provides holiday lookup.
type HolidaySource interface {
	// IsHoliday checks company-specific holidays first, then global ones.
	IsHoliday(companyID string, date TimePoint) bool
}

// HolidayStore is the writable side of a HolidaySource.
type HolidayStore interface {
	HolidaySource
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	// ListHolidays returns company and global holidays; year 0 means all years.
	ListHolidays(ctx context.Context, companyID string, year int) ([]Holiday, error)
}

// Matches reports whether the holiday falls on date for companyID.
// Global holidays (empty CompanyID) match every company.
func (h Holiday) Matches(companyID string, date TimePoint) bool {
	if h.CompanyID != "" && h.CompanyID != companyID {
		return false
	}
	if h.Recurring {
		return h.Date.Month() == date.Month() && h.Date.Day() == date.Day()
	}
	return h.Date.Equal(date)
}

// =============================================================================
// WORKWEEK CALENDAR - Default Calendar implementation
// =============================================================================

// WorkweekCalendar treats Monday-Friday as working days, minus holidays
// from Holidays when it is set.
type WorkweekCalendar struct {
	Holidays  HolidaySource
	CompanyID string
}

var _ Calendar = (*WorkweekCalendar)(nil)

// NewWeekendCalendar returns the weekends-only calendar.
func NewWeekendCalendar() *WorkweekCalendar {
	return &WorkweekCalendar{}
}

func (c *WorkweekCalendar) IsWorkingDay(date TimePoint) bool {
	if date.IsWeekend() {
		return false
	}
	if c.Holidays != nil && c.Holidays.IsHoliday(c.CompanyID, date) {
		return false
	}
	return true
}

// WorkingDaysBetween counts working days in [start, end], both inclusive.
func (c *WorkweekCalendar) WorkingDaysBetween(start, end TimePoint) (int, error) {
	if end.Before(start) {
		return 0, ErrInvalidRange
	}
	count := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if c.IsWorkingDay(d) {
			count++
		}
	}
	return count, nil
}

// NextWorkingDay returns the first working day strictly after date.
func (c *WorkweekCalendar) NextWorkingDay(date TimePoint) (TimePoint, error) {
	d := date
	for i := 0; i < MaxWorkingDayScan; i++ {
		d = d.AddDays(1)
		if c.IsWorkingDay(d) {
			return d, nil
		}
	}
	return TimePoint{}, ErrNotFound
}
