package sqlite

import (
	"context"

	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = `id, name, description, max_days_per_year, can_carry_over,
	max_carry_over_days, notification_days, is_active, created_at, updated_at`

// SaveLeaveType inserts or replaces a leave type.
func (c *conn) SaveLeaveType(ctx context.Context, lt timeoff.LeaveType) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_types (`+leaveTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			max_days_per_year = excluded.max_days_per_year,
			can_carry_over = excluded.can_carry_over,
			max_carry_over_days = excluded.max_carry_over_days,
			notification_days = excluded.notification_days,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, string(lt.ID), lt.Name, lt.Description, lt.MaxDaysPerYear.String(), boolInt(lt.CanCarryOver),
		lt.MaxCarryOverDays.String(), lt.NotificationDays, boolInt(lt.IsActive),
		formatTime(lt.CreatedAt), formatTime(lt.UpdatedAt))
	if err != nil {
		return storageErr("save leave type", err)
	}
	return nil
}

func (c *conn) GetLeaveType(ctx context.Context, id timeoff.LeaveTypeID) (timeoff.LeaveType, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, string(id))
	lt, err := scanLeaveType(row)
	if err != nil {
		return timeoff.LeaveType{}, notFoundOr(err, "get leave type", "leave type", string(id))
	}
	return lt, nil
}

func (c *conn) ListLeaveTypes(ctx context.Context) ([]timeoff.LeaveType, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types ORDER BY name`)
	if err != nil {
		return nil, storageErr("list leave types", err)
	}
	defer rows.Close()

	var out []timeoff.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, storageErr("scan leave type", err)
		}
		out = append(out, lt)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list leave types", err)
	}
	return out, nil
}

func (c *conn) DeleteLeaveType(ctx context.Context, id timeoff.LeaveTypeID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM leave_types WHERE id = ?`, string(id))
	if err != nil {
		return storageErr("delete leave type", err)
	}
	return requireAffected(res, "delete leave type", "leave type", string(id))
}

func (c *conn) LeaveTypeInUse(ctx context.Context, id timeoff.LeaveTypeID) (bool, error) {
	var inUse bool
	err := c.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM leaves WHERE leave_type_id = ?)
		    OR EXISTS(SELECT 1 FROM leave_balances WHERE leave_type_id = ?)
	`, string(id), string(id)).Scan(&inUse)
	if err != nil {
		return false, storageErr("leave type in use", err)
	}
	return inUse, nil
}

func scanLeaveType(row scanner) (timeoff.LeaveType, error) {
	var (
		lt                    timeoff.LeaveType
		id, maxDays, maxCarry string
		canCarry, isActive    bool
		createdAt, updatedAt  string
	)
	err := row.Scan(&id, &lt.Name, &lt.Description, &maxDays, &canCarry,
		&maxCarry, &lt.NotificationDays, &isActive, &createdAt, &updatedAt)
	if err != nil {
		return timeoff.LeaveType{}, err
	}
	var days dayDecoder
	lt.ID = timeoff.LeaveTypeID(id)
	lt.MaxDaysPerYear = days.parse("max_days_per_year", maxDays)
	lt.CanCarryOver = canCarry
	lt.MaxCarryOverDays = days.parse("max_carry_over_days", maxCarry)
	lt.IsActive = isActive
	lt.CreatedAt = parseTime(createdAt)
	lt.UpdatedAt = parseTime(updatedAt)
	if days.err != nil {
		return timeoff.LeaveType{}, days.err
	}
	return lt, nil
}
