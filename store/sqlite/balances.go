package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, person_id, leave_type_id, year,
	allocated_days, used_days, pending_days, carried_over_days, manual_adjustment,
	monthly_accrual, accrued_to_date, last_accrual_date,
	adjustment_reason, adjustment_date, available_days, remaining_days,
	is_active, created_at, updated_at`

// SaveBalance inserts or updates a balance by ID. The derived columns are
// written as computed by LeaveBalance.Recompute.
func (c *conn) SaveBalance(ctx context.Context, b timeoff.LeaveBalance) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			allocated_days = excluded.allocated_days,
			used_days = excluded.used_days,
			pending_days = excluded.pending_days,
			carried_over_days = excluded.carried_over_days,
			manual_adjustment = excluded.manual_adjustment,
			monthly_accrual = excluded.monthly_accrual,
			accrued_to_date = excluded.accrued_to_date,
			last_accrual_date = excluded.last_accrual_date,
			adjustment_reason = excluded.adjustment_reason,
			adjustment_date = excluded.adjustment_date,
			available_days = excluded.available_days,
			remaining_days = excluded.remaining_days,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`,
		string(b.ID), string(b.PersonID), string(b.LeaveTypeID), b.Year,
		b.AllocatedDays.String(), b.UsedDays.String(), b.PendingDays.String(),
		b.CarriedOverDays.String(), b.ManualAdjustment.String(),
		b.MonthlyAccrual.String(), b.AccruedToDate.String(), formatOptionalDate(b.LastAccrualDate),
		b.AdjustmentReason, formatOptionalTime(b.AdjustmentDate),
		b.AvailableDays.String(), b.RemainingDays.String(),
		boolInt(b.IsActive), formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return storageErr("save balance", err)
	}
	return nil
}

func (c *conn) GetBalance(ctx context.Context, key timeoff.BalanceKey) (timeoff.LeaveBalance, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT `+balanceColumns+` FROM leave_balances
		WHERE person_id = ? AND leave_type_id = ? AND year = ?
	`, string(key.PersonID), string(key.LeaveTypeID), key.Year)
	b, err := scanBalance(row)
	if err != nil {
		return timeoff.LeaveBalance{}, notFoundOr(err, "get balance", "balance", key.String())
	}
	return b, nil
}

func (c *conn) GetBalanceByID(ctx context.Context, id timeoff.BalanceID) (timeoff.LeaveBalance, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM leave_balances WHERE id = ?`, string(id))
	b, err := scanBalance(row)
	if err != nil {
		return timeoff.LeaveBalance{}, notFoundOr(err, "get balance", "balance", string(id))
	}
	return b, nil
}

func (c *conn) ListBalances(ctx context.Context, filter timeoff.BalanceFilter) ([]timeoff.LeaveBalance, error) {
	var (
		where []string
		args  []any
	)
	if filter.PersonID != "" {
		where = append(where, "person_id = ?")
		args = append(args, string(filter.PersonID))
	}
	if filter.LeaveTypeID != "" {
		where = append(where, "leave_type_id = ?")
		args = append(args, string(filter.LeaveTypeID))
	}
	if filter.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT ` + balanceColumns + ` FROM leave_balances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY year, person_id, leave_type_id"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list balances", err)
	}
	defer rows.Close()

	var out []timeoff.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, storageErr("scan balance", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list balances", err)
	}
	return out, nil
}

func (c *conn) DeleteBalance(ctx context.Context, id timeoff.BalanceID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM leave_balances WHERE id = ?`, string(id))
	if err != nil {
		return storageErr("delete balance", err)
	}
	return requireAffected(res, "delete balance", "balance", string(id))
}

func scanBalance(row scanner) (timeoff.LeaveBalance, error) {
	var (
		b                                       timeoff.LeaveBalance
		id, personID, typeID                    string
		allocated, used, pending, carried, manu string
		monthly, accrued, available, remaining  string
		lastAccrual, adjustmentDate             sql.NullString
		isActive                                bool
		createdAt, updatedAt                    string
	)
	err := row.Scan(&id, &personID, &typeID, &b.Year,
		&allocated, &used, &pending, &carried, &manu,
		&monthly, &accrued, &lastAccrual,
		&b.AdjustmentReason, &adjustmentDate, &available, &remaining,
		&isActive, &createdAt, &updatedAt)
	if err != nil {
		return timeoff.LeaveBalance{}, err
	}

	var days dayDecoder
	b.ID = timeoff.BalanceID(id)
	b.PersonID = timeoff.PersonID(personID)
	b.LeaveTypeID = timeoff.LeaveTypeID(typeID)
	b.AllocatedDays = days.parse("allocated_days", allocated)
	b.UsedDays = days.parse("used_days", used)
	b.PendingDays = days.parse("pending_days", pending)
	b.CarriedOverDays = days.parse("carried_over_days", carried)
	b.ManualAdjustment = days.parse("manual_adjustment", manu)
	b.MonthlyAccrual = days.parse("monthly_accrual", monthly)
	b.AccruedToDate = days.parse("accrued_to_date", accrued)
	b.LastAccrualDate = parseOptionalDate(lastAccrual)
	b.AdjustmentDate = parseOptionalTime(adjustmentDate)
	b.IsActive = isActive
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)

	b.AvailableDays = days.parse("available_days", available)
	b.RemainingDays = days.parse("remaining_days", remaining)
	if days.err != nil {
		return timeoff.LeaveBalance{}, days.err
	}
	return b, nil
}
