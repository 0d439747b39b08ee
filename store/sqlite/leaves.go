package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// LEAVES
// =============================================================================

const leaveColumns = `id, person_id, leave_type_id, start_date, end_date, total_days,
	status, reason, approved_by_id, approved_at, approval_notes, rejection_reason,
	cancelled_by_id, created_at, updated_at`

func (c *conn) SaveLeave(ctx context.Context, l timeoff.Leave) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leaves (`+leaveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			leave_type_id = excluded.leave_type_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			total_days = excluded.total_days,
			status = excluded.status,
			reason = excluded.reason,
			approved_by_id = excluded.approved_by_id,
			approved_at = excluded.approved_at,
			approval_notes = excluded.approval_notes,
			rejection_reason = excluded.rejection_reason,
			cancelled_by_id = excluded.cancelled_by_id,
			updated_at = excluded.updated_at
	`,
		string(l.ID), string(l.PersonID), string(l.LeaveTypeID),
		formatDate(l.StartDate), formatDate(l.EndDate), l.TotalDays.String(),
		string(l.Status), l.Reason, string(l.ApprovedByID), formatOptionalTime(l.ApprovedAt),
		l.ApprovalNotes, l.RejectionReason, string(l.CancelledByID),
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt))
	if err != nil {
		return storageErr("save leave", err)
	}
	return nil
}

func (c *conn) GetLeave(ctx context.Context, id timeoff.LeaveID) (timeoff.Leave, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = ?`, string(id))
	l, err := scanLeave(row)
	if err != nil {
		return timeoff.Leave{}, notFoundOr(err, "get leave", "leave", string(id))
	}
	return l, nil
}

// ListLeaves translates the filter to SQL. Dates are YYYY-MM-DD text, so
// string comparison orders them correctly.
func (c *conn) ListLeaves(ctx context.Context, filter timeoff.LeaveFilter) ([]timeoff.Leave, error) {
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
		where = append(where, "start_date >= ? AND start_date <= ?")
		args = append(args, formatDate(generic.StartOfYear(filter.Year)), formatDate(generic.EndOfYear(filter.Year)))
	}
	if filter.ExcludeID != "" {
		where = append(where, "id <> ?")
		args = append(args, string(filter.ExcludeID))
	}
	if !filter.From.IsZero() {
		where = append(where, "end_date >= ?")
		args = append(args, formatDate(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "start_date <= ?")
		args = append(args, formatDate(filter.To))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}

	query := `SELECT ` + leaveColumns + ` FROM leaves`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list leaves", err)
	}
	defer rows.Close()

	var out []timeoff.Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, storageErr("scan leave", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list leaves", err)
	}
	return out, nil
}

func scanLeave(row scanner) (timeoff.Leave, error) {
	var (
		l                             timeoff.Leave
		id, personID, typeID          string
		start, end, totalDays, status string
		approvedByID, cancelledByID   string
		approvedAt                    sql.NullString
		createdAt, updatedAt          string
	)
	err := row.Scan(&id, &personID, &typeID, &start, &end, &totalDays,
		&status, &l.Reason, &approvedByID, &approvedAt, &l.ApprovalNotes, &l.RejectionReason,
		&cancelledByID, &createdAt, &updatedAt)
	if err != nil {
		return timeoff.Leave{}, err
	}

	l.ID = timeoff.LeaveID(id)
	l.PersonID = timeoff.PersonID(personID)
	l.LeaveTypeID = timeoff.LeaveTypeID(typeID)
	l.StartDate = parseDate(start)
	l.EndDate = parseDate(end)
	var days dayDecoder
	l.TotalDays = days.parse("total_days", totalDays)
	l.Status = timeoff.LeaveStatus(status)
	l.ApprovedByID = timeoff.PersonID(approvedByID)
	l.ApprovedAt = parseOptionalTime(approvedAt)
	l.CancelledByID = timeoff.PersonID(cancelledByID)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	if days.err != nil {
		return timeoff.Leave{}, days.err
	}
	return l, nil
}
