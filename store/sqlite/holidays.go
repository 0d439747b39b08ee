package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// SaveHoliday saves a holiday to the database.
func (c *conn) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	query := `
		INSERT INTO holidays (id, company_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`
	_, err := c.q.ExecContext(ctx, query,
		h.ID,
		h.CompanyID,
		formatDate(h.Date),
		h.Name,
		boolInt(h.Recurring),
		formatTime(time.Now()),
	)
	if err != nil {
		return storageErr("save holiday", err)
	}
	return nil
}

// DeleteHoliday deletes a holiday by ID.
func (c *conn) DeleteHoliday(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return storageErr("delete holiday", err)
	}
	return requireAffected(res, "delete holiday", "holiday", id)
}

// ListHolidays returns company-specific and global holidays. For a given
// year, recurring holidays are returned with their date moved into it.
func (c *conn) ListHolidays(ctx context.Context, companyID string, year int) ([]generic.Holiday, error) {
	query := `
		SELECT id, company_id, date, name, recurring
		FROM holidays
		WHERE (company_id = ? OR company_id = '')
		  AND (? = '' OR recurring = 1 OR strftime('%Y', date) = ?)
		ORDER BY strftime('%m-%d', date) ASC, name ASC
	`
	yearStr := ""
	if year != 0 {
		yearStr = fmt.Sprintf("%04d", year)
	}

	rows, err := c.q.QueryContext(ctx, query, companyID, yearStr, yearStr)
	if err != nil {
		return nil, storageErr("list holidays", err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &h.CompanyID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, storageErr("scan holiday", err)
		}
		h.Date = parseDate(dateStr)
		if h.Recurring && year != 0 {
			h.Date = generic.NewTimePoint(year, h.Date.Month(), h.Date.Day())
		}
		holidays = append(holidays, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list holidays", err)
	}
	return holidays, nil
}

// IsHoliday checks if a date is a holiday for the given company.
// A query failure counts as "not a holiday".
func (c *conn) IsHoliday(companyID string, date generic.TimePoint) bool {
	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (company_id = ? OR company_id = '')
		  AND (
			(recurring = 0 AND date = ?)
			OR (recurring = 1 AND strftime('%m-%d', date) = ?)
		  )
	`
	var count int
	err := c.q.QueryRowContext(context.Background(), query,
		companyID, formatDate(date), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}
