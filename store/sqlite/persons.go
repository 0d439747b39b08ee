package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// PERSONS (lookup data behind timeoff.PersonDirectory)
// =============================================================================

func (c *conn) SavePerson(ctx context.Context, p timeoff.Person) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO persons (id, name, department_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department_id = excluded.department_id,
			is_active = excluded.is_active
	`, string(p.ID), p.Name, p.DepartmentID, boolInt(p.IsActive), formatTime(p.CreatedAt))
	if err != nil {
		return storageErr("save person", err)
	}
	return nil
}

// GetPerson reports a missing person as Exists=false.
func (c *conn) GetPerson(ctx context.Context, id timeoff.PersonID) (timeoff.Person, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT id, name, department_id, is_active, created_at FROM persons WHERE id = ?
	`, string(id))
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return timeoff.Person{ID: id}, nil
	}
	if err != nil {
		return timeoff.Person{}, storageErr("get person", err)
	}
	return p, nil
}

func (c *conn) ListPersons(ctx context.Context) ([]timeoff.Person, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, name, department_id, is_active, created_at FROM persons ORDER BY id
	`)
	if err != nil {
		return nil, storageErr("list persons", err)
	}
	defer rows.Close()

	var out []timeoff.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, storageErr("scan person", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list persons", err)
	}
	return out, nil
}

func scanPerson(row scanner) (timeoff.Person, error) {
	var (
		p         timeoff.Person
		id        string
		createdAt string
	)
	if err := row.Scan(&id, &p.Name, &p.DepartmentID, &p.IsActive, &createdAt); err != nil {
		return timeoff.Person{}, err
	}
	p.ID = timeoff.PersonID(id)
	p.Exists = true
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}
