package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// AUDIT LOG
// =============================================================================

func (c *conn) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return storageErr("encode audit payload", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, subject, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), e.ActorID, string(e.Action), e.Subject, payload)
	if err != nil {
		return storageErr("append audit", err)
	}
	return nil
}

// QueryAudit returns matching entries, newest first.
func (c *conn) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, filter.Subject)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		where = append(where, "action IN ("+placeholders(len(filter.Actions))+")")
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}

	query := `SELECT id, timestamp, actor_id, action, subject, payload_json FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query audit", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e       generic.AuditEntry
			ts      string
			action  string
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &e.Subject, &payload); err != nil {
			return nil, storageErr("scan audit", err)
		}
		e.Timestamp = parseTime(ts)
		e.Action = generic.AuditAction(action)
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, storageErr("decode audit payload", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query audit", err)
	}
	return out, nil
}
