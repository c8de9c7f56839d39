package indexdb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"lodestar.gg/internal/sim/world"
)

// AuditFilter narrows QueryAudits. Zero fields match everything.
type AuditFilter struct {
	Username string
	Event    string
	Limit    int
}

// QueryAudits returns matching audit rows, newest first.
func QueryAudits(ctx context.Context, db *sql.DB, f AuditFilter) ([]world.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Username != "" {
		where = append(where, "username = ?")
		args = append(args, f.Username)
	}
	if f.Event != "" {
		where = append(where, "event = ?")
		args = append(args, strings.ToUpper(f.Event))
	}
	q := `SELECT at,event,username,slot,code,reconnect,COALESCE(remote,''),COALESCE(reason,'') FROM audits`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.AuditEntry
	for rows.Next() {
		var (
			e         world.AuditEntry
			at        string
			reconnect int
		)
		if err := rows.Scan(&at, &e.Event, &e.Username, &e.Slot, &e.Code, &reconnect, &e.Remote, &e.Reason); err != nil {
			return nil, err
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, at)
		e.Reconnect = reconnect != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// LoginCounts tallies audit rows by event.
func LoginCounts(ctx context.Context, db *sql.DB) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT event, COUNT(*) FROM audits GROUP BY event`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			ev string
			n  int
		)
		if err := rows.Scan(&ev, &n); err != nil {
			return nil, err
		}
		out[ev] = n
	}
	return out, rows.Err()
}
