package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"forgeboard.dev/internal/audit"
)

// AuditLog implements audit.Store. The table is append-only; the only
// non-insert write is age-based retention.
type AuditLog struct {
	db *sql.DB
}

var _ audit.Store = (*AuditLog)(nil)

func (r *AuditLog) Insert(ctx context.Context, e *audit.Entry) error {
	details, err := encodeDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		insert into audit_logs (id, user_id, action, resource, resource_id, details, ip_address, user_agent, created_at)
		values ($1, nullif($2,''), $3, $4, nullif($5,''), $6, nullif($7,''), nullif($8,''), $9)
	`, e.ID, e.UserID, e.Action, e.Resource, e.ResourceID, details, e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

// InsertBatch writes entries one by one and reports how many landed before the
// first storage failure. The batch is deliberately not wrapped in a
// transaction: partial application is acceptable and must be visible.
func (r *AuditLog) InsertBatch(ctx context.Context, entries []audit.Entry) (int, error) {
	written := 0
	for i := range entries {
		if err := r.Insert(ctx, &entries[i]); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (r *AuditLog) StatsForUser(ctx context.Context, userID string, since time.Time) (audit.UserStats, error) {
	stats := audit.UserStats{
		ByAction:   map[string]int64{},
		ByResource: map[string]int64{},
		ByDay:      map[string]int64{},
	}
	err := r.db.QueryRowContext(ctx, `
		select count(*) from audit_logs where user_id = $1 and created_at >= $2
	`, userID, since).Scan(&stats.Total)
	if err != nil {
		return audit.UserStats{}, err
	}
	if err := r.groupCount(ctx, stats.ByAction, `
		select action, count(*) from audit_logs
		where user_id = $1 and created_at >= $2 group by action
	`, userID, since); err != nil {
		return audit.UserStats{}, err
	}
	if err := r.groupCount(ctx, stats.ByResource, `
		select resource, count(*) from audit_logs
		where user_id = $1 and created_at >= $2 group by resource
	`, userID, since); err != nil {
		return audit.UserStats{}, err
	}
	if err := r.groupCount(ctx, stats.ByDay, `
		select to_char(created_at, 'YYYY-MM-DD'), count(*) from audit_logs
		where user_id = $1 and created_at >= $2 group by 1
	`, userID, since); err != nil {
		return audit.UserStats{}, err
	}
	return stats, nil
}

func (r *AuditLog) SystemStats(ctx context.Context, since time.Time) (audit.SystemStats, error) {
	stats := audit.SystemStats{
		ByAction:   map[string]int64{},
		ByResource: map[string]int64{},
		ByDay:      map[string]int64{},
		ByHour:     map[int]int64{},
	}
	err := r.db.QueryRowContext(ctx, `
		select count(*) from audit_logs where created_at >= $1
	`, since).Scan(&stats.Total)
	if err != nil {
		return audit.SystemStats{}, err
	}
	if err := r.groupCount(ctx, stats.ByAction, `
		select action, count(*) from audit_logs
		where created_at >= $1 group by action
	`, since); err != nil {
		return audit.SystemStats{}, err
	}
	if err := r.groupCount(ctx, stats.ByResource, `
		select resource, count(*) from audit_logs
		where created_at >= $1 group by resource
	`, since); err != nil {
		return audit.SystemStats{}, err
	}
	if err := r.groupCount(ctx, stats.ByDay, `
		select to_char(created_at, 'YYYY-MM-DD'), count(*) from audit_logs
		where created_at >= $1 group by 1
	`, since); err != nil {
		return audit.SystemStats{}, err
	}

	hourRows, err := r.db.QueryContext(ctx, `
		select extract(hour from created_at)::int, count(*) from audit_logs
		where created_at >= $1 group by 1
	`, since)
	if err != nil {
		return audit.SystemStats{}, err
	}
	defer hourRows.Close()
	for hourRows.Next() {
		var hour int
		var count int64
		if err := hourRows.Scan(&hour, &count); err != nil {
			return audit.SystemStats{}, err
		}
		stats.ByHour[hour] = count
	}
	if err := hourRows.Err(); err != nil {
		return audit.SystemStats{}, err
	}

	actorRows, err := r.db.QueryContext(ctx, `
		select user_id, count(*) as cnt from audit_logs
		where created_at >= $1 and user_id is not null
		group by user_id
		order by cnt desc
		limit 10
	`, since)
	if err != nil {
		return audit.SystemStats{}, err
	}
	defer actorRows.Close()
	for actorRows.Next() {
		var actor audit.ActorCount
		if err := actorRows.Scan(&actor.UserID, &actor.Count); err != nil {
			return audit.SystemStats{}, err
		}
		stats.TopActors = append(stats.TopActors, actor)
	}
	return stats, actorRows.Err()
}

func (r *AuditLog) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from audit_logs where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *AuditLog) groupCount(ctx context.Context, dst map[string]int64, query string, args ...any) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		dst[key] = count
	}
	return rows.Err()
}

func encodeDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return data, nil
}
