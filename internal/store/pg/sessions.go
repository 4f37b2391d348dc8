package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"forgeboard.dev/internal/auth"
)

// Sessions implements auth.SessionStore.
type Sessions struct {
	db *sql.DB
}

var _ auth.SessionStore = (*Sessions)(nil)

func (r *Sessions) Create(ctx context.Context, sess *auth.Session) error {
	_, err := r.db.ExecContext(ctx, `
		insert into sessions (id, token, user_id, expires_at, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, nullif($5,''), nullif($6,''), $7)
	`, sess.ID, sess.Token, sess.UserID, sess.ExpiresAt, sess.IPAddress, sess.UserAgent, sess.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (r *Sessions) FindByToken(ctx context.Context, token string) (*auth.Session, error) {
	var (
		sess auth.Session
		ip   sql.NullString
		ua   sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		select id, token, user_id, expires_at, ip_address, user_agent, created_at
		from sessions
		where token = $1
	`, token).Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.ExpiresAt, &ip, &ua, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.IPAddress = ip.String
	sess.UserAgent = ua.String
	return &sess, nil
}

// UpdateExpiry is last-write-wins: two racing sliding extensions both succeed
// and the later write stands.
func (r *Sessions) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		update sessions set expires_at = $2 where id = $1
	`, id, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Sessions) DeleteByToken(ctx context.Context, token string) error {
	// Idempotent: zero rows deleted means the token was already gone.
	_, err := r.db.ExecContext(ctx, `delete from sessions where token = $1`, token)
	return err
}

func (r *Sessions) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from sessions where user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from sessions where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Sessions) ListByUser(ctx context.Context, userID string) ([]auth.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		select id, token, user_id, expires_at, ip_address, user_agent, created_at
		from sessions
		where user_id = $1
		order by created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Session
	for rows.Next() {
		var (
			sess auth.Session
			ip   sql.NullString
			ua   sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.ExpiresAt, &ip, &ua, &sess.CreatedAt); err != nil {
			return nil, err
		}
		sess.IPAddress = ip.String
		sess.UserAgent = ua.String
		result = append(result, sess)
	}
	return result, rows.Err()
}

func (r *Sessions) Stats(ctx context.Context, now time.Time) (auth.SessionStats, error) {
	var stats auth.SessionStats
	err := r.db.QueryRowContext(ctx, `
		select
			count(*),
			count(*) filter (where expires_at >= $1),
			count(*) filter (where expires_at < $1),
			count(*) filter (where created_at >= $1 - interval '24 hours')
		from sessions
	`, now).Scan(&stats.Total, &stats.Active, &stats.Expired, &stats.Recent24)
	if err != nil {
		return auth.SessionStats{}, err
	}
	return stats, nil
}
