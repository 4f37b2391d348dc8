package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"forgeboard.dev/internal/auth"
)

// Users implements auth.UserStore.
type Users struct {
	db *sql.DB
}

var _ auth.UserStore = (*Users)(nil)

func (r *Users) Create(ctx context.Context, u *auth.User) error {
	_, err := r.db.ExecContext(ctx, `
		insert into users (id, username, email, password_hash, role, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (r *Users) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, role, is_active, last_login_at, created_at, updated_at
		from users
		where id = $1
	`, id))
}

func (r *Users) FindByLogin(ctx context.Context, identifier string) (*auth.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, role, is_active, last_login_at, created_at, updated_at
		from users
		where username = $1 or email = $1
	`, identifier))
}

func (r *Users) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		update users set is_active = $2, updated_at = now() where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Users) SetRole(ctx context.Context, id string, role auth.SystemRole) error {
	res, err := r.db.ExecContext(ctx, `
		update users set role = $2, updated_at = now() where id = $1
	`, id, string(role))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Users) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		update users set last_login_at = $2, updated_at = now() where id = $1
	`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u         auth.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = auth.SystemRole(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
