package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"forgeboard.dev/internal/auth"
)

// Memberships implements auth.MembershipStore. Custom grants are stored as a
// jsonb array next to the role column.
type Memberships struct {
	db *sql.DB
}

var _ auth.MembershipStore = (*Memberships)(nil)

func (r *Memberships) Create(ctx context.Context, m *auth.ProjectMembership) error {
	perms, err := encodePermissions(m.Permissions)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		insert into project_memberships (project_id, user_id, role, permissions, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, m.ProjectID, m.UserID, string(m.Role), perms, m.CreatedAt, m.UpdatedAt)
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

func (r *Memberships) Find(ctx context.Context, projectID, userID string) (*auth.ProjectMembership, error) {
	row := r.db.QueryRowContext(ctx, `
		select project_id, user_id, role, permissions, created_at, updated_at
		from project_memberships
		where project_id = $1 and user_id = $2
	`, projectID, userID)
	return scanMembership(row.Scan)
}

func (r *Memberships) UpdateRole(ctx context.Context, projectID, userID string, role auth.ProjectRole) error {
	res, err := r.db.ExecContext(ctx, `
		update project_memberships set role = $3, updated_at = now()
		where project_id = $1 and user_id = $2
	`, projectID, userID, string(role))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Memberships) SetPermissions(ctx context.Context, projectID, userID string, perms []auth.Permission) error {
	encoded, err := encodePermissions(perms)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		update project_memberships set permissions = $3, updated_at = now()
		where project_id = $1 and user_id = $2
	`, projectID, userID, encoded)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Memberships) Delete(ctx context.Context, projectID, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		delete from project_memberships where project_id = $1 and user_id = $2
	`, projectID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Memberships) ListByProject(ctx context.Context, projectID string) ([]auth.ProjectMembership, error) {
	rows, err := r.db.QueryContext(ctx, `
		select project_id, user_id, role, permissions, created_at, updated_at
		from project_memberships
		where project_id = $1
		order by created_at
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.ProjectMembership
	for rows.Next() {
		m, err := scanMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func (r *Memberships) CountOwners(ctx context.Context, projectID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		select count(*) from project_memberships
		where project_id = $1 and role = 'owner'
	`, projectID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanMembership(scan func(...any) error) (*auth.ProjectMembership, error) {
	var (
		m    auth.ProjectMembership
		role string
		raw  []byte
	)
	err := scan(&m.ProjectID, &m.UserID, &role, &raw, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Role = auth.ProjectRole(role)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &m, nil
}

func encodePermissions(perms []auth.Permission) ([]byte, error) {
	if len(perms) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	return data, nil
}
