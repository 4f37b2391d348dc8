package auth

import (
	"context"
	"time"
)

// UserStore manages user accounts. The durable store is the single writer of
// record; services never assume exclusive in-process mutation.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByLogin resolves a username or email to a user.
	FindByLogin(ctx context.Context, identifier string) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role SystemRole) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionStore persists issued sessions keyed by opaque token.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	// UpdateExpiry returns ErrNotFound when the session raced with deletion.
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByToken and DeleteByUser are idempotent: deleting an absent row
	// is treated as already satisfied.
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	Stats(ctx context.Context, now time.Time) (SessionStats, error)
}

// MembershipStore persists project memberships keyed by (projectID, userID).
type MembershipStore interface {
	Create(ctx context.Context, m *ProjectMembership) error
	Find(ctx context.Context, projectID, userID string) (*ProjectMembership, error)
	UpdateRole(ctx context.Context, projectID, userID string, role ProjectRole) error
	SetPermissions(ctx context.Context, projectID, userID string, perms []Permission) error
	Delete(ctx context.Context, projectID, userID string) error
	ListByProject(ctx context.Context, projectID string) ([]ProjectMembership, error)
	// CountOwners backs the last-owner invariant.
	CountOwners(ctx context.Context, projectID string) (int, error)
}
