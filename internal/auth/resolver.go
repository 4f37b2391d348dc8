package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolver computes effective permissions for a (user, optional project) pair:
// the union of the user's system-role set, the project-role set of their
// membership and the membership's custom grants.
type Resolver struct {
	users       UserStore
	memberships MembershipStore
}

// NewResolver constructs a Resolver.
func NewResolver(users UserStore, memberships MembershipStore) *Resolver {
	return &Resolver{users: users, memberships: memberships}
}

// CheckPermission reports whether userID holds perm, optionally scoped to
// projectID. Not being a member of the project is a normal false, never an
// error. OWNER needs no special casing here: the owner role's fixed set
// already contains every project-scoped permission.
func (r *Resolver) CheckPermission(ctx context.Context, userID string, perm Permission, projectID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	user, err := r.users.Find(ctx, userID)
	if err != nil {
		return false, err
	}
	if !user.IsActive {
		return false, nil
	}
	if SystemRolePermissions(user.Role).Contains(perm) {
		return true, nil
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return false, nil
	}
	membership, err := r.memberships.Find(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if ProjectRolePermissions(membership.Role).Contains(perm) {
		return true, nil
	}
	for _, granted := range membership.Permissions {
		if granted == perm {
			return true, nil
		}
	}
	return false, nil
}

// IsMember reports whether userID has any membership in projectID.
func (r *Resolver) IsMember(ctx context.Context, userID, projectID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	projectID = strings.TrimSpace(projectID)
	if userID == "" || projectID == "" {
		return false, fmt.Errorf("%w: userID and projectID are required", ErrInvalidInput)
	}
	if _, err := r.memberships.Find(ctx, projectID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UserPermissions returns the union of every applicable permission set for
// introspection. Gating always goes through CheckPermission.
func (r *Resolver) UserPermissions(ctx context.Context, userID, projectID string) ([]Permission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	user, err := r.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	union := SystemRolePermissions(user.Role).union()
	projectID = strings.TrimSpace(projectID)
	if projectID != "" {
		membership, err := r.memberships.Find(ctx, projectID, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err == nil {
			union = union.union(ProjectRolePermissions(membership.Role).Sorted()...)
			union = union.union(membership.Permissions...)
		}
	}
	return union.Sorted(), nil
}
