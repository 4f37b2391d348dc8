package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MembershipService manages project memberships while preserving the
// invariant that every project keeps at least one OWNER.
type MembershipService struct {
	memberships MembershipStore
	now         func() time.Time
}

// MembershipOption configures MembershipService.
type MembershipOption func(*MembershipService)

// WithMembershipClock overrides the time source (useful for tests).
func WithMembershipClock(fn func() time.Time) MembershipOption {
	return func(s *MembershipService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(memberships MembershipStore, opts ...MembershipOption) *MembershipService {
	svc := &MembershipService{memberships: memberships, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// AddMember creates a membership for userID in projectID.
func (s *MembershipService) AddMember(ctx context.Context, projectID, userID string, role ProjectRole, perms []Permission) (*ProjectMembership, error) {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" || userID == "" {
		return nil, fmt.Errorf("%w: projectID and userID are required", ErrInvalidInput)
	}
	parsed, ok := ParseProjectRole(string(role))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported project role %s", ErrInvalidInput, role)
	}
	now := s.now().UTC()
	membership := &ProjectMembership{
		ProjectID:   projectID,
		UserID:      userID,
		Role:        parsed,
		Permissions: dedupePermissions(perms),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		return nil, err
	}
	return membership, nil
}

// RemoveMember deletes a membership. Removing the sole remaining OWNER fails
// with ErrConflict: promote another member first.
func (s *MembershipService) RemoveMember(ctx context.Context, projectID, userID string) error {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" || userID == "" {
		return fmt.Errorf("%w: projectID and userID are required", ErrInvalidInput)
	}
	membership, err := s.memberships.Find(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if membership.Role == ProjectRoleOwner {
		owners, err := s.memberships.CountOwners(ctx, projectID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return fmt.Errorf("%w: project must retain at least one owner", ErrConflict)
		}
	}
	return s.memberships.Delete(ctx, projectID, userID)
}

// UpdateRole changes a membership's project role. Demoting the sole remaining
// OWNER fails with ErrConflict.
func (s *MembershipService) UpdateRole(ctx context.Context, projectID, userID string, role ProjectRole) (*ProjectMembership, error) {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" || userID == "" {
		return nil, fmt.Errorf("%w: projectID and userID are required", ErrInvalidInput)
	}
	parsed, ok := ParseProjectRole(string(role))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported project role %s", ErrInvalidInput, role)
	}
	membership, err := s.memberships.Find(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if membership.Role == ProjectRoleOwner && parsed != ProjectRoleOwner {
		owners, err := s.memberships.CountOwners(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			return nil, fmt.Errorf("%w: project must retain at least one owner", ErrConflict)
		}
	}
	if err := s.memberships.UpdateRole(ctx, projectID, userID, parsed); err != nil {
		return nil, err
	}
	membership.Role = parsed
	membership.UpdatedAt = s.now().UTC()
	return membership, nil
}

// SetPermissions replaces a membership's custom grants.
func (s *MembershipService) SetPermissions(ctx context.Context, projectID, userID string, perms []Permission) error {
	projectID = strings.TrimSpace(projectID)
	userID = strings.TrimSpace(userID)
	if projectID == "" || userID == "" {
		return fmt.Errorf("%w: projectID and userID are required", ErrInvalidInput)
	}
	return s.memberships.SetPermissions(ctx, projectID, userID, dedupePermissions(perms))
}

// ListMembers returns every membership of a project.
func (s *MembershipService) ListMembers(ctx context.Context, projectID string) ([]ProjectMembership, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}
	return s.memberships.ListByProject(ctx, projectID)
}

func dedupePermissions(perms []Permission) []Permission {
	if len(perms) == 0 {
		return nil
	}
	seen := make(map[Permission]struct{}, len(perms))
	var out []Permission
	for _, p := range perms {
		p = Permission(strings.TrimSpace(string(p)))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
