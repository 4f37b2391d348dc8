package auth

import (
	"strings"
	"time"
)

// SystemRole is the account-wide permission tier.
type SystemRole string

const (
	RoleAdmin SystemRole = "admin"
	RoleUser  SystemRole = "user"
	RoleGuest SystemRole = "guest"
)

// ParseSystemRole normalizes a raw role string.
func ParseSystemRole(raw string) (SystemRole, bool) {
	switch SystemRole(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	case RoleGuest:
		return RoleGuest, true
	}
	return "", false
}

// ProjectRole is the per-project permission tier, independent of SystemRole.
type ProjectRole string

const (
	ProjectRoleOwner  ProjectRole = "owner"
	ProjectRoleAdmin  ProjectRole = "admin"
	ProjectRoleMember ProjectRole = "member"
	ProjectRoleViewer ProjectRole = "viewer"
)

// ParseProjectRole normalizes a raw project role string.
func ParseProjectRole(raw string) (ProjectRole, bool) {
	switch ProjectRole(strings.TrimSpace(strings.ToLower(raw))) {
	case ProjectRoleOwner:
		return ProjectRoleOwner, true
	case ProjectRoleAdmin:
		return ProjectRoleAdmin, true
	case ProjectRoleMember:
		return ProjectRoleMember, true
	case ProjectRoleViewer:
		return ProjectRoleViewer, true
	}
	return "", false
}

// User is a registered account. Users are deactivated, never hard-deleted.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         SystemRole `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Session binds an opaque bearer token to a user for a bounded, slidable window.
// A user may hold several concurrent sessions (multi-device).
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectMembership links a user to a project with a role plus ad-hoc grants
// layered on top of the role's fixed permission set.
type ProjectMembership struct {
	ProjectID   string       `json:"project_id"`
	UserID      string       `json:"user_id"`
	Role        ProjectRole  `json:"role"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SessionStats is an aggregate read over the session table.
type SessionStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Expired  int64 `json:"expired"`
	Recent24 int64 `json:"recent_24h"`
}
