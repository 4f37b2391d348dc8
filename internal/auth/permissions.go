package auth

import "sort"

// Permission is an atomic, named capability checked before a privileged action.
// The vocabulary is closed: every permission the service understands is listed
// here, and the role tables below are built from it once at init and never
// mutated afterwards.
type Permission string

const (
	PermProjectCreate Permission = "project:create"
	PermProjectRead   Permission = "project:read"
	PermProjectUpdate Permission = "project:update"
	PermProjectDelete Permission = "project:delete"

	PermTaskCreate Permission = "task:create"
	PermTaskRead   Permission = "task:read"
	PermTaskUpdate Permission = "task:update"
	PermTaskDelete Permission = "task:delete"

	PermDocCreate Permission = "doc:create"
	PermDocRead   Permission = "doc:read"
	PermDocUpdate Permission = "doc:update"
	PermDocDelete Permission = "doc:delete"

	PermRoadmapCreate Permission = "roadmap:create"
	PermRoadmapRead   Permission = "roadmap:read"
	PermRoadmapUpdate Permission = "roadmap:update"
	PermRoadmapDelete Permission = "roadmap:delete"

	PermAgentExecute Permission = "agent:execute"
	PermAgentManage  Permission = "agent:manage"

	PermMemberRead   Permission = "member:read"
	PermMemberManage Permission = "member:manage"

	PermUserManage Permission = "user:manage"

	PermAuditRead   Permission = "audit:read"
	PermAuditManage Permission = "audit:manage"

	PermSessionManage Permission = "session:manage"
)

// PermissionSet is an immutable membership test over permissions.
type PermissionSet map[Permission]struct{}

func newSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// union returns a new set containing every permission of the receiver plus extra.
// Role tiers are built from the tier below, which keeps each tier a strict
// superset of its predecessor.
func (s PermissionSet) union(extra ...Permission) PermissionSet {
	out := make(PermissionSet, len(s)+len(extra))
	for p := range s {
		out[p] = struct{}{}
	}
	for _, p := range extra {
		out[p] = struct{}{}
	}
	return out
}

// Contains reports whether p is in the set.
func (s PermissionSet) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the set as a sorted slice, for stable JSON output.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// allPermissions is the full closed vocabulary.
var allPermissions = newSet(
	PermProjectCreate, PermProjectRead, PermProjectUpdate, PermProjectDelete,
	PermTaskCreate, PermTaskRead, PermTaskUpdate, PermTaskDelete,
	PermDocCreate, PermDocRead, PermDocUpdate, PermDocDelete,
	PermRoadmapCreate, PermRoadmapRead, PermRoadmapUpdate, PermRoadmapDelete,
	PermAgentExecute, PermAgentManage,
	PermMemberRead, PermMemberManage,
	PermUserManage,
	PermAuditRead, PermAuditManage,
	PermSessionManage,
)

// projectScopedPermissions is the subset that makes sense inside one project.
// An OWNER's fixed set is exactly this subset: "owner implies every project
// permission" lives in the table itself, so there is no separate bypass path
// to drift out of sync.
var projectScopedPermissions = newSet(
	PermProjectRead, PermProjectUpdate, PermProjectDelete,
	PermTaskCreate, PermTaskRead, PermTaskUpdate, PermTaskDelete,
	PermDocCreate, PermDocRead, PermDocUpdate, PermDocDelete,
	PermRoadmapCreate, PermRoadmapRead, PermRoadmapUpdate, PermRoadmapDelete,
	PermAgentExecute, PermAgentManage,
	PermMemberRead, PermMemberManage,
	PermAuditRead,
)

// System role tables. Each tier is built from the one below, so upgrading a
// role never removes a previously granted permission.
var (
	guestPermissions = newSet(
		PermProjectRead, PermTaskRead, PermDocRead, PermRoadmapRead,
	)
	userPermissions = guestPermissions.union(
		PermProjectCreate, PermProjectUpdate,
		PermTaskCreate, PermTaskUpdate,
		PermDocCreate, PermDocUpdate,
		PermAgentExecute,
	)
	adminPermissions = allPermissions

	systemRolePermissions = map[SystemRole]PermissionSet{
		RoleAdmin: adminPermissions,
		RoleUser:  userPermissions,
		RoleGuest: guestPermissions,
	}
)

// Project role tables, same superset construction: OWNER ⊇ ADMIN ⊇ MEMBER ⊇ VIEWER.
var (
	viewerPermissions = newSet(
		PermProjectRead, PermTaskRead, PermDocRead, PermRoadmapRead, PermMemberRead,
	)
	memberPermissions = viewerPermissions.union(
		PermTaskCreate, PermTaskUpdate,
		PermDocCreate, PermDocUpdate,
		PermRoadmapCreate, PermRoadmapUpdate,
		PermAgentExecute,
	)
	projectAdminPermissions = memberPermissions.union(
		PermProjectUpdate,
		PermTaskDelete, PermDocDelete, PermRoadmapDelete,
		PermAgentManage, PermMemberManage,
	)
	ownerPermissions = projectScopedPermissions

	projectRolePermissions = map[ProjectRole]PermissionSet{
		ProjectRoleOwner:  ownerPermissions,
		ProjectRoleAdmin:  projectAdminPermissions,
		ProjectRoleMember: memberPermissions,
		ProjectRoleViewer: viewerPermissions,
	}
)

// SystemRolePermissions returns the fixed set for a system role.
func SystemRolePermissions(role SystemRole) PermissionSet {
	return systemRolePermissions[role]
}

// ProjectRolePermissions returns the fixed set for a project role.
func ProjectRolePermissions(role ProjectRole) PermissionSet {
	return projectRolePermissions[role]
}

// AllPermissions returns the closed vocabulary, sorted.
func AllPermissions() []Permission {
	return allPermissions.Sorted()
}
