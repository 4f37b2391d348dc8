package httpapi

import (
	"net/http"
	"strings"

	"forgeboard.dev/internal/auth"
)

type addMemberRequest struct {
	UserID      string            `json:"user_id"`
	Role        string            `json:"role"`
	Permissions []auth.Permission `json:"permissions,omitempty"`
}

type updateMemberRequest struct {
	Role string `json:"role"`
}

type setPermissionsRequest struct {
	Permissions []auth.Permission `json:"permissions"`
}

// handleProjectScoped routes /v1/projects/{project_id}/members[...] requests.
// Path shapes:
//
//	GET    /v1/projects/{pid}/members                      list members
//	POST   /v1/projects/{pid}/members                      add member
//	PUT    /v1/projects/{pid}/members/{uid}                change role
//	PUT    /v1/projects/{pid}/members/{uid}/permissions    replace custom grants
//	DELETE /v1/projects/{pid}/members/{uid}                remove member
func (a *API) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/projects/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "members" {
		http.NotFound(w, r)
		return
	}
	projectID := parts[0]
	pathProject := func(*http.Request) string { return projectID }

	switch {
	case len(parts) == 2:
		switch r.Method {
		case http.MethodGet:
			a.RequirePermission(auth.PermMemberRead, pathProject)(func(w http.ResponseWriter, r *http.Request) {
				a.handleListMembers(w, r, projectID)
			})(w, r)
		case http.MethodPost:
			a.RequirePermission(auth.PermMemberManage, pathProject)(func(w http.ResponseWriter, r *http.Request) {
				a.handleAddMember(w, r, projectID)
			})(w, r)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 3:
		userID := parts[2]
		switch r.Method {
		case http.MethodPut:
			a.RequirePermission(auth.PermMemberManage, pathProject)(func(w http.ResponseWriter, r *http.Request) {
				a.handleUpdateMemberRole(w, r, projectID, userID)
			})(w, r)
		case http.MethodDelete:
			a.RequirePermission(auth.PermMemberManage, pathProject)(func(w http.ResponseWriter, r *http.Request) {
				a.handleRemoveMember(w, r, projectID, userID)
			})(w, r)
		default:
			methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 4 && parts[3] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		userID := parts[2]
		a.RequirePermission(auth.PermMemberManage, pathProject)(func(w http.ResponseWriter, r *http.Request) {
			a.handleSetMemberPermissions(w, r, projectID, userID)
		})(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request, projectID string) {
	members, err := a.memberships.ListMembers(r.Context(), projectID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (a *API) handleAddMember(w http.ResponseWriter, r *http.Request, projectID string) {
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	membership, err := a.memberships.AddMember(r.Context(), projectID, req.UserID, auth.ProjectRole(req.Role), req.Permissions)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.recordAudit(r, "member.add", "project", projectID, map[string]any{
		"member_id": req.UserID,
		"role":      string(membership.Role),
	})
	writeJSON(w, http.StatusCreated, membership)
}

func (a *API) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request, projectID, userID string) {
	var req updateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	membership, err := a.memberships.UpdateRole(r.Context(), projectID, userID, auth.ProjectRole(req.Role))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.recordAudit(r, "member.update_role", "project", projectID, map[string]any{
		"member_id": userID,
		"role":      req.Role,
	})
	writeJSON(w, http.StatusOK, membership)
}

func (a *API) handleSetMemberPermissions(w http.ResponseWriter, r *http.Request, projectID, userID string) {
	var req setPermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.memberships.SetPermissions(r.Context(), projectID, userID, req.Permissions); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.recordAudit(r, "member.set_permissions", "project", projectID, map[string]any{
		"member_id": userID,
		"count":     len(req.Permissions),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request, projectID, userID string) {
	if err := a.memberships.RemoveMember(r.Context(), projectID, userID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.recordAudit(r, "member.remove", "project", projectID, map[string]any{
		"member_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}
