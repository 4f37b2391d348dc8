package httpapi

import (
	"net/http"

	"forgeboard.dev/internal/auth"
)

// ProjectIDExtractor pulls the project scope out of a request, e.g. from a
// path segment or query parameter. A nil extractor means the check is
// unscoped (system permissions only).
type ProjectIDExtractor func(*http.Request) string

// QueryProjectID extracts the project scope from the project_id query parameter.
func QueryProjectID(r *http.Request) string {
	return r.URL.Query().Get("project_id")
}

// RequirePermission returns a guard that admits the request only when the
// attached principal holds perm, optionally scoped to the extracted project.
// No principal short-circuits 401; an authenticated principal without the
// permission gets 403 before the handler body runs.
func (a *API) RequirePermission(perm auth.Permission, extract ProjectIDExtractor) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			projectID := ""
			if extract != nil {
				projectID = extract(r)
			}
			allowed, err := a.resolver.CheckPermission(r.Context(), principal.User.ID, perm, projectID)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "permission check failed")
				return
			}
			if !allowed {
				writeError(w, r, http.StatusForbidden, "insufficient permissions")
				return
			}
			next(w, r)
		}
	}
}

// RequireProjectMember returns a guard that admits any member of the
// extracted project, regardless of role. System ADMINs pass without a
// membership row.
func (a *API) RequireProjectMember(extract ProjectIDExtractor) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			projectID := ""
			if extract != nil {
				projectID = extract(r)
			}
			if projectID == "" {
				writeError(w, r, http.StatusBadRequest, "project_id is required")
				return
			}
			if principal.User.Role == auth.RoleAdmin {
				next(w, r)
				return
			}
			member, err := a.resolver.IsMember(r.Context(), principal.User.ID, projectID)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "permission check failed")
				return
			}
			if !member {
				writeError(w, r, http.StatusForbidden, "not a project member")
				return
			}
			next(w, r)
		}
	}
}
