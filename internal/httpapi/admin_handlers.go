package httpapi

import (
	"net/http"
	"strings"

	"forgeboard.dev/internal/audit"
	"forgeboard.dev/internal/auth"
	"forgeboard.dev/internal/obs"
)

// handleUserScoped routes /v1/users/{user_id}/... administration requests.
// Path shapes:
//
//	POST /v1/users/{uid}/activate
//	POST /v1/users/{uid}/deactivate   also revokes every live session
//	PUT  /v1/users/{uid}/role
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	userID := parts[0]

	guard := a.RequirePermission(auth.PermUserManage, nil)
	switch parts[1] {
	case "activate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		guard(func(w http.ResponseWriter, r *http.Request) {
			a.handleSetUserActive(w, r, userID, true)
		})(w, r)
	case "deactivate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		guard(func(w http.ResponseWriter, r *http.Request) {
			a.handleSetUserActive(w, r, userID, false)
		})(w, r)
	case "role":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		guard(func(w http.ResponseWriter, r *http.Request) {
			a.handleSetUserRole(w, r, userID)
		})(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleSetUserActive(w http.ResponseWriter, r *http.Request, userID string, active bool) {
	if err := a.users.SetActive(r.Context(), userID, active); err != nil {
		handleAuthError(w, r, err)
		return
	}
	action := "user.activate"
	details := map[string]any{}
	if !active {
		action = "user.deactivate"
		// Disabled accounts lose every live session immediately.
		revoked, err := a.sessions.RevokeAll(r.Context(), userID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		details["sessions_revoked"] = revoked
	}
	a.recordAudit(r, action, "user", userID, details)
	w.WriteHeader(http.StatusNoContent)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleSetUserRole(w http.ResponseWriter, r *http.Request, userID string) {
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := auth.ParseSystemRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unsupported role")
		return
	}
	if err := a.users.SetRole(r.Context(), userID, role); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.recordAudit(r, "user.set_role", "user", userID, map[string]any{
		"role": string(role),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	stats, err := a.sessions.Stats(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleSessionSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	swept, err := a.sessions.SweepExpired(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveSessionsSwept(swept)
	a.recordAudit(r, "session.sweep", "session", "", map[string]any{
		"swept": swept,
	})
	writeJSON(w, http.StatusOK, map[string]any{"swept": swept})
}

func (a *API) handleSystemAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	days, err := parseDays(r.URL.Query().Get("days"), 30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := a.auditlog.SystemStats(r.Context(), days)
	if err != nil {
		handleAuditError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleUserAuditStats serves /v1/admin/audit/users/{user_id}/stats.
func (a *API) handleUserAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/audit/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "stats" {
		http.NotFound(w, r)
		return
	}
	days, err := parseDays(r.URL.Query().Get("days"), 30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := a.auditlog.StatsForUser(r.Context(), parts[0], days)
	if err != nil {
		handleAuditError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAuditPurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	days, err := parseDays(r.URL.Query().Get("days"), 90)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	purged, err := a.auditlog.PurgeOlderThan(r.Context(), days)
	if err != nil {
		handleAuditError(w, r, err)
		return
	}
	a.recordAudit(r, "audit.purge", "audit", "", map[string]any{
		"days":   days,
		"purged": purged,
	})
	writeJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

type recordBatchRequest struct {
	Entries []audit.Entry `json:"entries"`
}

// handleAuditRecordBatch accepts a batch of entries from trusted internal
// callers. Validation is all-or-nothing; the write is not, so the response
// reports how many entries landed.
func (a *API) handleAuditRecordBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req recordBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	written, err := a.auditlog.RecordBatch(r.Context(), req.Entries)
	if err != nil {
		if written > 0 {
			// Partial application: surface the count alongside the failure.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"written": written,
				"error":   "batch write incomplete",
			})
			return
		}
		handleAuditError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"written": written})
}
