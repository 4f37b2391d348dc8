package httpapi

import (
	"net/http"
	"time"

	"forgeboard.dev/internal/auth"
	"forgeboard.dev/internal/obs"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	Assertion string     `json:"assertion,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.recordAudit(r, "auth.register", "user", user.ID, map[string]any{
		"username": user.Username,
	})
	writeJSON(w, http.StatusCreated, user)
}

// handleLogin verifies credentials and issues a session. The bearer token is
// the session's opaque key; the response also carries a signed identity
// assertion whose embedded expiry is informational only.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.VerifyCredential(r.Context(), req.Identifier, req.Password)
	if err != nil {
		a.recordAudit(r, "auth.login.failed", "user", "", map[string]any{
			"identifier": req.Identifier,
		})
		handleAuthError(w, r, err)
		return
	}
	session, err := a.sessions.Create(r.Context(), user.ID, clientIP(r), r.UserAgent(), auth.DefaultSessionTTL)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveSessionCreated()

	assertion, err := auth.IssueToken(user.ID, user.Username, auth.DefaultSessionTTL)
	if err != nil {
		// The session token works on its own; skip the assertion rather
		// than fail the login.
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "warn",
			"msg":   "identity_assertion_unavailable",
			"error": err.Error(),
		})
		assertion = ""
	}

	a.recordAudit(r, "auth.login", "session", session.ID, map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		Assertion: assertion,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	token, _ := auth.TokenFromContext(r.Context())
	if err := a.sessions.Revoke(r.Context(), token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.recordAudit(r, "auth.logout", "session", principal.Session.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	count, err := a.sessions.RevokeAll(r.Context(), principal.User.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.recordAudit(r, "auth.logout_all", "user", principal.User.ID, map[string]any{
		"revoked": count,
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": count})
}

type verifyRequest struct {
	Assertion string `json:"assertion"`
}

// handleVerifyAssertion checks signature and embedded expiry of an identity
// assertion. It deliberately does not consult the session store.
func (a *API) handleVerifyAssertion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claims, err := auth.VerifyToken(req.Assertion)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    claims.Subject,
		"username":   claims.Username,
		"expires_at": claims.ExpiresAt.Time,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    principal.User,
		"session": principal.Session,
	})
}

func (a *API) handleMySessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	sessions, err := a.sessions.ListForUser(r.Context(), principal.User.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleMyPermissions returns the effective permission union for
// introspection; gating always goes through the guards.
func (a *API) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	perms, err := a.resolver.UserPermissions(r.Context(), principal.User.ID, QueryProjectID(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}
