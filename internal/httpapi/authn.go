package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"forgeboard.dev/internal/auth"
	"forgeboard.dev/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths reachable without a session. A missing Authorization header elsewhere
// is treated as anonymous here; the guards decide whether that is acceptable.
var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/verify",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth is the request gate: extract bearer token, resolve the session
// through the session store (the sole source of truth for validity) and
// attach the principal. Validation failure kinds stay separate for metrics
// before collapsing into 401.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.sessions == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := strings.TrimSpace(r.Header.Get(authHeader))
		if header == "" {
			// Anonymous: reaches the handler only if no guard objects.
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		result, err := a.sessions.Validate(r.Context(), token)
		if err != nil {
			obs.ObserveSessionValidation("error")
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if !result.Valid {
			// All failure kinds collapse to 401 at the gate; the 404 mapping
			// in handleAuthError is for handler-level resource lookups.
			obs.ObserveSessionValidation(validationOutcome(result.Reason))
			writeError(w, r, http.StatusUnauthorized, validationMessage(result.Reason))
			return
		}
		obs.ObserveSessionValidation("ok")

		user, err := a.users.Find(r.Context(), result.Session.UserID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{User: user, Session: result.Session})
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validationOutcome(reason error) string {
	switch {
	case errors.Is(reason, auth.ErrExpired):
		return "expired"
	case errors.Is(reason, auth.ErrUserDisabled):
		return "user_disabled"
	case errors.Is(reason, auth.ErrNotFound):
		return "not_found"
	default:
		return "invalid"
	}
}

func validationMessage(reason error) string {
	switch {
	case errors.Is(reason, auth.ErrExpired):
		return "session expired"
	case errors.Is(reason, auth.ErrUserDisabled):
		return "account disabled"
	default:
		return "invalid session token"
	}
}

func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
