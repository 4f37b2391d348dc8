package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"forgeboard.dev/internal/audit"
	"forgeboard.dev/internal/auth"
	"forgeboard.dev/internal/obs"
	"forgeboard.dev/internal/stream"
)

// ReadyProbe reports readiness (e.g. a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services bundles the auth core consumed by the HTTP layer.
type Services struct {
	Sessions    *auth.SessionService
	Users       *auth.UserService
	Memberships *auth.MembershipService
	Resolver    *auth.Resolver
	Audit       *audit.Logger
	Stream      *stream.Stream
}

// API is the HTTP layer: the request gate plus the handlers it guards.
type API struct {
	mux         *http.ServeMux
	readyProbe  ReadyProbe
	version     string
	sessions    *auth.SessionService
	users       *auth.UserService
	memberships *auth.MembershipService
	resolver    *auth.Resolver
	auditlog    *audit.Logger
	stream      *stream.Stream
}

// New wires routes against the provided services.
func New(rp ReadyProbe, version string, svcs Services) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  rp,
		version:     version,
		sessions:    svcs.Sessions,
		users:       svcs.Users,
		memberships: svcs.Memberships,
		resolver:    svcs.Resolver,
		auditlog:    svcs.Audit,
		stream:      svcs.Stream,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// authentication surface
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout-all", a.handleLogoutAll)
	a.mux.HandleFunc("/v1/auth/verify", a.handleVerifyAssertion)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/sessions", a.handleMySessions)
	a.mux.HandleFunc("/v1/auth/permissions", a.handleMyPermissions)

	// project membership surface
	a.mux.HandleFunc("/v1/projects/", a.handleProjectScoped)

	// user administration
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)

	// session administration
	a.mux.HandleFunc("/v1/admin/sessions/stats", a.RequirePermission(auth.PermSessionManage, nil)(a.handleSessionStats))
	a.mux.HandleFunc("/v1/admin/sessions/sweep", a.RequirePermission(auth.PermSessionManage, nil)(a.handleSessionSweep))

	// audit administration
	a.mux.HandleFunc("/v1/admin/audit/stats", a.RequirePermission(auth.PermAuditRead, nil)(a.handleSystemAuditStats))
	a.mux.HandleFunc("/v1/admin/audit/purge", a.RequirePermission(auth.PermAuditManage, nil)(a.handleAuditPurge))
	a.mux.HandleFunc("/v1/admin/audit/entries", a.RequirePermission(auth.PermAuditManage, nil)(a.handleAuditRecordBatch))
	a.mux.HandleFunc("/v1/admin/audit/stream", a.RequirePermission(auth.PermAuditRead, nil)(a.AuditStream))
	a.mux.HandleFunc("/v1/admin/audit/users/", a.RequirePermission(auth.PermAuditRead, nil)(a.handleUserAuditStats))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 100)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "forgeboard-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "forgeboard-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// recordAudit appends an entry best-effort. Audit is a side channel: a failed
// write is counted and logged, never allowed to fail the primary operation.
func (a *API) recordAudit(r *http.Request, action, resource, resourceID string, details map[string]any) {
	if a.auditlog == nil {
		return
	}
	entry := audit.Entry{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		entry.UserID = principal.User.ID
	}
	if _, err := a.auditlog.Record(r.Context(), entry); err != nil {
		obs.ObserveAuditWrite(false)
		obs.LogRequest(map[string]any{
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
			"level":      "error",
			"msg":        "audit_write_failed",
			"request_id": RequestIDFromContext(r.Context()),
			"action":     action,
			"error":      err.Error(),
		})
		return
	}
	obs.ObserveAuditWrite(true)
}
