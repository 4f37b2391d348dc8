package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Auth-core metrics. Session validation outcomes keep the failure kinds
// separate (ok, not_found, expired, user_disabled) so an expiry storm is
// distinguishable from a credential-stuffing run.
var (
	sessionValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_session_validations_total",
			Help: "Session validation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_created_total",
		Help: "Sessions created by successful logins.",
	})

	sessionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_swept_total",
		Help: "Expired sessions deleted by the janitor.",
	})

	auditEntriesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_written_total",
		Help: "Audit entries appended successfully.",
	})

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit writes that failed; the primary operation proceeds regardless.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		sessionValidations, sessionsCreated, sessionsSwept,
		auditEntriesWritten, auditWriteFailures,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSessionValidation counts one validation attempt.
func ObserveSessionValidation(outcome string) {
	sessionValidations.WithLabelValues(outcome).Inc()
}

// ObserveSessionCreated counts one issued session.
func ObserveSessionCreated() { sessionsCreated.Inc() }

// ObserveSessionsSwept counts janitor deletions.
func ObserveSessionsSwept(n int64) {
	if n > 0 {
		sessionsSwept.Add(float64(n))
	}
}

// ObserveAuditWrite counts audit append outcomes.
func ObserveAuditWrite(ok bool) {
	if ok {
		auditEntriesWritten.Inc()
	} else {
		auditWriteFailures.Inc()
	}
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifier segments so metric cardinality stays
// bounded without a parameterised router.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	// /v1/<resource>/<id>[/<sub>[/<id>]] — replace raw ids with placeholders.
	if len(parts) >= 4 && parts[1] == "v1" {
		switch parts[2] {
		case "users", "sessions", "projects":
			parts[3] = ":id"
			if len(parts) >= 6 && parts[4] == "members" {
				parts[5] = ":user_id"
			}
			return strings.Join(parts, "/")
		}
	}
	return path
}

// statusWriter records the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
