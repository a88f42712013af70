package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

	permissionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_permission_checks_total",
			Help: "Permission evaluations by outcome.",
		},
		[]string{"outcome"},
	)

	tenantSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_tenant_switches_total",
			Help: "Active-tenant switch attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers the service metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		permissionChecks, tenantSwitches,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePermissionCheck records one permission evaluation outcome
// ("allowed" or "denied").
func ObservePermissionCheck(allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	permissionChecks.WithLabelValues(outcome).Inc()
}

// ObserveTenantSwitch records a tenant switch attempt outcome
// ("switched", "denied" or "error").
func ObserveTenantSwitch(outcome string) {
	tenantSwitches.WithLabelValues(outcome).Inc()
}

// Instrument wraps the handler with in-flight, count and latency metrics.
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

// CanonicalPath collapses resource ids so metric labels stay low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return path
	}
	switch parts[1] {
	case "tenants":
		if len(parts) == 3 {
			return "/v1/tenants/:id"
		}
		if len(parts) == 4 && parts[3] == "roles" {
			return "/v1/tenants/:id/roles"
		}
	case "roles":
		if len(parts) == 3 {
			return "/v1/roles/:id"
		}
		if len(parts) == 4 && parts[3] == "permissions" {
			return "/v1/roles/:id/permissions"
		}
	case "users":
		if len(parts) == 4 && parts[3] == "assignments" {
			return "/v1/users/:id/assignments"
		}
		if len(parts) == 5 && parts[3] == "assignments" {
			return "/v1/users/:id/assignments/:role_id"
		}
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
