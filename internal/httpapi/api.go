package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"peopleflow.org/internal/config"
	"peopleflow.org/internal/guard"
	"peopleflow.org/internal/obs"
	"peopleflow.org/internal/rbac"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the RBAC services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	svc      *rbac.Service
	sessions *rbac.Sessions
	source   rbac.Source
	guard    *guard.Guard

	tokenTTL     time.Duration
	sessionTTL   time.Duration
	rateBurst    int
	ratePerSec   float64
	maxBodyBytes int64
	corsOrigin   string
}

// New wires the routes. cfg may be nil; defaults then apply.
func New(rp ReadyProbe, version string, svc *rbac.Service, sessions *rbac.Sessions, source rbac.Source, cfg *config.Config) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		svc:          svc,
		sessions:     sessions,
		source:       source,
		tokenTTL:     time.Hour,
		sessionTTL:   12 * time.Hour,
		rateBurst:    100,
		ratePerSec:   50,
		maxBodyBytes: 1 << 20,
		corsOrigin:   "*",
	}
	if cfg != nil {
		if cfg.TokenTTL > 0 {
			a.tokenTTL = cfg.TokenTTL
		}
		if cfg.SessionTTL > 0 {
			a.sessionTTL = cfg.SessionTTL
		}
		if cfg.RateBurst > 0 {
			a.rateBurst = cfg.RateBurst
		}
		if cfg.RatePerSec > 0 {
			a.ratePerSec = cfg.RatePerSec
		}
		if cfg.MaxBodyBytes > 0 {
			a.maxBodyBytes = cfg.MaxBodyBytes
		}
		if cfg.CORSOrigin != "" {
			a.corsOrigin = cfg.CORSOrigin
		}
	}
	a.guard = guard.New(writeErrorCode)

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// current principal
	a.mux.HandleFunc("/v1/me", a.handleMe)
	a.mux.HandleFunc("/v1/me/tenants", a.handleMyTenants)
	a.mux.HandleFunc("/v1/me/tenant", a.handleSwitchTenant)

	// administration
	a.mux.HandleFunc("/v1/tenants", a.guard.RequireSuperAdmin(a.handleTenants))
	a.mux.HandleFunc("/v1/tenants/", a.handleTenantScoped)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/users", a.guard.Require("usuarios:crear", a.handleUsers))
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissionCatalog)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h, a.corsOrigin)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "peopleflow-api",
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
		"name":    "peopleflow-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
