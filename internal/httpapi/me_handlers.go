package httpapi

import (
	"errors"
	"net/http"

	"peopleflow.org/internal/audit"
	"peopleflow.org/internal/auth"
	"peopleflow.org/internal/guard"
	"peopleflow.org/internal/obs"
	"peopleflow.org/internal/perm"
	"peopleflow.org/internal/rbac"
)

type meResponse struct {
	User           rbac.User `json:"user"`
	State          string    `json:"state"`
	ActiveTenantID *string   `json:"active_tenant_id"`
	Permissions    []string  `json:"permissions"`
	DefaultRoute   string    `json:"default_route"`
}

type switchTenantRequest struct {
	TenantID *string `json:"tenant_id"`
}

func (a *API) requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return p, true
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:           p.User,
		State:          string(p.State),
		ActiveTenantID: p.ActiveTenantID,
		Permissions:    p.Permissions.Names(),
		DefaultRoute:   defaultRouteFor(p),
	})
}

func defaultRouteFor(p auth.Principal) string {
	if p.State == rbac.StateUnselected {
		return guard.RouteSelectTenant
	}
	return guard.DefaultRoute(p.Permissions)
}

func (a *API) handleMyTenants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}
	tenants, err := a.sessions.AccessibleTenants(r.Context(), p.User.ID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []rbac.Tenant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// handleSwitchTenant rebinds the session's active tenant. The access check
// runs before the session write, so a rejected switch leaves the previous
// binding fully intact.
func (a *API) handleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req switchTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.sessions.SwitchTenant(r.Context(), p.SessionToken, req.TenantID)
	switch {
	case err == nil:
	case errors.Is(err, rbac.ErrTenantAccessDenied):
		obs.ObserveTenantSwitch("denied")
		_ = audit.LogEvent(r.Context(), "rbac.tenant.switch_denied", map[string]any{
			"target_tenant_id": deref(req.TenantID),
		})
		writeError(w, r, http.StatusForbidden, "tenant access denied")
		return
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusUnauthorized, "session expired")
		return
	default:
		obs.ObserveTenantSwitch("error")
		writeError(w, r, http.StatusInternalServerError, "tenant switch failed")
		return
	}

	// The binding changed; re-resolve and re-aggregate for the new scope.
	binding, err := a.sessions.Resolve(r.Context(), p.SessionToken)
	if err != nil {
		if !errors.Is(err, rbac.ErrNoAccessibleTenant) {
			writeError(w, r, http.StatusInternalServerError, "tenant resolution failed")
			return
		}
		// Same marker the authentication path uses for tenantless users.
		binding = rbac.Binding{State: rbac.StateDenied}
	}
	names, err := a.source.UserPermissions(r.Context(), p.User.ID, binding.ActiveTenantID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "permission aggregation failed")
		return
	}
	set := perm.NewSet(names)

	obs.ObserveTenantSwitch("switched")
	_ = audit.LogEvent(r.Context(), "rbac.tenant.switched", map[string]any{
		"target_tenant_id": deref(binding.ActiveTenantID),
	})

	route := guard.DefaultRoute(set)
	if binding.State == rbac.StateUnselected {
		route = guard.RouteSelectTenant
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:           p.User,
		State:          string(binding.State),
		ActiveTenantID: binding.ActiveTenantID,
		Permissions:    set.Names(),
		DefaultRoute:   route,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
