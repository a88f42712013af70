package httpapi

import (
	"errors"
	"net/http"
	"time"

	"peopleflow.org/internal/audit"
	"peopleflow.org/internal/auth"
	"peopleflow.org/internal/guard"
	"peopleflow.org/internal/perm"
	"peopleflow.org/internal/rbac"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token          string        `json:"token"`
	ExpiresAt      time.Time     `json:"expires_at"`
	State          string        `json:"state"`
	ActiveTenantID *string       `json:"active_tenant_id"`
	Tenants        []rbac.Tenant `json:"tenants,omitempty"`
	Permissions    []string      `json:"permissions"`
	DefaultRoute   string        `json:"default_route"`
}

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

	user, err := a.svc.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and wrong password.
		writeError(w, r, http.StatusUnauthorized, auth.ErrBadCredentials.Error())
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, auth.ErrBadCredentials.Error())
		return
	}
	if user.Status != rbac.UserStatusActive {
		writeError(w, r, http.StatusForbidden, "account disabled")
		return
	}

	session, err := a.sessions.Create(r.Context(), user.ID, a.sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session creation failed")
		return
	}

	resp := loginResponse{State: string(rbac.StateDenied), Permissions: []string{}, DefaultRoute: guard.RouteNoAccess}
	binding, err := a.sessions.Resolve(r.Context(), session.Token)
	switch {
	case err == nil:
		names, err := a.source.UserPermissions(r.Context(), user.ID, binding.ActiveTenantID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "permission aggregation failed")
			return
		}
		set := perm.NewSet(names)
		resp.State = string(binding.State)
		resp.ActiveTenantID = binding.ActiveTenantID
		resp.Tenants = binding.Tenants
		resp.Permissions = set.Names()
		if binding.State == rbac.StateUnselected {
			resp.DefaultRoute = guard.RouteSelectTenant
		} else {
			resp.DefaultRoute = guard.DefaultRoute(set)
		}
	case errors.Is(err, rbac.ErrNoAccessibleTenant):
		// Valid credentials, no tenant: the session exists but every guarded
		// endpoint will refuse it.
	default:
		writeError(w, r, http.StatusInternalServerError, "tenant resolution failed")
		return
	}

	token, err := auth.GenerateToken(user.ID, session.Token, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	resp.Token = token
	resp.ExpiresAt = time.Now().UTC().Add(a.tokenTTL)

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
		"state":   resp.State,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.sessions.Logout(r.Context(), p.SessionToken); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}
