package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"peopleflow.org/internal/audit"
	"peopleflow.org/internal/auth"
	"peopleflow.org/internal/rbac"
)

type createTenantRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

// canAdministerTenant: super-admins administer any tenant; otherwise the
// permission must be held inside the tenant being administered, which means
// the session must be actively bound to it.
func canAdministerTenant(p auth.Principal, tenantID, permission string) bool {
	if p.IsSuperAdmin() {
		return true
	}
	return p.ActiveTenantID != nil && *p.ActiveTenantID == tenantID && p.Can(permission)
}

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tenant, err := a.svc.CreateTenant(r.Context(), req.Name, req.Slug)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.tenant.created", map[string]any{
			"tenant_id": tenant.ID,
			"slug":      tenant.Slug,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", tenant.ID))
		writeJSON(w, http.StatusCreated, tenant)
	case http.MethodGet:
		tenants, err := a.svc.ListTenants(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		if tenants == nil {
			tenants = []rbac.Tenant{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTenantScoped(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tenants/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	tenantID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !p.IsSuperAdmin() && (p.ActiveTenantID == nil || *p.ActiveTenantID != tenantID) {
			writeError(w, r, http.StatusForbidden, "insufficient permissions")
			return
		}
		tenant, err := a.svc.GetTenant(r.Context(), tenantID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tenant)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleTenantRoles(w, r, p, tenantID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTenantRoles(w http.ResponseWriter, r *http.Request, p auth.Principal, tenantID string) {
	switch r.Method {
	case http.MethodPost:
		if !canAdministerTenant(p, tenantID, "roles:crear") {
			writeError(w, r, http.StatusForbidden, "insufficient permissions")
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), tenantID, req.Name, req.Description)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.created", map[string]any{
			"role_id":   role.ID,
			"tenant_id": tenantID,
			"name":      role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	case http.MethodGet:
		if !canAdministerTenant(p, tenantID, "roles:ver") {
			writeError(w, r, http.StatusForbidden, "insufficient permissions")
			return
		}
		roles, err := a.svc.ListRoles(r.Context(), tenantID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		if roles == nil {
			roles = []rbac.Role{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// loadScopedRole fetches the role and enforces that the caller may administer
// it: global roles are super-admin territory, tenant roles require the
// matching active tenant.
func (a *API) loadScopedRole(w http.ResponseWriter, r *http.Request, p auth.Principal, roleID, permission string) (rbac.Role, bool) {
	role, err := a.svc.GetRole(r.Context(), roleID)
	if err != nil {
		handleRBACError(w, r, err)
		return rbac.Role{}, false
	}
	if role.TenantID == nil {
		if !p.IsSuperAdmin() {
			writeError(w, r, http.StatusForbidden, "insufficient permissions")
			return rbac.Role{}, false
		}
		return role, true
	}
	if !canAdministerTenant(p, *role.TenantID, permission) {
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
		return rbac.Role{}, false
	}
	return role, true
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if _, ok := a.loadScopedRole(w, r, p, roleID, "roles:eliminar"); !ok {
			return
		}
		if err := a.svc.DeleteRole(r.Context(), roleID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.deleted", map[string]any{"role_id": roleID})
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, p, roleID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, p auth.Principal, roleID string) {
	switch r.Method {
	case http.MethodPut:
		if _, ok := a.loadScopedRole(w, r, p, roleID, "roles:editar"); !ok {
			return
		}
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.permissions_updated", map[string]any{
			"role_id": roleID,
			"count":   len(req.Permissions),
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		if _, ok := a.loadScopedRole(w, r, p, roleID, "roles:ver"); !ok {
			return
		}
		perms, err := a.svc.RolePermissions(r.Context(), roleID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		if perms == nil {
			perms = []rbac.Permission{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.CreateUser(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.created", map[string]any{
		"new_user_id": user.ID,
		"email":       user.Email,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[1] != "assignments" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]

	switch {
	case len(parts) == 2 && r.Method == http.MethodPost:
		a.handleAssignRole(w, r, p, userID)
	case len(parts) == 2 && r.Method == http.MethodGet:
		a.handleListAssignments(w, r, p, userID)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		a.handleRemoveAssignment(w, r, p, userID, parts[2])
	case len(parts) == 2:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	case len(parts) == 3:
		methodNotAllowed(w, r, http.MethodDelete)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request, p auth.Principal, userID string) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}
	if _, ok := a.loadScopedRole(w, r, p, req.RoleID, "usuarios:gestionar"); !ok {
		return
	}
	assignment, err := a.svc.AssignRole(r.Context(), userID, req.RoleID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.assigned", map[string]any{
		"target_user_id": userID,
		"role_id":        assignment.RoleID,
		"tenant_id":      deref(assignment.TenantID),
	})
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) handleListAssignments(w http.ResponseWriter, r *http.Request, p auth.Principal, userID string) {
	if !p.Can("usuarios:ver") {
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
		return
	}
	assignments, err := a.svc.ListAssignments(r.Context(), userID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	// Tenant admins only see assignments in their own tenant.
	if !p.IsSuperAdmin() {
		filtered := assignments[:0]
		for _, asg := range assignments {
			if asg.TenantID != nil && p.ActiveTenantID != nil && *asg.TenantID == *p.ActiveTenantID {
				filtered = append(filtered, asg)
			}
		}
		assignments = filtered
	}
	if assignments == nil {
		assignments = []rbac.UserRoleAssignment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

func (a *API) handleRemoveAssignment(w http.ResponseWriter, r *http.Request, p auth.Principal, userID, roleID string) {
	if _, ok := a.loadScopedRole(w, r, p, roleID, "usuarios:gestionar"); !ok {
		return
	}
	if err := a.svc.RemoveAssignment(r.Context(), userID, roleID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.unassigned", map[string]any{
		"target_user_id": userID,
		"role_id":        roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePermissionCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requirePrincipal(w, r); !ok {
		return
	}
	perms, err := a.svc.ListPermissions(r.Context())
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrTenantAccessDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "rbac operation failed")
	}
}
