package auth

import (
	"context"

	"peopleflow.org/internal/perm"
	"peopleflow.org/internal/rbac"
)

// Principal is the resolved identity attached to a request: the user, the
// session's tenant binding and the effective permissions aggregated for that
// binding. Permissions always belong to exactly one tenant scope (or the
// global scope for super-admins); there is no cross-tenant union.
type Principal struct {
	User           rbac.User
	SessionToken   string
	State          rbac.BindingState
	ActiveTenantID *string
	Permissions    perm.Set
}

// Bound reports whether the principal is acting within a tenant (or holds the
// global super-admin role, which needs no tenant).
func (p Principal) Bound() bool {
	return p.State == rbac.StateSuperAdmin || p.ActiveTenantID != nil
}

// IsSuperAdmin reports whether the principal carries the global marker.
func (p Principal) IsSuperAdmin() bool {
	return perm.IsSuperAdmin(p.Permissions)
}

// Can evaluates a single permission against the principal's effective set.
func (p Principal) Can(name string) bool {
	return perm.Has(p.Permissions, name)
}

// CanAny is true when at least one of the names is granted. Empty input is
// always false.
func (p Principal) CanAny(names ...string) bool {
	return perm.HasAny(p.Permissions, names)
}

// CanAll is true when every name is granted. Empty input is always false.
func (p Principal) CanAll(names ...string) bool {
	return perm.HasAll(p.Permissions, names)
}

type ctxKey string

const principalKey ctxKey = "auth_principal"

// ContextWithPrincipal stores the resolved principal in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.User.ID == "" {
		return Principal{}, false
	}
	return p, true
}
