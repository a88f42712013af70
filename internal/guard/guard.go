// Package guard enforces permission checks at the HTTP boundary. Every entry
// point fails closed: a missing principal, an unbound tenant or an empty
// requirement list all deny.
package guard

import (
	"net/http"

	"peopleflow.org/internal/auth"
	"peopleflow.org/internal/obs"
	"peopleflow.org/internal/rbac"
)

// ErrorWriter renders a denial response. Wired to the API's error envelope so
// guard responses look like every other error.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

func defaultErrorWriter(w http.ResponseWriter, _ *http.Request, status int, _, message string) {
	http.Error(w, message, status)
}

// Guard wraps handlers with permission requirements.
type Guard struct {
	writeError ErrorWriter
}

// New constructs a Guard. A nil writer falls back to plain http.Error.
func New(writeError ErrorWriter) *Guard {
	if writeError == nil {
		writeError = defaultErrorWriter
	}
	return &Guard{writeError: writeError}
}

// Can evaluates one permission against the request's principal and records
// the outcome. Callers needing a decision without a response use this.
func Can(r *http.Request, permission string) bool {
	p, ok := auth.PrincipalFromContext(r.Context())
	allowed := ok && p.Can(permission)
	obs.ObservePermissionCheck(allowed)
	return allowed
}

// Require allows the request through only when the principal holds the
// permission. Unauthenticated requests get 401, authenticated but ungranted
// ones 403.
func (g *Guard) Require(permission string, next http.HandlerFunc) http.HandlerFunc {
	return g.require(next, func(p auth.Principal) bool { return p.Can(permission) })
}

// RequireAny allows the request when at least one permission is granted.
func (g *Guard) RequireAny(permissions []string, next http.HandlerFunc) http.HandlerFunc {
	return g.require(next, func(p auth.Principal) bool { return p.CanAny(permissions...) })
}

// RequireAll allows the request only when every permission is granted.
func (g *Guard) RequireAll(permissions []string, next http.HandlerFunc) http.HandlerFunc {
	return g.require(next, func(p auth.Principal) bool { return p.CanAll(permissions...) })
}

// RequireSuperAdmin restricts the handler to holders of the global marker.
func (g *Guard) RequireSuperAdmin(next http.HandlerFunc) http.HandlerFunc {
	return g.require(next, auth.Principal.IsSuperAdmin)
}

// RequireTenant only checks that the session is bound to a tenant; used by
// endpoints that scope their own queries.
func (g *Guard) RequireTenant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			g.writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if !p.Bound() {
			if p.State == rbac.StateUnselected {
				g.writeError(w, r, http.StatusConflict, "tenant_unselected", "select an active tenant first")
				return
			}
			g.writeError(w, r, http.StatusForbidden, "forbidden", "no active tenant")
			return
		}
		next(w, r)
	}
}

func (g *Guard) require(next http.HandlerFunc, allowed func(auth.Principal) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			obs.ObservePermissionCheck(false)
			g.writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		granted := allowed(p)
		obs.ObservePermissionCheck(granted)
		if !granted {
			g.writeError(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
			return
		}
		next(w, r)
	}
}
