package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"peopleflow.org/internal/auth"
	"peopleflow.org/internal/perm"
	"peopleflow.org/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates the bearer token, resolves the session's tenant
// binding and aggregates the principal's permissions for exactly that scope.
// Handlers downstream never aggregate themselves; they read the principal.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		principal, err := a.resolvePrincipal(r, claims)
		if err != nil {
			if errors.Is(err, rbac.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "session expired")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// resolvePrincipal builds the request principal from a validated token. Users
// with no accessible tenant authenticate fine but carry the denied state and
// an empty permission set, so every guarded endpoint refuses them.
func (a *API) resolvePrincipal(r *http.Request, claims *auth.Claims) (auth.Principal, error) {
	ctx := r.Context()

	user, err := a.svc.GetUser(ctx, claims.Subject)
	if err != nil {
		return auth.Principal{}, err
	}
	if user.Status != rbac.UserStatusActive {
		return auth.Principal{}, rbac.ErrNotFound
	}

	principal := auth.Principal{
		User:         user,
		SessionToken: claims.SessionID,
	}

	binding, err := a.sessions.Resolve(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, rbac.ErrNoAccessibleTenant) {
			principal.State = rbac.StateDenied
			principal.Permissions = perm.Set{}
			return principal, nil
		}
		return auth.Principal{}, err
	}

	names, err := a.source.UserPermissions(ctx, user.ID, binding.ActiveTenantID)
	if err != nil {
		return auth.Principal{}, err
	}
	principal.State = binding.State
	principal.ActiveTenantID = binding.ActiveTenantID
	principal.Permissions = perm.NewSet(names)
	return principal, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
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
