package rbac

import "context"

// Store describes the persistence operations the RBAC subsystem needs. The
// Postgres implementation lives in internal/store/pg; an in-memory variant is
// provided here for tests and DSN-less development.
type Store interface {
	CreateTenant(ctx context.Context, name, slug string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	GetTenant(ctx context.Context, id string) (Tenant, error)

	CreateUser(ctx context.Context, email, name, passwordHash, status string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)

	CreateRole(ctx context.Context, tenantID *string, name, description string) (Role, error)
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	DeleteRole(ctx context.Context, roleID string) error

	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetRolePermissions(ctx context.Context, roleID string, names []string) error
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)

	AssignRole(ctx context.Context, userID, roleID string) (UserRoleAssignment, error)
	RemoveAssignment(ctx context.Context, userID, roleID string) error
	ListAssignments(ctx context.Context, userID string) ([]UserRoleAssignment, error)

	// UserPermissions is the only sanctioned aggregation read path: it returns
	// the permission names granted through assignments whose role is scoped to
	// exactly tenantID, plus global (tenant-less) roles. A nil tenantID
	// matches global roles only.
	UserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error)

	AccessibleTenants(ctx context.Context, userID string) ([]Tenant, error)
	UserBelongsToTenant(ctx context.Context, userID, tenantID string) (bool, error)
}

// SessionStore persists login sessions and their active-tenant binding.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	FindSession(ctx context.Context, token string) (Session, error)
	SetActiveTenant(ctx context.Context, token string, tenantID *string) error
	DeleteSession(ctx context.Context, token string) error
}

// Source resolves the tenant-scoped permission set for a user. The Aggregator
// implements it against the Store; the Redis cache wraps it transparently.
type Source interface {
	UserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error)
}

// Invalidator drops cached permission sets after role or assignment writes.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}
