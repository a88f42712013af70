package rbac

import "time"

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Tenant is an isolated organization. All roles except the global super-admin
// role, and all role assignments, are scoped to exactly one tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an identity principal. Users are not owned by a tenant; membership
// is expressed through role assignments.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	PasswordHash  string    `json:"-"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Role groups permissions. A nil TenantID marks a global role, which is
// reserved for the super-admin role.
type Role struct {
	ID          string    `json:"id"`
	TenantID    *string   `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an immutable catalog entry named resource:action, or the
// reserved super:admin marker. Catalog rows are created by seeds, not users.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRoleAssignment is the assignment edge. TenantID mirrors the role's
// tenant and is nil only for global super-admin assignments.
type UserRoleAssignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	TenantID  *string   `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session binds a user to an optional active tenant. The token is the unique
// key the authentication layer hands out at login.
type Session struct {
	Token          string    `json:"token"`
	UserID         string    `json:"user_id"`
	ActiveTenantID *string   `json:"active_tenant_id"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
