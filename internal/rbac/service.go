package rbac

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service provides the administrative RBAC operations: tenants, users, roles,
// role permissions and assignments. Validation happens here; uniqueness and
// referential integrity are enforced by the store's constraints so the
// existence-check/insert race stays closed at the database.
type Service struct {
	store      Store
	invalidate Invalidator
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithInvalidator wires a permission-cache invalidator; role and assignment
// writes call it best-effort after the store mutation succeeds.
func WithInvalidator(inv Invalidator) ServiceOption {
	return func(s *Service) { s.invalidate = inv }
}

// NewService constructs the admin service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// EnsureBuiltins makes sure the permission catalog rows exist.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.EnsurePermissions(ctx, BuiltinPermissions)
}

func (s *Service) CreateTenant(ctx context.Context, name, slug string) (Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tenant{}, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
	}
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" || !slugPattern.MatchString(slug) {
		return Tenant{}, fmt.Errorf("%w: slug must be lowercase letters, digits and hyphens", ErrInvalidInput)
	}
	return s.store.CreateTenant(ctx, name, slug)
}

func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	return s.store.ListTenants(ctx)
}

func (s *Service) GetTenant(ctx context.Context, id string) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return s.store.GetTenant(ctx, id)
}

func (s *Service) CreateUser(ctx context.Context, email, name, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, email, name, string(hash), UserStatusActive)
}

// FindUserByEmail looks a user up by normalized email. Used by the login
// handler; password verification stays in the auth package.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.store.FindUserByEmail(ctx, email)
}

func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, userID)
}

// CreateRole creates a role inside a tenant. Global (tenant-less) roles are
// reserved for the seeded super-admin role and cannot be created here.
func (s *Service) CreateRole(ctx context.Context, tenantID, name, description string) (Role, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Role{}, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if name == SuperAdminRoleName {
		return Role{}, fmt.Errorf("%w: role name %q is reserved", ErrInvalidInput, SuperAdminRoleName)
	}
	return s.store.CreateRole(ctx, &tenantID, name, strings.TrimSpace(description))
}

func (s *Service) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return s.store.ListRoles(ctx, tenantID)
}

func (s *Service) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, roleID)
}

func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.dropAllCached(ctx)
	return nil
}

func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// SetRolePermissions replaces a role's permission grants. Only catalog names
// are accepted; the reserved super-admin marker cannot be granted to
// tenant-scoped roles.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, names []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	keys := dedupeStrings(names)
	if role.TenantID != nil {
		for _, key := range keys {
			if key == PermSuperAdmin {
				return fmt.Errorf("%w: %s cannot be granted to a tenant role", ErrInvalidInput, PermSuperAdmin)
			}
		}
	}
	if err := s.store.SetRolePermissions(ctx, roleID, keys); err != nil {
		return err
	}
	s.dropAllCached(ctx)
	return nil
}

func (s *Service) RolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.RolePermissions(ctx, roleID)
}

func (s *Service) AssignRole(ctx context.Context, userID, roleID string) (UserRoleAssignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return UserRoleAssignment{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	assignment, err := s.store.AssignRole(ctx, userID, roleID)
	if err != nil {
		return UserRoleAssignment{}, err
	}
	s.dropUserCached(ctx, userID)
	return assignment, nil
}

func (s *Service) RemoveAssignment(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if err := s.store.RemoveAssignment(ctx, userID, roleID); err != nil {
		return err
	}
	s.dropUserCached(ctx, userID)
	return nil
}

func (s *Service) ListAssignments(ctx context.Context, userID string) ([]UserRoleAssignment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.ListAssignments(ctx, userID)
}

func (s *Service) dropUserCached(ctx context.Context, userID string) {
	if s.invalidate == nil {
		return
	}
	_ = s.invalidate.InvalidateUser(ctx, userID)
}

func (s *Service) dropAllCached(ctx context.Context) {
	if s.invalidate == nil {
		return
	}
	_ = s.invalidate.InvalidateAll(ctx)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
