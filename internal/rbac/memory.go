package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"peopleflow.org/internal/ids"
)

// InMemoryStore implements Store and SessionStore with the same semantics the
// Postgres schema enforces (unique slugs, unique (tenant, name) roles, unique
// assignment edges). Used by tests and by cmd/api when no DSN is configured.
type InMemoryStore struct {
	mu sync.RWMutex

	tenants     map[string]Tenant
	users       map[string]User
	roles       map[string]Role
	permissions map[string]Permission // keyed by name
	rolePerms   map[string][]string   // roleID -> permission names
	assignments map[string]UserRoleAssignment
	sessions    map[string]Session

	now func() time.Time
}

var (
	_ Store        = (*InMemoryStore)(nil)
	_ SessionStore = (*InMemoryStore)(nil)
)

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tenants:     make(map[string]Tenant),
		users:       make(map[string]User),
		roles:       make(map[string]Role),
		permissions: make(map[string]Permission),
		rolePerms:   make(map[string][]string),
		assignments: make(map[string]UserRoleAssignment),
		sessions:    make(map[string]Session),
		now:         time.Now,
	}
}

func assignmentKey(userID, roleID string) string { return userID + "\x00" + roleID }

func (m *InMemoryStore) CreateTenant(_ context.Context, name, slug string) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Slug == slug {
			return Tenant{}, ErrConflict
		}
	}
	now := m.now().UTC()
	t := Tenant{ID: ids.New(), Name: name, Slug: slug, CreatedAt: now, UpdatedAt: now}
	m.tenants[t.ID] = t
	return t, nil
}

func (m *InMemoryStore) ListTenants(_ context.Context) ([]Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *InMemoryStore) GetTenant(_ context.Context, id string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (m *InMemoryStore) CreateUser(_ context.Context, email, name, passwordHash, status string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return User{}, ErrConflict
		}
	}
	now := m.now().UTC()
	u := User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *InMemoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *InMemoryStore) FindUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *InMemoryStore) CreateRole(_ context.Context, tenantID *string, name, description string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tenantID != nil {
		if _, ok := m.tenants[*tenantID]; !ok {
			return Role{}, ErrNotFound
		}
	}
	for _, r := range m.roles {
		if r.Name == name && sameScope(r.TenantID, tenantID) {
			return Role{}, ErrConflict
		}
	}
	now := m.now().UTC()
	r := Role{ID: ids.New(), TenantID: copyID(tenantID), Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	m.roles[r.ID] = r
	return r, nil
}

func (m *InMemoryStore) ListRoles(_ context.Context, tenantID string) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Role
	for _, r := range m.roles {
		if r.TenantID != nil && *r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *InMemoryStore) GetRole(_ context.Context, roleID string) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (m *InMemoryStore) DeleteRole(_ context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	delete(m.roles, roleID)
	delete(m.rolePerms, roleID)
	for key, a := range m.assignments {
		if a.RoleID == roleID {
			delete(m.assignments, key)
		}
	}
	return nil
}

func (m *InMemoryStore) EnsurePermissions(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.permissions[p.Name]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = m.now().UTC()
		}
		m.permissions[p.Name] = p
	}
	return nil
}

func (m *InMemoryStore) ListPermissions(_ context.Context) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *InMemoryStore) SetRolePermissions(_ context.Context, roleID string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	for _, name := range names {
		if _, ok := m.permissions[name]; !ok {
			return fmt.Errorf("%w: permission %s not found", ErrNotFound, name)
		}
	}
	m.rolePerms[roleID] = append([]string(nil), names...)
	return nil
}

func (m *InMemoryStore) RolePermissions(_ context.Context, roleID string) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.roles[roleID]; !ok {
		return nil, ErrNotFound
	}
	var out []Permission
	for _, name := range m.rolePerms[roleID] {
		if p, ok := m.permissions[name]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *InMemoryStore) AssignRole(_ context.Context, userID, roleID string) (UserRoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return UserRoleAssignment{}, ErrNotFound
	}
	role, ok := m.roles[roleID]
	if !ok {
		return UserRoleAssignment{}, ErrNotFound
	}
	key := assignmentKey(userID, roleID)
	if _, ok := m.assignments[key]; ok {
		return UserRoleAssignment{}, ErrConflict
	}
	a := UserRoleAssignment{
		UserID:    userID,
		RoleID:    roleID,
		TenantID:  copyID(role.TenantID),
		CreatedAt: m.now().UTC(),
	}
	m.assignments[key] = a
	return a, nil
}

func (m *InMemoryStore) RemoveAssignment(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := assignmentKey(userID, roleID)
	if _, ok := m.assignments[key]; !ok {
		return ErrNotFound
	}
	delete(m.assignments, key)
	return nil
}

func (m *InMemoryStore) ListAssignments(_ context.Context, userID string) ([]UserRoleAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []UserRoleAssignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

func (m *InMemoryStore) UserPermissions(_ context.Context, userID string, tenantID *string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, a := range m.assignments {
		if a.UserID != userID {
			continue
		}
		role, ok := m.roles[a.RoleID]
		if !ok {
			continue
		}
		// Global roles always apply; tenant roles only within the requested
		// scope. A nil scope matches global roles alone.
		if role.TenantID != nil && (tenantID == nil || *role.TenantID != *tenantID) {
			continue
		}
		for _, name := range m.rolePerms[role.ID] {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *InMemoryStore) AccessibleTenants(_ context.Context, userID string) ([]Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []Tenant
	for _, a := range m.assignments {
		if a.UserID != userID || a.TenantID == nil {
			continue
		}
		if _, dup := seen[*a.TenantID]; dup {
			continue
		}
		seen[*a.TenantID] = struct{}{}
		if t, ok := m.tenants[*a.TenantID]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *InMemoryStore) UserBelongsToTenant(_ context.Context, userID, tenantID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assignments {
		if a.UserID == userID && a.TenantID != nil && *a.TenantID == tenantID {
			return true, nil
		}
	}
	return false, nil
}

func (m *InMemoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(s.Token) == "" {
		return fmt.Errorf("%w: session token is required", ErrInvalidInput)
	}
	if _, ok := m.sessions[s.Token]; ok {
		return ErrConflict
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now().UTC()
	}
	s.ActiveTenantID = copyID(s.ActiveTenantID)
	m.sessions[s.Token] = s
	return nil
}

func (m *InMemoryStore) FindSession(_ context.Context, token string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok || s.Expired(m.now()) {
		return Session{}, ErrNotFound
	}
	s.ActiveTenantID = copyID(s.ActiveTenantID)
	return s, nil
}

func (m *InMemoryStore) SetActiveTenant(_ context.Context, token string, tenantID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return ErrNotFound
	}
	s.ActiveTenantID = copyID(tenantID)
	m.sessions[token] = s
	return nil
}

func (m *InMemoryStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, token)
	return nil
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
