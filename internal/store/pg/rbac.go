package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"peopleflow.org/internal/ids"
	"peopleflow.org/internal/rbac"
)

func (s *Store) CreateTenant(ctx context.Context, name, slug string) (rbac.Tenant, error) {
	if s.db == nil {
		return rbac.Tenant{}, errors.New("database connection unavailable")
	}
	var t rbac.Tenant
	row := s.db.QueryRowContext(ctx, `
		insert into tenants (id, name, slug)
		values ($1, $2, $3)
		returning id, name, slug, created_at, updated_at
	`, ids.New(), name, slug)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Tenant{}, rbac.ErrConflict
		}
		return rbac.Tenant{}, err
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]rbac.Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, slug, created_at, updated_at
		from tenants
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rbac.Tenant
	for rows.Next() {
		var t rbac.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (rbac.Tenant, error) {
	if s.db == nil {
		return rbac.Tenant{}, errors.New("database connection unavailable")
	}
	var t rbac.Tenant
	err := s.db.QueryRowContext(ctx, `
		select id, name, slug, created_at, updated_at
		from tenants
		where id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Tenant{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Tenant{}, err
	}
	return t, nil
}

func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash, status string) (rbac.User, error) {
	if s.db == nil {
		return rbac.User{}, errors.New("database connection unavailable")
	}
	var user rbac.User
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, password_hash, status)
		values ($1, $2, $3, $4, $5)
		returning id, email, name, email_verified, status, created_at, updated_at
	`, ids.New(), email, name, passwordHash, status)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.EmailVerified, &user.Status, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.User{}, rbac.ErrConflict
		}
		return rbac.User{}, err
	}
	user.PasswordHash = passwordHash
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (rbac.User, error) {
	return s.userBy(ctx, `id = $1`, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (rbac.User, error) {
	return s.userBy(ctx, `email = $1`, email)
}

func (s *Store) userBy(ctx context.Context, where string, arg any) (rbac.User, error) {
	if s.db == nil {
		return rbac.User{}, errors.New("database connection unavailable")
	}
	var user rbac.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, name, email_verified, password_hash, status, created_at, updated_at
		from users
		where `+where, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.EmailVerified,
		&user.PasswordHash, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.User{}, err
	}
	return user, nil
}

func (s *Store) CreateRole(ctx context.Context, tenantID *string, name, description string) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errors.New("database connection unavailable")
	}
	var (
		role   rbac.Role
		tenant sql.NullString
		desc   sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, tenant_id, name, description)
		values ($1, $2, $3, $4)
		returning id, tenant_id, name, description, created_at, updated_at
	`, ids.New(), nullableID(tenantID), name, description)
	if err := row.Scan(&role.ID, &tenant, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.Role{}, rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.Role{}, rbac.ErrNotFound
			}
		}
		return rbac.Role{}, err
	}
	role.TenantID = idFromNull(tenant)
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context, tenantID string) ([]rbac.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, tenant_id, name, description, created_at, updated_at
		from roles
		where tenant_id = $1
		order by name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var (
			role   rbac.Role
			tenant sql.NullString
			desc   sql.NullString
		)
		if err := rows.Scan(&role.ID, &tenant, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.TenantID = idFromNull(tenant)
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errors.New("database connection unavailable")
	}
	var (
		role   rbac.Role
		tenant sql.NullString
		desc   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, name, description, created_at, updated_at
		from roles
		where id = $1
	`, roleID).Scan(&role.ID, &tenant, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Role{}, err
	}
	role.TenantID = idFromNull(tenant)
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []rbac.Permission) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, name, resource, action, description)
			values ($1, $2, $3, $4, $5)
			on conflict (name) do nothing
		`, ids.New(), p.Name, p.Resource, p.Action, p.Description); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, resource, action, coalesce(description, ''), created_at
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, names []string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if len(names) == 0 {
		return tx.Commit()
	}

	for _, name := range names {
		var permID string
		err := tx.QueryRowContext(ctx, `select id from permissions where name = $1`, name).Scan(&permID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: permission %s not found", rbac.ErrNotFound, name)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action, coalesce(p.description, ''), p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// AssignRole records the assignment edge, copying the role's tenant onto the
// row so aggregation can filter without an extra join.
func (s *Store) AssignRole(ctx context.Context, userID, roleID string) (rbac.UserRoleAssignment, error) {
	if s.db == nil {
		return rbac.UserRoleAssignment{}, errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rbac.UserRoleAssignment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from users where id = $1`, userID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.UserRoleAssignment{}, rbac.ErrNotFound
		}
		return rbac.UserRoleAssignment{}, err
	}

	var roleTenant sql.NullString
	if err := tx.QueryRowContext(ctx, `select tenant_id from roles where id = $1`, roleID).Scan(&roleTenant); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.UserRoleAssignment{}, rbac.ErrNotFound
		}
		return rbac.UserRoleAssignment{}, err
	}

	var (
		assignment rbac.UserRoleAssignment
		tenant     sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		insert into user_roles (user_id, role_id, tenant_id)
		values ($1, $2, $3)
		returning user_id, role_id, tenant_id, created_at
	`, userID, roleID, roleTenant).Scan(&assignment.UserID, &assignment.RoleID, &tenant, &assignment.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.UserRoleAssignment{}, rbac.ErrConflict
		}
		return rbac.UserRoleAssignment{}, err
	}
	assignment.TenantID = idFromNull(tenant)

	if err := tx.Commit(); err != nil {
		return rbac.UserRoleAssignment{}, err
	}
	return assignment, nil
}

func (s *Store) RemoveAssignment(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, userID string) ([]rbac.UserRoleAssignment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, tenant_id, created_at
		from user_roles
		where user_id = $1
		order by role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []rbac.UserRoleAssignment
	for rows.Next() {
		var (
			a      rbac.UserRoleAssignment
			tenant sql.NullString
		)
		if err := rows.Scan(&a.UserID, &a.RoleID, &tenant, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.TenantID = idFromNull(tenant)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// UserPermissions aggregates grants for exactly one tenant scope. The tenant
// filter is part of the query itself so no caller can obtain a cross-tenant
// union: tenant roles match only the requested tenant, global roles always
// match, and a nil tenantID matches global roles alone.
func (s *Store) UserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		  and (r.tenant_id is null or r.tenant_id = $2)
		order by p.name
	`, userID, nullableID(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) AccessibleTenants(ctx context.Context, userID string) ([]rbac.Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct t.id, t.name, t.slug, t.created_at, t.updated_at
		from user_roles ur
		join tenants t on t.id = ur.tenant_id
		where ur.user_id = $1
		order by t.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []rbac.Tenant
	for rows.Next() {
		var t rbac.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *Store) UserBelongsToTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `
		select 1 from user_roles
		where user_id = $1 and tenant_id = $2
		limit 1
	`, userID, tenantID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanPermissions(rows *sql.Rows) ([]rbac.Permission, error) {
	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
