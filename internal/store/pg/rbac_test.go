package pg

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"peopleflow.org/internal/rbac"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestUserPermissionsFiltersByTenant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select distinct p.name.*from user_roles ur.*join roles r on r.id = ur.role_id.*r.tenant_id is null or r.tenant_id = \\$2").
		WithArgs("user-1", sql.NullString{String: "tenant-a", Valid: true}).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("clientes:ver").AddRow("leads:crear"))

	tenant := "tenant-a"
	perms, err := store.UserPermissions(context.Background(), "user-1", &tenant)
	if err != nil {
		t.Fatalf("UserPermissions: %v", err)
	}
	if !slices.Equal(perms, []string{"clientes:ver", "leads:crear"}) {
		t.Fatalf("unexpected permissions: %v", perms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserPermissionsNilTenantMatchesGlobalOnly(t *testing.T) {
	store, mock := newMockStore(t)

	// Nil scope still hits the same filtered query, with a NULL tenant arg.
	mock.ExpectQuery("select distinct p.name").
		WithArgs("user-1", sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	perms, err := store.UserPermissions(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("UserPermissions: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected no permissions, got %v", perms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateRoleMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	tenant := "tenant-a"
	mock.ExpectQuery("insert into roles").
		WithArgs(sqlmock.AnyArg(), sql.NullString{String: tenant, Valid: true}, "ventas", "").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := store.CreateRole(context.Background(), &tenant, "ventas", "")
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// The roles.description column is not null with a default; the insert must
// send the empty string itself, never a SQL NULL that would bypass the
// default and trip the constraint.
func TestCreateRoleInsertsEmptyDescriptionAsString(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	tenant := "tenant-a"
	mock.ExpectQuery("insert into roles").
		WithArgs(sqlmock.AnyArg(), sql.NullString{String: tenant, Valid: true}, "ventas", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "description", "created_at", "updated_at"}).
			AddRow("role-1", tenant, "ventas", "", now, now))

	role, err := store.CreateRole(context.Background(), &tenant, "ventas", "")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.Description != "" {
		t.Fatalf("description = %q, want empty", role.Description)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignRoleCopiesRoleTenant(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from users where id = \\$1").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select tenant_id from roles where id = \\$1").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("tenant-a"))
	mock.ExpectQuery("insert into user_roles").
		WithArgs("user-1", "role-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role_id", "tenant_id", "created_at"}).
			AddRow("user-1", "role-1", "tenant-a", now))
	mock.ExpectCommit()

	a, err := store.AssignRole(context.Background(), "user-1", "role-1")
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if a.TenantID == nil || *a.TenantID != "tenant-a" {
		t.Fatalf("assignment tenant = %v, want tenant-a", a.TenantID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAssignRoleUnknownRoleIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from users where id = \\$1").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select tenant_id from roles where id = \\$1").
		WithArgs("role-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.AssignRole(context.Background(), "user-1", "role-missing")
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetRolePermissionsReplacesGrants(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles where id = \\$1").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from role_permissions where role_id = \\$1").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("select id from permissions where name = \\$1").
		WithArgs("clientes:ver").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("perm-1"))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", "perm-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store.SetRolePermissions(context.Background(), "role-1", []string{"clientes:ver"}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetRolePermissionsUnknownNameFails(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles where id = \\$1").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from role_permissions").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id from permissions where name = \\$1").
		WithArgs("naves:pilotar").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.SetRolePermissions(context.Background(), "role-1", []string{"naves:pilotar"})
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindSessionOnlyReturnsUnexpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select token, user_id, active_tenant_id, created_at, expires_at.*from sessions.*expires_at > now\\(\\)").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"token", "user_id", "active_tenant_id", "created_at", "expires_at"}).
			AddRow("tok-1", "user-1", nil, now, now.Add(time.Hour)))

	sess, err := store.FindSession(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("FindSession: %v", err)
	}
	if sess.UserID != "user-1" || sess.ActiveTenantID != nil {
		t.Fatalf("unexpected session: %+v", sess)
	}

	mock.ExpectQuery("select token, user_id, active_tenant_id").
		WithArgs("tok-gone").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindSession(context.Background(), "tok-gone"); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetActiveTenantMissingSessionIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	tenant := "tenant-a"
	mock.ExpectExec("update sessions.*set active_tenant_id = \\$2").
		WithArgs("tok-gone", sql.NullString{String: tenant, Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.SetActiveTenant(context.Background(), "tok-gone", &tenant); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
