package rbac

import (
	"context"
	"errors"
	"testing"
	"time"
)

func (r *rig) mustSession(t *testing.T, userID string) Session {
	t.Helper()
	s := Session{
		Token:     "tok-" + userID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := r.store.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func TestResolveAutoBindsSingleTenant(t *testing.T) {
	r := newRig(t)
	acme := r.mustTenant(t, "Acme", "acme")
	user := r.mustUser(t, "ana@acme.test")
	role := r.mustRole(t, acme.ID, "ventas", "clientes:ver")
	r.mustAssign(t, user.ID, role.ID)
	sess := r.mustSession(t, user.ID)

	b, err := r.sessions.Resolve(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if b.State != StateAutoBound {
		t.Fatalf("state = %s, want %s", b.State, StateAutoBound)
	}
	if b.ActiveTenantID == nil || *b.ActiveTenantID != acme.ID {
		t.Fatalf("active tenant = %v, want %s", b.ActiveTenantID, acme.ID)
	}

	// The binding persisted: resolving again finds it already bound.
	b, err = r.sessions.Resolve(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resolve again: %v", err)
	}
	if b.State != StateBound {
		t.Fatalf("second resolve state = %s, want %s", b.State, StateBound)
	}
}

func TestResolveMultiTenantRequiresSelection(t *testing.T) {
	r := newRig(t)
	acme := r.mustTenant(t, "Acme", "acme")
	globex := r.mustTenant(t, "Globex", "globex")
	user := r.mustUser(t, "ana@acme.test")
	r.mustAssign(t, user.ID, r.mustRole(t, acme.ID, "ventas", "clientes:ver").ID)
	r.mustAssign(t, user.ID, r.mustRole(t, globex.ID, "soporte", "clientes:ver").ID)
	sess := r.mustSession(t, user.ID)

	b, err := r.sessions.Resolve(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if b.State != StateUnselected {
		t.Fatalf("state = %s, want %s", b.State, StateUnselected)
	}
	if b.ActiveTenantID != nil {
		t.Fatalf("no tenant should be bound yet, got %v", b.ActiveTenantID)
	}
	if len(b.Tenants) != 2 {
		t.Fatalf("expected both tenants listed, got %d", len(b.Tenants))
	}
}

func TestResolveNoTenantsIsDenied(t *testing.T) {
	r := newRig(t)
	user := r.mustUser(t, "nadie@acme.test")
	sess := r.mustSession(t, user.ID)

	if _, err := r.sessions.Resolve(context.Background(), sess.Token); !errors.Is(err, ErrNoAccessibleTenant) {
		t.Fatalf("expected ErrNoAccessibleTenant, got %v", err)
	}
}

func TestResolveSuperAdminSkipsTenantSelection(t *testing.T) {
	r := newRig(t)
	r.mustTenant(t, "Acme", "acme")
	r.mustTenant(t, "Globex", "globex")
	user := r.mustUser(t, "root@peopleflow.test")
	r.mustSuperAdmin(t, user.ID)
	sess := r.mustSession(t, user.ID)

	// No tenant memberships at all, yet never the denied path.
	b, err := r.sessions.Resolve(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if b.State != StateSuperAdmin {
		t.Fatalf("state = %s, want %s", b.State, StateSuperAdmin)
	}
}

func TestSwitchTenantChecksBeforeActing(t *testing.T) {
	r := newRig(t)
	acme := r.mustTenant(t, "Acme", "acme")
	globex := r.mustTenant(t, "Globex", "globex")
	otro := r.mustTenant(t, "Otro", "otro")
	user := r.mustUser(t, "ana@acme.test")
	r.mustAssign(t, user.ID, r.mustRole(t, acme.ID, "ventas", "clientes:ver").ID)
	r.mustAssign(t, user.ID, r.mustRole(t, globex.ID, "soporte", "clientes:ver").ID)
	sess := r.mustSession(t, user.ID)

	if err := r.sessions.SwitchTenant(context.Background(), sess.Token, &acme.ID); err != nil {
		t.Fatalf("SwitchTenant(acme): %v", err)
	}

	// The forbidden target must be rejected without touching the binding.
	err := r.sessions.SwitchTenant(context.Background(), sess.Token, &otro.ID)
	if !errors.Is(err, ErrTenantAccessDenied) {
		t.Fatalf("expected ErrTenantAccessDenied, got %v", err)
	}
	after, err := r.store.FindSession(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("FindSession: %v", err)
	}
	if after.ActiveTenantID == nil || *after.ActiveTenantID != acme.ID {
		t.Fatalf("binding changed on rejected switch: %v", after.ActiveTenantID)
	}

	// Switching to another accessible tenant works.
	if err := r.sessions.SwitchTenant(context.Background(), sess.Token, &globex.ID); err != nil {
		t.Fatalf("SwitchTenant(globex): %v", err)
	}
	b, err := r.sessions.Resolve(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if b.State != StateBound || b.ActiveTenantID == nil || *b.ActiveTenantID != globex.ID {
		t.Fatalf("binding = %s/%v, want bound to %s", b.State, b.ActiveTenantID, globex.ID)
	}

	// Nil clears the binding.
	if err := r.sessions.SwitchTenant(context.Background(), sess.Token, nil); err != nil {
		t.Fatalf("SwitchTenant(nil): %v", err)
	}
	after, _ = r.store.FindSession(context.Background(), sess.Token)
	if after.ActiveTenantID != nil {
		t.Fatalf("binding should be cleared, got %v", after.ActiveTenantID)
	}
}

func TestResolveClearsStaleBinding(t *testing.T) {
	r := newRig(t)
	acme := r.mustTenant(t, "Acme", "acme")
	globex := r.mustTenant(t, "Globex", "globex")
	user := r.mustUser(t, "ana@acme.test")
	acmeRole := r.mustRole(t, acme.ID, "ventas", "clientes:ver")
	r.mustAssign(t, user.ID, acmeRole.ID)
	r.mustAssign(t, user.ID, r.mustRole(t, globex.ID, "soporte", "clientes:ver").ID)
	sess := r.mustSession(t, user.ID)

	if err := r.sessions.SwitchTenant(context.Background(), sess.Token, &acme.ID); err != nil {
		t.Fatalf("SwitchTenant: %v", err)
	}
	// Revoke the membership behind the binding.
	if err := r.svc.RemoveAssignment(context.Background(), user.ID, acmeRole.ID); err != nil {
		t.Fatalf("RemoveAssignment: %v", err)
	}

	// One remaining tenant: the stale binding is dropped and the session
	// auto-binds to Globex in the same resolution.
	b, err := r.sessions.Resolve(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if b.State != StateAutoBound {
		t.Fatalf("state = %s, want %s", b.State, StateAutoBound)
	}
	if b.ActiveTenantID == nil || *b.ActiveTenantID != globex.ID {
		t.Fatalf("active tenant = %v, want %s", b.ActiveTenantID, globex.ID)
	}
}

func TestExpiredSessionIsNotFound(t *testing.T) {
	r := newRig(t)
	user := r.mustUser(t, "ana@acme.test")
	s := Session{Token: "tok-expired", UserID: user.ID, ExpiresAt: time.Now().Add(-time.Minute)}
	if err := r.store.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := r.sessions.Resolve(context.Background(), s.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
}
