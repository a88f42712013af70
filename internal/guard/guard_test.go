package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"peopleflow.org/internal/auth"
	"peopleflow.org/internal/perm"
	"peopleflow.org/internal/rbac"
)

func requestWithPrincipal(p auth.Principal) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/clientes", nil)
	return r.WithContext(auth.ContextWithPrincipal(r.Context(), p))
}

func boundPrincipal(perms ...string) auth.Principal {
	tenant := "tenant-a"
	return auth.Principal{
		User:           rbac.User{ID: "user-1"},
		State:          rbac.StateBound,
		ActiveTenantID: &tenant,
		Permissions:    perm.NewSet(perms),
	}
}

func TestRequireDeniesWithoutPrincipal(t *testing.T) {
	g := New(nil)
	handler := g.Require("clientes:ver", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/v1/clientes", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireEnforcesPermission(t *testing.T) {
	g := New(nil)
	var called bool
	handler := g.Require("clientes:ver", func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, requestWithPrincipal(boundPrincipal("leads:ver")))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("ungranted permission: status = %d, want 403", rec.Code)
	}
	if called {
		t.Fatal("handler ran despite denial")
	}

	rec = httptest.NewRecorder()
	handler(rec, requestWithPrincipal(boundPrincipal("clientes:ver")))
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("granted permission: status = %d, called = %v", rec.Code, called)
	}
}

func TestRequireHonorsManageSubsumption(t *testing.T) {
	g := New(nil)
	handler := g.Require("facturas:crear", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, requestWithPrincipal(boundPrincipal("facturas:gestionar")))
	if rec.Code != http.StatusOK {
		t.Fatalf("gestionar should satisfy crear, status = %d", rec.Code)
	}
}

func TestRequireAnyAndAllFailClosedOnEmpty(t *testing.T) {
	g := New(nil)
	deny := func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler must not run") }

	rec := httptest.NewRecorder()
	g.RequireAny(nil, deny)(rec, requestWithPrincipal(boundPrincipal(perm.SuperAdmin)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("RequireAny(nil) status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	g.RequireAll(nil, deny)(rec, requestWithPrincipal(boundPrincipal(perm.SuperAdmin)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("RequireAll(nil) status = %d, want 403", rec.Code)
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	g := New(nil)
	handler := g.RequireSuperAdmin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, requestWithPrincipal(boundPrincipal("usuarios:gestionar", "roles:gestionar")))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tenant admin is not super-admin, status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, requestWithPrincipal(boundPrincipal(perm.SuperAdmin)))
	if rec.Code != http.StatusOK {
		t.Fatalf("super-admin denied, status = %d", rec.Code)
	}
}

func TestRequireTenantStates(t *testing.T) {
	g := New(nil)
	handler := g.RequireTenant(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	unselected := auth.Principal{
		User:  rbac.User{ID: "user-1"},
		State: rbac.StateUnselected,
	}
	rec := httptest.NewRecorder()
	handler(rec, requestWithPrincipal(unselected))
	if rec.Code != http.StatusConflict {
		t.Fatalf("unselected state: status = %d, want 409", rec.Code)
	}

	superAdmin := auth.Principal{
		User:        rbac.User{ID: "user-1"},
		State:       rbac.StateSuperAdmin,
		Permissions: perm.NewSet([]string{perm.SuperAdmin}),
	}
	rec = httptest.NewRecorder()
	handler(rec, requestWithPrincipal(superAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("super-admin without tenant: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, requestWithPrincipal(boundPrincipal("clientes:ver")))
	if rec.Code != http.StatusOK {
		t.Fatalf("bound principal: status = %d, want 200", rec.Code)
	}
}

func TestCanReadsRequestPrincipal(t *testing.T) {
	r := requestWithPrincipal(boundPrincipal("clientes:gestionar"))
	if !Can(r, "clientes:eliminar") {
		t.Fatal("gestionar should cover eliminar")
	}
	if Can(r, "facturas:ver") {
		t.Fatal("ungranted resource allowed")
	}
	if Can(httptest.NewRequest(http.MethodGet, "/", nil), "clientes:ver") {
		t.Fatal("request without principal must deny")
	}
}
