package guard

import (
	"testing"

	"peopleflow.org/internal/perm"
)

func TestDefaultRoute(t *testing.T) {
	cases := []struct {
		name  string
		perms []string
		want  string
	}{
		{"empty set", nil, RouteNoAccess},
		{"super admin", []string{perm.SuperAdmin}, "/admin"},
		{"super admin with extras", []string{"clientes:ver", perm.SuperAdmin}, "/admin"},
		{"hr user", []string{"colaboradores:ver"}, "/colaboradores"},
		{"recruiter", []string{"vacantes:gestionar"}, "/reclutamiento"},
		{"sales", []string{"clientes:ver", "leads:ver"}, "/ventas/clientes"},
		{"leads only", []string{"leads:editar"}, "/ventas/leads"},
		{"finance", []string{"facturas:ver"}, "/finanzas/facturas"},
		{"tenant admin", []string{"usuarios:gestionar"}, "/configuracion/usuarios"},
		{"roles admin", []string{"roles:ver"}, "/configuracion/roles"},
		{"hr beats finance", []string{"facturas:ver", "colaboradores:ver"}, "/colaboradores"},
		{"malformed only", []string{"clientes", ":", "a:b:c"}, RouteNoAccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultRoute(perm.NewSet(tc.perms)); got != tc.want {
				t.Fatalf("DefaultRoute(%v) = %q, want %q", tc.perms, got, tc.want)
			}
		})
	}
}

// The landing route depends only on the set's contents, not the order grants
// arrived in.
func TestDefaultRouteIsOrderIndependent(t *testing.T) {
	a := perm.NewSet([]string{"facturas:ver", "clientes:ver", "colaboradores:ver"})
	b := perm.NewSet([]string{"colaboradores:ver", "facturas:ver", "clientes:ver"})
	if DefaultRoute(a) != DefaultRoute(b) {
		t.Fatalf("route differs by input order: %q vs %q", DefaultRoute(a), DefaultRoute(b))
	}
	if DefaultRoute(a) != "/colaboradores" {
		t.Fatalf("unexpected route %q", DefaultRoute(a))
	}
}
