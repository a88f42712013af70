package guard

import "peopleflow.org/internal/perm"

// routeRules is evaluated strictly in order, so the landing page a user gets
// depends only on their permission set, never on map iteration or the order
// grants were loaded.
var routeRules = []struct {
	resource string
	route    string
}{
	{perm.SuperAdmin, "/admin"},
	{"colaboradores", "/colaboradores"},
	{"vacantes", "/reclutamiento"},
	{"clientes", "/ventas/clientes"},
	{"leads", "/ventas/leads"},
	{"facturas", "/finanzas/facturas"},
	{"usuarios", "/configuracion/usuarios"},
	{"roles", "/configuracion/roles"},
}

// RouteNoAccess is returned when no rule matches, including for an empty set.
const RouteNoAccess = "/sin-acceso"

// RouteSelectTenant is where multi-tenant users land before choosing an
// active tenant; permissions cannot be aggregated until then.
const RouteSelectTenant = "/seleccionar-empresa"

// DefaultRoute picks the landing route for a permission set. Super-admins go
// to the admin panel; otherwise the first rule whose resource the user can
// see at all wins.
func DefaultRoute(set perm.Set) string {
	if perm.IsSuperAdmin(set) {
		return routeRules[0].route
	}
	for _, rule := range routeRules[1:] {
		if perm.HasResource(set, rule.resource) {
			return rule.route
		}
	}
	return RouteNoAccess
}
