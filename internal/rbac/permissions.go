package rbac

import "peopleflow.org/internal/perm"

// ERP resources covered by the permission catalog.
const (
	ResourceColaboradores = "colaboradores"
	ResourceVacantes      = "vacantes"
	ResourceClientes      = "clientes"
	ResourceLeads         = "leads"
	ResourceFacturas      = "facturas"
	ResourceUsuarios      = "usuarios"
	ResourceRoles         = "roles"
)

// Catalog actions. ActionGestionar subsumes the rest within a resource.
const (
	ActionVer       = "ver"
	ActionCrear     = "crear"
	ActionEditar    = "editar"
	ActionEliminar  = "eliminar"
	ActionGestionar = perm.ActionManage
)

// PermSuperAdmin is the reserved marker granted only through the global
// super-admin role.
const PermSuperAdmin = perm.SuperAdmin

// SuperAdminRoleName is the single role allowed to be tenant-less.
const SuperAdminRoleName = "superadmin"

var catalogDescriptions = map[string]string{
	ResourceColaboradores: "employee records",
	ResourceVacantes:      "recruitment vacancies",
	ResourceClientes:      "client accounts",
	ResourceLeads:         "sales leads",
	ResourceFacturas:      "invoices",
	ResourceUsuarios:      "tenant user administration",
	ResourceRoles:         "tenant role administration",
}

// BuiltinPermissions is the immutable permission catalog: every resource gets
// the full action set plus the reserved super-admin marker.
var BuiltinPermissions = buildCatalog()

func buildCatalog() []Permission {
	resources := []string{
		ResourceColaboradores,
		ResourceVacantes,
		ResourceClientes,
		ResourceLeads,
		ResourceFacturas,
		ResourceUsuarios,
		ResourceRoles,
	}
	actions := []string{ActionVer, ActionCrear, ActionEditar, ActionEliminar, ActionGestionar}

	var catalog []Permission
	for _, resource := range resources {
		for _, action := range actions {
			catalog = append(catalog, Permission{
				Name:        resource + ":" + action,
				Resource:    resource,
				Action:      action,
				Description: action + " on " + catalogDescriptions[resource],
			})
		}
	}
	catalog = append(catalog, Permission{
		Name:        PermSuperAdmin,
		Resource:    "super",
		Action:      "admin",
		Description: "global administration, bypasses tenant scoping",
	})
	return catalog
}
