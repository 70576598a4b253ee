package identity

// Permission identifiers, grouped by module. The catalog is assembled
// statically so the full set is known at compile time; no reflection over
// nested types is involved.

const (
	// RoleRootAdmin is the well-known role that grants access to every tenant.
	RoleRootAdmin = "RootAdmin"

	// ClaimPermission is the role-claim type carrying a permission identifier.
	ClaimPermission = "permission"
)

const (
	PermTenantsView   = "tenants.view"
	PermTenantsManage = "tenants.manage"

	PermUsersView   = "users.view"
	PermUsersManage = "users.manage"

	PermRolesView   = "roles.view"
	PermRolesManage = "roles.manage"

	PermAuditView = "audit.view"

	PermSecurityAnalyze = "security.analyze"
	PermSecurityStream  = "security.stream"
)

// PermissionModule is one module's ordered permission set.
type PermissionModule struct {
	Name        string
	Permissions []string
}

// Registry is the static permission catalog, ordered by module.
var Registry = []PermissionModule{
	{Name: "tenants", Permissions: []string{PermTenantsView, PermTenantsManage}},
	{Name: "users", Permissions: []string{PermUsersView, PermUsersManage}},
	{Name: "roles", Permissions: []string{PermRolesView, PermRolesManage}},
	{Name: "audit", Permissions: []string{PermAuditView}},
	{Name: "security", Permissions: []string{PermSecurityAnalyze, PermSecurityStream}},
}

var knownPermissions = buildKnownPermissions()

func buildKnownPermissions() map[string]struct{} {
	set := make(map[string]struct{})
	for _, m := range Registry {
		for _, p := range m.Permissions {
			set[p] = struct{}{}
		}
	}
	return set
}

// AllPermissions returns every registered permission identifier in catalog order.
func AllPermissions() []string {
	var out []string
	for _, m := range Registry {
		out = append(out, m.Permissions...)
	}
	return out
}

// KnownPermission reports whether p is part of the catalog.
func KnownPermission(p string) bool {
	_, ok := knownPermissions[p]
	return ok
}
