package auth

// Role is a fixed enumeration. Every role maps to a frozen permission set
// and an authority level; neither changes at runtime.
type Role string

const (
	// Platform roles. Platform-tier principals have no organization and
	// bypass organization-membership checks.
	RoleSuperAdmin      Role = "super_admin"
	RolePlatformAdmin   Role = "platform_admin"
	RolePlatformEditor  Role = "platform_editor"
	RolePlatformViewer  Role = "platform_viewer"
	// Organization roles.
	RoleOrgAdmin  Role = "org_admin"
	RoleOrgEditor Role = "org_editor"
	RoleOrgViewer Role = "org_viewer"
	RoleOrgClient Role = "org_client"
	// Locked-out accounts keep their record but can do nothing.
	RolePrisoner Role = "prisoner"
)

// Permission is a fine-grained capability key.
type Permission string

const (
	PermManageAllResources Permission = "manage_all_resources"

	PermCreatePlatformContent Permission = "create_platform_content"
	PermReadPlatformContent   Permission = "read_platform_content"
	PermUpdatePlatformContent Permission = "update_platform_content"
	PermDeletePlatformContent Permission = "delete_platform_content"

	PermCreatePlatformUser Permission = "create_platform_user"
	PermReadPlatformUser   Permission = "read_platform_user"
	PermUpdatePlatformUser Permission = "update_platform_user"
	PermDeletePlatformUser Permission = "delete_platform_user"

	PermCreateOrg Permission = "create_org"
	PermReadOrg   Permission = "read_org"
	PermUpdateOrg Permission = "update_org"
	PermDeleteOrg Permission = "delete_org"

	PermCreateOrgContent Permission = "create_org_content"
	PermReadOrgContent   Permission = "read_org_content"
	PermUpdateOrgContent Permission = "update_org_content"
	PermDeleteOrgContent Permission = "delete_org_content"

	PermCreateOrgUser Permission = "create_org_user"
	PermReadOrgUser   Permission = "read_org_user"
	PermUpdateOrgUser Permission = "update_org_user"
	PermDeleteOrgUser Permission = "delete_org_user"

	PermUseOrgContent Permission = "use_org_content"

	PermForbidden Permission = "forbidden"
)

// RolePermissions is the resolved entry of the permission matrix for one role.
// The Granted map is shared, frozen state; callers must not mutate it.
type RolePermissions struct {
	Role           Role
	AuthorityLevel int
	Granted        map[Permission]struct{}
}

// Has reports whether the role grants the single permission.
func (rp RolePermissions) Has(p Permission) bool {
	_, ok := rp.Granted[p]
	return ok
}

// IsGranted reports whether the role satisfies the required permission set:
// either the role carries manage_all_resources, or the required set is a
// subset of the granted set.
func (rp RolePermissions) IsGranted(required ...Permission) bool {
	if rp.Has(PermManageAllResources) {
		return true
	}
	for _, p := range required {
		if !rp.Has(p) {
			return false
		}
	}
	return true
}

func grants(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func extend(base map[Permission]struct{}, perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(base)+len(perms))
	for p := range base {
		set[p] = struct{}{}
	}
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// The matrix is built once at init and never mutated afterwards: the guards
// rely on PermissionsFor being referentially stable.
var matrix = func() map[Role]RolePermissions {
	prisoner := grants(PermForbidden)
	orgClient := grants(PermUseOrgContent)
	orgViewer := extend(orgClient, PermReadOrgContent, PermReadOrg)
	orgEditor := extend(orgViewer, PermCreateOrgContent, PermUpdateOrgContent, PermDeleteOrgContent)
	orgAdmin := extend(orgEditor,
		PermCreateOrgUser, PermReadOrgUser, PermUpdateOrgUser, PermDeleteOrgUser,
		PermUpdateOrg,
	)
	platformViewer := grants(PermReadPlatformContent, PermReadPlatformUser, PermReadOrg)
	platformEditor := extend(platformViewer,
		PermCreatePlatformContent, PermUpdatePlatformContent, PermDeletePlatformContent,
		PermCreateOrg, PermUpdateOrg, PermDeleteOrg,
	)
	platformAdmin := extend(platformEditor,
		PermCreatePlatformUser, PermUpdatePlatformUser, PermDeletePlatformUser,
		PermCreateOrgUser, PermReadOrgUser, PermUpdateOrgUser, PermDeleteOrgUser,
	)
	superAdmin := extend(platformAdmin, PermManageAllResources)

	return map[Role]RolePermissions{
		RolePrisoner:       {Role: RolePrisoner, AuthorityLevel: 0, Granted: prisoner},
		RoleOrgClient:      {Role: RoleOrgClient, AuthorityLevel: 1, Granted: orgClient},
		RoleOrgViewer:      {Role: RoleOrgViewer, AuthorityLevel: 2, Granted: orgViewer},
		RoleOrgEditor:      {Role: RoleOrgEditor, AuthorityLevel: 3, Granted: orgEditor},
		RoleOrgAdmin:       {Role: RoleOrgAdmin, AuthorityLevel: 4, Granted: orgAdmin},
		RolePlatformViewer: {Role: RolePlatformViewer, AuthorityLevel: 5, Granted: platformViewer},
		RolePlatformEditor: {Role: RolePlatformEditor, AuthorityLevel: 6, Granted: platformEditor},
		RolePlatformAdmin:  {Role: RolePlatformAdmin, AuthorityLevel: 7, Granted: platformAdmin},
		RoleSuperAdmin:     {Role: RoleSuperAdmin, AuthorityLevel: 100, Granted: superAdmin},
	}
}()

// PermissionsFor resolves the matrix entry for a role.
func PermissionsFor(role Role) (RolePermissions, bool) {
	rp, ok := matrix[role]
	return rp, ok
}

// IsGranted reports whether role satisfies the required permission set.
// Unknown roles satisfy nothing.
func IsGranted(role Role, required ...Permission) bool {
	rp, ok := matrix[role]
	if !ok {
		return false
	}
	return rp.IsGranted(required...)
}

// AuthorityLevel returns the integer rank of a role; higher values may
// manage lower ones. Unknown roles rank below every known role.
func AuthorityLevel(role Role) int {
	rp, ok := matrix[role]
	if !ok {
		return -1
	}
	return rp.AuthorityLevel
}

// Valid reports whether the role is part of the enumeration.
func (r Role) Valid() bool {
	_, ok := matrix[r]
	return ok
}

// PlatformTier reports whether the role operates at platform scope.
func (r Role) PlatformTier() bool {
	switch r {
	case RoleSuperAdmin, RolePlatformAdmin, RolePlatformEditor, RolePlatformViewer:
		return true
	}
	return false
}

// SelfOnly reports whether principals with this role may target only their
// own user record in user-managing operations.
func (r Role) SelfOnly() bool {
	return r == RoleOrgClient || r == RolePrisoner
}

// OrganizationRoles are the roles assignable to organization-bound users.
var OrganizationRoles = []Role{RoleOrgAdmin, RoleOrgEditor, RoleOrgViewer, RoleOrgClient, RolePrisoner}

// PlatformRoles are the roles assignable through the platform-user surface.
// Super admin is deliberately absent: it is seeded, never created.
var PlatformRoles = []Role{RolePlatformAdmin, RolePlatformEditor, RolePlatformViewer, RolePrisoner}

// RoleAssignable reports whether role is a member of allowed.
func RoleAssignable(role Role, allowed []Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
