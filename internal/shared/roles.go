package shared

// RoleSuperAdmin is the seed code for the superuser role. Authorization
// checks read the role's superuser flag, not this string; the constant
// exists for seeding and for callers that declare role requirements.
const RoleSuperAdmin = "SUPER_ADMIN"

// NoRolesPolicy decides what a principal with no resolvable enabled roles
// sees when requesting their scoped permission tree.
type NoRolesPolicy string

const (
	// NoRolesReturnFull returns the unfiltered tree. This reproduces the
	// historical fail-open behavior and is the default for compatibility.
	NoRolesReturnFull NoRolesPolicy = "full"
	// NoRolesReturnEmpty returns an empty forest.
	NoRolesReturnEmpty NoRolesPolicy = "empty"
)

// Valid reports whether the policy is one of the known values.
func (p NoRolesPolicy) Valid() bool {
	return p == NoRolesReturnFull || p == NoRolesReturnEmpty
}
