package roles

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Enable      bool   `json:"enable"`
	IsSuperuser bool   `json:"isSuperuser"`
}

// RoleWithPermissionIDs augments a role with its granted permission ids,
// used by the management listing.
type RoleWithPermissionIDs struct {
	Role
	PermissionIDs []int64 `json:"permissionIds"`
}

// Stats aggregates role-related counts for the dashboard.
type Stats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Users       int `json:"users"`
	Permissions int `json:"permissions"`
}

// Member is a user holding a role.
type Member struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Enable   bool   `json:"enable"`
}
