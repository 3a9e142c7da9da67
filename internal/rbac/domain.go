package rbac

// RoleRef is the reduced role shape the guard and aggregator work with.
type RoleRef struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Enable      bool   `json:"enable"`
	IsSuperuser bool   `json:"isSuperuser"`
}
