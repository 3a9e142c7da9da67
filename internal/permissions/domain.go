package permissions

// Kind discriminates permission records.
type Kind string

// Known permission kinds. The column is free-form text so new kinds can
// be introduced without a migration.
const (
	KindMenu   Kind = "MENU"
	KindButton Kind = "BUTTON"
)

// Permission is an atomic grantable capability: a navigable menu entry or
// a UI action, organized as a forest through ParentID.
type Permission struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Kind        Kind    `json:"type"`
	ParentID    *int64  `json:"parent_id"`
	Path        *string `json:"path"`
	Redirect    *string `json:"redirect"`
	Icon        *string `json:"icon"`
	Component   *string `json:"component"`
	Layout      *string `json:"layout"`
	KeepAlive   *int    `json:"keep_alive"`
	Method      *string `json:"method"`
	Description *string `json:"description"`
	Show        bool    `json:"show"`
	Enable      bool    `json:"enable"`
	Order       *int    `json:"order"`
}

// Summary is the reduced shape used for effective-permission listings.
type Summary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Kind     Kind   `json:"type"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// Node is a permission with its resolved children.
type Node struct {
	Permission
	Children []*Node `json:"children"`
}

// Stats aggregates permission counts for the management dashboard.
type Stats struct {
	MenuCount     int `json:"menuCount"`
	ButtonCount   int `json:"buttonCount"`
	EnabledCount  int `json:"enabledCount"`
	DisabledCount int `json:"disabledCount"`
}
