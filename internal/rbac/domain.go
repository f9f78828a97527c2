package rbac

// Role is a tenant-scoped permission grouping. Holders of a SuperAdmin role
// bypass approval level role checks.
type Role struct {
	ID          int64    `json:"id"`
	TenantID    int64    `json:"tenant_id"`
	Name        string   `json:"name"`
	SuperAdmin  bool     `json:"super_admin"`
	Permissions []string `json:"permissions,omitempty"`
}

// UserRole links a user to a role within a tenant.
type UserRole struct {
	TenantID int64
	UserID   int64
	RoleID   int64
}
