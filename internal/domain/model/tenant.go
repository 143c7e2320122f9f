package model

import "time"

// TenantScope groups roles and permitted scopes for one tenant.
type TenantScope struct {
	TenantUID           int64     `json:"tenant_uid"           db:"tenant_uid"`
	DisplayLabel        string    `json:"display_label"        db:"display_label"`
	AvailablePortfolios string    `json:"available_portfolios" db:"available_portfolios"`
	PermittedScopes     string    `json:"permitted_scopes"     db:"permitted_scopes"`
	CreatedAt           time.Time `json:"created_at"           db:"created_at"`
}

// Role is a tenant-scoped role. Exactly one role per tenant carries
// IsDefaultForNewUsers; every first-time identity is assigned to it.
type Role struct {
	ID                   int64  `json:"id"                       db:"id"`
	TenantUID            int64  `json:"tenant_uid"               db:"tenant_uid"`
	RoleName             string `json:"role_name"                db:"role_name"`
	DescriptiveLabel     string `json:"descriptive_label"        db:"descriptive_label"`
	IsDefaultForNewUsers bool   `json:"is_default_for_new_users" db:"is_default_for_new_users"`
	PermittedScopes      string `json:"permitted_scopes"         db:"permitted_scopes"`
}
