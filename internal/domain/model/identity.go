package model

import "time"

// CachedUserIdentity is a denormalized read-side record mapping an
// (origin provider, origin-specific subject id) pair to display metadata.
// Rows are upserted on every successful login so the rest of the system can
// resolve display names without calling back to the origin provider.
type CachedUserIdentity struct {
	OriginUID             int64     `json:"origin_uid"                db:"origin_uid"`
	OriginSpecificSubject string    `json:"origin_specific_subject"   db:"origin_specific_subject"`
	CachedDisplayName     string    `json:"cached_display_name"       db:"cached_display_name"`
	CachedEmailAddress    string    `json:"cached_email_address"      db:"cached_email_address"`
	PermittedScopes       string    `json:"permitted_scopes"          db:"permitted_scopes"`
	Disabled              bool      `json:"disabled"                  db:"disabled"`
	LastLogonAt           time.Time `json:"last_logon_at"             db:"last_logon_at"`
	CreatedAt             time.Time `json:"created_at"                db:"created_at"`
}

// KnownUserLegitimation assigns a cached identity to a tenant role.
type KnownUserLegitimation struct {
	ID                    int64  `json:"id"                      db:"id"`
	OriginUID             int64  `json:"origin_uid"              db:"origin_uid"`
	OriginSpecificSubject string `json:"origin_specific_subject" db:"origin_specific_subject"`
	TenantUID             int64  `json:"tenant_uid"              db:"tenant_uid"`
	RoleName              string `json:"role_name"               db:"role_name"`
}
