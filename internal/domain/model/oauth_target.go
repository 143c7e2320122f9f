package model

import (
	"encoding/json"
	"strings"
	"time"
)

// OAuthProxyTarget is a configured identity provider this BFF can delegate
// logins to, or the local provider itself. Exactly one target per tenant is
// the local/self provider; delegation is skipped for it.
type OAuthProxyTarget struct {
	UID             int64     `json:"uid"               db:"uid"`
	TenantUID       int64     `json:"tenant_uid"        db:"tenant_uid"`
	ClientID        string    `json:"client_id"         db:"client_id"`
	ClientSecret    string    `json:"-"                 db:"client_secret"`
	AuthURL         string    `json:"auth_url"          db:"auth_url"`
	RetrievalURL    string    `json:"retrieval_url"     db:"retrieval_url"`
	ProviderName    string    `json:"provider_name"     db:"provider_name"`
	DisplayLabel    string    `json:"display_label"     db:"display_label"`
	IsLocalProvider bool      `json:"is_local_provider" db:"is_local_provider"`
	AdditionalJSON  *string   `json:"-"                 db:"additional_params"`
	CreatedAt       time.Time `json:"created_at"        db:"created_at"`
}

// AdditionalParams decodes the optional provider-specific parameter map.
// Malformed or absent JSON yields nil; provider configuration treats a nil
// map as "no extra parameters" rather than failing the login flow.
func (t *OAuthProxyTarget) AdditionalParams() map[string]string {
	if t.AdditionalJSON == nil {
		return nil
	}
	raw := strings.TrimSpace(*t.AdditionalJSON)
	if !strings.HasPrefix(raw, "{") {
		return nil
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil
	}
	return params
}
