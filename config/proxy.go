package config

import (
	"strings"
	"time"
)

// ProxyConfig describes this service's own identity as an OAuth server: the
// URLs it advertises to delegated providers and the key it signs tokens with.
type ProxyConfig struct {
	// AuthURL is this service's own authorize endpoint. A proxy target whose
	// auth URL equals it is the local provider.
	AuthURL string `env:"AUTH_URL" envDefault:"http://localhost:8080/oauth/delegation/begin"`

	// RetrievalURL is this service's own token endpoint, recorded on the
	// bootstrap self-target.
	RetrievalURL string `env:"RETRIEVAL_URL" envDefault:"http://localhost:8080/oauth/token"`

	// IssuerName becomes the "iss" claim of minted tokens.
	IssuerName string `env:"ISSUER_NAME" envDefault:"user-api"`

	// SigningKey is the HS256 secret for minted tokens.
	// Required for production; a dev-only default applies otherwise.
	SigningKey string `env:"SIGNING_KEY"`

	// TokenTTL is the lifetime of minted access tokens.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"1h"`

	// NodeID distinguishes id-generator instances across replicas (0-1023).
	NodeID int64 `env:"NODE_ID" envDefault:"1"`
}

// Sanitize applies guardrails to proxy configuration values.
func (p *ProxyConfig) Sanitize() {
	p.AuthURL = strings.TrimSpace(p.AuthURL)
	p.RetrievalURL = strings.TrimSpace(p.RetrievalURL)
	p.IssuerName = strings.TrimSpace(p.IssuerName)
	if p.TokenTTL <= 0 {
		p.TokenTTL = time.Hour
	}
	if p.NodeID < 0 || p.NodeID > 1023 {
		p.NodeID = 1
	}
}
