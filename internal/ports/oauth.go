// Package ports defines interfaces (hexagonal ports) for the OAuth brokering
// core. Implementations live in internal/adapters and internal/data;
// orchestration in internal/service.
package ports

import (
	"context"

	"github.com/universalbff/user-api/internal/domain/model"
)

// ProviderSettings carries the per-target configuration applied to an
// operations provider before use. Values come from the OAuthProxyTarget row.
type ProviderSettings struct {
	DisplayLabel     string
	AuthorizeURL     string
	RetrievalURL     string
	SupportsIframe   bool
	RequestIDToken   bool
	AdditionalParams map[string]string
}

// ExchangeCodeInput groups parameters for the authorization-code exchange
// against a delegated provider.
type ExchangeCodeInput struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// SubjectResolution is the outcome of a provider's own subject endpoint.
type SubjectResolution struct {
	Subject string
	Scopes  []string
	Claims  map[string]any
}

// OAuthOperationsProvider performs the wire-level OAuth operations against one
// class of identity provider. One implementation exists per supported
// provider family; a generic standards-compliant implementation covers the
// rest.
type OAuthOperationsProvider interface {
	// InvariantName identifies the provider implementation. It is matched
	// against OAuthProxyTarget.ProviderName during registry resolution and
	// becomes part of resolved identity strings.
	InvariantName() string

	// Configure applies target-specific settings. Must be called before any
	// other operation.
	Configure(settings ProviderSettings) error

	// ExchangeCode trades an authorization code for tokens at the provider's
	// retrieval endpoint.
	ExchangeCode(ctx context.Context, in ExchangeCodeInput) (model.TokenIssuingResult, error)

	// ResolveSubject resolves the authenticated subject via the provider's own
	// resolution endpoint (userinfo-equivalent). An error means this tier of
	// subject resolution failed; callers fall back to token introspection.
	ResolveSubject(ctx context.Context, accessToken, idToken string) (SubjectResolution, error)
}

// IssueTokenInput groups parameters for internal token issuance.
type IssueTokenInput struct {
	IssuerName string
	Subject    string
	Audience   string
	Scopes     []string
}

// TokenIssuer mints access tokens bound to an internal identity.
type TokenIssuer interface {
	IssuerName() string
	IssueToken(in IssueTokenInput) (model.TokenIssuingResult, error)
}

// TokenIntrospector inspects a raw token into an active flag and claim map.
// Implementations may or may not validate the signature; the delegation
// fallback tier deliberately uses a non-validating one.
type TokenIntrospector interface {
	IntrospectorName() string
	Introspect(rawToken string) (active bool, claims map[string]any, err error)
}

// CredentialService authenticates local username/password identities.
type CredentialService interface {
	// Authenticate checks the login/password pair. The message is
	// caller-visible on both outcomes.
	Authenticate(ctx context.Context, login, password string) (ok bool, message string, err error)

	// PasswordHash derives the stored hash for a plaintext password.
	PasswordHash(plaintext string) (string, error)
}

// ProxyTargetRepository reads and writes configured OAuth proxy targets.
type ProxyTargetRepository interface {
	GetByUID(ctx context.Context, uid int64) (*model.OAuthProxyTarget, error)
	GetByClientID(ctx context.Context, clientID string) (*model.OAuthProxyTarget, error)
	Create(ctx context.Context, target *model.OAuthProxyTarget) error
}

// TenantRepository reads and writes tenant scopes and their roles.
type TenantRepository interface {
	AnyTenantExists(ctx context.Context) (bool, error)
	CreateTenant(ctx context.Context, tenant *model.TenantScope, roles []model.Role) error
}

// CredentialRepository persists local credentials.
type CredentialRepository interface {
	GetByLogin(ctx context.Context, login string) (*model.LocalCredential, error)
	Create(ctx context.Context, cred *model.LocalCredential) error
}

// IdentityRepository persists cached identities and their role assignments.
type IdentityRepository interface {
	UpsertCachedIdentity(ctx context.Context, identity *model.CachedUserIdentity) error
	CreateLegitimation(ctx context.Context, leg *model.KnownUserLegitimation) error
}

// Cache is a small byte-value cache used for client-locality lookups. Redis
// in production, an in-memory double in tests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
