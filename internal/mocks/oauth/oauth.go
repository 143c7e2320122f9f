// Package oauth contains simple hand-written test doubles for the OAuth
// brokering ports. These are lightweight and suitable for unit tests
// without codegen.
package oauth

import (
	"context"
	"strconv"
	"sync"

	"github.com/universalbff/user-api/internal/domain/model"
	apperrors "github.com/universalbff/user-api/internal/errors"
	"github.com/universalbff/user-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.OAuthOperationsProvider = (*ScriptedProvider)(nil)
	_ ports.ProxyTargetRepository   = (*MemoryTargetRepo)(nil)
	_ ports.TenantRepository        = (*MemoryTenantRepo)(nil)
	_ ports.CredentialRepository    = (*MemoryCredentialRepo)(nil)
	_ ports.IdentityRepository      = (*MemoryIdentityRepo)(nil)
	_ ports.Cache                   = (*MemoryCache)(nil)
	_ ports.CredentialService       = (*StaticCredentialService)(nil)
	_ ports.TokenIssuer             = (*StaticIssuer)(nil)
	_ ports.TokenIntrospector       = (*StaticIntrospector)(nil)
)

// ScriptedProvider simulates an operations provider with scripted responses.
type ScriptedProvider struct {
	Name         string
	ExchangeFunc func(ctx context.Context, in ports.ExchangeCodeInput) (model.TokenIssuingResult, error)
	ResolveFunc  func(ctx context.Context, accessToken, idToken string) (ports.SubjectResolution, error)

	Settings  ports.ProviderSettings
	Exchanges int
}

func (p *ScriptedProvider) InvariantName() string {
	if p.Name == "" {
		return "scripted"
	}
	return p.Name
}

func (p *ScriptedProvider) Configure(settings ports.ProviderSettings) error {
	p.Settings = settings
	return nil
}

func (p *ScriptedProvider) ExchangeCode(ctx context.Context, in ports.ExchangeCodeInput) (model.TokenIssuingResult, error) {
	p.Exchanges++
	if p.ExchangeFunc != nil {
		return p.ExchangeFunc(ctx, in)
	}
	return model.TokenIssuingResult{AccessToken: "scripted-token", TokenType: "Bearer"}, nil
}

func (p *ScriptedProvider) ResolveSubject(ctx context.Context, accessToken, idToken string) (ports.SubjectResolution, error) {
	if p.ResolveFunc != nil {
		return p.ResolveFunc(ctx, accessToken, idToken)
	}
	return ports.SubjectResolution{Subject: "scripted-subject"}, nil
}

// MemoryTargetRepo is an in-memory ports.ProxyTargetRepository.
type MemoryTargetRepo struct {
	mu      sync.Mutex
	targets map[int64]*model.OAuthProxyTarget
}

func NewMemoryTargetRepo(targets ...*model.OAuthProxyTarget) *MemoryTargetRepo {
	r := &MemoryTargetRepo{targets: make(map[int64]*model.OAuthProxyTarget)}
	for _, t := range targets {
		r.targets[t.UID] = t
	}
	return r
}

func (r *MemoryTargetRepo) GetByUID(_ context.Context, uid int64) (*model.OAuthProxyTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.targets[uid]
	if !ok {
		return nil, apperrors.NotFoundf("proxy target %d not found", uid)
	}
	copied := *target
	return &copied, nil
}

func (r *MemoryTargetRepo) GetByClientID(_ context.Context, clientID string) (*model.OAuthProxyTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, target := range r.targets {
		if target.ClientID == clientID {
			copied := *target
			return &copied, nil
		}
	}
	return nil, apperrors.NotFoundf("proxy target %q not found", clientID)
}

func (r *MemoryTargetRepo) Create(_ context.Context, target *model.OAuthProxyTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[target.UID]; ok {
		return apperrors.Conflict("proxy target already exists")
	}
	copied := *target
	r.targets[target.UID] = &copied
	return nil
}

// All returns a snapshot of every stored target.
func (r *MemoryTargetRepo) All() []*model.OAuthProxyTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.OAuthProxyTarget, 0, len(r.targets))
	for _, target := range r.targets {
		copied := *target
		out = append(out, &copied)
	}
	return out
}

// Len returns the number of stored targets.
func (r *MemoryTargetRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

// MemoryTenantRepo is an in-memory ports.TenantRepository.
type MemoryTenantRepo struct {
	mu      sync.Mutex
	tenants map[int64]*model.TenantScope
	roles   []model.Role
}

func NewMemoryTenantRepo() *MemoryTenantRepo {
	return &MemoryTenantRepo{tenants: make(map[int64]*model.TenantScope)}
}

func (r *MemoryTenantRepo) AnyTenantExists(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tenants) > 0, nil
}

func (r *MemoryTenantRepo) CreateTenant(_ context.Context, tenant *model.TenantScope, roles []model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[tenant.TenantUID]; ok {
		return apperrors.Conflict("tenant already exists")
	}
	copied := *tenant
	r.tenants[tenant.TenantUID] = &copied
	r.roles = append(r.roles, roles...)
	return nil
}

// TenantCount returns the number of stored tenants.
func (r *MemoryTenantRepo) TenantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tenants)
}

// Roles returns a snapshot of all stored roles.
func (r *MemoryTenantRepo) Roles() []model.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Role, len(r.roles))
	copy(out, r.roles)
	return out
}

// MemoryCredentialRepo is an in-memory ports.CredentialRepository.
type MemoryCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]*model.LocalCredential
}

func NewMemoryCredentialRepo() *MemoryCredentialRepo {
	return &MemoryCredentialRepo{creds: make(map[string]*model.LocalCredential)}
}

func (r *MemoryCredentialRepo) GetByLogin(_ context.Context, login string) (*model.LocalCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cred := range r.creds {
		if cred.EmailAddress == login || cred.DisplayName == login {
			copied := *cred
			return &copied, nil
		}
	}
	return nil, apperrors.NotFoundf("credential %q not found", login)
}

func (r *MemoryCredentialRepo) Create(_ context.Context, cred *model.LocalCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strconv.FormatInt(cred.SubjectID, 10)
	if _, ok := r.creds[key]; ok {
		return apperrors.Conflict("credential already exists")
	}
	copied := *cred
	r.creds[key] = &copied
	return nil
}

// Len returns the number of stored credentials.
func (r *MemoryCredentialRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creds)
}

// MemoryIdentityRepo is an in-memory ports.IdentityRepository.
type MemoryIdentityRepo struct {
	mu            sync.Mutex
	Identities    map[string]*model.CachedUserIdentity
	Legitimations []model.KnownUserLegitimation
}

func NewMemoryIdentityRepo() *MemoryIdentityRepo {
	return &MemoryIdentityRepo{Identities: make(map[string]*model.CachedUserIdentity)}
}

func identityKey(originUID int64, subject string) string {
	return strconv.FormatInt(originUID, 10) + "/" + subject
}

func (r *MemoryIdentityRepo) UpsertCachedIdentity(_ context.Context, identity *model.CachedUserIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *identity
	r.Identities[identityKey(identity.OriginUID, identity.OriginSpecificSubject)] = &copied
	return nil
}

func (r *MemoryIdentityRepo) CreateLegitimation(_ context.Context, leg *model.KnownUserLegitimation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	leg.ID = int64(len(r.Legitimations) + 1)
	r.Legitimations = append(r.Legitimations, *leg)
	return nil
}

// MemoryCache is an in-memory ports.Cache.
type MemoryCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	c.values[key] = stored
	return nil
}

// StaticCredentialService is a ports.CredentialService accepting one fixed
// login/password pair.
type StaticCredentialService struct {
	Login    string
	Password string
}

func (s *StaticCredentialService) Authenticate(_ context.Context, login, password string) (bool, string, error) {
	if login == s.Login && password == s.Password {
		return true, "", nil
	}
	return false, "Invalid login or password", nil
}

func (s *StaticCredentialService) PasswordHash(plaintext string) (string, error) {
	return "hashed:" + plaintext, nil
}

// StaticIssuer is a ports.TokenIssuer producing deterministic tokens.
type StaticIssuer struct {
	Name   string
	Issued []ports.IssueTokenInput
}

func (i *StaticIssuer) IssuerName() string {
	if i.Name == "" {
		return "static"
	}
	return i.Name
}

func (i *StaticIssuer) IssueToken(in ports.IssueTokenInput) (model.TokenIssuingResult, error) {
	i.Issued = append(i.Issued, in)
	return model.TokenIssuingResult{
		AccessToken: "static-token-for-" + in.Subject,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
	}, nil
}

// StaticIntrospector is a ports.TokenIntrospector returning fixed claims.
type StaticIntrospector struct {
	Name   string
	Active bool
	Claims map[string]any
}

func (i *StaticIntrospector) IntrospectorName() string {
	if i.Name == "" {
		return "static"
	}
	return i.Name
}

func (i *StaticIntrospector) Introspect(string) (bool, map[string]any, error) {
	return i.Active, i.Claims, nil
}
