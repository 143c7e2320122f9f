// Package service contains the OAuth brokering facade: token issuance flows,
// delegation to external identity providers, and bootstrap of default
// tenant/role/admin data.
package service

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/universalbff/user-api/internal/adapters/ephemeral"
	"github.com/universalbff/user-api/internal/adapters/jwtx"
	"github.com/universalbff/user-api/internal/adapters/oauthops"
	"github.com/universalbff/user-api/internal/domain/model"
	apperrors "github.com/universalbff/user-api/internal/errors"
	"github.com/universalbff/user-api/internal/observability/statsd"
	"github.com/universalbff/user-api/internal/ports"
	"github.com/universalbff/user-api/internal/snowflake"
)

// Scope expressions known to every tenant. The read scope is always granted
// and non-negotiable; write is opt-in.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// ClientCredentialsSubjectPrefix marks pseudo-identities issued for
// machine-to-machine clients.
const ClientCredentialsSubjectPrefix = "API_"

// Config carries the facade's own identity as an OAuth server.
type Config struct {
	// ProxyAuthURL is this service's own authorize endpoint. A proxy target
	// whose auth URL equals it is the local provider.
	ProxyAuthURL string
	// ProxyRetrievalURL is this service's own token endpoint, recorded on the
	// bootstrap self-target.
	ProxyRetrievalURL string
	// IssuerName becomes the "iss" claim of minted tokens.
	IssuerName string
	// SigningKey is the HS256 secret for minted tokens.
	SigningKey []byte
	// TokenTTL defaults to the issuer's default when zero.
	TokenTTL time.Duration
}

// UserServiceOptions groups dependencies for UserService.
type UserServiceOptions struct {
	Targets     ports.ProxyTargetRepository
	Tenants     ports.TenantRepository
	Credentials ports.CredentialRepository
	Identities  ports.IdentityRepository

	CredentialService ports.CredentialService
	Providers         *oauthops.Registry
	Generator         *snowflake.Generator

	// Locality is optional. When set, is-local-client decisions are cached
	// through it.
	Locality ports.Cache
	// Issuers and Introspectors override the built-in jwtx set when non-empty.
	Issuers       []ports.TokenIssuer
	Introspectors []ports.TokenIntrospector

	Config  Config
	Logger  *slog.Logger
	Metrics *statsd.Client
}

// UserService is the BFF OAuth facade. One instance exists per process; the
// session and retrieval-code stores live on it and are shared by every
// request handler.
type UserService struct {
	targets     ports.ProxyTargetRepository
	tenants     ports.TenantRepository
	credentials ports.CredentialRepository
	identities  ports.IdentityRepository

	credService ports.CredentialService
	providers   *oauthops.Registry
	generator   *snowflake.Generator
	locality    ports.Cache

	sessions *ephemeral.Store[string]
	codes    *ephemeral.Store[model.TokenIssuingResult]

	issuers       func() map[string]ports.TokenIssuer
	introspectors func() []ports.TokenIntrospector
	fallback      ports.TokenIntrospector

	cfg     Config
	logger  *slog.Logger
	metrics *statsd.Client

	bootMu sync.Mutex
	booted bool
}

// NewUserService constructs the facade. It panics on missing required
// dependencies since those are wiring errors, not runtime conditions.
func NewUserService(opts UserServiceOptions) *UserService {
	if opts.Targets == nil || opts.Tenants == nil || opts.Credentials == nil || opts.Identities == nil {
		panic("service: all repositories are required")
	}
	if opts.CredentialService == nil {
		panic("service: credential service is required")
	}
	if opts.Providers == nil {
		panic("service: provider registry is required")
	}
	if opts.Generator == nil {
		panic("service: id generator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &UserService{
		targets:     opts.Targets,
		tenants:     opts.Tenants,
		credentials: opts.Credentials,
		identities:  opts.Identities,
		credService: opts.CredentialService,
		providers:   opts.Providers,
		generator:   opts.Generator,
		locality:    opts.Locality,
		sessions:    ephemeral.NewStore[string](ephemeral.DefaultMaxAge),
		codes:       ephemeral.NewStore[model.TokenIssuingResult](ephemeral.DefaultMaxAge),
		fallback:    jwtx.UnverifiedIntrospector{},
		cfg:         opts.Config,
		logger:      logger,
		metrics:     opts.Metrics,
	}

	// Issuer/introspector registries are built once on first use and never
	// invalidated; the set is static configuration.
	s.issuers = sync.OnceValue(func() map[string]ports.TokenIssuer {
		out := make(map[string]ports.TokenIssuer)
		for _, issuer := range opts.Issuers {
			out[issuer.IssuerName()] = issuer
		}
		if len(out) == 0 {
			issuer, err := jwtx.NewIssuer(jwtx.IssuerConfig{
				Name:       s.cfg.IssuerName,
				SigningKey: s.cfg.SigningKey,
				TokenTTL:   s.cfg.TokenTTL,
			})
			if err != nil {
				panic("service: built-in issuer: " + err.Error())
			}
			out[issuer.IssuerName()] = issuer
		}
		return out
	})
	s.introspectors = sync.OnceValue(func() []ports.TokenIntrospector {
		if len(opts.Introspectors) > 0 {
			return slices.Clone(opts.Introspectors)
		}
		introspector, err := jwtx.NewIntrospector(s.cfg.IssuerName, s.cfg.SigningKey)
		if err != nil {
			panic("service: built-in introspector: " + err.Error())
		}
		return []ports.TokenIntrospector{introspector}
	})
	return s
}

// AuthenticateInput carries one authentication attempt.
type AuthenticateInput struct {
	ClientID string
	Login    string
	Password string
}

// Authenticate handles the local username/password entry point. On success
// it returns a freshly minted session id whose stored value is the resolved
// login identity. A non-local client is told to use the delegated flow; the
// caller should have consulted DelegationRequired first.
func (s *UserService) Authenticate(ctx context.Context, in AuthenticateInput) (sessionID, message string, err error) {
	if bootErr := s.EnsureBootstrapState(ctx); bootErr != nil {
		return "", "", bootErr
	}
	if in.Password == "" {
		// Passthrough authentication is unconditionally rejected.
		return "", "A password is required", nil
	}

	local, err := s.isLocalClient(ctx, in.ClientID)
	if err != nil {
		return "", "", err
	}
	if !local {
		return "", "This client authenticates against its configured identity provider; use the delegated login flow", nil
	}

	ok, msg, err := s.credService.Authenticate(ctx, in.Login, in.Password)
	if err != nil {
		return "", "", err
	}
	if !ok {
		s.count("auth.local.rejected")
		return "", msg, nil
	}

	id := s.mintSession(in.Login)
	s.count("auth.local.ok")
	return id.String(), msg, nil
}

// AvailableScopes returns the scope set available to an identity, filtered
// against the caller's preferred scopes. The read scope is always selected
// and read-only; write is selected only when preferred.
func (s *UserService) AvailableScopes(login string, preferred []string) []model.ScopeDescriptor {
	_ = login // every identity currently shares the same scope set
	return []model.ScopeDescriptor{
		{Expression: ScopeRead, Label: "Read access", Selected: true, ReadOnly: true},
		{Expression: ScopeWrite, Label: "Write access", Selected: slices.Contains(preferred, ScopeWrite)},
	}
}

// AvailableScopesForSession validates the session before answering with the
// identity's scope set. ok is false when the session id is malformed,
// unknown, expired, or still awaiting a delegated return; anonymous callers
// learn nothing about the scope catalogue.
func (s *UserService) AvailableScopesForSession(sessionID string, preferred []string) ([]model.ScopeDescriptor, bool) {
	id, ok := snowflake.Parse(sessionID)
	if !ok {
		return nil, false
	}
	identity, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	if strings.HasPrefix(identity, pendingDelegationPrefix) {
		return nil, false
	}
	return s.AvailableScopes(identity, preferred), true
}

// IssueTokenForSession implements the implicit flow: it validates the session
// id, filters the requested scopes, and mints an internal token bound to the
// session's resolved identity. The upstream provider's token is never
// forwarded.
func (s *UserService) IssueTokenForSession(ctx context.Context, clientID, sessionID string, scopes []string) model.TokenIssuingResult {
	_ = ctx

	id, ok := snowflake.Parse(sessionID)
	if !ok {
		return model.TokenError(model.ErrCodeInvalidRequest, "session id is not valid")
	}
	identity, ok := s.sessions.Get(id)
	if !ok {
		return model.TokenError(model.ErrCodeInvalidRequest, "session is unknown or expired")
	}
	if strings.HasPrefix(identity, pendingDelegationPrefix) {
		return model.TokenError(model.ErrCodeInvalidRequest, "delegated login has not completed")
	}

	granted := model.SelectedExpressions(s.AvailableScopes(identity, scopes))
	result := s.issueToken(identity, clientID, granted)
	if !result.Failed() {
		s.count("token.implicit.issued")
	}
	return result
}

// CreateRetrievalCode implements the issue side of the code flow: it wraps
// implicit-flow issuance and stages the result under a fresh one-time code.
func (s *UserService) CreateRetrievalCode(ctx context.Context, clientID, sessionID string, scopes []string) (string, model.TokenIssuingResult) {
	result := s.IssueTokenForSession(ctx, clientID, sessionID, scopes)
	if result.Failed() {
		return "", result
	}

	code := s.generator.Generate()
	s.sweepStores()
	s.codes.Put(code, result)
	s.count("token.code.staged")
	return code.String(), result
}

// RedeemCode implements the redeem side of the code flow. The code is
// single-use: concurrent redemptions race for one winner and every later
// attempt observes invalid_code.
func (s *UserService) RedeemCode(ctx context.Context, clientID, secret, code string) model.TokenIssuingResult {
	valid, err := s.ValidateClientSecret(ctx, clientID, secret)
	if err != nil {
		s.logger.Error("redeem code: client lookup failed", "error", err)
		return model.TokenError(model.ErrCodeInvalidClient, "client could not be validated")
	}
	if !valid {
		return model.TokenError(model.ErrCodeInvalidClient, "client id or secret is not valid")
	}

	id, ok := snowflake.Parse(code)
	if !ok {
		return model.TokenError(model.ErrCodeInvalidCode, "code is not valid")
	}
	if time.Since(snowflake.DecodeTime(id)) > ephemeral.DefaultMaxAge {
		return model.TokenError(model.ErrCodeInvalidCode, "code has expired")
	}
	result, ok := s.codes.Take(id)
	if !ok {
		return model.TokenError(model.ErrCodeInvalidCode, "code is unknown or already used")
	}
	s.count("token.code.redeemed")
	return result
}

// ClientCredentialsToken issues a token for a machine-to-machine client,
// bound to the API pseudo-identity derived from its client id.
func (s *UserService) ClientCredentialsToken(ctx context.Context, clientID, secret string, scopes []string) model.TokenIssuingResult {
	valid, err := s.ValidateClientSecret(ctx, clientID, secret)
	if err != nil {
		s.logger.Error("client credentials: client lookup failed", "error", err)
		return model.TokenError(model.ErrCodeInvalidClient, "client could not be validated")
	}
	if !valid {
		return model.TokenError(model.ErrCodeInvalidClient, "client id or secret is not valid")
	}

	identity := ClientCredentialsSubjectPrefix + clientID
	granted := model.SelectedExpressions(s.AvailableScopes(identity, scopes))
	result := s.issueToken(identity, clientID, granted)
	if !result.Failed() {
		s.count("token.client_credentials.issued")
	}
	return result
}

// RefreshToken is deliberately unsupported: sessions are short-lived and
// clients restart the login flow instead.
func (s *UserService) RefreshToken(refreshToken string) model.TokenIssuingResult {
	_ = refreshToken
	return model.TokenError(model.ErrCodeInvalidRequest, "refresh tokens are not supported")
}

// Introspect inspects a raw token via the first registered introspector.
func (s *UserService) Introspect(rawToken string) (bool, map[string]any) {
	for _, introspector := range s.introspectors() {
		active, claims, err := introspector.Introspect(rawToken)
		if err != nil {
			continue
		}
		return active, claims
	}
	return false, nil
}

// ValidateClient checks that the client id resolves to a configured target
// and that the redirect URI either points back at this service or shares a
// registrable domain with the target's own authorize URL.
func (s *UserService) ValidateClient(ctx context.Context, clientID, redirectURI string) (bool, error) {
	target, err := s.resolveTarget(ctx, clientID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if redirectURI == "" {
		return true, nil
	}

	redirect, err := url.Parse(redirectURI)
	if err != nil || redirect.Hostname() == "" {
		return false, nil
	}
	if sameRegistrableDomain(redirect.Hostname(), hostnameOf(s.cfg.ProxyAuthURL)) {
		return true, nil
	}
	return sameRegistrableDomain(redirect.Hostname(), hostnameOf(target.AuthURL)), nil
}

// ValidateClientSecret checks the client id/secret pair against the
// configured target.
func (s *UserService) ValidateClientSecret(ctx context.Context, clientID, secret string) (bool, error) {
	target, err := s.resolveTarget(ctx, clientID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if target.ClientSecret == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(target.ClientSecret), []byte(secret)) == 1, nil
}

// resolveTarget maps an API client id onto a configured proxy target. Numeric
// client ids are treated as target UIDs; anything else is matched against the
// target's OAuth client identifier.
func (s *UserService) resolveTarget(ctx context.Context, clientID string) (*model.OAuthProxyTarget, error) {
	if uid, ok := snowflake.Parse(clientID); ok {
		target, err := s.targets.GetByUID(ctx, int64(uid))
		if err == nil {
			return target, nil
		}
		if !apperrors.IsNotFound(err) {
			return nil, err
		}
	}
	return s.targets.GetByClientID(ctx, clientID)
}

// isLocalClient reports whether the client id maps to the local provider.
// The decision is cached when a locality cache is configured.
func (s *UserService) isLocalClient(ctx context.Context, clientID string) (bool, error) {
	if s.locality != nil {
		if cached, err := s.locality.Get(ctx, clientID); err == nil && len(cached) == 1 {
			return cached[0] == '1', nil
		}
	}

	target, err := s.resolveTarget(ctx, clientID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			// Unknown client ids proceed with local authentication; the
			// credential service rejects unknown logins on its own.
			return true, nil
		}
		return false, err
	}
	local := target.IsLocalProvider || (target.AuthURL != "" && target.AuthURL == s.cfg.ProxyAuthURL)

	if s.locality != nil {
		value := []byte{'0'}
		if local {
			value[0] = '1'
		}
		if cacheErr := s.locality.Set(ctx, clientID, value); cacheErr != nil {
			s.logger.Warn("locality cache write failed", "client_id", clientID, "error", cacheErr)
		}
	}
	return local, nil
}

func (s *UserService) issueToken(subject, audience string, scopes []string) model.TokenIssuingResult {
	issuer, ok := s.issuers()[s.cfg.IssuerName]
	if !ok {
		// Single-issuer deployments may register under a different name.
		for _, candidate := range s.issuers() {
			issuer = candidate
			ok = true
			break
		}
	}
	if !ok {
		return model.TokenError(model.ErrCodeInvalidRequest, "no token issuer is configured")
	}

	result, err := issuer.IssueToken(ports.IssueTokenInput{
		IssuerName: issuer.IssuerName(),
		Subject:    subject,
		Audience:   audience,
		Scopes:     scopes,
	})
	if err != nil {
		s.logger.Error("token issuance failed", "subject", subject, "error", err)
		return model.TokenError(model.ErrCodeInvalidRequest, "token could not be issued")
	}
	return result
}

// mintSession creates a session and opportunistically sweeps both stores.
// Sweeping on create keeps the live sets small without a background timer.
func (s *UserService) mintSession(identity string) snowflake.ID {
	id := s.generator.Generate()
	s.sweepStores()
	s.sessions.Put(id, identity)
	return id
}

func (s *UserService) sweepStores() {
	s.sessions.Sweep()
	s.codes.Sweep()
}

func (s *UserService) count(name string) {
	if s.metrics != nil {
		s.metrics.Count(name, 1, nil)
	}
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// sameRegistrableDomain compares two hostnames by their effective
// TLD-plus-one. Exact host equality short-circuits so single-label hosts
// (localhost, bare service names) still match themselves.
func sameRegistrableDomain(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(a, b) {
		return true
	}
	domainA, errA := publicsuffix.EffectiveTLDPlusOne(a)
	domainB, errB := publicsuffix.EffectiveTLDPlusOne(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(domainA, domainB)
}
