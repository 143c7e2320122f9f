package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	bsnowflake "github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalbff/user-api/internal/adapters/oauthops"
	"github.com/universalbff/user-api/internal/domain/model"
	mocks "github.com/universalbff/user-api/internal/mocks/oauth"
	"github.com/universalbff/user-api/internal/ports"
	"github.com/universalbff/user-api/internal/snowflake"
)

const (
	testProxyAuthURL  = "https://bff.example.com/oauth/authorize"
	testProxyTokenURL = "https://bff.example.com/oauth/token"
)

// fixture bundles a UserService with the doubles behind it.
type fixture struct {
	svc        *UserService
	targets    *mocks.MemoryTargetRepo
	tenants    *mocks.MemoryTenantRepo
	creds      *mocks.MemoryCredentialRepo
	identities *mocks.MemoryIdentityRepo
	cache      *mocks.MemoryCache
	issuer     *mocks.StaticIssuer
	provider   *mocks.ScriptedProvider
	registry   *oauthops.Registry
}

func newFixture(t *testing.T, targets ...*model.OAuthProxyTarget) *fixture {
	t.Helper()

	gen, err := snowflake.New(1)
	require.NoError(t, err)

	f := &fixture{
		targets:    mocks.NewMemoryTargetRepo(targets...),
		tenants:    mocks.NewMemoryTenantRepo(),
		creds:      mocks.NewMemoryCredentialRepo(),
		identities: mocks.NewMemoryIdentityRepo(),
		cache:      mocks.NewMemoryCache(),
		issuer:     &mocks.StaticIssuer{Name: "test-issuer"},
		provider:   &mocks.ScriptedProvider{Name: "scripted"},
	}

	f.registry = oauthops.NewRegistry()
	f.registry.Register("scripted", func() ports.OAuthOperationsProvider { return f.provider })

	f.svc = NewUserService(UserServiceOptions{
		Targets:           f.targets,
		Tenants:           f.tenants,
		Credentials:       f.creds,
		Identities:        f.identities,
		CredentialService: &mocks.StaticCredentialService{Login: "alice", Password: "s3cret"},
		Providers:         f.registry,
		Generator:         gen,
		Locality:          f.cache,
		Issuers:           []ports.TokenIssuer{f.issuer},
		Introspectors:     []ports.TokenIntrospector{&mocks.StaticIntrospector{Active: true, Claims: map[string]any{"sub": "abc"}}},
		Config: Config{
			ProxyAuthURL:      testProxyAuthURL,
			ProxyRetrievalURL: testProxyTokenURL,
			IssuerName:        "test-issuer",
			SigningKey:        []byte("test-signing-key"),
		},
		Logger: slog.Default(),
	})
	return f
}

func remoteTarget(uid int64) *model.OAuthProxyTarget {
	return &model.OAuthProxyTarget{
		UID:          uid,
		TenantUID:    DefaultTenantUID,
		ClientID:     "remote-client-" + strconv.FormatInt(uid, 10),
		ClientSecret: "remote-secret",
		AuthURL:      "https://idp.example/auth",
		RetrievalURL: "https://idp.example/token",
		ProviderName: "scripted",
		DisplayLabel: "Remote IdP",
	}
}

// staleID builds a snowflake id whose embedded timestamp is in the past.
func staleID(age time.Duration) string {
	ms := time.Now().Add(-age).UnixMilli() - bsnowflake.Epoch
	return bsnowflake.ID(ms << 22).String()
}

func TestAuthenticateRejectsPassthrough(t *testing.T) {
	f := newFixture(t)

	sessionID, message, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		ClientID: "whoever",
		Login:    "alice",
	})
	require.NoError(t, err)
	assert.Empty(t, sessionID)
	assert.Contains(t, message, "password")
}

func TestAuthenticateLocalSuccessMintsSession(t *testing.T) {
	f := newFixture(t)

	sessionID, _, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		ClientID: "local-client",
		Login:    "alice",
		Password: "s3cret",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	id, ok := snowflake.Parse(sessionID)
	require.True(t, ok)
	identity, ok := f.svc.sessions.Get(id)
	require.True(t, ok)
	assert.Equal(t, "alice", identity)
}

func TestAuthenticateLocalBadPassword(t *testing.T) {
	f := newFixture(t)

	sessionID, message, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		ClientID: "local-client",
		Login:    "alice",
		Password: "wrong",
	})
	require.NoError(t, err)
	assert.Empty(t, sessionID)
	assert.Equal(t, "Invalid login or password", message)
}

func TestAuthenticateRemoteClientRejected(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)

	sessionID, message, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		ClientID: "42",
		Login:    "alice",
		Password: "s3cret",
	})
	require.NoError(t, err)
	assert.Empty(t, sessionID)
	assert.Contains(t, message, "delegated")
}

func TestAvailableScopesReadAlwaysSelectedReadOnly(t *testing.T) {
	f := newFixture(t)

	scopes := f.svc.AvailableScopes("alice", nil)
	require.Len(t, scopes, 2)
	assert.Equal(t, ScopeRead, scopes[0].Expression)
	assert.True(t, scopes[0].Selected)
	assert.True(t, scopes[0].ReadOnly)
	assert.Equal(t, ScopeWrite, scopes[1].Expression)
	assert.False(t, scopes[1].Selected)

	withWrite := f.svc.AvailableScopes("alice", []string{ScopeWrite})
	assert.True(t, withWrite[1].Selected)
}

func TestAvailableScopesForSessionValidatesSession(t *testing.T) {
	f := newFixture(t)
	id := f.svc.mintSession("alice")

	scopes, ok := f.svc.AvailableScopesForSession(id.String(), []string{ScopeWrite})
	require.True(t, ok)
	require.Len(t, scopes, 2)
	assert.True(t, scopes[1].Selected)

	_, ok = f.svc.AvailableScopesForSession("not-a-snowflake", nil)
	assert.False(t, ok, "malformed session id")

	_, ok = f.svc.AvailableScopesForSession(f.svc.generator.Generate().String(), nil)
	assert.False(t, ok, "session never created")

	stale, _ := snowflake.Parse(staleID(2 * time.Minute))
	f.svc.sessions.Put(stale, "alice")
	_, ok = f.svc.AvailableScopesForSession(stale.String(), nil)
	assert.False(t, ok, "expired session")

	pending := f.svc.mintSession("=>42")
	_, ok = f.svc.AvailableScopesForSession(pending.String(), nil)
	assert.False(t, ok, "delegated login not completed")
}

func TestIssueTokenForSessionValidSession(t *testing.T) {
	f := newFixture(t)
	id := f.svc.mintSession("alice")

	result := f.svc.IssueTokenForSession(context.Background(), "client", id.String(), []string{ScopeWrite})
	require.False(t, result.Failed())
	assert.Equal(t, "static-token-for-alice", result.AccessToken)

	require.Len(t, f.issuer.Issued, 1)
	assert.Equal(t, "alice", f.issuer.Issued[0].Subject)
	assert.Equal(t, []string{ScopeRead, ScopeWrite}, f.issuer.Issued[0].Scopes)
}

func TestIssueTokenForSessionRejectsGarbageAndUnknown(t *testing.T) {
	f := newFixture(t)

	result := f.svc.IssueTokenForSession(context.Background(), "client", "not-a-number", nil)
	assert.Equal(t, model.ErrCodeInvalidRequest, result.Error)

	result = f.svc.IssueTokenForSession(context.Background(), "client", "123456789012345678", nil)
	assert.Equal(t, model.ErrCodeInvalidRequest, result.Error)
}

func TestIssueTokenForSessionRejectsExpiredSession(t *testing.T) {
	f := newFixture(t)

	result := f.svc.IssueTokenForSession(context.Background(), "client", staleID(2*time.Minute), nil)
	assert.Equal(t, model.ErrCodeInvalidRequest, result.Error)
}

func TestIssueTokenForSessionRejectsPendingDelegation(t *testing.T) {
	f := newFixture(t)
	id := f.svc.mintSession(pendingDelegationPrefix + "42")

	result := f.svc.IssueTokenForSession(context.Background(), "client", id.String(), nil)
	assert.Equal(t, model.ErrCodeInvalidRequest, result.Error)
}

func TestRedeemCodeSingleUse(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)
	id := f.svc.mintSession("alice")

	code, result := f.svc.CreateRetrievalCode(context.Background(), "42", id.String(), nil)
	require.False(t, result.Failed())
	require.NotEmpty(t, code)

	first := f.svc.RedeemCode(context.Background(), "42", "remote-secret", code)
	require.False(t, first.Failed())
	assert.Equal(t, "static-token-for-alice", first.AccessToken)

	second := f.svc.RedeemCode(context.Background(), "42", "remote-secret", code)
	assert.Equal(t, model.ErrCodeInvalidCode, second.Error)
}

func TestRedeemCodeConcurrentOneWinner(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)
	id := f.svc.mintSession("alice")

	code, result := f.svc.CreateRetrievalCode(context.Background(), "42", id.String(), nil)
	require.False(t, result.Failed())

	const redeemers = 16
	var wg sync.WaitGroup
	results := make([]model.TokenIssuingResult, redeemers)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot] = f.svc.RedeemCode(context.Background(), "42", "remote-secret", code)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, r := range results {
		if !r.Failed() {
			winners++
		} else {
			assert.Equal(t, model.ErrCodeInvalidCode, r.Error)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestRedeemCodeBadSecret(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)
	id := f.svc.mintSession("alice")

	code, _ := f.svc.CreateRetrievalCode(context.Background(), "42", id.String(), nil)

	result := f.svc.RedeemCode(context.Background(), "42", "wrong-secret", code)
	assert.Equal(t, model.ErrCodeInvalidClient, result.Error)

	// The code survives a failed client validation and is still redeemable.
	result = f.svc.RedeemCode(context.Background(), "42", "remote-secret", code)
	assert.False(t, result.Failed())
}

func TestRedeemCodeExpired(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)

	result := f.svc.RedeemCode(context.Background(), "42", "remote-secret", staleID(90*time.Second))
	assert.Equal(t, model.ErrCodeInvalidCode, result.Error)
}

func TestRedeemCodeGarbage(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)

	result := f.svc.RedeemCode(context.Background(), "42", "remote-secret", "zzz")
	assert.Equal(t, model.ErrCodeInvalidCode, result.Error)
}

func TestClientCredentialsTokenPseudoIdentity(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)

	result := f.svc.ClientCredentialsToken(context.Background(), "42", "remote-secret", []string{ScopeWrite})
	require.False(t, result.Failed())

	require.Len(t, f.issuer.Issued, 1)
	assert.Equal(t, "API_42", f.issuer.Issued[0].Subject)
	assert.Equal(t, []string{ScopeRead, ScopeWrite}, f.issuer.Issued[0].Scopes)
}

func TestClientCredentialsTokenBadSecret(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)

	result := f.svc.ClientCredentialsToken(context.Background(), "42", "nope", nil)
	assert.Equal(t, model.ErrCodeInvalidClient, result.Error)
}

func TestRefreshTokenAlwaysRejected(t *testing.T) {
	f := newFixture(t)

	result := f.svc.RefreshToken("any-refresh-token")
	assert.Equal(t, model.ErrCodeInvalidRequest, result.Error)
	assert.NotEmpty(t, result.ErrorDescription)
}

func TestIntrospectUsesRegisteredIntrospector(t *testing.T) {
	f := newFixture(t)

	active, claims := f.svc.Introspect("whatever")
	assert.True(t, active)
	assert.Equal(t, "abc", claims["sub"])
}

func TestValidateClientSecret(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)

	ok, err := f.svc.ValidateClientSecret(context.Background(), "42", "wrong-secret")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.ValidateClientSecret(context.Background(), "42", "remote-secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.ValidateClientSecret(context.Background(), "999", "remote-secret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateClientRedirectDomains(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)

	ok, err := f.svc.ValidateClient(context.Background(), "42", "https://bff.example.com/callback")
	require.NoError(t, err)
	assert.True(t, ok, "own host is always allowed")

	ok, err = f.svc.ValidateClient(context.Background(), "42", "https://login.idp.example/return")
	require.NoError(t, err)
	assert.True(t, ok, "same registrable domain as the target's auth URL")

	ok, err = f.svc.ValidateClient(context.Background(), "42", "https://evil.example.org/steal")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.ValidateClient(context.Background(), "999", "https://bff.example.com/callback")
	require.NoError(t, err)
	assert.False(t, ok, "unknown client id")
}

func TestIsLocalClientCachesDecision(t *testing.T) {
	target := remoteTarget(42)
	f := newFixture(t, target)

	local, err := f.svc.isLocalClient(context.Background(), "42")
	require.NoError(t, err)
	assert.False(t, local)

	cached, err := f.cache.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, []byte{'0'}, cached)

	// Cached decisions short-circuit the repository.
	require.NoError(t, f.cache.Set(context.Background(), "42", []byte{'1'}))
	local, err = f.svc.isLocalClient(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, local)
}
