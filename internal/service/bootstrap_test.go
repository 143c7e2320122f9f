package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalbff/user-api/internal/adapters/oauthops"
	mocks "github.com/universalbff/user-api/internal/mocks/oauth"
	"github.com/universalbff/user-api/internal/ports"
	"github.com/universalbff/user-api/internal/snowflake"
)

// newServiceSharingStores builds a second facade instance over the same
// backing repositories, simulating another replica or a process restart.
func newServiceSharingStores(t *testing.T, f *fixture) *UserService {
	t.Helper()

	gen, err := snowflake.New(2)
	require.NoError(t, err)

	return NewUserService(UserServiceOptions{
		Targets:           f.targets,
		Tenants:           f.tenants,
		Credentials:       f.creds,
		Identities:        f.identities,
		CredentialService: &mocks.StaticCredentialService{Login: "alice", Password: "s3cret"},
		Providers:         oauthops.NewRegistry(),
		Generator:         gen,
		Issuers:           []ports.TokenIssuer{&mocks.StaticIssuer{Name: "test-issuer"}},
		Config: Config{
			ProxyAuthURL:      testProxyAuthURL,
			ProxyRetrievalURL: testProxyTokenURL,
			IssuerName:        "test-issuer",
			SigningKey:        []byte("test-signing-key"),
		},
		Logger: slog.Default(),
	})
}

func TestEnsureBootstrapStateCreatesDefaults(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.EnsureBootstrapState(context.Background()))

	assert.Equal(t, 1, f.tenants.TenantCount())
	assert.Equal(t, 1, f.creds.Len())

	roles := f.tenants.Roles()
	require.Len(t, roles, 2)
	defaults := 0
	for _, role := range roles {
		if role.IsDefaultForNewUsers {
			defaults++
			assert.Equal(t, DefaultRoleName, role.RoleName)
		}
	}
	assert.Equal(t, 1, defaults, "exactly one default role")

	// The self target points back at this service and is flagged local.
	targets := f.targets.All()
	require.Len(t, targets, 1)
	self := targets[0]
	assert.True(t, self.IsLocalProvider)
	assert.Equal(t, testProxyAuthURL, self.AuthURL)
	assert.Equal(t, testProxyTokenURL, self.RetrievalURL)
	assert.Equal(t, LocalProviderName, self.ProviderName)
	assert.NotEmpty(t, self.ClientSecret)

	// The bootstrap admin is assigned the administrator role.
	require.Len(t, f.identities.Legitimations, 1)
	assert.Equal(t, AdminRoleName, f.identities.Legitimations[0].RoleName)
}

func TestEnsureBootstrapStateIdempotent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.EnsureBootstrapState(context.Background()))
	require.NoError(t, f.svc.EnsureBootstrapState(context.Background()))

	assert.Equal(t, 1, f.tenants.TenantCount())
	assert.Equal(t, 1, f.targets.Len())
	assert.Equal(t, 1, f.creds.Len())
}

func TestEnsureBootstrapStateNoOpWhenTenantExists(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.EnsureBootstrapState(context.Background()))

	// A second instance against the same (already bootstrapped) store must
	// not create anything, even though its own guard is cold.
	other := newServiceSharingStores(t, f)
	require.NoError(t, other.EnsureBootstrapState(context.Background()))

	assert.Equal(t, 1, f.tenants.TenantCount())
	assert.Equal(t, 1, f.targets.Len())
	assert.Equal(t, 1, f.creds.Len())
}

func TestBootstrapAdminPasswordIsHashed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.EnsureBootstrapState(context.Background()))

	cred, err := f.creds.GetByLogin(context.Background(), "admin@localhost")
	require.NoError(t, err)
	assert.True(t, cred.IsValidated)
	assert.NotEmpty(t, cred.PasswordHash)
	assert.NotEqual(t, "admin", cred.PasswordHash)
}
