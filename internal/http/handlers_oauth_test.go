package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/universalbff/user-api/internal/adapters/oauthops"
	"github.com/universalbff/user-api/internal/domain/model"
	mocks "github.com/universalbff/user-api/internal/mocks/oauth"
	"github.com/universalbff/user-api/internal/ports"
	"github.com/universalbff/user-api/internal/service"
	"github.com/universalbff/user-api/internal/snowflake"
)

const testAuthURL = "https://bff.example.com/oauth/authorize"

func newTestRouter(t *testing.T, targets ...*model.OAuthProxyTarget) http.Handler {
	t.Helper()

	gen, err := snowflake.New(3)
	require.NoError(t, err)

	svc := service.NewUserService(service.UserServiceOptions{
		Targets:           mocks.NewMemoryTargetRepo(targets...),
		Tenants:           mocks.NewMemoryTenantRepo(),
		Credentials:       mocks.NewMemoryCredentialRepo(),
		Identities:        mocks.NewMemoryIdentityRepo(),
		CredentialService: &mocks.StaticCredentialService{Login: "alice", Password: "s3cret"},
		Providers:         oauthops.NewRegistry(),
		Generator:         gen,
		Issuers:           []ports.TokenIssuer{&mocks.StaticIssuer{Name: "test-issuer"}},
		Introspectors:     []ports.TokenIntrospector{&mocks.StaticIntrospector{Active: true, Claims: map[string]any{"sub": "abc"}}},
		Config: service.Config{
			ProxyAuthURL:      testAuthURL,
			ProxyRetrievalURL: "https://bff.example.com/oauth/token",
			IssuerName:        "test-issuer",
			SigningKey:        []byte("test-signing-key"),
		},
		Logger: slog.Default(),
	})
	return NewRouter(RouterServices{Users: svc, Logger: slog.Default()})
}

func remoteTestTarget(uid int64) *model.OAuthProxyTarget {
	return &model.OAuthProxyTarget{
		UID:          uid,
		ClientID:     "remote-client",
		ClientSecret: "remote-secret",
		AuthURL:      "https://idp.example/auth",
		RetrievalURL: "https://idp.example/token",
		ProviderName: "generic",
		DisplayLabel: "Remote IdP",
	}
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestAuthenticateEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/oauth/authenticate",
		`{"client_id":"local","login":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestAuthenticateEndpointBadPassword(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/oauth/authenticate",
		`{"client_id":"local","login":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid login or password")
}

func TestAuthenticateEndpointRejectsUnknownFields(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/oauth/authenticate", `{"bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScopesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/oauth/authenticate",
		`{"client_id":"local","login":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var auth struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))

	req := httptest.NewRequest(http.MethodGet, "/oauth/scopes?session_id="+auth.SessionID+"&preferred=write", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scopes []model.ScopeDescriptor `json:"scopes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Scopes, 2)
	assert.Equal(t, "read", resp.Scopes[0].Expression)
	assert.True(t, resp.Scopes[0].Selected)
	assert.True(t, resp.Scopes[0].ReadOnly)
	assert.True(t, resp.Scopes[1].Selected, "write was preferred")
}

func TestScopesEndpointRequiresSession(t *testing.T) {
	router := newTestRouter(t)

	// No session was ever created; neither a garbage session id nor a bare
	// login name gets the scope catalogue.
	req := httptest.NewRequest(http.MethodGet, "/oauth/scopes?login=nobody&session_id=garbage&preferred=write", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"expression"`)

	req = httptest.NewRequest(http.MethodGet, "/oauth/scopes?preferred=write", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCodeFlowEndToEnd(t *testing.T) {
	router := newTestRouter(t, remoteTestTarget(42))

	// Authenticate locally to obtain a session.
	rec := postJSON(t, router, "/oauth/authenticate",
		`{"client_id":"local","login":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var auth struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))

	// Stage a token under a retrieval code.
	rec = postJSON(t, router, "/oauth/code",
		`{"client_id":"42","session_id":"`+auth.SessionID+`","scopes":["write"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var staged struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &staged))
	require.NotEmpty(t, staged.Code)

	// Redeem it.
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"42"},
		"client_secret": {"remote-secret"},
		"code":          {staged.Code},
	}
	rec = postForm(t, router, "/oauth/token", form)
	require.Equal(t, http.StatusOK, rec.Code)
	var token model.TokenIssuingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	assert.False(t, token.Failed())
	assert.NotEmpty(t, token.AccessToken)

	// A second redemption observes invalid_code.
	rec = postForm(t, router, "/oauth/token", form)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	assert.Equal(t, model.ErrCodeInvalidCode, token.Error)
}

func TestTokenEndpointRefreshRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"whatever"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.TokenIssuingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, model.ErrCodeInvalidRequest, result.Error)
}

func TestTokenEndpointUnknownGrant(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/oauth/token", url.Values{"grant_type": {"password"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.TokenIssuingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, model.ErrCodeInvalidRequest, result.Error)
}

func TestTokenEndpointClientCredentials(t *testing.T) {
	router := newTestRouter(t, remoteTestTarget(42))

	rec := postForm(t, router, "/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"42"},
		"client_secret": {"remote-secret"},
		"scope":         {"read write"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.TokenIssuingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Failed())
	assert.Contains(t, result.AccessToken, "API_42")
}

func TestDelegationBeginRedirects(t *testing.T) {
	router := newTestRouter(t, remoteTestTarget(42))

	req := httptest.NewRequest(http.MethodGet, "/oauth/delegation/begin?client_id=42&redirect_uri=https://bff.example.com/cb", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example", location.Host)
	assert.Equal(t, "remote-client", location.Query().Get("client_id"))
	assert.Equal(t, "code", location.Query().Get("response_type"))
	assert.NotEmpty(t, location.Query().Get("state"))
}

func TestDelegationBeginLocalClient(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/delegation/begin?client_id=unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"delegation_required":false`)
}

func TestDelegationCallbackRequiresParams(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/delegation/callback", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelegationCallbackUnknownSession(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/delegation/callback?code=abc&state=999999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIntrospectEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/oauth/introspect", url.Values{"token": {"some-token"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Active bool           `json:"active"`
		Claims map[string]any `json:"claims"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Active)
	assert.Equal(t, "abc", resp.Claims["sub"])
}

func TestIntrospectEndpointRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/oauth/introspect", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
