package oauthops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/universalbff/user-api/internal/domain/model"
	"github.com/universalbff/user-api/internal/ports"
)

// OIDCProviderName is the invariant name of the OpenID Connect provider.
const OIDCProviderName = "oidc"

// ParamIssuerURL configures the OIDC issuer for discovery. Required for
// targets using the oidc provider; the well-known suffix is tolerated.
const ParamIssuerURL = "issuer"

// OIDCProvider implements operations against OpenID Connect providers using
// discovery, with verified id_token subject resolution and userinfo fallback.
type OIDCProvider struct {
	settings   ports.ProviderSettings
	httpClient *http.Client

	op         *gooidc.Provider
	issuer     string
	configured bool
}

var _ ports.OAuthOperationsProvider = (*OIDCProvider)(nil)

// NewOIDCProvider constructs an unconfigured OIDCProvider.
func NewOIDCProvider() *OIDCProvider {
	return &OIDCProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// InvariantName implements ports.OAuthOperationsProvider.
func (p *OIDCProvider) InvariantName() string { return OIDCProviderName }

// Configure implements ports.OAuthOperationsProvider. Discovery is deferred
// to first use so that configuring a target never blocks on the network.
func (p *OIDCProvider) Configure(settings ports.ProviderSettings) error {
	issuer := settings.AdditionalParams[ParamIssuerURL]
	if issuer == "" {
		return errors.New("oidc provider requires an issuer parameter")
	}
	issuer = strings.TrimSuffix(issuer, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")

	p.settings = settings
	p.issuer = issuer
	p.configured = true
	return nil
}

func (p *OIDCProvider) provider(ctx context.Context) (*gooidc.Provider, error) {
	if p.op != nil {
		return p.op, nil
	}
	ctx = gooidc.ClientContext(ctx, p.httpClient)
	op, err := gooidc.NewProvider(ctx, p.issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %q: %w", p.issuer, err)
	}
	p.op = op
	return op, nil
}

// ExchangeCode trades the authorization code for tokens at the discovered
// token endpoint.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, in ports.ExchangeCodeInput) (model.TokenIssuingResult, error) {
	if !p.configured {
		return model.TokenIssuingResult{}, errors.New("provider is not configured")
	}

	op, err := p.provider(ctx)
	if err != nil {
		return model.TokenIssuingResult{}, err
	}

	conf := &oauth2.Config{
		ClientID:     in.ClientID,
		ClientSecret: in.ClientSecret,
		RedirectURL:  in.RedirectURI,
		Endpoint:     op.Endpoint(),
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := conf.Exchange(ctx, in.Code)
	if err != nil {
		return model.TokenIssuingResult{}, fmt.Errorf("exchange code at %q: %w", p.settings.DisplayLabel, err)
	}

	return tokenToResult(token), nil
}

// ResolveSubject prefers the verified id_token subject when one was issued
// and falls back to the userinfo endpoint.
func (p *OIDCProvider) ResolveSubject(ctx context.Context, accessToken, idToken string) (ports.SubjectResolution, error) {
	if !p.configured {
		return ports.SubjectResolution{}, errors.New("provider is not configured")
	}

	op, err := p.provider(ctx)
	if err != nil {
		return ports.SubjectResolution{}, err
	}

	if p.settings.RequestIDToken && idToken != "" {
		if resolution, verifyErr := p.resolveFromIDToken(ctx, op, idToken); verifyErr == nil {
			return resolution, nil
		}
		// Fall through to userinfo; a bad id_token alone does not fail the tier.
	}

	ui, err := op.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return ports.SubjectResolution{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	if ui.Subject == "" {
		return ports.SubjectResolution{}, errors.New("userinfo response has no subject")
	}

	var claims map[string]any
	if err := ui.Claims(&claims); err != nil {
		claims = nil
	}
	return ports.SubjectResolution{Subject: ui.Subject, Claims: claims}, nil
}

func (p *OIDCProvider) resolveFromIDToken(ctx context.Context, op *gooidc.Provider, idToken string) (ports.SubjectResolution, error) {
	// The client id is not known at configure time; skip the audience check
	// and rely on signature plus issuer validation.
	verifier := op.Verifier(&gooidc.Config{SkipClientIDCheck: true})
	verified, err := verifier.Verify(ctx, idToken)
	if err != nil {
		return ports.SubjectResolution{}, fmt.Errorf("verify id_token: %w", err)
	}

	var claims map[string]any
	if err := verified.Claims(&claims); err != nil {
		claims = nil
	}
	return ports.SubjectResolution{Subject: verified.Subject, Claims: claims}, nil
}
