// Package oauthops provides OAuth operations providers, one per supported
// identity-provider family, plus the registry that resolves and configures
// them per proxy target.
package oauthops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"

	"github.com/universalbff/user-api/internal/domain/model"
	"github.com/universalbff/user-api/internal/ports"
)

// GenericProviderName is the invariant name of the standards-compliant
// fallback provider.
const GenericProviderName = "generic"

// Additional-parameter keys understood by the generic provider. They are
// stored per target in OAuthProxyTarget.AdditionalParams.
const (
	// ParamUserinfoURL is the subject-resolution endpoint. Without it the
	// provider cannot resolve subjects and that tier fails over to
	// introspection.
	ParamUserinfoURL = "userinfo_url"
	// ParamSubjectPath is a JMESPath expression selecting the subject from
	// the userinfo response. Defaults to "sub".
	ParamSubjectPath = "subject_path"
	// ParamScopesPath is a JMESPath expression selecting granted scopes from
	// the userinfo response. Optional.
	ParamScopesPath = "scopes_path"
)

// GenericProvider implements the plain OAuth2 authorization-code exchange
// against any standards-compliant provider, with configurable claim
// extraction for subject resolution.
type GenericProvider struct {
	settings   ports.ProviderSettings
	httpClient *http.Client
	configured bool
}

var _ ports.OAuthOperationsProvider = (*GenericProvider)(nil)

// NewGenericProvider constructs an unconfigured GenericProvider.
func NewGenericProvider() *GenericProvider {
	return &GenericProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// InvariantName implements ports.OAuthOperationsProvider.
func (p *GenericProvider) InvariantName() string { return GenericProviderName }

// Configure implements ports.OAuthOperationsProvider.
func (p *GenericProvider) Configure(settings ports.ProviderSettings) error {
	if settings.RetrievalURL == "" {
		return errors.New("retrieval URL is required")
	}
	p.settings = settings
	p.configured = true
	return nil
}

// ExchangeCode trades the authorization code for tokens at the target's
// retrieval endpoint.
func (p *GenericProvider) ExchangeCode(ctx context.Context, in ports.ExchangeCodeInput) (model.TokenIssuingResult, error) {
	if !p.configured {
		return model.TokenIssuingResult{}, errors.New("provider is not configured")
	}
	if in.Code == "" {
		return model.TokenIssuingResult{}, errors.New("authorization code is required")
	}

	conf := &oauth2.Config{
		ClientID:     in.ClientID,
		ClientSecret: in.ClientSecret,
		RedirectURL:  in.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.settings.AuthorizeURL,
			TokenURL: p.settings.RetrievalURL,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := conf.Exchange(ctx, in.Code)
	if err != nil {
		return model.TokenIssuingResult{}, fmt.Errorf("exchange code at %q: %w", p.settings.DisplayLabel, err)
	}

	return tokenToResult(token), nil
}

// ResolveSubject fetches the configured userinfo endpoint and extracts the
// subject (and optionally scopes) via JMESPath expressions.
func (p *GenericProvider) ResolveSubject(ctx context.Context, accessToken, _ string) (ports.SubjectResolution, error) {
	if !p.configured {
		return ports.SubjectResolution{}, errors.New("provider is not configured")
	}

	userinfoURL := p.settings.AdditionalParams[ParamUserinfoURL]
	if userinfoURL == "" {
		return ports.SubjectResolution{}, errors.New("no userinfo endpoint configured")
	}

	claims, err := p.fetchUserinfo(ctx, userinfoURL, accessToken)
	if err != nil {
		return ports.SubjectResolution{}, err
	}

	subjectPath := p.settings.AdditionalParams[ParamSubjectPath]
	if subjectPath == "" {
		subjectPath = "sub"
	}
	subject, err := searchString(subjectPath, claims)
	if err != nil || subject == "" {
		return ports.SubjectResolution{}, fmt.Errorf("subject not present at %q", subjectPath)
	}

	resolution := ports.SubjectResolution{Subject: subject, Claims: claims}
	if scopesPath := p.settings.AdditionalParams[ParamScopesPath]; scopesPath != "" {
		resolution.Scopes = searchStrings(scopesPath, claims)
	}
	return resolution, nil
}

func (p *GenericProvider) fetchUserinfo(ctx context.Context, url, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo response: %w", err)
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("decode userinfo response: %w", err)
	}
	return claims, nil
}

// searchString evaluates a JMESPath expression expecting a string result.
func searchString(path string, data map[string]any) (string, error) {
	v, err := jmespath.Search(path, data)
	if err != nil {
		return "", fmt.Errorf("jmespath %q: %w", path, err)
	}
	s, ok := v.(string)
	if !ok {
		return "", nil
	}
	return s, nil
}

// searchStrings evaluates a JMESPath expression expecting a string list.
// A space-separated scope string is also accepted.
func searchStrings(path string, data map[string]any) []string {
	v, err := jmespath.Search(path, data)
	if err != nil || v == nil {
		return nil
	}
	switch typed := v.(type) {
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return splitScopes(typed)
	default:
		return nil
	}
}

func tokenToResult(token *oauth2.Token) model.TokenIssuingResult {
	result := model.TokenIssuingResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		result.IDToken = idToken
	}
	if !token.Expiry.IsZero() {
		result.ExpiresIn = int64(time.Until(token.Expiry).Seconds())
	}
	return result
}
