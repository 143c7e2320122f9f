package oauthops

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/universalbff/user-api/internal/domain/model"
	"github.com/universalbff/user-api/internal/ports"
)

// Per-target behavior flags read from OAuthProxyTarget.AdditionalParams.
const (
	// ParamSupportsIframe marks a target whose authorize page may be framed.
	// Defaults to true.
	ParamSupportsIframe = "supports_iframe"
	// ParamRequestIDToken asks the provider to prefer the id_token subject
	// over the userinfo endpoint. Defaults to false.
	ParamRequestIDToken = "request_id_token"
)

// Factory creates a fresh, unconfigured operations provider.
type Factory func() ports.OAuthOperationsProvider

// Registry resolves operations providers by invariant name. Providers are
// registered explicitly at startup; unknown names fall back to the generic
// standards-compliant implementation.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a Registry with the built-in providers registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(GenericProviderName, func() ports.OAuthOperationsProvider { return NewGenericProvider() })
	r.Register(OIDCProviderName, func() ports.OAuthOperationsProvider { return NewOIDCProvider() })
	return r
}

// Register adds or replaces a provider factory under the given invariant name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

// ProviderFor constructs and configures an operations provider for the given
// target. The returned instance is ready for use and not shared.
func (r *Registry) ProviderFor(target *model.OAuthProxyTarget) (ports.OAuthOperationsProvider, error) {
	if target == nil {
		return nil, fmt.Errorf("proxy target is required")
	}

	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(target.ProviderName)]
	r.mu.RUnlock()
	if !ok {
		factory = func() ports.OAuthOperationsProvider { return NewGenericProvider() }
	}

	provider := factory()
	params := target.AdditionalParams()
	err := provider.Configure(ports.ProviderSettings{
		DisplayLabel:     target.DisplayLabel,
		AuthorizeURL:     target.AuthURL,
		RetrievalURL:     target.RetrievalURL,
		SupportsIframe:   paramBool(params, ParamSupportsIframe, true),
		RequestIDToken:   paramBool(params, ParamRequestIDToken, false),
		AdditionalParams: params,
	})
	if err != nil {
		return nil, fmt.Errorf("configure provider %q for target %d: %w", provider.InvariantName(), target.UID, err)
	}
	return provider, nil
}

// paramBool reads an optional boolean flag from the target's extra parameter
// map. Absent or unparseable values keep the default.
func paramBool(params map[string]string, key string, def bool) bool {
	raw, ok := params[key]
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}
