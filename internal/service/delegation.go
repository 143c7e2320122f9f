package service

import (
	"context"
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"

	"github.com/universalbff/user-api/internal/domain/model"
	apperrors "github.com/universalbff/user-api/internal/errors"
	"github.com/universalbff/user-api/internal/ports"
	"github.com/universalbff/user-api/internal/snowflake"
)

// pendingDelegationPrefix marks a session awaiting a delegated return. The
// remainder of the value is the target UID.
const pendingDelegationPrefix = "=>"

// DelegationDirective tells the caller where to send the user for a
// delegated login.
type DelegationDirective struct {
	TargetAuthorizeURL string
	TargetClientID     string
	AnonymousSessionID string
}

// DelegationRequired decides whether a login for the given client id must be
// delegated to an external provider. When it must, a pending anonymous
// session is minted to anchor the redirect round trip. Unknown client ids
// and local targets proceed with local authentication.
func (s *UserService) DelegationRequired(ctx context.Context, clientID string) (bool, *DelegationDirective, error) {
	target, err := s.resolveTarget(ctx, clientID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if target.IsLocalProvider || (target.AuthURL != "" && target.AuthURL == s.cfg.ProxyAuthURL) {
		return false, nil, nil
	}

	id := s.mintSession(pendingDelegationPrefix + strconv.FormatInt(target.UID, 10))
	s.count("delegation.begun")
	return true, &DelegationDirective{
		TargetAuthorizeURL: target.AuthURL,
		TargetClientID:     target.ClientID,
		AnonymousSessionID: id.String(),
	}, nil
}

// CompleteDelegation handles the delegated return: it exchanges the
// authorization code at the pending session's target and overwrites the
// session value with the resolved identity. A false return means the login
// attempt is rejected; the session is left for natural expiry and the user
// must restart.
func (s *UserService) CompleteDelegation(ctx context.Context, code, sessionID, redirectURI string) bool {
	id, ok := snowflake.Parse(sessionID)
	if !ok {
		return false
	}
	value, ok := s.sessions.Get(id)
	if !ok {
		return false
	}
	targetUID, ok := strings.CutPrefix(value, pendingDelegationPrefix)
	if !ok {
		return false
	}
	uid, err := strconv.ParseInt(targetUID, 10, 64)
	if err != nil {
		return false
	}

	target, err := s.targets.GetByUID(ctx, uid)
	if err != nil {
		s.logger.Error("delegated return: target lookup failed", "target_uid", uid, "error", err)
		return false
	}
	provider, err := s.providers.ProviderFor(target)
	if err != nil {
		s.logger.Error("delegated return: provider resolution failed", "target", target.DisplayLabel, "error", err)
		return false
	}

	result, err := provider.ExchangeCode(ctx, ports.ExchangeCodeInput{
		Code:         code,
		ClientID:     target.ClientID,
		ClientSecret: target.ClientSecret,
		RedirectURI:  redirectURI,
	})
	if err != nil || result.Failed() {
		s.logger.Warn("delegated return: code exchange rejected",
			"target", target.DisplayLabel, "error", err, "provider_error", result.Error)
		s.count("delegation.exchange_rejected")
		return false
	}

	identity, subject := s.resolveDelegatedIdentity(ctx, provider, target, result.AccessToken, result.IDToken)
	if !s.sessions.Replace(id, identity) {
		// Session expired while the exchange was in flight.
		return false
	}

	s.recordDelegatedIdentity(ctx, target, subject)
	s.count("delegation.completed")
	return true
}

// resolveDelegatedIdentity maps the exchanged tokens onto an internal
// identity string. Tiers, in preference order: the provider's own subject
// resolution, non-validating introspection of the access token, and finally
// a synthesized provisional identity from the token hash. The last tier
// never fails, trading precision for availability.
func (s *UserService) resolveDelegatedIdentity(
	ctx context.Context,
	provider ports.OAuthOperationsProvider,
	target *model.OAuthProxyTarget,
	accessToken, idToken string,
) (identity, subject string) {
	// The provider's invariant name, not the row's provider_name, qualifies
	// the identity: the two differ when the registry fell back to the generic
	// implementation.
	providerName := provider.InvariantName()

	if resolution, err := provider.ResolveSubject(ctx, accessToken, idToken); err == nil && resolution.Subject != "" {
		subject = resolution.Subject
		return fmt.Sprintf("%s@%s-%d", subject, providerName, target.UID), subject
	}

	if active, claims, err := s.fallback.Introspect(accessToken); err == nil && active {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return fmt.Sprintf("%s@%s-%d", sub, providerName, target.UID), sub
		}
	}

	subject = fmt.Sprintf("TEMP_%X", md5.Sum([]byte(accessToken)))
	return fmt.Sprintf("%s@%s.%d", subject, providerName, target.UID), subject
}

// recordDelegatedIdentity refreshes the read-side identity records for a
// completed delegated login. Failures are logged, not surfaced; the login
// itself already succeeded.
func (s *UserService) recordDelegatedIdentity(ctx context.Context, target *model.OAuthProxyTarget, subject string) {
	identity := &model.CachedUserIdentity{
		OriginUID:             target.UID,
		OriginSpecificSubject: subject,
		CachedDisplayName:     subject,
		PermittedScopes:       ScopeRead,
	}
	if err := s.identities.UpsertCachedIdentity(ctx, identity); err != nil {
		s.logger.Warn("cached identity upsert failed", "target", target.DisplayLabel, "error", err)
		return
	}
	leg := &model.KnownUserLegitimation{
		OriginUID:             target.UID,
		OriginSpecificSubject: subject,
		TenantUID:             target.TenantUID,
		RoleName:              DefaultRoleName,
	}
	if err := s.identities.CreateLegitimation(ctx, leg); err != nil {
		s.logger.Warn("legitimation insert failed", "target", target.DisplayLabel, "error", err)
	}
}
