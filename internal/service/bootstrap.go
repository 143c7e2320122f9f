package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/universalbff/user-api/internal/domain/model"
)

// Bootstrap defaults. The tenant UID is a fixed well-known value so
// replicas bootstrapping concurrently collide on the primary key instead of
// creating duplicate tenants.
const (
	DefaultTenantUID    int64 = 1111111111111111111
	DefaultTenantLabel        = "Default"
	DefaultRoleName           = "User"
	AdminRoleName             = "Administrator"
	LocalProviderName         = "local"
)

// EnsureBootstrapState makes sure a default tenant, its roles, the
// self-referencing proxy target and a bootstrap administrator exist. It
// no-ops once any tenant scope exists and is safe to call repeatedly and
// concurrently.
func (s *UserService) EnsureBootstrapState(ctx context.Context) error {
	s.bootMu.Lock()
	defer s.bootMu.Unlock()
	if s.booted {
		return nil
	}

	exists, err := s.tenants.AnyTenantExists(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: tenant check: %w", err)
	}
	if exists {
		s.booted = true
		return nil
	}

	if err := s.createBootstrapState(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	s.booted = true
	s.logger.Info("bootstrap state created", "tenant_uid", DefaultTenantUID)
	return nil
}

func (s *UserService) createBootstrapState(ctx context.Context) error {
	tenant := &model.TenantScope{
		TenantUID:       DefaultTenantUID,
		DisplayLabel:    DefaultTenantLabel,
		PermittedScopes: ScopeRead + " " + ScopeWrite,
	}
	roles := []model.Role{
		{
			TenantUID:            DefaultTenantUID,
			RoleName:             DefaultRoleName,
			DescriptiveLabel:     "Standard user",
			IsDefaultForNewUsers: true,
			PermittedScopes:      ScopeRead,
		},
		{
			TenantUID:        DefaultTenantUID,
			RoleName:         AdminRoleName,
			DescriptiveLabel: "Administrator",
			PermittedScopes:  ScopeRead + " " + ScopeWrite,
		},
	}
	if err := s.tenants.CreateTenant(ctx, tenant, roles); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	secret, err := randomHex(16)
	if err != nil {
		return err
	}
	selfUID := int64(s.generator.Generate())
	target := &model.OAuthProxyTarget{
		UID:             selfUID,
		TenantUID:       DefaultTenantUID,
		ClientID:        strconv.FormatInt(selfUID, 10),
		ClientSecret:    secret,
		AuthURL:         s.cfg.ProxyAuthURL,
		RetrievalURL:    s.cfg.ProxyRetrievalURL,
		ProviderName:    LocalProviderName,
		DisplayLabel:    DefaultTenantLabel,
		IsLocalProvider: true,
	}
	if err := s.targets.Create(ctx, target); err != nil {
		return fmt.Errorf("create self target: %w", err)
	}

	if err := s.createBootstrapAdmin(ctx, selfUID); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

// createBootstrapAdmin creates the initial administrator with unguessable
// credentials. The plaintext password is derived from the random subject id
// and a random salt and only its hash is persisted; operators reset it
// through a recovery channel rather than reading it anywhere.
func (s *UserService) createBootstrapAdmin(ctx context.Context, selfUID int64) error {
	salt, err := randomHex(8)
	if err != nil {
		return err
	}
	subjectID := int64(s.generator.Generate())
	subject := strconv.FormatInt(subjectID, 10)

	password := subject[:4] + salt
	hash, err := s.credService.PasswordHash(password)
	if err != nil {
		return err
	}

	cred := &model.LocalCredential{
		SubjectID:    subjectID,
		DisplayName:  AdminRoleName,
		EmailAddress: "admin@localhost",
		PasswordHash: hash,
		IsValidated:  true,
	}
	if err := s.credentials.Create(ctx, cred); err != nil {
		return err
	}

	identity := &model.CachedUserIdentity{
		OriginUID:             selfUID,
		OriginSpecificSubject: subject,
		CachedDisplayName:     AdminRoleName,
		CachedEmailAddress:    cred.EmailAddress,
		PermittedScopes:       ScopeRead + " " + ScopeWrite,
	}
	if err := s.identities.UpsertCachedIdentity(ctx, identity); err != nil {
		return err
	}
	leg := &model.KnownUserLegitimation{
		OriginUID:             selfUID,
		OriginSpecificSubject: subject,
		TenantUID:             DefaultTenantUID,
		RoleName:              AdminRoleName,
	}
	return s.identities.CreateLegitimation(ctx, leg)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
