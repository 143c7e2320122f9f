// Package jwtx provides the built-in token issuer and introspectors backed by
// HMAC-signed JWTs.
package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/universalbff/user-api/internal/domain/model"
	"github.com/universalbff/user-api/internal/ports"
)

// DefaultTokenTTL is the lifetime of internally minted access tokens.
const DefaultTokenTTL = time.Hour

// IssuerConfig holds configuration for the built-in issuer.
type IssuerConfig struct {
	// Name identifies this issuer and becomes the "iss" claim.
	Name string
	// SigningKey is the HS256 secret.
	SigningKey []byte
	// TokenTTL defaults to DefaultTokenTTL when zero.
	TokenTTL time.Duration
}

// Issuer mints HS256-signed access tokens bound to an internal identity.
type Issuer struct {
	name       string
	signingKey []byte
	tokenTTL   time.Duration
	now        func() time.Time
}

var _ ports.TokenIssuer = (*Issuer)(nil)

// NewIssuer constructs an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Name == "" {
		return nil, errors.New("issuer name is required")
	}
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		name:       cfg.Name,
		signingKey: cfg.SigningKey,
		tokenTTL:   ttl,
		now:        time.Now,
	}, nil
}

// IssuerName implements ports.TokenIssuer.
func (i *Issuer) IssuerName() string { return i.name }

// IssueToken mints an access token for the given subject and scopes.
func (i *Issuer) IssueToken(in ports.IssueTokenInput) (model.TokenIssuingResult, error) {
	if in.Subject == "" {
		return model.TokenIssuingResult{}, errors.New("subject is required")
	}

	now := i.now()
	claims := jwt.MapClaims{
		"iss":   i.name,
		"sub":   in.Subject,
		"iat":   now.Unix(),
		"exp":   now.Add(i.tokenTTL).Unix(),
		"scope": strings.Join(in.Scopes, " "),
	}
	if in.Audience != "" {
		claims["aud"] = in.Audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return model.TokenIssuingResult{}, fmt.Errorf("sign token: %w", err)
	}

	return model.TokenIssuingResult{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(i.tokenTTL.Seconds()),
	}, nil
}
