package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/universalbff/user-api/internal/ports"
)

// Introspector validates tokens signed by the built-in issuer and exposes
// their claims RFC7662-style.
type Introspector struct {
	name       string
	signingKey []byte
}

var _ ports.TokenIntrospector = (*Introspector)(nil)

// NewIntrospector constructs a validating introspector for tokens signed with
// the given key.
func NewIntrospector(name string, signingKey []byte) (*Introspector, error) {
	if name == "" {
		return nil, errors.New("introspector name is required")
	}
	if len(signingKey) == 0 {
		return nil, errors.New("signing key is required")
	}
	return &Introspector{name: name, signingKey: signingKey}, nil
}

// IntrospectorName implements ports.TokenIntrospector.
func (i *Introspector) IntrospectorName() string { return i.name }

// Introspect parses and validates the token. Invalid or expired tokens are
// not an error condition; they report active=false.
func (i *Introspector) Introspect(rawToken string) (bool, map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.signingKey, nil
	})
	if err != nil {
		return false, nil, nil
	}
	return true, map[string]any(claims), nil
}

// UnverifiedIntrospector extracts claims without validating the signature.
// It exists solely for the delegation fallback tier, where a remote
// provider's opaque access token might happen to be a self-contained JWT
// whose "sub" claim identifies the subject.
type UnverifiedIntrospector struct{}

var _ ports.TokenIntrospector = (*UnverifiedIntrospector)(nil)

// IntrospectorName implements ports.TokenIntrospector.
func (UnverifiedIntrospector) IntrospectorName() string { return "jwt-unverified" }

// Introspect parses the token without signature validation. A parse failure
// is returned as an error so callers can distinguish "not a JWT" from "JWT
// without claims".
func (UnverifiedIntrospector) Introspect(rawToken string) (bool, map[string]any, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(rawToken, claims); err != nil {
		return false, nil, fmt.Errorf("parse unverified token: %w", err)
	}
	// Active is reported true because no validation was attempted; callers
	// must not treat this as proof of validity.
	return true, map[string]any(claims), nil
}
