// Package localcred implements the local username/password credential service
// used when a login is not delegated to a remote provider.
package localcred

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/universalbff/user-api/internal/errors"
	"github.com/universalbff/user-api/internal/ports"
)

// Service authenticates against the local_credentials table using bcrypt.
type Service struct {
	credentials ports.CredentialRepository
}

var _ ports.CredentialService = (*Service)(nil)

// NewService constructs a Service. Panics on a nil repository; this is a
// wiring error, not a runtime condition.
func NewService(credentials ports.CredentialRepository) *Service {
	if credentials == nil {
		panic("localcred: credential repository is required")
	}
	return &Service{credentials: credentials}
}

// Authenticate checks the login/password pair. An unknown login and a wrong
// password produce the same caller-visible message to prevent enumeration.
func (s *Service) Authenticate(ctx context.Context, login, password string) (bool, string, error) {
	if login == "" || password == "" {
		return false, "Login and password are required", nil
	}

	cred, err := s.credentials.GetByLogin(ctx, login)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeNotFound {
			return false, "Invalid login or password", nil
		}
		return false, "", fmt.Errorf("lookup credential: %w", err)
	}

	if !cred.IsValidated {
		return false, "Account is not validated", nil
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return false, "Invalid login or password", nil
	}

	return true, "OK", nil
}

// PasswordHash derives the stored bcrypt hash for a plaintext password.
func (s *Service) PasswordHash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
