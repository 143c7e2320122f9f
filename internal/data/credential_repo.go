package data

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/universalbff/user-api/internal/data/pgxutil"
	"github.com/universalbff/user-api/internal/domain/model"
	apperrors "github.com/universalbff/user-api/internal/errors"
)

const credentialColumns = `subject_id, display_name, email_address, password_hash, is_validated, created_at`

// CredentialRepo provides database operations for local username/password
// credentials.
type CredentialRepo struct {
	DB *sql.DB
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{DB: db}
}

// GetByLogin retrieves a credential by its login name. Logins are matched
// case-insensitively against the email address.
func (r *CredentialRepo) GetByLogin(ctx context.Context, login string) (*model.LocalCredential, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, apperrors.ValidationField("login", "login is required")
	}

	var out model.LocalCredential
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+credentialColumns+`
			FROM local_credentials
			WHERE lower(email_address) = lower($1) OR display_name = $1`,
			login,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.LocalCredential])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Create inserts a new local credential. The caller supplies the subject ID
// and the already-hashed password.
func (r *CredentialRepo) Create(ctx context.Context, cred *model.LocalCredential) error {
	if cred == nil {
		return apperrors.Validation("credential is required")
	}
	if cred.PasswordHash == "" {
		return apperrors.ValidationField("password_hash", "password hash is required")
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO local_credentials (
				subject_id, display_name, email_address, password_hash, is_validated, created_at
			) VALUES ($1, $2, $3, $4, $5, now())
			RETURNING `+credentialColumns,
			cred.SubjectID,
			cred.DisplayName,
			cred.EmailAddress,
			cred.PasswordHash,
			cred.IsValidated,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.LocalCredential])
		if err != nil {
			return err
		}
		*cred = out
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}
