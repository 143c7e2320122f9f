package data

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"

	"github.com/universalbff/user-api/internal/data/pgxutil"
	"github.com/universalbff/user-api/internal/domain/model"
	apperrors "github.com/universalbff/user-api/internal/errors"
)

// IdentityRepo provides database operations for cached user identities and
// their role assignments.
type IdentityRepo struct {
	DB *sql.DB
}

// NewIdentityRepo creates a new IdentityRepo.
func NewIdentityRepo(db *sql.DB) *IdentityRepo {
	return &IdentityRepo{DB: db}
}

// UpsertCachedIdentity inserts or refreshes the denormalized identity record
// for an (origin, subject) pair. Display metadata and the last-logon stamp
// are overwritten on every successful login.
func (r *IdentityRepo) UpsertCachedIdentity(ctx context.Context, identity *model.CachedUserIdentity) error {
	if identity == nil {
		return apperrors.Validation("identity is required")
	}
	if identity.OriginSpecificSubject == "" {
		return apperrors.ValidationField("origin_specific_subject", "subject is required")
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO cached_user_identities (
				origin_uid, origin_specific_subject, cached_display_name, cached_email_address,
				permitted_scopes, disabled, last_logon_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT (origin_uid, origin_specific_subject) DO UPDATE SET
				cached_display_name  = EXCLUDED.cached_display_name,
				cached_email_address = EXCLUDED.cached_email_address,
				permitted_scopes     = EXCLUDED.permitted_scopes,
				last_logon_at        = now()
			RETURNING origin_uid, origin_specific_subject, cached_display_name, cached_email_address,
				permitted_scopes, disabled, last_logon_at, created_at`,
			identity.OriginUID,
			identity.OriginSpecificSubject,
			identity.CachedDisplayName,
			identity.CachedEmailAddress,
			identity.PermittedScopes,
			identity.Disabled,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.CachedUserIdentity])
		if err != nil {
			return err
		}
		*identity = out
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// CreateLegitimation assigns a cached identity to a tenant role. Re-assigning
// an existing (identity, tenant, role) triple is a no-op rather than an error.
func (r *IdentityRepo) CreateLegitimation(ctx context.Context, leg *model.KnownUserLegitimation) error {
	if leg == nil {
		return apperrors.Validation("legitimation is required")
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `
			INSERT INTO known_user_legitimations (
				origin_uid, origin_specific_subject, tenant_uid, role_name
			) VALUES ($1, $2, $3, $4)
			ON CONFLICT (origin_uid, origin_specific_subject, tenant_uid, role_name)
				DO UPDATE SET role_name = EXCLUDED.role_name
			RETURNING id`,
			leg.OriginUID,
			leg.OriginSpecificSubject,
			leg.TenantUID,
			leg.RoleName,
		).Scan(&leg.ID)
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}
