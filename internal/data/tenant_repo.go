package data

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"

	"github.com/universalbff/user-api/internal/data/pgxutil"
	"github.com/universalbff/user-api/internal/domain/model"
	apperrors "github.com/universalbff/user-api/internal/errors"
)

// TenantRepo provides database operations for tenant scopes and their roles.
type TenantRepo struct {
	DB *sql.DB
}

// NewTenantRepo creates a new TenantRepo.
func NewTenantRepo(db *sql.DB) *TenantRepo {
	return &TenantRepo{DB: db}
}

// AnyTenantExists reports whether at least one tenant scope row exists. Used
// as the bootstrap guard.
func (r *TenantRepo) AnyTenantExists(ctx context.Context) (bool, error) {
	var exists bool
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenant_scopes)`).Scan(&exists)
	})
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return exists, nil
}

// CreateTenant inserts a tenant scope and its roles in one transaction.
// Either all rows land or none do.
func (r *TenantRepo) CreateTenant(ctx context.Context, tenant *model.TenantScope, roles []model.Role) error {
	if tenant == nil {
		return apperrors.Validation("tenant scope is required")
	}

	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tenant_scopes (
				tenant_uid, display_label, available_portfolios, permitted_scopes, created_at
			) VALUES ($1, $2, $3, $4, now())`,
			tenant.TenantUID,
			tenant.DisplayLabel,
			tenant.AvailablePortfolios,
			tenant.PermittedScopes,
		); err != nil {
			return err
		}
		for i := range roles {
			role := &roles[i]
			if err := tx.QueryRow(ctx, `
				INSERT INTO roles (
					tenant_uid, role_name, descriptive_label, is_default_for_new_users, permitted_scopes
				) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				tenant.TenantUID,
				role.RoleName,
				role.DescriptiveLabel,
				role.IsDefaultForNewUsers,
				role.PermittedScopes,
			).Scan(&role.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}
