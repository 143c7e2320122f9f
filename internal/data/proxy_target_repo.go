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

const proxyTargetColumns = `uid, tenant_uid, client_id, client_secret, auth_url, retrieval_url,
		provider_name, display_label, is_local_provider, additional_params, created_at`

// ProxyTargetRepo provides database operations for configured OAuth proxy
// targets.
type ProxyTargetRepo struct {
	DB *sql.DB
}

// NewProxyTargetRepo creates a new ProxyTargetRepo.
func NewProxyTargetRepo(db *sql.DB) *ProxyTargetRepo {
	return &ProxyTargetRepo{DB: db}
}

// GetByUID retrieves a proxy target by its numeric UID.
func (r *ProxyTargetRepo) GetByUID(ctx context.Context, uid int64) (*model.OAuthProxyTarget, error) {
	return r.getByQuery(ctx, `SELECT `+proxyTargetColumns+` FROM oauth_proxy_targets WHERE uid = $1`, uid)
}

// GetByClientID retrieves a proxy target by its OAuth client identifier.
func (r *ProxyTargetRepo) GetByClientID(ctx context.Context, clientID string) (*model.OAuthProxyTarget, error) {
	return r.getByQuery(ctx, `SELECT `+proxyTargetColumns+` FROM oauth_proxy_targets WHERE client_id = $1`, clientID)
}

// Create inserts a new proxy target. The caller supplies the UID.
func (r *ProxyTargetRepo) Create(ctx context.Context, target *model.OAuthProxyTarget) error {
	if target == nil {
		return apperrors.Validation("proxy target is required")
	}
	if strings.TrimSpace(target.ClientID) == "" {
		return apperrors.ValidationField("client_id", "client_id is required")
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO oauth_proxy_targets (
				uid, tenant_uid, client_id, client_secret, auth_url, retrieval_url,
				provider_name, display_label, is_local_provider, additional_params, created_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now()
			) RETURNING `+proxyTargetColumns,
			target.UID,
			target.TenantUID,
			target.ClientID,
			target.ClientSecret,
			target.AuthURL,
			target.RetrievalURL,
			target.ProviderName,
			target.DisplayLabel,
			target.IsLocalProvider,
			target.AdditionalJSON,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.OAuthProxyTarget])
		if err != nil {
			return err
		}
		*target = out
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

func (r *ProxyTargetRepo) getByQuery(ctx context.Context, query string, arg any) (*model.OAuthProxyTarget, error) {
	var out model.OAuthProxyTarget
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.OAuthProxyTarget])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}
