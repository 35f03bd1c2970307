package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sassongal/revWave-sub000/internal/domain"
)

// IntegrationRepo implements token.Repository, reviewsync.IntegrationStore
// and sending.IntegrationLookup.
type IntegrationRepo struct{ db *sql.DB }

func NewIntegrationRepo(db *sql.DB) *IntegrationRepo { return &IntegrationRepo{db: db} }

const integrationColumns = `id, tenant_id, provider, status, COALESCE(access_token,''), COALESCE(refresh_token,''),
       token_expiry, scopes, metadata, last_sync_at, created_at, updated_at`

func (r *IntegrationRepo) Get(ctx context.Context, tenantID string, provider domain.Provider) (*domain.Integration, error) {
	in := &domain.Integration{}
	var (
		scopes pq.StringArray
		meta   []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT `+integrationColumns+`
		FROM integrations
		WHERE tenant_id = $1 AND provider = $2
	`, tenantID, string(provider)).Scan(
		&in.ID, &in.TenantID, &in.Provider, &in.Status, &in.AccessToken, &in.RefreshToken,
		&in.TokenExpiry, &scopes, &meta, &in.LastSyncAt, &in.CreatedAt, &in.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "integration", ID: tenantID + "/" + string(provider)}
	}
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	in.Scopes = []string(scopes)
	if in.Metadata, err = decodeMeta(meta); err != nil {
		return nil, err
	}
	return in, nil
}

// Upsert writes the integration keyed by (tenant_id, provider).
func (r *IntegrationRepo) Upsert(ctx context.Context, in *domain.Integration) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	meta, err := encodeMeta(in.Metadata)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO integrations
			(id, tenant_id, provider, status, access_token, refresh_token,
			 token_expiry, scopes, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			status = EXCLUDED.status,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			scopes = EXCLUDED.scopes,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`, in.ID, in.TenantID, string(in.Provider), string(in.Status),
		nullString(in.AccessToken), nullString(in.RefreshToken),
		in.TokenExpiry, pq.Array(in.Scopes), meta,
	).Scan(&in.ID)
	if err != nil {
		return fmt.Errorf("upsert integration: %w", err)
	}
	return nil
}

// UpdateAccessToken stores a refreshed access token. Only a connected row is
// written; false means the integration left the connected state meanwhile.
func (r *IntegrationRepo) UpdateAccessToken(ctx context.Context, tenantID string, provider domain.Provider, accessToken string, expiry *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE integrations SET access_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND provider = $2 AND status = 'connected'
	`, tenantID, string(provider), accessToken, expiry)
	if err != nil {
		return false, fmt.Errorf("update access token: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkError moves a connected integration to the error status. Rows in any
// other status are left alone and reported as false.
func (r *IntegrationRepo) MarkError(ctx context.Context, tenantID string, provider domain.Provider) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE integrations SET status = 'error', updated_at = NOW()
		WHERE tenant_id = $1 AND provider = $2 AND status = 'connected'
	`, tenantID, string(provider))
	if err != nil {
		return false, fmt.Errorf("mark integration error: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *IntegrationRepo) TouchLastSync(ctx context.Context, integrationID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integrations SET last_sync_at = $2, updated_at = NOW() WHERE id = $1
	`, integrationID, at)
	if err != nil {
		return fmt.Errorf("touch last sync: %w", err)
	}
	return nil
}

// ListConnected returns the tenant ids with a connected integration for
// provider, oldest sync first.
func (r *IntegrationRepo) ListConnected(ctx context.Context, provider domain.Provider) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id FROM integrations
		WHERE provider = $1 AND status = 'connected'
		ORDER BY last_sync_at NULLS FIRST, tenant_id
	`, string(provider))
	if err != nil {
		return nil, fmt.Errorf("list connected integrations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
