package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sassongal/revWave-sub000/internal/domain"
)

// ContactRepo implements campaign.ContactRepository. Consent is checked in
// SQL so a revoked contact never leaves the database on the send path.
type ContactRepo struct{ db *sql.DB }

func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `id, tenant_id, email, COALESCE(first_name,''), COALESCE(last_name,''),
       consent_status, consent_updated_at, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := row.Scan(&c.ID, &c.TenantID, &c.Email, &c.FirstName, &c.LastName,
		&c.ConsentStatus, &c.ConsentUpdatedAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *ContactRepo) ListGranted(ctx context.Context, tenantID string, ids []string) ([]domain.Contact, error) {
	q := `SELECT ` + contactColumns + `
		FROM contacts
		WHERE tenant_id = $1 AND consent_status = 'granted'`
	args := []interface{}{tenantID}
	if len(ids) > 0 {
		q += ` AND id = ANY($2::uuid[])`
		args = append(args, pq.Array(ids))
	}
	q += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list granted contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ContactRepo) Get(ctx context.Context, tenantID, id string) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "contact", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// Revoke flips granted consent to revoked and reports whether it did.
func (r *ContactRepo) Revoke(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET consent_status = 'revoked', consent_updated_at = $3, updated_at = $3
		WHERE id = $1 AND tenant_id = $2 AND consent_status = 'granted'
	`, id, tenantID, at)
	if err != nil {
		return false, fmt.Errorf("revoke consent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
