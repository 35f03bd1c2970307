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

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, subject, COALESCE(body,''), COALESCE(from_name,''),
		       COALESCE(from_email,''), COALESCE(reply_to,''), status, sent_at,
		       created_at, updated_at
		FROM campaigns
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Subject, &c.Body, &c.FromName,
		&c.FromEmail, &c.ReplyTo, &c.Status, &c.SentAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "campaign", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, tenant_id, name, subject, body, from_name, from_email, reply_to,
			 status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, c.ID, c.TenantID, c.Name, c.Subject, c.Body,
		c.FromName, c.FromEmail, c.ReplyTo, string(c.Status))
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $3, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, string(status))
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: "campaign", ID: id}
	}
	return nil
}

func (r *CampaignRepo) Complete(ctx context.Context, tenantID, id string, status domain.CampaignStatus, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $3, sent_at = $4, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, string(status), sentAt)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	return nil
}

// ListStalled returns scheduled or sending campaigns with pending
// recipients that have not been updated since before.
func (r *CampaignRepo) ListStalled(ctx context.Context, before time.Time) ([]domain.CampaignRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.tenant_id, c.id
		FROM campaigns c
		WHERE c.status IN ('scheduled', 'sending')
		  AND c.updated_at < $1
		  AND EXISTS (
			SELECT 1 FROM campaign_recipients cr
			WHERE cr.campaign_id = c.id AND cr.status = 'pending'
		  )
		ORDER BY c.updated_at
		LIMIT 100
	`, before)
	if err != nil {
		return nil, fmt.Errorf("list stalled campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignRef
	for rows.Next() {
		var ref domain.CampaignRef
		if err := rows.Scan(&ref.TenantID, &ref.CampaignID); err != nil {
			return nil, fmt.Errorf("scan stalled campaign: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// RecipientRepo implements campaign.RecipientRepository. Every mark
// statement is guarded by status = 'pending'.
type RecipientRepo struct{ db *sql.DB }

func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// CreateBatch inserts all recipients in one statement. They must share one
// campaign and tenant. Existing (campaign, contact) pairs are skipped.
func (r *RecipientRepo) CreateBatch(ctx context.Context, rs []domain.CampaignRecipient) (int, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(rs))
	contacts := make([]string, len(rs))
	tokens := make([]string, len(rs))
	for i, rc := range rs {
		if rc.CampaignID != rs[0].CampaignID || rc.TenantID != rs[0].TenantID {
			return 0, fmt.Errorf("create recipients: mixed campaigns in one batch")
		}
		ids[i], contacts[i], tokens[i] = rc.ID, rc.ContactID, rc.UnsubscribeToken
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_recipients
			(id, campaign_id, contact_id, tenant_id, status, unsubscribe_token, created_at)
		SELECT u.id, $1, u.contact_id, $2, 'pending', u.token, $3
		FROM unnest($4::uuid[], $5::uuid[], $6::text[]) AS u(id, contact_id, token)
		ON CONFLICT (campaign_id, contact_id) DO NOTHING
	`, rs[0].CampaignID, rs[0].TenantID, rs[0].CreatedAt,
		pq.Array(ids), pq.Array(contacts), pq.Array(tokens))
	if err != nil {
		return 0, fmt.Errorf("create recipients: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("create recipients: %w", err)
	}
	return int(n), nil
}

const recipientColumns = `id, campaign_id, contact_id, tenant_id, status, sent_at,
       COALESCE(error_message,''), unsubscribe_token, created_at`

func scanRecipient(row interface{ Scan(...any) error }) (*domain.CampaignRecipient, error) {
	rc := &domain.CampaignRecipient{}
	err := row.Scan(&rc.ID, &rc.CampaignID, &rc.ContactID, &rc.TenantID, &rc.Status,
		&rc.SentAt, &rc.ErrorMessage, &rc.UnsubscribeToken, &rc.CreatedAt)
	return rc, err
}

func (r *RecipientRepo) ListPending(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recipientColumns+`
		FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY created_at, id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list pending recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignRecipient
	for rows.Next() {
		rc, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rc)
	}
	return out, rows.Err()
}

func (r *RecipientRepo) GetByToken(ctx context.Context, token string) (*domain.CampaignRecipient, error) {
	rc, err := scanRecipient(r.db.QueryRowContext(ctx, `
		SELECT `+recipientColumns+`
		FROM campaign_recipients
		WHERE unsubscribe_token = $1
	`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "recipient"}
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient by token: %w", err)
	}
	return rc, nil
}

func (r *RecipientRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'sent', sent_at = $2, error_message = NULL
		WHERE id = $1 AND status = 'pending'
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark recipient sent: %w", err)
	}
	return nil
}

func (r *RecipientRepo) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'failed', error_message = $2
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("mark recipient failed: %w", err)
	}
	return nil
}

func (r *RecipientRepo) MarkSkipped(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'skipped_unsubscribed'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark recipient skipped: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RecipientRepo) CountByStatus(ctx context.Context, campaignID string) (map[domain.RecipientStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM campaign_recipients
		WHERE campaign_id = $1
		GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count recipients: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.RecipientStatus]int)
	for rows.Next() {
		var (
			st domain.RecipientStatus
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan recipient count: %w", err)
		}
		out[st] = n
	}
	return out, rows.Err()
}

// CountFailedWithReason counts the campaign's failed recipients whose error
// message equals reason.
func (r *RecipientRepo) CountFailedWithReason(ctx context.Context, campaignID, reason string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'failed' AND error_message = $2
	`, campaignID, reason).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed recipients: %w", err)
	}
	return n, nil
}
