package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sassongal/revWave-sub000/internal/domain"
)

// LocationRepo implements reviewsync.LocationStore.
type LocationRepo struct{ db *sql.DB }

func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

// Upsert writes the location keyed by (integration_id, external_id) and
// returns the row id.
func (r *LocationRepo) Upsert(ctx context.Context, loc *domain.Location) (string, error) {
	meta, err := encodeMeta(loc.Metadata)
	if err != nil {
		return "", err
	}
	var id string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO locations
			(id, tenant_id, integration_id, external_id, name, address, phone, website,
			 metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (integration_id, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			phone = EXCLUDED.phone,
			website = EXCLUDED.website,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`, uuid.New().String(), loc.TenantID, loc.IntegrationID, loc.ExternalID,
		loc.Name, loc.Address, loc.Phone, loc.Website, meta,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert location %s: %w", loc.ExternalID, err)
	}
	loc.ID = id
	return id, nil
}

// ReviewRepo implements reviewsync.ReviewStore and reply.Repository.
type ReviewRepo struct{ db *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

// Upsert writes the review keyed by (location_id, external_id). reply_status
// is only set on insert; the reconciler owns it through SetReplyStatus.
// created is derived from xmax, which is zero only for freshly inserted rows.
func (r *ReviewRepo) Upsert(ctx context.Context, rv *domain.Review) (string, bool, error) {
	meta, err := encodeMeta(rv.Metadata)
	if err != nil {
		return "", false, err
	}
	status := rv.ReplyStatus
	if status == "" {
		status = domain.ReplyPending
	}
	var (
		id      string
		created bool
	)
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO reviews
			(id, tenant_id, location_id, external_id, rating, text, reviewer_name,
			 reviewer_avatar, published_at, reply_status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (location_id, external_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			text = EXCLUDED.text,
			reviewer_name = EXCLUDED.reviewer_name,
			reviewer_avatar = EXCLUDED.reviewer_avatar,
			published_at = EXCLUDED.published_at,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id, (xmax = 0)
	`, uuid.New().String(), rv.TenantID, rv.LocationID, rv.ExternalID, rv.Rating, rv.Text,
		rv.ReviewerName, rv.ReviewerAvatar, rv.PublishedAt, string(status), meta,
	).Scan(&id, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert review %s: %w", rv.ExternalID, err)
	}
	rv.ID = id
	return id, created, nil
}

// HasDraftReply reports whether the latest reply of the review is a draft.
func (r *ReviewRepo) HasDraftReply(ctx context.Context, reviewID string) (bool, error) {
	var draft bool
	err := r.db.QueryRowContext(ctx, `
		SELECT is_draft FROM replies
		WHERE review_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, reviewID).Scan(&draft)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("latest reply: %w", err)
	}
	return draft, nil
}

func (r *ReviewRepo) SetReplyStatus(ctx context.Context, reviewID string, status domain.ReplyStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reviews SET reply_status = $2, updated_at = NOW()
		WHERE id = $1 AND reply_status <> $2
	`, reviewID, string(status))
	if err != nil {
		return fmt.Errorf("set reply status: %w", err)
	}
	return nil
}

func (r *ReviewRepo) GetReview(ctx context.Context, tenantID, reviewID string) (*domain.Review, error) {
	rv := &domain.Review{}
	var (
		text sql.NullString
		meta []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, location_id, external_id, rating, text,
		       COALESCE(reviewer_name,''), COALESCE(reviewer_avatar,''), published_at,
		       reply_status, metadata, created_at, updated_at
		FROM reviews
		WHERE id = $1 AND tenant_id = $2
	`, reviewID, tenantID).Scan(
		&rv.ID, &rv.TenantID, &rv.LocationID, &rv.ExternalID, &rv.Rating, &text,
		&rv.ReviewerName, &rv.ReviewerAvatar, &rv.PublishedAt,
		&rv.ReplyStatus, &meta, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "review", ID: reviewID}
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if text.Valid {
		rv.Text = &text.String
	}
	if rv.Metadata, err = decodeMeta(meta); err != nil {
		return nil, err
	}
	return rv, nil
}

func (r *ReviewRepo) CreateReply(ctx context.Context, rp *domain.Reply) error {
	if rp.ID == "" {
		rp.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO replies
			(id, tenant_id, review_id, content, is_draft, ai_generated, ai_edited,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, rp.ID, rp.TenantID, rp.ReviewID, rp.Content, rp.IsDraft, rp.AIGenerated, rp.AIEdited, rp.CreatedAt)
	if err != nil {
		return fmt.Errorf("create reply: %w", err)
	}
	return nil
}

func (r *ReviewRepo) GetReply(ctx context.Context, tenantID, replyID string) (*domain.Reply, error) {
	rp := &domain.Reply{}
	var publishedBy sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, review_id, content, is_draft, published_by,
		       ai_generated, ai_edited, published_at, created_at, updated_at
		FROM replies
		WHERE id = $1 AND tenant_id = $2
	`, replyID, tenantID).Scan(
		&rp.ID, &rp.TenantID, &rp.ReviewID, &rp.Content, &rp.IsDraft, &publishedBy,
		&rp.AIGenerated, &rp.AIEdited, &rp.PublishedAt, &rp.CreatedAt, &rp.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "reply", ID: replyID}
	}
	if err != nil {
		return nil, fmt.Errorf("get reply: %w", err)
	}
	if publishedBy.Valid {
		rp.PublishedBy = &publishedBy.String
	}
	return rp, nil
}

func (r *ReviewRepo) MarkReplyPublished(ctx context.Context, replyID, publishedBy string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE replies
		SET is_draft = FALSE, published_by = $2, published_at = $3, updated_at = $3
		WHERE id = $1
	`, replyID, nullString(publishedBy), at)
	if err != nil {
		return fmt.Errorf("mark reply published: %w", err)
	}
	return nil
}
