package campaign

import (
	"context"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/service/sending"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns an error matching
	// domain.ErrNotFound if it doesn't exist for the tenant.
	Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// UpdateStatus transitions a campaign's status.
	UpdateStatus(ctx context.Context, tenantID, id string, status domain.CampaignStatus) error

	// Complete sets the final status and sent_at of a dispatch run.
	Complete(ctx context.Context, tenantID, id string, status domain.CampaignStatus, sentAt time.Time) error
}

// ContactRepository reads contacts and owns consent transitions.
type ContactRepository interface {
	// ListGranted returns the tenant's contacts whose consent is granted,
	// restricted to ids when ids is non-empty. The consent filter must be
	// part of the query.
	ListGranted(ctx context.Context, tenantID string, ids []string) ([]domain.Contact, error)

	// Get returns an error matching domain.ErrNotFound if missing.
	Get(ctx context.Context, tenantID, id string) (*domain.Contact, error)

	// Revoke sets consent to revoked if it is currently granted and reports
	// whether a row changed.
	Revoke(ctx context.Context, tenantID, id string, at time.Time) (bool, error)
}

// RecipientRepository stores per-recipient delivery state. Every mark
// operation only applies to rows still pending.
type RecipientRepository interface {
	// CreateBatch inserts pending recipients, skipping (campaign, contact)
	// pairs that already exist, and returns how many were inserted.
	CreateBatch(ctx context.Context, recipients []domain.CampaignRecipient) (int, error)

	ListPending(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error)

	// GetByToken returns an error matching domain.ErrNotFound if missing.
	GetByToken(ctx context.Context, token string) (*domain.CampaignRecipient, error)

	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	// MarkSkipped moves a pending recipient to skipped_unsubscribed and
	// reports whether a row changed.
	MarkSkipped(ctx context.Context, id string) (bool, error)

	CountByStatus(ctx context.Context, campaignID string) (map[domain.RecipientStatus]int, error)

	// CountFailedWithReason counts failed recipients whose error message
	// equals reason.
	CountFailedWithReason(ctx context.Context, campaignID, reason string) (int, error)
}

// Scheduler starts a dispatch run in the background. It must not block.
type Scheduler interface {
	Schedule(tenantID, campaignID string) error
}

// ChannelSelector picks the send channel for a tenant. *sending.Selector
// satisfies it.
type ChannelSelector interface {
	For(ctx context.Context, tenantID string) (sending.Sender, error)
}

// Composer renders one recipient's message. *sending.Composer satisfies it.
type Composer interface {
	Compose(c *domain.Campaign, contact *domain.Contact, r *domain.CampaignRecipient) (*domain.EmailMessage, error)
}
