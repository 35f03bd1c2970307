package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
)

// Campaign is an email campaign owned by a tenant. Subject and Body may
// contain Liquid merge fields ({{ contact.first_name }}).
type Campaign struct {
	ID        string         `json:"id" db:"id"`
	TenantID  string         `json:"tenant_id" db:"tenant_id"`
	Name      string         `json:"name" db:"name"`
	Subject   string         `json:"subject" db:"subject"`
	Body      string         `json:"body" db:"body"`
	FromName  string         `json:"from_name" db:"from_name"`
	FromEmail string         `json:"from_email" db:"from_email"`
	ReplyTo   string         `json:"reply_to" db:"reply_to"`
	Status    CampaignStatus `json:"status" db:"status"`
	SentAt    *time.Time     `json:"sent_at" db:"sent_at"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// CampaignRef names a campaign across tenants.
type CampaignRef struct {
	TenantID   string
	CampaignID string
}

// RecipientStatus enumerates the delivery states of a CampaignRecipient.
// Pending is the only non-terminal state.
type RecipientStatus string

const (
	RecipientPending             RecipientStatus = "pending"
	RecipientSent                RecipientStatus = "sent"
	RecipientFailed              RecipientStatus = "failed"
	RecipientSkippedUnsubscribed RecipientStatus = "skipped_unsubscribed"
)

// IsTerminal returns true if no further transition may occur.
func (s RecipientStatus) IsTerminal() bool {
	return s != RecipientPending
}

// ReasonConsentRevoked is recorded on recipients whose contact revoked
// consent between enqueue and send.
const ReasonConsentRevoked = "Contact consent revoked"

// CampaignRecipient is one delivery attempt for (campaign, contact).
type CampaignRecipient struct {
	ID               string          `json:"id" db:"id"`
	CampaignID       string          `json:"campaign_id" db:"campaign_id"`
	ContactID        string          `json:"contact_id" db:"contact_id"`
	TenantID         string          `json:"tenant_id" db:"tenant_id"`
	Status           RecipientStatus `json:"status" db:"status"`
	SentAt           *time.Time      `json:"sent_at" db:"sent_at"`
	ErrorMessage     string          `json:"error_message,omitempty" db:"error_message"`
	UnsubscribeToken string          `json:"-" db:"unsubscribe_token"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}
