package domain

import "time"

// Location is a business location pulled from the business-data provider.
// Unique on (IntegrationID, ExternalID).
type Location struct {
	ID            string         `json:"id" db:"id"`
	TenantID      string         `json:"tenant_id" db:"tenant_id"`
	IntegrationID string         `json:"integration_id" db:"integration_id"`
	ExternalID    string         `json:"external_id" db:"external_id"`
	Name          string         `json:"name" db:"name"`
	Address       string         `json:"address" db:"address"`
	Phone         string         `json:"phone" db:"phone"`
	Website       string         `json:"website" db:"website"`
	Metadata      map[string]any `json:"metadata" db:"metadata"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// ReplyStatus is the derived reply state of a Review.
type ReplyStatus string

const (
	ReplyPending ReplyStatus = "pending"
	ReplyDrafted ReplyStatus = "drafted"
	ReplyReplied ReplyStatus = "replied"
)

// Review is a customer review of a Location. Unique on (LocationID, ExternalID).
// ReplyStatus is owned by the reconciler and reply workflow.
type Review struct {
	ID             string         `json:"id" db:"id"`
	TenantID       string         `json:"tenant_id" db:"tenant_id"`
	LocationID     string         `json:"location_id" db:"location_id"`
	ExternalID     string         `json:"external_id" db:"external_id"`
	Rating         int            `json:"rating" db:"rating"`
	Text           *string        `json:"text" db:"text"`
	ReviewerName   string         `json:"reviewer_name" db:"reviewer_name"`
	ReviewerAvatar string         `json:"reviewer_avatar" db:"reviewer_avatar"`
	PublishedAt    time.Time      `json:"published_at" db:"published_at"`
	ReplyStatus    ReplyStatus    `json:"reply_status" db:"reply_status"`
	Metadata       map[string]any `json:"metadata" db:"metadata"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// ResourceName returns the provider resource name stored in metadata
// (e.g. "accounts/1/locations/2/reviews/3").
func (r *Review) ResourceName() string {
	if r.Metadata == nil {
		return ""
	}
	name, _ := r.Metadata["name"].(string)
	return name
}

// Reply is one entry in a Review's reply history. The latest reply is the
// most recently created one.
type Reply struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	ReviewID    string     `json:"review_id" db:"review_id"`
	Content     string     `json:"content" db:"content"`
	IsDraft     bool       `json:"is_draft" db:"is_draft"`
	PublishedBy *string    `json:"published_by" db:"published_by"`
	AIGenerated bool       `json:"ai_generated" db:"ai_generated"`
	AIEdited    bool       `json:"ai_edited" db:"ai_edited"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
