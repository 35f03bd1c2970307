package domain

import "time"

// ConsentStatus enumerates a contact's marketing consent.
type ConsentStatus string

const (
	ConsentGranted ConsentStatus = "granted"
	ConsentRevoked ConsentStatus = "revoked"
	ConsentPending ConsentStatus = "pending"
)

// Contact is a tenant-owned email recipient.
type Contact struct {
	ID               string        `json:"id" db:"id"`
	TenantID         string        `json:"tenant_id" db:"tenant_id"`
	Email            string        `json:"email" db:"email"`
	FirstName        string        `json:"first_name" db:"first_name"`
	LastName         string        `json:"last_name" db:"last_name"`
	ConsentStatus    ConsentStatus `json:"consent_status" db:"consent_status"`
	ConsentUpdatedAt *time.Time    `json:"consent_updated_at" db:"consent_updated_at"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// CanReceive reports whether marketing email may be sent to the contact.
func (c *Contact) CanReceive() bool {
	return c.ConsentStatus == ConsentGranted
}
