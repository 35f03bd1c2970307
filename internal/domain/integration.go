package domain

import "time"

// Provider names the external system an Integration connects to.
type Provider string

const (
	// ProviderGoogleBusiness is the business-data provider (locations/reviews).
	ProviderGoogleBusiness Provider = "google_business"
	// ProviderGmail is the per-tenant OAuth email channel.
	ProviderGmail Provider = "gmail"
)

// IntegrationStatus enumerates the lifecycle states of an Integration.
type IntegrationStatus string

const (
	IntegrationConnected    IntegrationStatus = "connected"
	IntegrationDisconnected IntegrationStatus = "disconnected"
	IntegrationError        IntegrationStatus = "error"
)

// Integration is the per-tenant, per-provider OAuth connection record.
// There is at most one row per (TenantID, Provider). Token fields hold
// vault ciphertext, never plaintext, and are excluded from JSON.
type Integration struct {
	ID           string            `json:"id" db:"id"`
	TenantID     string            `json:"tenant_id" db:"tenant_id"`
	Provider     Provider          `json:"provider" db:"provider"`
	Status       IntegrationStatus `json:"status" db:"status"`
	AccessToken  string            `json:"-" db:"access_token"`
	RefreshToken string            `json:"-" db:"refresh_token"`
	TokenExpiry  *time.Time        `json:"token_expiry" db:"token_expiry"`
	Scopes       []string          `json:"scopes" db:"scopes"`
	Metadata     map[string]any    `json:"metadata" db:"metadata"`
	LastSyncAt   *time.Time        `json:"last_sync_at" db:"last_sync_at"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// IsConnected reports whether the integration can be used for API calls.
func (i *Integration) IsConnected() bool {
	return i.Status == IntegrationConnected
}

// HasScope reports whether scope was granted on the last OAuth exchange.
func (i *Integration) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AccountEmail returns the connected account email stored in metadata, if any.
func (i *Integration) AccountEmail() string {
	if i.Metadata == nil {
		return ""
	}
	email, _ := i.Metadata["email"].(string)
	return email
}
