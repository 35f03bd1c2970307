package token

import (
	"context"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
)

// Repository defines the Integration persistence the manager needs.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns the Integration for (tenantID, provider). Returns an error
	// matching domain.ErrNotFound when no row exists.
	Get(ctx context.Context, tenantID string, provider domain.Provider) (*domain.Integration, error)

	// Upsert inserts or updates the row keyed by (TenantID, Provider).
	Upsert(ctx context.Context, in *domain.Integration) error

	// UpdateAccessToken stores a refreshed access token on a connected row
	// and reports whether one was written.
	UpdateAccessToken(ctx context.Context, tenantID string, provider domain.Provider, accessToken string, expiry *time.Time) (bool, error)

	// MarkError moves a connected row to the error status and reports
	// whether it did.
	MarkError(ctx context.Context, tenantID string, provider domain.Provider) (bool, error)
}

// Cipher is the vault contract. *vault.Vault satisfies it.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
