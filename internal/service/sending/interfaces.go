// Package sending defines the send channels used by campaign dispatch.
//
// Two channels implement Sender: the shared-credential SMTP channel and the
// per-tenant OAuth send API. The Selector picks one of them once per
// dispatch run; the Composer turns a campaign and contact into a rendered
// EmailMessage with the unsubscribe footer appended.
package sending

import (
	"context"

	"github.com/sassongal/revWave-sub000/internal/domain"
)

// Sender sends a single email through one channel. Implementations must be
// safe for concurrent use.
type Sender interface {
	Channel() domain.ChannelType
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// IntegrationLookup reads the tenant's email-provider integration.
type IntegrationLookup interface {
	Get(ctx context.Context, tenantID string, provider domain.Provider) (*domain.Integration, error)
}

// RawSender delivers a complete MIME message for a tenant.
// *gmail.Client satisfies it.
type RawSender interface {
	Send(ctx context.Context, tenantID string, raw []byte) (string, error)
}
