package sending

import (
	"context"
	"errors"
	"fmt"

	"github.com/sassongal/revWave-sub000/internal/domain"
)

// GmailSendScope is the scope that enables the OAuth channel.
const GmailSendScope = "https://www.googleapis.com/auth/gmail.send"

// Selector chooses the channel for a dispatch run.
type Selector struct {
	integrations IntegrationLookup
	shared       Sender
	gmail        RawSender
}

// NewSelector creates a selector. gmail may be nil, in which case the
// shared channel is always used.
func NewSelector(integrations IntegrationLookup, shared Sender, gmail RawSender) *Selector {
	return &Selector{integrations: integrations, shared: shared, gmail: gmail}
}

// For returns the OAuth channel when the tenant has a connected email
// integration with the send scope, otherwise the shared channel.
func (s *Selector) For(ctx context.Context, tenantID string) (Sender, error) {
	if s.gmail == nil || s.integrations == nil {
		return s.shared, nil
	}

	in, err := s.integrations.Get(ctx, tenantID, domain.ProviderGmail)
	if errors.Is(err, domain.ErrNotFound) {
		return s.shared, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve email channel: %w", err)
	}
	if in.IsConnected() && in.HasScope(GmailSendScope) {
		return NewGmailSender(s.gmail, tenantID, in.AccountEmail()), nil
	}
	log.Debug("email integration unusable, using shared channel",
		"tenant_id", tenantID, "status", in.Status, "has_send_scope", in.HasScope(GmailSendScope))
	return s.shared, nil
}
