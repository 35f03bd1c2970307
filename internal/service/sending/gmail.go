package sending

import (
	"context"
	"fmt"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
)

// GmailSender sends through the tenant's connected mailbox. The From
// address is always the connected account.
type GmailSender struct {
	api      RawSender
	tenantID string
	account  string
	now      func() time.Time
}

// NewGmailSender creates the OAuth channel for one tenant.
func NewGmailSender(api RawSender, tenantID, accountEmail string) *GmailSender {
	return &GmailSender{api: api, tenantID: tenantID, account: accountEmail, now: time.Now}
}

func (g *GmailSender) Channel() domain.ChannelType { return domain.ChannelGmail }

func (g *GmailSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	out := *msg
	if g.account != "" {
		out.FromEmail = g.account
	}
	if out.FromEmail == "" {
		return nil, fmt.Errorf("gmail channel has no sender address")
	}

	raw, err := BuildMIME(&out, NewMessageID("mail.gmail.com"), g.now())
	if err != nil {
		return nil, err
	}
	id, err := g.api.Send(ctx, g.tenantID, raw)
	if err != nil {
		return nil, err
	}
	return &domain.SendResult{
		Success:   true,
		MessageID: id,
		Channel:   domain.ChannelGmail,
		SentAt:    g.now(),
	}, nil
}
