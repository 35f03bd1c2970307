package sending

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
)

var log = logger.With("sending")

// DefaultSMTPTimeout bounds a whole SMTP transaction when the caller's
// context carries no deadline.
const DefaultSMTPTimeout = 30 * time.Second

// DeliverFunc performs the SMTP transaction. Replaced in tests.
type DeliverFunc func(ctx context.Context, addr, from, to string, msg []byte) error

// SMTPConfig holds the shared channel credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender is the shared-credential channel.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver DeliverFunc
	now     func() time.Time
	timeout time.Duration
}

// NewSMTPSender creates the shared channel.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	s := &SMTPSender{cfg: cfg, now: time.Now, timeout: DefaultSMTPTimeout}
	s.deliver = s.sendSMTP
	return s
}

// WithDeliver replaces the SMTP transaction.
func (s *SMTPSender) WithDeliver(fn DeliverFunc) *SMTPSender {
	s.deliver = fn
	return s
}

func (s *SMTPSender) Channel() domain.ChannelType { return domain.ChannelSMTP }

// Send delivers msg. The configured sender address is used when the campaign
// has none.
func (s *SMTPSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host not configured")
	}

	out := *msg
	if out.FromEmail == "" {
		out.FromEmail = s.cfg.From
	}
	if out.FromName == "" {
		out.FromName = s.cfg.FromName
	}

	messageID := NewMessageID(s.cfg.Host)
	raw, err := BuildMIME(&out, messageID, s.now())
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.deliver(ctx, addr, out.FromEmail, out.Email, raw); err != nil {
		return nil, fmt.Errorf("SMTP send failed: %w", err)
	}

	return &domain.SendResult{
		Success:   true,
		MessageID: messageID,
		Channel:   domain.ChannelSMTP,
		SentAt:    s.now(),
	}, nil
}

// sendSMTP dials, upgrades to TLS when offered, authenticates and sends.
func (s *SMTPSender) sendSMTP(ctx context.Context, addr, from, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("SMTP set deadline: %w", err)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("AUTH: %w", err)
			}
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return c.Quit()
}
