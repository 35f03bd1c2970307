package campaign

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/pkg/metrics"
	"github.com/sassongal/revWave-sub000/internal/service/sending"
)

// DefaultThrottle is the pause between two recipients of one dispatch run.
const DefaultThrottle = 100 * time.Millisecond

var log = logger.With("campaign")

// Deps are the collaborators of the service.
type Deps struct {
	Campaigns  Repository
	Contacts   ContactRepository
	Recipients RecipientRepository
	Channels   ChannelSelector
	Composer   Composer
	Scheduler  Scheduler
}

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repositories are concurrency-safe;
// single-flight dispatch per campaign is the Scheduler's job.
type Service struct {
	campaigns  Repository
	contacts   ContactRepository
	recipients RecipientRepository
	channels   ChannelSelector
	composer   Composer
	scheduler  Scheduler
	throttle   time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewService creates a campaign service. throttle <= 0 uses DefaultThrottle.
func NewService(d Deps, throttle time.Duration) *Service {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Service{
		campaigns:  d.Campaigns,
		contacts:   d.Contacts,
		recipients: d.Recipients,
		channels:   d.Channels,
		composer:   d.Composer,
		scheduler:  d.Scheduler,
		throttle:   throttle,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// SetScheduler wires the background dispatcher. The dispatch worker needs the
// service and the service needs the worker, so one side is set late.
func (s *Service) SetScheduler(sch Scheduler) { s.scheduler = sch }

// WithClock replaces time and sleeping. Used by tests.
func (s *Service) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Service {
	if now != nil {
		s.now = now
	}
	if sleep != nil {
		s.sleep = sleep
	}
	return s
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, tenantID, id)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	ReplyTo   string `json:"reply_to"`
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, ErrMissingName
	}
	if input.Subject == "" {
		return nil, ErrMissingSubject
	}

	now := s.now()
	c := &domain.Campaign{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      input.Name,
		Subject:   input.Subject,
		Body:      input.Body,
		FromName:  input.FromName,
		FromEmail: input.FromEmail,
		ReplyTo:   input.ReplyTo,
		Status:    domain.CampaignDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueResult is returned by Enqueue.
type EnqueueResult struct {
	RecipientCount int                   `json:"recipient_count"`
	Status         domain.CampaignStatus `json:"status"`
}

// Enqueue creates pending recipients for every consenting contact (or the
// consenting subset of contactIDs) and schedules a background dispatch.
// A scheduling failure is logged, never returned.
func (s *Service) Enqueue(ctx context.Context, tenantID, campaignID string, contactIDs []string) (*EnqueueResult, error) {
	c, err := s.campaigns.Get(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.CampaignSent {
		return nil, domain.ErrAlreadySent
	}

	contacts, err := s.contacts.ListGranted(ctx, tenantID, contactIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve contacts: %w", err)
	}

	now := s.now()
	recipients := make([]domain.CampaignRecipient, 0, len(contacts))
	for _, ct := range contacts {
		token, err := newUnsubscribeToken()
		if err != nil {
			return nil, fmt.Errorf("generate unsubscribe token: %w", err)
		}
		recipients = append(recipients, domain.CampaignRecipient{
			ID:               uuid.New().String(),
			CampaignID:       c.ID,
			ContactID:        ct.ID,
			TenantID:         tenantID,
			Status:           domain.RecipientPending,
			UnsubscribeToken: token,
			CreatedAt:        now,
		})
	}

	n := 0
	if len(recipients) > 0 {
		n, err = s.recipients.CreateBatch(ctx, recipients)
		if err != nil {
			return nil, fmt.Errorf("create recipients: %w", err)
		}
	}

	if err := s.campaigns.UpdateStatus(ctx, tenantID, c.ID, domain.CampaignScheduled); err != nil {
		return nil, fmt.Errorf("transition to scheduled: %w", err)
	}

	if s.scheduler == nil {
		log.Error("dispatch not scheduled", "campaign_id", c.ID, "error", ErrNoScheduler)
	} else if err := s.scheduler.Schedule(tenantID, c.ID); err != nil {
		log.Error("dispatch not scheduled, recipients stay pending", "campaign_id", c.ID, "error", err)
	}

	log.Info("campaign enqueued", "tenant_id", tenantID, "campaign_id", c.ID, "recipients", n)
	return &EnqueueResult{RecipientCount: n, Status: domain.CampaignScheduled}, nil
}

// Redispatch schedules another dispatch run for the campaign's remaining
// pending recipients.
func (s *Service) Redispatch(ctx context.Context, tenantID, campaignID string) error {
	if _, err := s.campaigns.Get(ctx, tenantID, campaignID); err != nil {
		return err
	}
	if s.scheduler == nil {
		return ErrNoScheduler
	}
	return s.scheduler.Schedule(tenantID, campaignID)
}

// DispatchResult summarises one dispatch run.
type DispatchResult struct {
	Channel domain.ChannelType    `json:"channel"`
	Sent    int                   `json:"sent"`
	Failed  int                   `json:"failed"`
	Revoked int                   `json:"revoked"`
	Status  domain.CampaignStatus `json:"status"`
}

// Dispatch sends to every pending recipient, one at a time, through a
// channel chosen once for the run. Per-recipient failures are recorded on
// the recipient and never abort the run.
func (s *Service) Dispatch(ctx context.Context, tenantID, campaignID string) (*DispatchResult, error) {
	c, err := s.campaigns.Get(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}

	sender, err := s.channels.For(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	res := &DispatchResult{Channel: sender.Channel(), Status: c.Status}

	pending, err := s.recipients.ListPending(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list pending recipients: %w", err)
	}
	if len(pending) == 0 {
		return res, nil
	}

	if err := s.campaigns.UpdateStatus(ctx, tenantID, c.ID, domain.CampaignSending); err != nil {
		return nil, fmt.Errorf("transition to sending: %w", err)
	}
	log.Info("dispatch started", "campaign_id", c.ID, "recipients", len(pending), "channel", res.Channel)

	for i := range pending {
		s.deliver(ctx, c, sender, &pending[i], res)

		if i < len(pending)-1 {
			if err := s.sleep(ctx, s.throttle); err != nil {
				// Status stays sending so stalled-campaign recovery resumes it.
				log.Warn("dispatch interrupted, remaining recipients stay pending",
					"campaign_id", c.ID, "processed", i+1, "error", err)
				return res, fmt.Errorf("dispatch interrupted: %w", err)
			}
		}
	}

	res.Status, err = s.finalStatus(ctx, c.ID)
	if err != nil {
		return res, err
	}
	if err := s.campaigns.Complete(ctx, tenantID, c.ID, res.Status, s.now()); err != nil {
		return res, fmt.Errorf("complete campaign: %w", err)
	}

	log.Info("dispatch finished",
		"campaign_id", c.ID,
		"status", res.Status,
		"sent", res.Sent,
		"failed", res.Failed,
		"revoked", res.Revoked,
	)
	return res, nil
}

// finalStatus derives the campaign outcome from every recipient row, so a
// run resumed after an interruption still counts earlier deliveries. The
// campaign fails only when nothing was delivered or skipped and no failure
// was a consent revocation.
func (s *Service) finalStatus(ctx context.Context, campaignID string) (domain.CampaignStatus, error) {
	counts, err := s.recipients.CountByStatus(ctx, campaignID)
	if err != nil {
		return "", fmt.Errorf("count recipients: %w", err)
	}
	if counts[domain.RecipientSent] > 0 || counts[domain.RecipientSkippedUnsubscribed] > 0 ||
		counts[domain.RecipientFailed] == 0 {
		return domain.CampaignSent, nil
	}
	revoked, err := s.recipients.CountFailedWithReason(ctx, campaignID, domain.ReasonConsentRevoked)
	if err != nil {
		return "", fmt.Errorf("count revoked recipients: %w", err)
	}
	if revoked > 0 {
		return domain.CampaignSent, nil
	}
	return domain.CampaignFailed, nil
}

// deliver processes one recipient and records its terminal state.
func (s *Service) deliver(ctx context.Context, c *domain.Campaign, sender sending.Sender, r *domain.CampaignRecipient, res *DispatchResult) {
	channel := string(res.Channel)

	contact, err := s.contacts.Get(ctx, c.TenantID, r.ContactID)
	if err != nil {
		s.fail(ctx, r, fmt.Sprintf("load contact: %v", err), channel)
		res.Failed++
		return
	}
	if !contact.CanReceive() {
		s.fail(ctx, r, domain.ReasonConsentRevoked, channel)
		res.Revoked++
		return
	}

	msg, err := s.composer.Compose(c, contact, r)
	if err != nil {
		s.fail(ctx, r, err.Error(), channel)
		res.Failed++
		return
	}

	if _, err := sender.Send(ctx, msg); err != nil {
		s.fail(ctx, r, err.Error(), channel)
		res.Failed++
		return
	}

	if err := s.recipients.MarkSent(ctx, r.ID, s.now()); err != nil {
		log.Error("failed to record sent recipient", "recipient_id", r.ID, "error", err)
	}
	metrics.RecipientsTotal.WithLabelValues(string(domain.RecipientSent), channel).Inc()
	res.Sent++
}

func (s *Service) fail(ctx context.Context, r *domain.CampaignRecipient, reason, channel string) {
	if err := s.recipients.MarkFailed(ctx, r.ID, reason); err != nil {
		log.Error("failed to record failed recipient", "recipient_id", r.ID, "error", err)
	}
	metrics.RecipientsTotal.WithLabelValues(string(domain.RecipientFailed), channel).Inc()
	log.Warn("recipient failed", "campaign_id", r.CampaignID, "recipient_id", r.ID, "reason", reason)
}

// UnsubscribeResult is returned by Unsubscribe.
type UnsubscribeResult struct {
	Success          bool `json:"success"`
	ConsentRevoked   bool `json:"consent_revoked"`
	RecipientSkipped bool `json:"recipient_skipped"`
}

// Unsubscribe revokes the contact's consent if still granted and skips the
// recipient if still pending. Repeated calls succeed without side effects.
func (s *Service) Unsubscribe(ctx context.Context, token string) (*UnsubscribeResult, error) {
	if token == "" {
		return nil, &domain.NotFoundError{Entity: "recipient"}
	}
	r, err := s.recipients.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	res := &UnsubscribeResult{Success: true}

	contact, err := s.contacts.Get(ctx, r.TenantID, r.ContactID)
	if err != nil {
		return nil, err
	}
	if contact.ConsentStatus == domain.ConsentGranted {
		res.ConsentRevoked, err = s.contacts.Revoke(ctx, r.TenantID, contact.ID, s.now())
		if err != nil {
			return nil, fmt.Errorf("revoke consent: %w", err)
		}
	}

	if r.Status == domain.RecipientPending {
		res.RecipientSkipped, err = s.recipients.MarkSkipped(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("skip recipient: %w", err)
		}
		if res.RecipientSkipped {
			metrics.RecipientsTotal.WithLabelValues(string(domain.RecipientSkippedUnsubscribed), "").Inc()
		}
	}

	log.Info("unsubscribe processed",
		"campaign_id", r.CampaignID,
		"contact_id", r.ContactID,
		"consent_revoked", res.ConsentRevoked,
		"recipient_skipped", res.RecipientSkipped,
	)
	return res, nil
}

// Report holds per-status recipient counts of a campaign.
type Report struct {
	CampaignID string                         `json:"campaign_id"`
	Status     domain.CampaignStatus          `json:"status"`
	SentAt     *time.Time                     `json:"sent_at"`
	Total      int                            `json:"total"`
	Counts     map[domain.RecipientStatus]int `json:"counts"`
}

// Report returns the campaign status and recipient counts.
func (s *Service) Report(ctx context.Context, tenantID, campaignID string) (*Report, error) {
	c, err := s.campaigns.Get(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	counts, err := s.recipients.CountByStatus(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("count recipients: %w", err)
	}

	rep := &Report{
		CampaignID: c.ID,
		Status:     c.Status,
		SentAt:     c.SentAt,
		Counts: map[domain.RecipientStatus]int{
			domain.RecipientPending:             0,
			domain.RecipientSent:                0,
			domain.RecipientFailed:              0,
			domain.RecipientSkippedUnsubscribed: 0,
		},
	}
	for st, n := range counts {
		rep.Counts[st] = n
		rep.Total += n
	}
	return rep, nil
}

// newUnsubscribeToken returns 256 bits of randomness, URL-safe.
func newUnsubscribeToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
