package domain

import "time"

// ChannelType identifies the send channel used for a dispatch run.
type ChannelType string

const (
	// ChannelSMTP is the shared-credential SMTP channel.
	ChannelSMTP ChannelType = "smtp"
	// ChannelGmail is the per-tenant OAuth send API.
	ChannelGmail ChannelType = "gmail"
)

// EmailMessage is the fully-resolved message ready for a channel.
// By the time a message reaches this struct, merge fields are rendered and
// the unsubscribe footer is appended.
type EmailMessage struct {
	ID             string            `json:"id"`
	CampaignID     string            `json:"campaign_id"`
	RecipientID    string            `json:"recipient_id"`
	TenantID       string            `json:"tenant_id"`
	Email          string            `json:"email"`
	FromName       string            `json:"from_name"`
	FromEmail      string            `json:"from_email"`
	ReplyTo        string            `json:"reply_to"`
	Subject        string            `json:"subject"`
	HTMLContent    string            `json:"html_content"`
	TextContent    string            `json:"text_content"`
	UnsubscribeURL string            `json:"unsubscribe_url"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// SendResult is returned by a channel after attempting delivery.
type SendResult struct {
	Success   bool        `json:"success"`
	MessageID string      `json:"message_id"`
	Channel   ChannelType `json:"channel"`
	SentAt    time.Time   `json:"sent_at"`
	Error     string      `json:"error,omitempty"`
}
