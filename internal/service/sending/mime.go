package sending

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sassongal/revWave-sub000/internal/domain"
)

// NewMessageID returns a globally unique Message-ID value for domain.
func NewMessageID(domainPart string) string {
	if domainPart == "" {
		domainPart = "revwave.local"
	}
	return fmt.Sprintf("%s@%s", uuid.New().String(), domainPart)
}

// BuildMIME renders msg as an RFC 5322 multipart/alternative message.
func BuildMIME(msg *domain.EmailMessage, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	from := (&mail.Address{Name: msg.FromName, Address: msg.FromEmail}).String()
	to := (&mail.Address{Address: msg.Email}).String()

	writeHeader(&buf, "From", from)
	writeHeader(&buf, "To", to)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", "<"+messageID+">")
	writeHeader(&buf, "MIME-Version", "1.0")
	if msg.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", msg.ReplyTo)
	}
	if msg.UnsubscribeURL != "" {
		writeHeader(&buf, "List-Unsubscribe", "<"+msg.UnsubscribeURL+">")
		writeHeader(&buf, "List-Unsubscribe-Post", "List-Unsubscribe=One-Click")
	}
	if msg.CampaignID != "" {
		writeHeader(&buf, "X-Campaign-ID", msg.CampaignID)
	}
	if msg.RecipientID != "" {
		writeHeader(&buf, "X-Recipient-ID", msg.RecipientID)
	}

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&buf, k, msg.Headers[k])
	}

	boundary := fmt.Sprintf("=_%s", uuid.New().String()[:16])
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=\"%s\"", boundary))
	buf.WriteString("\r\n")

	if msg.TextContent != "" {
		if err := writePart(&buf, boundary, "text/plain", msg.TextContent); err != nil {
			return nil, err
		}
	}
	if err := writePart(&buf, boundary, "text/html", msg.HTMLContent); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	// Header injection guard.
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

func writePart(buf *bytes.Buffer, boundary, contentType, body string) error {
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	fmt.Fprintf(buf, "Content-Type: %s; charset=UTF-8\r\n", contentType)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("encode %s part: %w", contentType, err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("encode %s part: %w", contentType, err)
	}
	buf.WriteString("\r\n")
	return nil
}
