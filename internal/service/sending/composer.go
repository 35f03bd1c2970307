package sending

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
	"github.com/sassongal/revWave-sub000/internal/domain"
)

// Composer renders campaign content per recipient with Liquid merge fields
// and appends the unsubscribe footer.
type Composer struct {
	engine  *liquid.Engine
	baseURL string
	cache   sync.Map // map[string]*liquid.Template
}

// NewComposer creates a composer that builds unsubscribe links under
// publicBaseURL.
func NewComposer(publicBaseURL string) *Composer {
	engine := liquid.NewEngine()
	// {{ contact.first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	return &Composer{engine: engine, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// UnsubscribeURL returns the public link for token.
func (c *Composer) UnsubscribeURL(token string) string {
	return c.baseURL + "/unsubscribe/" + token
}

// Compose builds the message for one recipient.
func (c *Composer) Compose(camp *domain.Campaign, contact *domain.Contact, rcpt *domain.CampaignRecipient) (*domain.EmailMessage, error) {
	unsubscribeURL := c.UnsubscribeURL(rcpt.UnsubscribeToken)
	bindings := map[string]interface{}{
		"contact": map[string]interface{}{
			"first_name": contact.FirstName,
			"last_name":  contact.LastName,
			"email":      contact.Email,
		},
		"campaign": map[string]interface{}{
			"name": camp.Name,
		},
		"unsubscribe_url": unsubscribeURL,
	}

	subject, err := c.render(camp.ID+":subject", camp.Subject, bindings)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	body, err := c.render(camp.ID+":body", camp.Body, bindings)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	return &domain.EmailMessage{
		ID:             rcpt.ID,
		CampaignID:     camp.ID,
		RecipientID:    rcpt.ID,
		TenantID:       camp.TenantID,
		Email:          contact.Email,
		FromName:       camp.FromName,
		FromEmail:      camp.FromEmail,
		ReplyTo:        camp.ReplyTo,
		Subject:        subject,
		HTMLContent:    body + htmlFooter(unsubscribeURL),
		TextContent:    textAlternative(body, unsubscribeURL),
		UnsubscribeURL: unsubscribeURL,
	}, nil
}

// render parses once per key and renders with bindings.
func (c *Composer) render(key, src string, bindings map[string]interface{}) (string, error) {
	if cached, ok := c.cache.Load(key + "\x00" + src); ok {
		out, err := cached.(*liquid.Template).RenderString(bindings)
		if err != nil {
			return "", err
		}
		return out, nil
	}

	tpl, err := c.engine.ParseString(src)
	if err != nil {
		return "", err
	}
	c.cache.Store(key+"\x00"+src, tpl)

	out, rerr := tpl.RenderString(bindings)
	if rerr != nil {
		return "", rerr
	}
	return out, nil
}

func htmlFooter(unsubscribeURL string) string {
	return fmt.Sprintf(
		`<hr><p style="font-size:12px;color:#888">You received this email because you opted in. `+
			`<a href="%s">Unsubscribe</a></p>`,
		html.EscapeString(unsubscribeURL),
	)
}

var (
	blockTagRe = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/h[1-6]|/li|/tr)\s*>`)
	skipTagRe  = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(style|script)\s*>`)
	tagRe      = regexp.MustCompile(`<[^>]*>`)
)

// stripHTML turns rendered HTML into plain text: block ends become line
// breaks, other tags are dropped and entities decoded.
func stripHTML(input string) string {
	text := skipTagRe.ReplaceAllString(input, "")
	text = blockTagRe.ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func textAlternative(body, unsubscribeURL string) string {
	footer := "To unsubscribe from these emails, visit: " + unsubscribeURL
	if text := stripHTML(body); text != "" {
		return text + "\n\n--\n" + footer
	}
	return footer
}
