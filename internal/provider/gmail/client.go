// Package gmail sends raw RFC 5322 messages through the per-tenant OAuth
// send API.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sassongal/revWave-sub000/internal/pkg/httpretry"
)

// TokenSource yields a bearer token for a tenant.
type TokenSource interface {
	AccessToken(ctx context.Context, tenantID string) (string, error)
}

// Client posts messages to users/me/messages/send.
type Client struct {
	tokens  TokenSource
	http    *httpretry.RetryClient
	baseURL string
}

// NewClient creates a client against baseURL. rc may be nil.
func NewClient(tokens TokenSource, rc *httpretry.RetryClient, baseURL string) *Client {
	if rc == nil {
		rc = httpretry.NewRetryClient(nil, 0)
	}
	return &Client{tokens: tokens, http: rc, baseURL: baseURL}
}

type sendRequest struct {
	Raw string `json:"raw"`
}

type sendResponse struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds"`
}

// Send delivers raw (a complete MIME message) and returns the provider
// message id.
func (c *Client) Send(ctx context.Context, tenantID string, raw []byte) (string, error) {
	tok, err := c.tokens.AccessToken(ctx, tenantID)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(sendRequest{Raw: base64.URLEncoding.EncodeToString(raw)})
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+tok)
	headers.Set("Content-Type", "application/json")

	resp, err := c.http.Request(ctx, http.MethodPost, c.baseURL+"/gmail/v1/users/me/messages/send", headers, payload)
	if err != nil {
		return "", fmt.Errorf("gmail send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gmail send: read response: %w", err)
	}
	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("gmail send: decode response: %w", err)
	}
	return out.ID, nil
}
