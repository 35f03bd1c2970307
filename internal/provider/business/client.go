// Package business is a typed client for the business-profile APIs:
// accounts, locations, reviews and review replies.
package business

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sassongal/revWave-sub000/internal/pkg/httpretry"
)

const (
	locationReadMask = "name,title,storefrontAddress,phoneNumbers,websiteUri,metadata"
	locationPageSize = "100"
	reviewPageSize   = "50"
	// maxPages guards against a provider that never stops returning tokens.
	maxPages = 1000
)

// TokenSource yields a bearer token for a tenant. *token.Manager satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context, tenantID string) (string, error)
}

// Endpoints holds the API base URLs.
type Endpoints struct {
	Accounts string
	Info     string
	Reviews  string
}

// Client calls the business-profile APIs on behalf of a tenant.
type Client struct {
	tokens    TokenSource
	http      *httpretry.RetryClient
	endpoints Endpoints
}

// NewClient creates a client. rc may be nil.
func NewClient(tokens TokenSource, rc *httpretry.RetryClient, endpoints Endpoints) *Client {
	if rc == nil {
		rc = httpretry.NewRetryClient(nil, 0)
	}
	return &Client{tokens: tokens, http: rc, endpoints: endpoints}
}

// ListAccounts returns every account visible to the tenant's connection.
func (c *Client) ListAccounts(ctx context.Context, tenantID string) ([]Account, error) {
	var out []Account
	err := c.paginate(ctx, tenantID, c.endpoints.Accounts+"/v1/accounts", url.Values{}, func(body []byte) (string, error) {
		var page accountsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode accounts: %w", err)
		}
		out = append(out, page.Accounts...)
		return page.NextPageToken, nil
	})
	return out, err
}

// ListLocations returns every location under account (accounts/{id}).
func (c *Client) ListLocations(ctx context.Context, tenantID, account string) ([]Location, error) {
	q := url.Values{}
	q.Set("readMask", locationReadMask)
	q.Set("pageSize", locationPageSize)

	var out []Location
	err := c.paginate(ctx, tenantID, c.endpoints.Info+"/v1/"+account+"/locations", q, func(body []byte) (string, error) {
		var page locationsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode locations: %w", err)
		}
		out = append(out, page.Locations...)
		return page.NextPageToken, nil
	})
	return out, err
}

// ListReviews returns every review of location (locations/{id}) under account.
func (c *Client) ListReviews(ctx context.Context, tenantID, account, location string) ([]Review, error) {
	q := url.Values{}
	q.Set("pageSize", reviewPageSize)

	var out []Review
	err := c.paginate(ctx, tenantID, c.endpoints.Reviews+"/v4/"+account+"/"+location+"/reviews", q, func(body []byte) (string, error) {
		var page reviewsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return "", fmt.Errorf("decode reviews: %w", err)
		}
		out = append(out, page.Reviews...)
		return page.NextPageToken, nil
	})
	return out, err
}

// UpdateReply publishes or replaces the owner reply on review, where review
// is the full resource name (accounts/{a}/locations/{l}/reviews/{r}).
func (c *Client) UpdateReply(ctx context.Context, tenantID, review, comment string) (*ReviewReply, error) {
	payload, err := json.Marshal(map[string]string{"comment": comment})
	if err != nil {
		return nil, err
	}
	body, err := c.call(ctx, tenantID, http.MethodPut, c.endpoints.Reviews+"/v4/"+review+"/reply", payload)
	if err != nil {
		return nil, err
	}
	var reply ReviewReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &reply, nil
}

// paginate follows nextPageToken until the provider stops returning one.
func (c *Client) paginate(ctx context.Context, tenantID, base string, q url.Values, handle func([]byte) (string, error)) error {
	pageToken := ""
	for i := 0; i < maxPages; i++ {
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u := base
		if enc := q.Encode(); enc != "" {
			u += "?" + enc
		}

		body, err := c.call(ctx, tenantID, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		next, err := handle(body)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		pageToken = next
	}
	return fmt.Errorf("pagination exceeded %d pages for %s", maxPages, base)
}

// call performs an authorized request. A fresh token is fetched per call so a
// refresh inside a long sync is picked up.
func (c *Client) call(ctx context.Context, tenantID, method, u string, payload []byte) ([]byte, error) {
	tok, err := c.tokens.AccessToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+tok)
	headers.Set("Accept", "application/json")
	if payload != nil {
		headers.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Request(ctx, method, u, headers, payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, redactQuery(u), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func redactQuery(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	parsed.RawQuery = ""
	return parsed.String()
}
