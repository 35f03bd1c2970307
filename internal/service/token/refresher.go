package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/httpretry"
	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a new access token. A rejection
// of the refresh token by the provider must be returned as an error matching
// domain.ErrClientError.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// LibraryRefresher refreshes through the oauth2 client library.
type LibraryRefresher struct {
	config *oauth2.Config
	client *http.Client
}

// NewLibraryRefresher returns a refresher backed by cfg. client may be nil.
func NewLibraryRefresher(cfg *oauth2.Config, client *http.Client) *LibraryRefresher {
	return &LibraryRefresher{config: cfg, client: client}
}

func (r *LibraryRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			return nil, &domain.ClientError{StatusCode: re.Response.StatusCode, Body: re.ErrorCode}
		}
		return nil, err
	}
	return tok, nil
}

// FormRefresher posts the refresh_token grant to the token endpoint directly.
type FormRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	http         *httpretry.RetryClient
	now          func() time.Time
}

// NewFormRefresher returns a refresher posting to tokenURL. rc may be nil.
// Every 4xx from the token endpoint is a rejection; only 5xx and network
// errors are retried.
func NewFormRefresher(tokenURL, clientID, clientSecret string, rc *httpretry.RetryClient) *FormRefresher {
	if rc == nil {
		rc = httpretry.NewRetryClient(nil, 0)
	}
	rc = rc.NoAuthRetry()
	return &FormRefresher{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         rc,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

func (r *FormRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	form := url.Values{
		"client_id":     {r.clientID},
		"client_secret": {r.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Request(ctx, http.MethodPost, r.tokenURL, headers, []byte(form.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	tok := &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = r.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if tr.Scope != "" {
		tok = tok.WithExtra(map[string]interface{}{"scope": tr.Scope})
	}
	return tok, nil
}

// scopesOf returns the space-separated scope list a token endpoint granted.
func scopesOf(tok *oauth2.Token) []string {
	s, _ := tok.Extra("scope").(string)
	return strings.Fields(s)
}
