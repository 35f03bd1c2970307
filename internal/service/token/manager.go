package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/pkg/metrics"
	"golang.org/x/oauth2"
)

// RefreshBuffer is how long before expiry a token is refreshed.
const RefreshBuffer = 5 * time.Minute

var log = logger.With("token")

// Manager obtains valid access tokens for one provider.
type Manager struct {
	provider    domain.Provider
	repo        Repository
	vault       Cipher
	refresher   Refresher
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	now         func() time.Time
}

// Options configures optional Manager collaborators.
type Options struct {
	// OAuth is used for AuthCodeURL and Connect. May be nil when the manager
	// only serves tokens.
	OAuth *oauth2.Config
	// UserInfoURL is queried after Connect to record the account email.
	UserInfoURL string
	// HTTPClient is used for code exchange and userinfo. Defaults to a
	// client with a 30s timeout.
	HTTPClient *http.Client
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewManager creates a token manager for provider.
func NewManager(provider domain.Provider, repo Repository, vault Cipher, refresher Refresher, opts Options) *Manager {
	m := &Manager{
		provider:    provider,
		repo:        repo,
		vault:       vault,
		refresher:   refresher,
		oauth:       opts.OAuth,
		userInfoURL: opts.UserInfoURL,
		httpClient:  opts.HTTPClient,
		now:         opts.Now,
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Provider returns the provider this manager serves.
func (m *Manager) Provider() domain.Provider { return m.provider }

// AccessToken returns a bearer token for tenantID, refreshing it first when
// it expires within RefreshBuffer or has no recorded expiry.
func (m *Manager) AccessToken(ctx context.Context, tenantID string) (string, error) {
	in, err := m.load(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if in.TokenExpiry != nil && in.TokenExpiry.Sub(m.now()) >= RefreshBuffer && in.AccessToken != "" {
		tok, err := m.vault.Decrypt(in.AccessToken)
		if err != nil {
			return "", fmt.Errorf("decrypt access token: %w", err)
		}
		return tok, nil
	}

	return m.refresh(ctx, in)
}

// Integration returns the stored Integration for tenantID, failing when it is
// missing or not connected.
func (m *Manager) Integration(ctx context.Context, tenantID string) (*domain.Integration, error) {
	return m.load(ctx, tenantID)
}

func (m *Manager) load(ctx context.Context, tenantID string) (*domain.Integration, error) {
	in, err := m.repo.Get(ctx, tenantID, m.provider)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s for tenant %s: %w", m.provider, tenantID, domain.ErrNotConnected)
	}
	if err != nil {
		return nil, fmt.Errorf("load integration: %w", err)
	}
	if !in.IsConnected() {
		return nil, &domain.IntegrationStatusError{Status: in.Status}
	}
	return in, nil
}

func (m *Manager) refresh(ctx context.Context, in *domain.Integration) (string, error) {
	if in.RefreshToken == "" {
		return "", domain.ErrNoRefreshToken
	}
	refreshToken, err := m.vault.Decrypt(in.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("decrypt refresh token: %w", err)
	}

	tok, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrClientError) {
			metrics.TokenRefreshTotal.WithLabelValues(string(m.provider), "rejected").Inc()
			log.Warn("refresh token rejected, marking integration as error",
				"tenant_id", in.TenantID, "provider", m.provider, "error", err)
			if _, serr := m.repo.MarkError(ctx, in.TenantID, m.provider); serr != nil {
				log.Error("failed to mark integration as error", "tenant_id", in.TenantID, "error", serr)
			}
			return "", fmt.Errorf("%w: %v", domain.ErrReconnectRequired, err)
		}
		metrics.TokenRefreshTotal.WithLabelValues(string(m.provider), "failed").Inc()
		return "", fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}

	encrypted, err := m.vault.Encrypt(tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}

	expiry := in.TokenExpiry
	if !tok.Expiry.IsZero() {
		e := tok.Expiry
		expiry = &e
	}
	stored, err := m.repo.UpdateAccessToken(ctx, in.TenantID, m.provider, encrypted, expiry)
	if err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	if !stored {
		// Disconnected while the refresh was in flight.
		log.Warn("integration left connected state during refresh",
			"tenant_id", in.TenantID, "provider", m.provider)
		return "", fmt.Errorf("%s for tenant %s: %w", m.provider, in.TenantID, domain.ErrNotConnected)
	}

	metrics.TokenRefreshTotal.WithLabelValues(string(m.provider), "success").Inc()
	log.Info("access token refreshed", "tenant_id", in.TenantID, "provider", m.provider)
	return tok.AccessToken, nil
}

// AuthCodeURL returns the consent URL for the provider. Offline access and
// forced consent make the provider return a refresh token.
func (m *Manager) AuthCodeURL(state string) (string, error) {
	if m.oauth == nil {
		return "", fmt.Errorf("oauth client not configured for %s", m.provider)
	}
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

type userInfo struct {
	Email string `json:"email"`
}

// Connect exchanges an authorization code and stores the resulting tokens.
// An existing row for (tenant, provider) is updated in place.
func (m *Manager) Connect(ctx context.Context, tenantID, code string) (*domain.Integration, error) {
	if m.oauth == nil {
		return nil, fmt.Errorf("oauth client not configured for %s", m.provider)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	existing, err := m.repo.Get(ctx, tenantID, m.provider)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load integration: %w", err)
	}

	now := m.now()
	in := &domain.Integration{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Provider:  m.provider,
		CreatedAt: now,
		Metadata:  map[string]any{},
	}
	if existing != nil {
		in = existing
		if in.Metadata == nil {
			in.Metadata = map[string]any{}
		}
	}

	in.Status = domain.IntegrationConnected
	in.AccessToken, err = m.vault.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	// The provider omits the refresh token on re-consent; keep the old one.
	if tok.RefreshToken != "" {
		in.RefreshToken, err = m.vault.Encrypt(tok.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		in.TokenExpiry = &expiry
	}
	if scopes := scopesOf(tok); len(scopes) > 0 {
		in.Scopes = scopes
	} else {
		in.Scopes = m.oauth.Scopes
	}
	if email, err := m.fetchEmail(ctx, tok.AccessToken); err != nil {
		log.Warn("could not resolve account email", "tenant_id", tenantID, "provider", m.provider, "error", err)
	} else if email != "" {
		in.Metadata["email"] = email
	}
	in.UpdatedAt = now

	if err := m.repo.Upsert(ctx, in); err != nil {
		return nil, fmt.Errorf("save integration: %w", err)
	}
	log.Info("integration connected", "tenant_id", tenantID, "provider", m.provider)
	return in, nil
}

func (m *Manager) fetchEmail(ctx context.Context, accessToken string) (string, error) {
	if m.userInfoURL == "" {
		return "", nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return info.Email, nil
}

// Disconnect marks the integration disconnected and drops its tokens.
func (m *Manager) Disconnect(ctx context.Context, tenantID string) error {
	in, err := m.repo.Get(ctx, tenantID, m.provider)
	if err != nil {
		return err
	}
	in.Status = domain.IntegrationDisconnected
	in.AccessToken = ""
	in.RefreshToken = ""
	in.TokenExpiry = nil
	in.UpdatedAt = m.now()
	if err := m.repo.Upsert(ctx, in); err != nil {
		return fmt.Errorf("disconnect integration: %w", err)
	}
	log.Info("integration disconnected", "tenant_id", tenantID, "provider", m.provider)
	return nil
}
