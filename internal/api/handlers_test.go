package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/service/campaign"
	"github.com/sassongal/revWave-sub000/internal/service/reply"
	"github.com/sassongal/revWave-sub000/internal/service/reviewsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSyncer struct {
	result *reviewsync.Result
	err    error
	tenant string
}

func (m *mockSyncer) SyncTenant(_ context.Context, tenantID string) (*reviewsync.Result, error) {
	m.tenant = tenantID
	return m.result, m.err
}

type mockCampaigns struct {
	created    campaign.CreateInput
	createErr  error
	getErr     error
	enqueued   []string
	enqueueErr error
	redispatch string
	unsubErr   error
	unsubCalls int
}

func (m *mockCampaigns) Create(_ context.Context, tenantID string, in campaign.CreateInput) (*domain.Campaign, error) {
	m.created = in
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &domain.Campaign{ID: "c1", TenantID: tenantID, Name: in.Name, Subject: in.Subject, Status: domain.CampaignDraft}, nil
}

func (m *mockCampaigns) Get(_ context.Context, tenantID, id string) (*domain.Campaign, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &domain.Campaign{ID: id, TenantID: tenantID, Status: domain.CampaignDraft}, nil
}

func (m *mockCampaigns) Enqueue(_ context.Context, _, _ string, ids []string) (*campaign.EnqueueResult, error) {
	m.enqueued = ids
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	return &campaign.EnqueueResult{RecipientCount: 3, Status: domain.CampaignSending}, nil
}

func (m *mockCampaigns) Redispatch(_ context.Context, _, campaignID string) error {
	m.redispatch = campaignID
	return nil
}

func (m *mockCampaigns) Report(_ context.Context, _, campaignID string) (*campaign.Report, error) {
	return &campaign.Report{
		CampaignID: campaignID,
		Status:     domain.CampaignSent,
		Total:      3,
		Counts:     map[domain.RecipientStatus]int{domain.RecipientSent: 2, domain.RecipientFailed: 1},
	}, nil
}

func (m *mockCampaigns) Unsubscribe(_ context.Context, token string) (*campaign.UnsubscribeResult, error) {
	m.unsubCalls++
	if m.unsubErr != nil {
		return nil, m.unsubErr
	}
	return &campaign.UnsubscribeResult{Success: true, ConsentRevoked: m.unsubCalls == 1}, nil
}

type mockReplies struct {
	draftErr error
	pubBy    string
}

func (m *mockReplies) SaveDraft(_ context.Context, tenantID, reviewID string, in reply.DraftInput) (*domain.Reply, error) {
	if m.draftErr != nil {
		return nil, m.draftErr
	}
	return &domain.Reply{ID: "r1", TenantID: tenantID, ReviewID: reviewID, Content: in.Content, IsDraft: true}, nil
}

func (m *mockReplies) Publish(_ context.Context, tenantID, replyID, publishedBy string) (*domain.Reply, error) {
	m.pubBy = publishedBy
	return &domain.Reply{ID: replyID, TenantID: tenantID, IsDraft: false}, nil
}

type mockConnector struct {
	tenant string
	code   string
	gone   string
}

func (m *mockConnector) AuthCodeURL(state string) (string, error) {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state), nil
}

func (m *mockConnector) Connect(_ context.Context, tenantID, code string) (*domain.Integration, error) {
	m.tenant, m.code = tenantID, code
	return &domain.Integration{ID: "i1", TenantID: tenantID, Provider: domain.ProviderGoogleBusiness, Status: domain.IntegrationConnected}, nil
}

func (m *mockConnector) Disconnect(_ context.Context, tenantID string) error {
	m.gone = tenantID
	return nil
}

type testEnv struct {
	handler   http.Handler
	sync      *mockSyncer
	campaigns *mockCampaigns
	replies   *mockReplies
	connector *mockConnector
	state     *StateCodec
}

func setupTestHandlers(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		sync:      &mockSyncer{result: &reviewsync.Result{TotalReviewsSynced: 4, LocationsUpserted: 1, ReviewsNew: 4}},
		campaigns: &mockCampaigns{},
		replies:   &mockReplies{},
		connector: &mockConnector{},
		state:     NewStateCodec("test-secret"),
	}
	h := NewHandlers(Deps{
		Sync:       env.sync,
		Campaigns:  env.campaigns,
		Replies:    env.replies,
		Connectors: map[domain.Provider]Connector{domain.ProviderGoogleBusiness: env.connector},
		State:      env.state,
	})
	env.handler = SetupRoutes(h, RouteOptions{Unsubscribe: NewRateLimiter(100, 100)})
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestHealthCheck_Unavailable(t *testing.T) {
	h := NewHandlers(Deps{Ready: func(context.Context) error { return fmt.Errorf("db down") }})
	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSyncTenant(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodPost, "/api/tenants/t1/sync", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "t1", env.sync.tenant)
	assert.Equal(t, float64(4), decode(t, rr)["total_reviews_synced"])
}

func TestSyncTenant_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"not connected", fmt.Errorf("sync: %w", domain.ErrNotConnected), http.StatusConflict, "not_connected"},
		{"reconnect", domain.ErrReconnectRequired, http.StatusConflict, "reconnect_required"},
		{"provider down", fmt.Errorf("list: %w", domain.ErrExhaustedRetries), http.StatusServiceUnavailable, "provider_unavailable"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestHandlers(t)
			env.sync.err = tt.err
			rr := env.do(http.MethodPost, "/api/tenants/t1/sync", nil)
			assert.Equal(t, tt.code, rr.Code)
			assert.Equal(t, tt.kind, decode(t, rr)["code"])
		})
	}
}

func TestCreateCampaign(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodPost, "/api/tenants/t1/campaigns", map[string]string{
		"name": "Spring", "subject": "Hello {{first_name}}", "body": "<p>Hi</p>",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "Spring", env.campaigns.created.Name)
	assert.Equal(t, "draft", decode(t, rr)["status"])
}

func TestCreateCampaign_Validation(t *testing.T) {
	env := setupTestHandlers(t)
	env.campaigns.createErr = campaign.ErrMissingSubject
	rr := env.do(http.MethodPost, "/api/tenants/t1/campaigns", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid", decode(t, rr)["code"])
}

func TestCreateCampaign_MalformedJSON(t *testing.T) {
	env := setupTestHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/api/tenants/t1/campaigns", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetCampaign_NotFound(t *testing.T) {
	env := setupTestHandlers(t)
	env.campaigns.getErr = &domain.NotFoundError{Entity: "campaign", ID: "nope"}
	rr := env.do(http.MethodGet, "/api/tenants/t1/campaigns/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSendCampaign(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodPost, "/api/tenants/t1/campaigns/c1/send", map[string]any{"contact_ids": []string{"k1", "k2"}})
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"k1", "k2"}, env.campaigns.enqueued)
	assert.Equal(t, float64(3), decode(t, rr)["recipient_count"])
}

func TestSendCampaign_NoBody(t *testing.T) {
	env := setupTestHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/api/tenants/t1/campaigns/c1/send", nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Nil(t, env.campaigns.enqueued)
}

func TestSendCampaign_AlreadySent(t *testing.T) {
	env := setupTestHandlers(t)
	env.campaigns.enqueueErr = domain.ErrAlreadySent
	rr := env.do(http.MethodPost, "/api/tenants/t1/campaigns/c1/send", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "already_sent", decode(t, rr)["code"])
}

func TestRedispatchAndReport(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodPost, "/api/tenants/t1/campaigns/c9/redispatch", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "c9", env.campaigns.redispatch)

	rr = env.do(http.MethodGet, "/api/tenants/t1/campaigns/c9/report", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(2), body["counts"].(map[string]any)["sent"])
}

func TestReplies(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodPost, "/api/tenants/t1/reviews/rv1/replies", map[string]any{"content": "Thanks!", "ai_generated": true})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "rv1", decode(t, rr)["review_id"])

	rr = env.do(http.MethodPost, "/api/tenants/t1/replies/r1/publish", map[string]string{"published_by": "u1"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", env.replies.pubBy)
}

func TestReplies_EmptyContent(t *testing.T) {
	env := setupTestHandlers(t)
	env.replies.draftErr = domain.ErrEmptyInput
	rr := env.do(http.MethodPost, "/api/tenants/t1/reviews/rv1/replies", map[string]any{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnsubscribe_GetRendersPage(t *testing.T) {
	env := setupTestHandlers(t)
	for i := 0; i < 2; i++ {
		rr := env.do(http.MethodGet, "/unsubscribe/tok", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rr.Body.String(), "unsubscribed")
	}
	assert.Equal(t, 2, env.campaigns.unsubCalls)
}

func TestUnsubscribe_UnknownToken(t *testing.T) {
	env := setupTestHandlers(t)
	env.campaigns.unsubErr = &domain.NotFoundError{Entity: "recipient", ID: "tok"}
	rr := env.do(http.MethodGet, "/unsubscribe/tok", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(http.MethodPost, "/unsubscribe/tok", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnsubscribe_OneClickPost(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodPost, "/unsubscribe/tok", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["success"])
}

func TestUnsubscribe_RateLimited(t *testing.T) {
	env := setupTestHandlers(t)
	h := NewHandlers(Deps{Campaigns: env.campaigns})
	handler := SetupRoutes(h, RouteOptions{Unsubscribe: NewRateLimiter(0.001, 1)})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/unsubscribe/tok", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestOAuthFlow(t *testing.T) {
	env := setupTestHandlers(t)

	rr := env.do(http.MethodGet, "/api/tenants/t1/integrations/google_business/connect", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	consent, err := url.Parse(decode(t, rr)["url"].(string))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)

	rr = env.do(http.MethodGet, "/oauth/google_business/callback?code=abc&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "t1", env.connector.tenant)
	assert.Equal(t, "abc", env.connector.code)
}

func TestOAuthCallback_Rejects(t *testing.T) {
	env := setupTestHandlers(t)
	gmailState, err := env.state.Issue("t1", domain.ProviderGmail)
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
	}{
		{"bad state", "code=abc&state=garbage"},
		{"provider mismatch", "code=abc&state=" + url.QueryEscape(gmailState)},
		{"denied", "error=access_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodGet, "/oauth/google_business/callback?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, env.connector.code)
		})
	}
}

func TestConnect_UnknownProvider(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodGet, "/api/tenants/t1/integrations/yelp/connect", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDisconnect(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodDelete, "/api/tenants/t1/integrations/google_business", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "t1", env.connector.gone)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestHandlers(t)
	rr := env.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
