package reviewsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/provider/business"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeProvider struct {
	accounts    []business.Account
	locations   []business.Location
	reviews     map[string][]business.Review // keyed by location name
	reviewsErr  map[string]error
	accountsErr error
}

func (p *fakeProvider) ListAccounts(context.Context, string) ([]business.Account, error) {
	return p.accounts, p.accountsErr
}

func (p *fakeProvider) ListLocations(context.Context, string, string) ([]business.Location, error) {
	return p.locations, nil
}

func (p *fakeProvider) ListReviews(_ context.Context, _, _, location string) ([]business.Review, error) {
	if err := p.reviewsErr[location]; err != nil {
		return nil, err
	}
	return p.reviews[location], nil
}

type memIntegrations struct {
	in      *domain.Integration
	touched int
}

func (m *memIntegrations) Get(_ context.Context, tenantID string, p domain.Provider) (*domain.Integration, error) {
	if m.in == nil || m.in.TenantID != tenantID || m.in.Provider != p {
		return nil, &domain.NotFoundError{Entity: "integration", ID: tenantID}
	}
	return m.in, nil
}

func (m *memIntegrations) TouchLastSync(_ context.Context, _ string, at time.Time) error {
	m.touched++
	m.in.LastSyncAt = &at
	return nil
}

type memLocations struct {
	mu      sync.Mutex
	rows    map[string]*domain.Location // integration/external
	failFor string
}

func (m *memLocations) Upsert(_ context.Context, loc *domain.Location) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loc.ExternalID == m.failFor {
		return "", errors.New("constraint violation")
	}
	k := loc.IntegrationID + "/" + loc.ExternalID
	if existing, ok := m.rows[k]; ok {
		loc.ID = existing.ID
	} else {
		loc.ID = fmt.Sprintf("loc-%d", len(m.rows)+1)
	}
	cp := *loc
	m.rows[k] = &cp
	return loc.ID, nil
}

type memReviews struct {
	mu     sync.Mutex
	rows   map[string]*domain.Review // location/external
	byID   map[string]*domain.Review
	drafts map[string]bool // review id -> has draft
}

func (m *memReviews) Upsert(_ context.Context, r *domain.Review) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := r.LocationID + "/" + r.ExternalID
	if existing, ok := m.rows[k]; ok {
		status := existing.ReplyStatus
		cp := *r
		cp.ID = existing.ID
		cp.ReplyStatus = status
		m.rows[k] = &cp
		m.byID[cp.ID] = &cp
		return cp.ID, false, nil
	}
	cp := *r
	cp.ID = fmt.Sprintf("rev-%d", len(m.rows)+1)
	cp.ReplyStatus = domain.ReplyPending
	m.rows[k] = &cp
	m.byID[cp.ID] = &cp
	return cp.ID, true, nil
}

func (m *memReviews) HasDraftReply(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drafts[id], nil
}

func (m *memReviews) SetReplyStatus(_ context.Context, id string, s domain.ReplyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].ReplyStatus = s
	return nil
}

func (m *memReviews) byExternal(ext string) *domain.Review {
	for _, r := range m.rows {
		if r.ExternalID == ext {
			return r
		}
	}
	return nil
}

type fixture struct {
	provider     *fakeProvider
	integrations *memIntegrations
	locations    *memLocations
	reviews      *memReviews
	svc          *Service
}

func newFixture(concurrency int) *fixture {
	f := &fixture{
		provider: &fakeProvider{
			accounts: []business.Account{{Name: "accounts/1"}, {Name: "accounts/2"}},
			locations: []business.Location{
				{Name: "locations/10", Title: "Downtown"},
				{Name: "locations/20", Title: "Uptown"},
			},
			reviews: map[string][]business.Review{
				"locations/10": {
					{ReviewID: "a", StarRating: "FIVE", Comment: "Great"},
					{ReviewID: "b", StarRating: "TWO", ReviewReply: &business.ReviewReply{Comment: "Sorry!"}},
				},
				"locations/20": {
					{ReviewID: "c", StarRating: ""},
				},
			},
			reviewsErr: map[string]error{},
		},
		integrations: &memIntegrations{in: &domain.Integration{
			ID: "int-1", TenantID: "t1", Provider: domain.ProviderGoogleBusiness, Status: domain.IntegrationConnected,
		}},
		locations: &memLocations{rows: map[string]*domain.Location{}},
		reviews: &memReviews{
			rows:   map[string]*domain.Review{},
			byID:   map[string]*domain.Review{},
			drafts: map[string]bool{},
		},
	}
	f.svc = NewService(f.provider, f.integrations, f.locations, f.reviews, concurrency)
	return f
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSyncTenant_FirstRun(t *testing.T) {
	f := newFixture(1)

	res, err := f.svc.SyncTenant(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 2, res.LocationsUpserted)
	assert.Equal(t, 3, res.ReviewsNew)
	assert.Equal(t, 0, res.ReviewsUpdated)
	assert.Equal(t, 3, res.TotalReviewsSynced)
	assert.Empty(t, res.Errors)

	assert.Equal(t, 5, f.reviews.byExternal("a").Rating)
	assert.Equal(t, 2, f.reviews.byExternal("b").Rating)
	assert.Equal(t, 5, f.reviews.byExternal("c").Rating, "missing rating defaults to 5")
	assert.Nil(t, f.reviews.byExternal("c").Text)

	assert.Equal(t, 1, f.integrations.touched)
	assert.NotNil(t, f.integrations.in.LastSyncAt)
}

func TestSyncTenant_Idempotent(t *testing.T) {
	f := newFixture(2)

	_, err := f.svc.SyncTenant(context.Background(), "t1")
	require.NoError(t, err)
	res, err := f.svc.SyncTenant(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 0, res.ReviewsNew)
	assert.Equal(t, 3, res.ReviewsUpdated)
	assert.Len(t, f.locations.rows, 2)
	assert.Len(t, f.reviews.rows, 3)
}

func TestSyncTenant_ReplyStatusPriority(t *testing.T) {
	f := newFixture(1)

	_, err := f.svc.SyncTenant(context.Background(), "t1")
	require.NoError(t, err)

	a, b, c := f.reviews.byExternal("a"), f.reviews.byExternal("b"), f.reviews.byExternal("c")
	assert.Equal(t, domain.ReplyPending, a.ReplyStatus)
	assert.Equal(t, domain.ReplyReplied, b.ReplyStatus)

	// Local drafts on a (no provider reply) and b (provider reply).
	f.reviews.drafts[a.ID] = true
	f.reviews.drafts[b.ID] = true

	_, err = f.svc.SyncTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReplyDrafted, f.reviews.byExternal("a").ReplyStatus)
	assert.Equal(t, domain.ReplyReplied, f.reviews.byExternal("b").ReplyStatus, "provider reply wins over a local draft")
	assert.Equal(t, domain.ReplyPending, f.reviews.byExternal(c.ExternalID).ReplyStatus)

	// Provider confirms publication of a's reply: promoted to replied.
	f.provider.reviews["locations/10"][0].ReviewReply = &business.ReviewReply{Comment: "Thanks"}
	_, err = f.svc.SyncTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReplyReplied, f.reviews.byExternal("a").ReplyStatus)
}

func TestSyncTenant_PartialFailureContinues(t *testing.T) {
	f := newFixture(1)
	f.locations.failFor = "10"
	f.provider.reviewsErr["locations/20"] = &domain.ClientError{StatusCode: 403}
	f.provider.locations = append(f.provider.locations, business.Location{Name: "locations/30"})
	f.provider.reviews["locations/30"] = []business.Review{{ReviewID: "d", StarRating: "THREE"}}

	res, err := f.svc.SyncTenant(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 2, res.LocationsUpserted)
	assert.Equal(t, 1, res.ReviewsNew)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, 1, f.integrations.touched, "partial failure still stamps last sync")
}

func TestSyncTenant_CredentialErrorIsFatal(t *testing.T) {
	f := newFixture(1)
	f.provider.reviewsErr["locations/20"] = fmt.Errorf("wrapped: %w", domain.ErrReconnectRequired)

	_, err := f.svc.SyncTenant(context.Background(), "t1")
	require.ErrorIs(t, err, domain.ErrReconnectRequired)
	assert.Equal(t, 0, f.integrations.touched)
}

func TestSyncTenant_DeadlineIsFatal(t *testing.T) {
	f := newFixture(1)
	f.provider.reviewsErr["locations/10"] = fmt.Errorf("list reviews: %w", context.DeadlineExceeded)

	res, err := f.svc.SyncTenant(context.Background(), "t1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, res)
	assert.Equal(t, 0, f.integrations.touched, "a timed out run does not stamp last sync")
	assert.Nil(t, f.integrations.in.LastSyncAt)
}

func TestSyncTenant_NoAccounts(t *testing.T) {
	f := newFixture(1)
	f.provider.accounts = nil

	res, err := f.svc.SyncTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, &Result{Errors: []string{}}, res)
}

func TestSyncTenant_IntegrationChecks(t *testing.T) {
	f := newFixture(1)

	_, err := f.svc.SyncTenant(context.Background(), "other-tenant")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.integrations.in.Status = domain.IntegrationError
	_, err = f.svc.SyncTenant(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestSyncTenant_AccountsErrorIsFatal(t *testing.T) {
	f := newFixture(1)
	f.provider.accountsErr = fmt.Errorf("list: %w", domain.ErrExhaustedRetries)

	_, err := f.svc.SyncTenant(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrExhaustedRetries)
}
