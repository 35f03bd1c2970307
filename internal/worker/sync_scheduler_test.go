package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/service/reviewsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTenants struct {
	ids []string
	err error
	got domain.Provider
}

func (s *staticTenants) ListConnected(_ context.Context, p domain.Provider) ([]string, error) {
	s.got = p
	return s.ids, s.err
}

type scriptedSyncer struct {
	fail      map[string]bool
	calls     []string
	deadlines []bool
}

func (s *scriptedSyncer) SyncTenant(ctx context.Context, tenantID string) (*reviewsync.Result, error) {
	s.calls = append(s.calls, tenantID)
	_, has := ctx.Deadline()
	s.deadlines = append(s.deadlines, has)
	if s.fail[tenantID] {
		return nil, domain.ErrReconnectRequired
	}
	return &reviewsync.Result{TotalReviewsSynced: 3}, nil
}

func TestSyncScheduler_RunOnce(t *testing.T) {
	tenants := &staticTenants{ids: []string{"t1", "t2", "t3"}}
	syncer := &scriptedSyncer{fail: map[string]bool{"t2": true}}

	s, err := NewSyncScheduler(tenants, syncer, "", time.Minute)
	require.NoError(t, err)

	sum := s.RunOnce(context.Background())
	assert.Equal(t, RunSummary{Tenants: 3, Failed: 1, Reviews: 6}, sum)
	assert.Equal(t, []string{"t1", "t2", "t3"}, syncer.calls)
	assert.Equal(t, []bool{true, true, true}, syncer.deadlines)
	assert.Equal(t, domain.ProviderGoogleBusiness, tenants.got)
}

func TestSyncScheduler_ListError(t *testing.T) {
	syncer := &scriptedSyncer{}
	s, err := NewSyncScheduler(&staticTenants{err: errors.New("db down")}, syncer, "@hourly", 0)
	require.NoError(t, err)

	assert.Equal(t, RunSummary{}, s.RunOnce(context.Background()))
	assert.Empty(t, syncer.calls)
}

func TestSyncScheduler_StopsOnCancel(t *testing.T) {
	syncer := &scriptedSyncer{}
	s, err := NewSyncScheduler(&staticTenants{ids: []string{"t1", "t2"}}, syncer, "", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := s.RunOnce(ctx)
	assert.Zero(t, sum.Tenants)
	assert.Empty(t, syncer.calls)
}

func TestSyncScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewSyncScheduler(&staticTenants{}, &scriptedSyncer{}, "not a cron", 0)
	assert.Error(t, err)
}

func TestSyncScheduler_StartStop(t *testing.T) {
	s, err := NewSyncScheduler(&staticTenants{}, &scriptedSyncer{}, "@every 1h", 0)
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
