package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/service/reviewsync"
)

// DefaultSyncSchedule runs a full review sync every six hours.
const DefaultSyncSchedule = "0 */6 * * *"

var synclog = logger.With("sync-scheduler")

// TenantLister returns the tenants with a connected integration.
type TenantLister interface {
	ListConnected(ctx context.Context, provider domain.Provider) ([]string, error)
}

// TenantSyncer syncs one tenant. *reviewsync.Service satisfies it.
type TenantSyncer interface {
	SyncTenant(ctx context.Context, tenantID string) (*reviewsync.Result, error)
}

// SyncScheduler runs review sync for every connected tenant on a cron
// schedule. Runs never overlap; a tick that fires while the previous run is
// still going is skipped.
type SyncScheduler struct {
	tenants TenantLister
	syncer  TenantSyncer
	timeout time.Duration

	cron    *cron.Cron
	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSyncScheduler parses schedule as a standard five-field cron spec.
// timeout bounds each tenant's sync; zero means no bound.
func NewSyncScheduler(tenants TenantLister, syncer TenantSyncer, schedule string, timeout time.Duration) (*SyncScheduler, error) {
	if schedule == "" {
		schedule = DefaultSyncSchedule
	}
	s := &SyncScheduler{tenants: tenants, syncer: syncer, timeout: timeout}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start begins firing on schedule.
func (s *SyncScheduler) Start() {
	synclog.Info("sync scheduler started")
	s.cron.Start()
}

// Stop cancels a run in progress and waits for it to return.
func (s *SyncScheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	synclog.Info("sync scheduler stopped")
}

func (s *SyncScheduler) tick() {
	if !s.running.TryLock() {
		synclog.Warn("previous sync still running, tick skipped")
		return
	}
	defer s.running.Unlock()
	s.RunOnce(s.ctx)
}

// RunSummary totals one pass over all tenants.
type RunSummary struct {
	Tenants int
	Failed  int
	Reviews int
}

// RunOnce syncs every connected tenant sequentially. One tenant's failure
// does not stop the others.
func (s *SyncScheduler) RunOnce(ctx context.Context) RunSummary {
	var sum RunSummary

	ids, err := s.tenants.ListConnected(ctx, domain.ProviderGoogleBusiness)
	if err != nil {
		synclog.Error("list connected tenants", "error", err)
		return sum
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		sum.Tenants++

		tctx, cancel := ctx, context.CancelFunc(func() {})
		if s.timeout > 0 {
			tctx, cancel = context.WithTimeout(ctx, s.timeout)
		}
		res, err := s.syncer.SyncTenant(tctx, id)
		cancel()
		if err != nil {
			sum.Failed++
			synclog.Error("tenant sync failed", "tenant_id", id, "error", err)
			continue
		}
		sum.Reviews += res.TotalReviewsSynced
	}

	synclog.Info("scheduled sync finished", "tenants", sum.Tenants, "failed", sum.Failed, "reviews", sum.Reviews)
	return sum
}
