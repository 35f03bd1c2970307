package worker

import (
	"context"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
)

var rlog = logger.With("queue-recovery")

const (
	// DefaultRecoveryInterval is how often stalled campaigns are scanned.
	DefaultRecoveryInterval = 2 * time.Minute

	// DefaultStaleAge is how long a scheduled or sending campaign may go
	// untouched before it is considered stalled.
	DefaultStaleAge = 10 * time.Minute
)

// StalledFinder lists campaigns in scheduled or sending status that still
// have pending recipients and were last updated before the cutoff.
// *postgres.CampaignRepo satisfies it.
type StalledFinder interface {
	ListStalled(ctx context.Context, before time.Time) ([]domain.CampaignRef, error)
}

// CampaignScheduler accepts a dispatch job. *DispatchQueue satisfies it.
type CampaignScheduler interface {
	Schedule(tenantID, campaignID string) error
}

// QueueRecoveryWorker reschedules campaigns whose dispatch run was lost:
// a full queue at enqueue time, a process restart, or an interrupted run.
// The per-campaign dispatch lock keeps a rescheduled run from overlapping a
// live one.
type QueueRecoveryWorker struct {
	finder    StalledFinder
	scheduler CampaignScheduler
	interval  time.Duration
	staleAge  time.Duration
	now       func() time.Time
}

// NewQueueRecoveryWorker creates a recovery worker. Zero durations take the
// defaults.
func NewQueueRecoveryWorker(finder StalledFinder, scheduler CampaignScheduler, interval, staleAge time.Duration) *QueueRecoveryWorker {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &QueueRecoveryWorker{
		finder:    finder,
		scheduler: scheduler,
		interval:  interval,
		staleAge:  staleAge,
		now:       time.Now,
	}
}

// Start runs a pass immediately and then on every interval. It blocks until
// ctx is cancelled.
func (qr *QueueRecoveryWorker) Start(ctx context.Context) {
	rlog.Info("starting", "interval", qr.interval.String(), "stale_age", qr.staleAge.String())

	qr.Recover(ctx)

	ticker := time.NewTicker(qr.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			rlog.Info("stopping")
			return
		case <-ticker.C:
			qr.Recover(ctx)
		}
	}
}

// Recover performs one scan and returns how many campaigns were rescheduled.
func (qr *QueueRecoveryWorker) Recover(ctx context.Context) int {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stalled, err := qr.finder.ListStalled(queryCtx, qr.now().Add(-qr.staleAge))
	if err != nil {
		rlog.Error("list stalled campaigns", "error", err)
		return 0
	}

	n := 0
	for _, sc := range stalled {
		if err := qr.scheduler.Schedule(sc.TenantID, sc.CampaignID); err != nil {
			// Queue full or closed; the next pass retries.
			rlog.Warn("reschedule failed", "campaign_id", sc.CampaignID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		rlog.Info("rescheduled stalled campaigns", "count", n)
	}
	return n
}
