package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sassongal/revWave-sub000/internal/pkg/distlock"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/pkg/metrics"
	"github.com/sassongal/revWave-sub000/internal/service/campaign"
)

var (
	ErrQueueFull   = errors.New("dispatch queue full")
	ErrQueueClosed = errors.New("dispatch queue closed")
)

// DefaultQueueSize is the number of dispatch jobs that may wait at once.
const DefaultQueueSize = 100

var dlog = logger.With("dispatch-queue")

// Dispatcher runs one dispatch pass for a campaign.
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID, campaignID string) (*campaign.DispatchResult, error)
}

// LockFactory hands out per-key locks. *distlock.Factory satisfies it.
type LockFactory interface {
	New(key string) distlock.Lock
}

type dispatchJob struct {
	tenantID   string
	campaignID string
}

// DispatchQueue runs campaign dispatches in the background, one at a time.
// A campaign never dispatches in two places at once: every job takes the
// "dispatch:<campaign>" lock and is dropped if someone else holds it.
//
// Jobs still queued at Stop are not persisted. Their recipients stay
// pending until QueueRecoveryWorker or a Redispatch schedules them again.
type DispatchQueue struct {
	dispatcher Dispatcher
	locks      LockFactory
	jobs       chan dispatchJob

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
	onIdle func() // test hook, called after each job
}

// NewDispatchQueue creates a queue with room for size jobs.
func NewDispatchQueue(d Dispatcher, locks LockFactory, size int) *DispatchQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &DispatchQueue{
		dispatcher: d,
		locks:      locks,
		jobs:       make(chan dispatchJob, size),
	}
}

// Schedule queues a dispatch without blocking. It satisfies
// campaign.Scheduler.
func (q *DispatchQueue) Schedule(tenantID, campaignID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- dispatchJob{tenantID: tenantID, campaignID: campaignID}:
		metrics.DispatchQueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		metrics.DispatchQueueDroppedTotal.Inc()
		dlog.Warn("dispatch job dropped", "campaign_id", campaignID, "capacity", cap(q.jobs))
		return ErrQueueFull
	}
}

// Start launches the consumer goroutine. It returns immediately.
func (q *DispatchQueue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(1)
	go q.loop(ctx)
	dlog.Info("dispatch queue started", "capacity", cap(q.jobs))
}

// Stop rejects new jobs, cancels the running dispatch and waits for the
// consumer to exit.
func (q *DispatchQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	if n := len(q.jobs); n > 0 {
		dlog.Warn("dispatch queue stopped with jobs waiting", "jobs", n)
	}
	dlog.Info("dispatch queue stopped")
}

// Len returns the number of waiting jobs.
func (q *DispatchQueue) Len() int { return len(q.jobs) }

func (q *DispatchQueue) loop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			metrics.DispatchQueueDepth.Set(float64(len(q.jobs)))
			q.run(ctx, job)
			if q.onIdle != nil {
				q.onIdle()
			}
		}
	}
}

func (q *DispatchQueue) run(ctx context.Context, job dispatchJob) {
	lock := q.locks.New("dispatch:" + job.campaignID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		dlog.Error("dispatch lock unavailable, job skipped", "campaign_id", job.campaignID, "error", err)
		return
	}
	if !ok {
		dlog.Info("dispatch already running elsewhere", "campaign_id", job.campaignID)
		return
	}
	defer func() {
		// Release on a fresh context so a cancelled run still frees the lock.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
			dlog.Warn("dispatch lock release failed", "campaign_id", job.campaignID, "error", err)
		}
	}()

	if ext, ok := lock.(expiringLock); ok {
		stop := keepAlive(ctx, ext, job.campaignID)
		defer stop()
	}

	start := time.Now()
	res, err := q.dispatcher.Dispatch(ctx, job.tenantID, job.campaignID)
	if err != nil {
		dlog.Error("dispatch failed", "tenant_id", job.tenantID, "campaign_id", job.campaignID, "error", err)
		return
	}
	dlog.Info("dispatch job done",
		"campaign_id", job.campaignID,
		"status", res.Status,
		"sent", res.Sent,
		"failed", res.Failed,
		"duration", time.Since(start).String(),
	)
}

// expiringLock is a lock with a TTL that must be refreshed while held.
// *distlock.RedisLock satisfies it.
type expiringLock interface {
	TTL() time.Duration
	Extend(ctx context.Context, ttl time.Duration) error
}

// keepAlive extends the lock every third of its TTL until stop is called.
func keepAlive(ctx context.Context, l expiringLock, campaignID string) (stop func()) {
	ttl := l.TTL()
	if ttl <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(ctx, ttl); err != nil {
					dlog.Warn("dispatch lock extend failed", "campaign_id", campaignID, "error", err)
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
