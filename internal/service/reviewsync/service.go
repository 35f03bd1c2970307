// Package reviewsync reconciles provider locations and reviews into local
// tenant-scoped storage. Every write is an upsert keyed by stable external
// ids, so running a sync twice against an unchanged upstream is a no-op.
package reviewsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/pkg/metrics"
	"github.com/sassongal/revWave-sub000/internal/provider/business"
	"golang.org/x/sync/errgroup"
)

var log = logger.With("reviewsync")

// Result summarises one sync run.
type Result struct {
	LocationsUpserted  int      `json:"locations_upserted"`
	ReviewsNew         int      `json:"reviews_new"`
	ReviewsUpdated     int      `json:"reviews_updated"`
	TotalReviewsSynced int      `json:"total_reviews_synced"`
	Errors             []string `json:"errors"`
}

// Service runs tenant syncs.
type Service struct {
	provider     Provider
	integrations IntegrationStore
	locations    LocationStore
	reviews      ReviewStore
	concurrency  int
	now          func() time.Time
}

// NewService creates a reconciler. concurrency bounds how many locations are
// processed at once; values below 1 mean sequential.
func NewService(p Provider, integrations IntegrationStore, locations LocationStore, reviews ReviewStore, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		provider:     p,
		integrations: integrations,
		locations:    locations,
		reviews:      reviews,
		concurrency:  concurrency,
		now:          time.Now,
	}
}

// SyncTenant pulls every location and review of the tenant's first account.
// Per-location and per-review failures are collected in Result.Errors;
// credential failures abort the run.
func (s *Service) SyncTenant(ctx context.Context, tenantID string) (*Result, error) {
	start := s.now()
	res, err := s.syncTenant(ctx, tenantID)

	outcome := "success"
	switch {
	case err != nil:
		outcome = "failed"
	case len(res.Errors) > 0:
		outcome = "partial"
	}
	metrics.SyncRunsTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		log.Error("sync failed", "tenant_id", tenantID, "error", err)
		return nil, err
	}
	log.Info("sync completed",
		"tenant_id", tenantID,
		"locations", res.LocationsUpserted,
		"reviews_new", res.ReviewsNew,
		"reviews_updated", res.ReviewsUpdated,
		"errors", len(res.Errors),
		"duration", s.now().Sub(start),
	)
	return res, nil
}

func (s *Service) syncTenant(ctx context.Context, tenantID string) (*Result, error) {
	integ, err := s.integrations.Get(ctx, tenantID, domain.ProviderGoogleBusiness)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load integration: %w", err)
	}
	if !integ.IsConnected() {
		return nil, &domain.IntegrationStatusError{Status: integ.Status}
	}

	res := &Result{Errors: []string{}}

	accounts, err := s.provider.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		s.touch(ctx, integ)
		return res, nil
	}
	account := accounts[0].Name

	locs, err := s.provider.ListLocations(ctx, tenantID, account)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range locs {
		loc := locs[i]
		g.Go(func() error {
			part, err := s.syncLocation(gctx, tenantID, integ.ID, account, &loc)
			mu.Lock()
			res.merge(part)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.touch(ctx, integ)
	return res, nil
}

// syncLocation upserts one location and its reviews. Only fatal errors are
// returned; everything else is recorded on the partial result.
func (s *Service) syncLocation(ctx context.Context, tenantID, integrationID, account string, ext *business.Location) (*Result, error) {
	part := &Result{}

	loc := &domain.Location{
		TenantID:      tenantID,
		IntegrationID: integrationID,
		ExternalID:    ext.ExternalID(),
		Name:          ext.Title,
		Address:       ext.StorefrontAddress.String(),
		Phone:         ext.Phone(),
		Website:       ext.WebsiteURI,
		Metadata:      locationMetadata(ext),
	}
	locID, err := s.locations.Upsert(ctx, loc)
	if err != nil {
		part.fail("location %s: upsert: %v", ext.Name, err)
		return part, nil
	}
	part.LocationsUpserted = 1

	reviews, err := s.provider.ListReviews(ctx, tenantID, account, ext.Name)
	if err != nil {
		if isFatal(err) {
			return part, fmt.Errorf("list reviews for %s: %w", ext.Name, err)
		}
		part.fail("location %s: list reviews: %v", ext.Name, err)
		return part, nil
	}

	for i := range reviews {
		if err := s.syncReview(ctx, tenantID, locID, &reviews[i], part); err != nil {
			part.fail("review %s: %v", reviews[i].ExternalID(), err)
		}
	}
	return part, nil
}

func (s *Service) syncReview(ctx context.Context, tenantID, locationID string, ext *business.Review, part *Result) error {
	r := &domain.Review{
		TenantID:       tenantID,
		LocationID:     locationID,
		ExternalID:     ext.ExternalID(),
		Rating:         business.StarRating(ext.StarRating),
		ReviewerName:   ext.Reviewer.DisplayName,
		ReviewerAvatar: ext.Reviewer.ProfilePhotoURL,
		PublishedAt:    ext.CreateTime,
		ReplyStatus:    domain.ReplyPending,
		Metadata:       reviewMetadata(ext),
	}
	if ext.Comment != "" {
		text := ext.Comment
		r.Text = &text
	}

	id, created, err := s.reviews.Upsert(ctx, r)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if created {
		part.ReviewsNew++
		metrics.ReviewsSyncedTotal.WithLabelValues("new").Inc()
	} else {
		part.ReviewsUpdated++
		metrics.ReviewsSyncedTotal.WithLabelValues("updated").Inc()
	}
	part.TotalReviewsSynced++

	status, err := s.replyStatus(ctx, id, ext)
	if err != nil {
		return err
	}
	if err := s.reviews.SetReplyStatus(ctx, id, status); err != nil {
		return fmt.Errorf("set reply status: %w", err)
	}
	return nil
}

// replyStatus applies the priority: provider reply, then local draft, then
// pending.
func (s *Service) replyStatus(ctx context.Context, reviewID string, ext *business.Review) (domain.ReplyStatus, error) {
	if ext.HasReply() {
		return domain.ReplyReplied, nil
	}
	hasDraft, err := s.reviews.HasDraftReply(ctx, reviewID)
	if err != nil {
		return "", fmt.Errorf("check draft reply: %w", err)
	}
	if hasDraft {
		return domain.ReplyDrafted, nil
	}
	return domain.ReplyPending, nil
}

func (s *Service) touch(ctx context.Context, integ *domain.Integration) {
	if err := s.integrations.TouchLastSync(ctx, integ.ID, s.now()); err != nil {
		log.Warn("failed to stamp last sync", "integration_id", integ.ID, "error", err)
	}
}

func (r *Result) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	metrics.SyncEntityErrorsTotal.Inc()
}

func (r *Result) merge(o *Result) {
	if o == nil {
		return
	}
	r.LocationsUpserted += o.LocationsUpserted
	r.ReviewsNew += o.ReviewsNew
	r.ReviewsUpdated += o.ReviewsUpdated
	r.TotalReviewsSynced += o.TotalReviewsSynced
	r.Errors = append(r.Errors, o.Errors...)
}

// isFatal reports errors that mean the tenant's credentials are unusable or
// the run's context is done.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrNotConnected) ||
		errors.Is(err, domain.ErrNoRefreshToken) ||
		errors.Is(err, domain.ErrReconnectRequired) ||
		errors.Is(err, domain.ErrRefreshFailed) ||
		errors.Is(err, domain.ErrDecryptionFailed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func locationMetadata(ext *business.Location) map[string]any {
	md := map[string]any{"name": ext.Name}
	for k, v := range ext.Metadata {
		md[k] = v
	}
	return md
}

func reviewMetadata(ext *business.Review) map[string]any {
	md := map[string]any{
		"name":        ext.Name,
		"star_rating": ext.StarRating,
		"update_time": ext.UpdateTime,
	}
	if ext.ReviewReply != nil {
		md["reply_comment"] = ext.ReviewReply.Comment
		md["reply_update_time"] = ext.ReviewReply.UpdateTime
	}
	return md
}
