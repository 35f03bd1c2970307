// Package reply drafts and publishes owner replies to reviews and keeps the
// review's derived reply status in step.
package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/provider/business"
)

var log = logger.With("reply")

// Repository is the storage the reply workflow needs.
type Repository interface {
	// GetReview returns an error matching domain.ErrNotFound when missing.
	GetReview(ctx context.Context, tenantID, reviewID string) (*domain.Review, error)
	SetReplyStatus(ctx context.Context, reviewID string, status domain.ReplyStatus) error

	CreateReply(ctx context.Context, r *domain.Reply) error
	// GetReply returns an error matching domain.ErrNotFound when missing.
	GetReply(ctx context.Context, tenantID, replyID string) (*domain.Reply, error)
	MarkReplyPublished(ctx context.Context, replyID, publishedBy string, at time.Time) error
}

// Publisher pushes a reply to the provider. *business.Client satisfies it.
type Publisher interface {
	UpdateReply(ctx context.Context, tenantID, review, comment string) (*business.ReviewReply, error)
}

// Service implements the draft → publish workflow.
type Service struct {
	repo      Repository
	publisher Publisher
	now       func() time.Time
}

// NewService creates a reply service.
func NewService(repo Repository, publisher Publisher) *Service {
	return &Service{repo: repo, publisher: publisher, now: time.Now}
}

// DraftInput holds the fields of a new draft reply.
type DraftInput struct {
	Content     string `json:"content"`
	AIGenerated bool   `json:"ai_generated"`
	AIEdited    bool   `json:"ai_edited"`
}

// SaveDraft stores a draft reply and marks the review drafted. A review the
// provider already shows as replied keeps that status.
func (s *Service) SaveDraft(ctx context.Context, tenantID, reviewID string, in DraftInput) (*domain.Reply, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("reply content: %w", domain.ErrEmptyInput)
	}

	review, err := s.repo.GetReview(ctx, tenantID, reviewID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := &domain.Reply{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		ReviewID:    review.ID,
		Content:     content,
		IsDraft:     true,
		AIGenerated: in.AIGenerated,
		AIEdited:    in.AIEdited,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateReply(ctx, r); err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}

	if review.ReplyStatus != domain.ReplyReplied {
		if err := s.repo.SetReplyStatus(ctx, review.ID, domain.ReplyDrafted); err != nil {
			return nil, fmt.Errorf("set reply status: %w", err)
		}
	}
	return r, nil
}

// Publish sends a stored reply to the provider and marks it published.
// Publishing an already published reply is a no-op.
func (s *Service) Publish(ctx context.Context, tenantID, replyID, publishedBy string) (*domain.Reply, error) {
	r, err := s.repo.GetReply(ctx, tenantID, replyID)
	if err != nil {
		return nil, err
	}
	if !r.IsDraft {
		return r, nil
	}

	review, err := s.repo.GetReview(ctx, tenantID, r.ReviewID)
	if err != nil {
		return nil, err
	}
	name := review.ResourceName()
	if name == "" {
		return nil, fmt.Errorf("review %s has no provider resource name, sync it first", review.ID)
	}

	if _, err := s.publisher.UpdateReply(ctx, tenantID, name, r.Content); err != nil {
		return nil, fmt.Errorf("publish reply: %w", err)
	}

	now := s.now()
	if err := s.repo.MarkReplyPublished(ctx, r.ID, publishedBy, now); err != nil {
		return nil, fmt.Errorf("mark reply published: %w", err)
	}
	if err := s.repo.SetReplyStatus(ctx, review.ID, domain.ReplyReplied); err != nil {
		return nil, fmt.Errorf("set reply status: %w", err)
	}

	r.IsDraft = false
	r.PublishedAt = &now
	if publishedBy != "" {
		r.PublishedBy = &publishedBy
	}
	log.Info("reply published", "tenant_id", tenantID, "review_id", review.ID, "reply_id", r.ID)
	return r, nil
}
