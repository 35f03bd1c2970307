package reviewsync

import (
	"context"
	"time"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/provider/business"
)

// Provider is the read side of the business-profile API.
// *business.Client satisfies it.
type Provider interface {
	ListAccounts(ctx context.Context, tenantID string) ([]business.Account, error)
	ListLocations(ctx context.Context, tenantID, account string) ([]business.Location, error)
	ListReviews(ctx context.Context, tenantID, account, location string) ([]business.Review, error)
}

// IntegrationStore reads the tenant's integration and stamps sync time.
type IntegrationStore interface {
	Get(ctx context.Context, tenantID string, provider domain.Provider) (*domain.Integration, error)
	TouchLastSync(ctx context.Context, integrationID string, at time.Time) error
}

// LocationStore upserts locations keyed by (IntegrationID, ExternalID).
type LocationStore interface {
	// Upsert creates or overwrites the mutable fields of the location and
	// returns the local id.
	Upsert(ctx context.Context, loc *domain.Location) (string, error)
}

// ReviewStore upserts reviews keyed by (LocationID, ExternalID) and owns
// the derived reply status.
type ReviewStore interface {
	// Upsert returns the local id and whether the row was created. Reply
	// status is set to pending on insert and left alone on update.
	Upsert(ctx context.Context, r *domain.Review) (id string, created bool, err error)
	HasDraftReply(ctx context.Context, reviewID string) (bool, error)
	SetReplyStatus(ctx context.Context, reviewID string, status domain.ReplyStatus) error
}
