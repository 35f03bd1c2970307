package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationRepo_Upsert(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("INSERT INTO locations .* ON CONFLICT \\(integration_id, external_id\\)").
		WithArgs(sqlmock.AnyArg(), "t1", "i1", "locations/9", "Cafe", "1 Main St", "555", "https://cafe.example",
			[]byte(`{"name":"locations/9"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("l1"))

	loc := &domain.Location{
		TenantID: "t1", IntegrationID: "i1", ExternalID: "locations/9",
		Name: "Cafe", Address: "1 Main St", Phone: "555", Website: "https://cafe.example",
		Metadata: map[string]any{"name": "locations/9"},
	}
	id, err := NewLocationRepo(db).Upsert(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, "l1", id)
	assert.Equal(t, "l1", loc.ID)
}

func TestReviewRepo_UpsertReportsCreated(t *testing.T) {
	for _, tc := range []struct {
		name    string
		created bool
	}{
		{"inserted", true},
		{"updated", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectQuery("INSERT INTO reviews .* RETURNING id, \\(xmax = 0\\)").
				WillReturnRows(sqlmock.NewRows([]string{"id", "created"}).AddRow("r1", tc.created))

			text := "Great"
			id, created, err := NewReviewRepo(db).Upsert(context.Background(), &domain.Review{
				TenantID: "t1", LocationID: "l1", ExternalID: "rev-1", Rating: 5, Text: &text,
				PublishedAt: time.Now(),
			})
			require.NoError(t, err)
			assert.Equal(t, "r1", id)
			assert.Equal(t, tc.created, created)
		})
	}
}

func TestReviewRepo_HasDraftReply(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReviewRepo(db)

	mock.ExpectQuery("SELECT is_draft FROM replies").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"is_draft"}).AddRow(true))
	mock.ExpectQuery("SELECT is_draft FROM replies").
		WithArgs("r2").
		WillReturnError(sql.ErrNoRows)

	draft, err := repo.HasDraftReply(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, draft)

	draft, err = repo.HasDraftReply(context.Background(), "r2")
	require.NoError(t, err)
	assert.False(t, draft)
}

func TestReviewRepo_GetReview(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery("FROM reviews").
		WithArgs("r1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "location_id", "external_id", "rating", "text",
			"reviewer_name", "reviewer_avatar", "published_at", "reply_status", "metadata",
			"created_at", "updated_at",
		}).AddRow("r1", "t1", "l1", "rev-1", 4, nil, "Ann", "", now, "drafted",
			[]byte(`{"name":"accounts/1/locations/2/reviews/3"}`), now, now))

	rv, err := NewReviewRepo(db).GetReview(context.Background(), "t1", "r1")
	require.NoError(t, err)
	assert.Nil(t, rv.Text)
	assert.Equal(t, domain.ReplyDrafted, rv.ReplyStatus)
	assert.Equal(t, "accounts/1/locations/2/reviews/3", rv.ResourceName())
}

func TestReviewRepo_GetReplyNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM replies").WillReturnError(sql.ErrNoRows)

	_, err := NewReviewRepo(db).GetReply(context.Background(), "t1", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReviewRepo_ReplyLifecycle(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReviewRepo(db)
	at := time.Now()

	mock.ExpectExec("INSERT INTO replies").
		WithArgs("p1", "t1", "r1", "Thanks!", true, false, false, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE replies").
		WithArgs("p1", "owner", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE reviews SET reply_status").
		WithArgs("r1", "replied").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, repo.CreateReply(ctx, &domain.Reply{
		ID: "p1", TenantID: "t1", ReviewID: "r1", Content: "Thanks!", IsDraft: true, CreatedAt: at,
	}))
	require.NoError(t, repo.MarkReplyPublished(ctx, "p1", "owner", at))
	require.NoError(t, repo.SetReplyStatus(ctx, "r1", domain.ReplyReplied))
}
