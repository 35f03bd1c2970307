package api

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/httputil"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/service/campaign"
	"github.com/sassongal/revWave-sub000/internal/service/reply"
	"github.com/sassongal/revWave-sub000/internal/service/reviewsync"
)

var log = logger.With("api")

// Syncer runs review sync for one tenant.
type Syncer interface {
	SyncTenant(ctx context.Context, tenantID string) (*reviewsync.Result, error)
}

// Campaigns is the campaign surface used by the handlers.
type Campaigns interface {
	Create(ctx context.Context, tenantID string, in campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error)
	Enqueue(ctx context.Context, tenantID, campaignID string, contactIDs []string) (*campaign.EnqueueResult, error)
	Redispatch(ctx context.Context, tenantID, campaignID string) error
	Report(ctx context.Context, tenantID, campaignID string) (*campaign.Report, error)
	Unsubscribe(ctx context.Context, token string) (*campaign.UnsubscribeResult, error)
}

// Replies is the reply workflow used by the handlers.
type Replies interface {
	SaveDraft(ctx context.Context, tenantID, reviewID string, in reply.DraftInput) (*domain.Reply, error)
	Publish(ctx context.Context, tenantID, replyID, publishedBy string) (*domain.Reply, error)
}

// Connector runs the OAuth lifecycle of one provider. *token.Manager
// satisfies it.
type Connector interface {
	AuthCodeURL(state string) (string, error)
	Connect(ctx context.Context, tenantID, code string) (*domain.Integration, error)
	Disconnect(ctx context.Context, tenantID string) error
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	sync       Syncer
	campaigns  Campaigns
	replies    Replies
	connectors map[domain.Provider]Connector
	state      *StateCodec
	ready      func(ctx context.Context) error
}

// Deps are the collaborators of Handlers. Ready backs /health and may be nil.
type Deps struct {
	Sync       Syncer
	Campaigns  Campaigns
	Replies    Replies
	Connectors map[domain.Provider]Connector
	State      *StateCodec
	Ready      func(ctx context.Context) error
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		sync:       d.Sync,
		campaigns:  d.Campaigns,
		replies:    d.Replies,
		connectors: d.Connectors,
		state:      d.State,
		ready:      d.Ready,
	}
}

// HealthCheck reports 503 when the database is unreachable.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			log.Warn("health check failed", "error", err)
			httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httputil.OK(w, map[string]string{"status": "ok"})
}

// --- integrations ---

func (h *Handlers) connector(w http.ResponseWriter, r *http.Request) (Connector, domain.Provider, bool) {
	p := domain.Provider(chi.URLParam(r, "provider"))
	c, ok := h.connectors[p]
	if !ok {
		httputil.Error(w, http.StatusNotFound, "unknown_provider", "unknown provider "+string(p))
		return nil, p, false
	}
	return c, p, true
}

// ConnectURL returns the provider consent URL for the tenant.
func (h *Handlers) ConnectURL(w http.ResponseWriter, r *http.Request) {
	c, p, ok := h.connector(w, r)
	if !ok {
		return
	}
	state, err := h.state.Issue(chi.URLParam(r, "tenantID"), p)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	url, err := c.AuthCodeURL(state)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"url": url})
}

// OAuthCallback completes the consent redirect.
func (h *Handlers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	c, p, ok := h.connector(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		httputil.BadRequest(w, "authorization denied: "+e)
		return
	}
	tenantID, stateProvider, err := h.state.Verify(q.Get("state"))
	if err != nil || stateProvider != p {
		httputil.Error(w, http.StatusBadRequest, "invalid_state", "invalid or expired state")
		return
	}
	code := q.Get("code")
	if code == "" {
		httputil.BadRequest(w, "missing code")
		return
	}

	in, err := c.Connect(r.Context(), tenantID, code)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, in)
}

func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	c, _, ok := h.connector(w, r)
	if !ok {
		return
	}
	if err := c.Disconnect(r.Context(), chi.URLParam(r, "tenantID")); err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.NoContent(w)
}

// --- sync ---

// SyncTenant runs a sync in the request and returns the result, including
// per-entity errors on partial success.
func (h *Handlers) SyncTenant(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.SyncTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, res)
}

// --- campaigns ---

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), chi.URLParam(r, "tenantID"), in)
	if errors.Is(err, campaign.ErrMissingName) || errors.Is(err, campaign.ErrMissingSubject) {
		err = httputil.Invalid(err)
	}
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, c)
}

type sendRequest struct {
	ContactIDs []string `json:"contact_ids"`
}

// SendCampaign enqueues the campaign. Delivery happens in the background.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.campaigns.Enqueue(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "campaignID"), req.ContactIDs)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Accepted(w, res)
}

func (h *Handlers) Redispatch(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Redispatch(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "campaignID")); err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"status": "scheduled"})
}

func (h *Handlers) CampaignReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.campaigns.Report(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, rep)
}

// --- replies ---

func (h *Handlers) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var in reply.DraftInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	rp, err := h.replies.SaveDraft(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "reviewID"), in)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.Created(w, rp)
}

type publishRequest struct {
	PublishedBy string `json:"published_by"`
}

func (h *Handlers) PublishReply(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	rp, err := h.replies.Publish(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "replyID"), req.PublishedBy)
	if err != nil {
		httputil.FromError(w, err)
		return
	}
	httputil.OK(w, rp)
}

// --- unsubscribe ---

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body style="font-family:sans-serif;text-align:center;padding:48px">
<h1>{{.Title}}</h1><p>{{.Message}}</p>
</body></html>`))

// Unsubscribe serves both the footer link (GET) and one-click
// List-Unsubscribe-Post (POST). Repeated calls succeed.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	res, err := h.campaigns.Unsubscribe(r.Context(), chi.URLParam(r, "token"))
	if r.Method == http.MethodPost {
		if err != nil {
			httputil.FromError(w, err)
			return
		}
		httputil.OK(w, res)
		return
	}

	data := struct{ Title, Message string }{"You're unsubscribed", "You will no longer receive these emails."}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		data.Title, data.Message = "Something went wrong", "Please try the link again later."
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
			data.Title, data.Message = "Link not recognised", "This unsubscribe link is invalid or has expired."
		} else {
			log.Error("unsubscribe failed", "error", err)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := unsubscribePage.Execute(w, data); err != nil {
		log.Warn("render unsubscribe page", "error", err)
	}
}
