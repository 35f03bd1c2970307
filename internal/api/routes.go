package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sassongal/revWave-sub000/internal/pkg/metrics"
)

// RouteOptions configures the router.
type RouteOptions struct {
	AllowedOrigins []string
	// Unsubscribe bounds requests per client to the public unsubscribe route.
	Unsubscribe *RateLimiter
}

// SetupRoutes builds the router.
func SetupRoutes(h *Handlers, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	limiter := opts.Unsubscribe
	if limiter == nil {
		limiter = NewRateLimiter(1, 5)
	}
	r.With(limiter.Middleware).Get("/unsubscribe/{token}", h.Unsubscribe)
	r.With(limiter.Middleware).Post("/unsubscribe/{token}", h.Unsubscribe)

	r.Get("/oauth/{provider}/callback", h.OAuthCallback)

	r.Route("/api/tenants/{tenantID}", func(r chi.Router) {
		r.Use(middleware.Timeout(2 * time.Minute))

		r.Get("/integrations/{provider}/connect", h.ConnectURL)
		r.Delete("/integrations/{provider}", h.Disconnect)

		r.Post("/sync", h.SyncTenant)

		r.Post("/campaigns", h.CreateCampaign)
		r.Get("/campaigns/{campaignID}", h.GetCampaign)
		r.Post("/campaigns/{campaignID}/send", h.SendCampaign)
		r.Post("/campaigns/{campaignID}/redispatch", h.Redispatch)
		r.Get("/campaigns/{campaignID}/report", h.CampaignReport)

		r.Post("/reviews/{reviewID}/replies", h.SaveDraft)
		r.Post("/replies/{replyID}/publish", h.PublishReply)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("request",
			"method", r.Method,
			"route", chi.RouteContext(r.Context()).RoutePattern(),
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
