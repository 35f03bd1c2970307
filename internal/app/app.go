// Package app wires configuration into the services shared by the API
// server and the background worker.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sassongal/revWave-sub000/internal/config"
	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/distlock"
	"github.com/sassongal/revWave-sub000/internal/pkg/httpretry"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/pkg/metrics"
	"github.com/sassongal/revWave-sub000/internal/provider/business"
	"github.com/sassongal/revWave-sub000/internal/provider/gmail"
	"github.com/sassongal/revWave-sub000/internal/repository/postgres"
	"github.com/sassongal/revWave-sub000/internal/service/campaign"
	"github.com/sassongal/revWave-sub000/internal/service/reply"
	"github.com/sassongal/revWave-sub000/internal/service/reviewsync"
	"github.com/sassongal/revWave-sub000/internal/service/sending"
	"github.com/sassongal/revWave-sub000/internal/service/token"
	"github.com/sassongal/revWave-sub000/internal/vault"
	"github.com/sassongal/revWave-sub000/internal/worker"
	"golang.org/x/oauth2"
)

var log = logger.With("app")

// App holds the wired services. Close releases the database and Redis.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client

	Integrations *postgres.IntegrationRepo
	Business     *token.Manager
	Gmail        *token.Manager
	Sync         *reviewsync.Service
	Replies      *reply.Service
	Campaigns    *campaign.Service
	Locks        *distlock.Factory
	Dispatch     *worker.DispatchQueue
	Recovery     *worker.QueueRecoveryWorker
}

// New opens storage and builds every service. The dispatch queue and the
// recovery worker are created but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}
	metrics.Register()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}
	a.Redis = openRedis(ctx, cfg.Redis)

	v, err := vault.NewFromEncodedKey(cfg.Vault.EncryptionKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("vault: %w", err)
	}

	g := cfg.Google
	httpClient := &http.Client{Timeout: g.Timeout()}
	retry := func() *httpretry.RetryClient { return httpretry.NewRetryClient(httpClient, g.MaxAttempts) }

	a.Integrations = postgres.NewIntegrationRepo(db)

	businessOAuth := oauthConfig(cfg, domain.ProviderGoogleBusiness, g.BusinessScopes)
	a.Business = token.NewManager(domain.ProviderGoogleBusiness, a.Integrations, v,
		token.NewLibraryRefresher(businessOAuth, httpClient),
		token.Options{OAuth: businessOAuth, UserInfoURL: g.UserInfoURL, HTTPClient: httpClient})

	gmailOAuth := oauthConfig(cfg, domain.ProviderGmail, g.GmailScopes)
	a.Gmail = token.NewManager(domain.ProviderGmail, a.Integrations, v,
		token.NewFormRefresher(g.TokenURL, g.ClientID, g.ClientSecret, retry()),
		token.Options{OAuth: gmailOAuth, UserInfoURL: g.UserInfoURL, HTTPClient: httpClient})

	businessClient := business.NewClient(a.Business, retry(), business.Endpoints{
		Accounts: g.AccountsBaseURL,
		Info:     g.InfoBaseURL,
		Reviews:  g.ReviewsBaseURL,
	})
	gmailClient := gmail.NewClient(a.Gmail, retry(), g.GmailBaseURL)

	reviews := postgres.NewReviewRepo(db)
	a.Sync = reviewsync.NewService(businessClient, a.Integrations, postgres.NewLocationRepo(db), reviews, cfg.Sync.Concurrency)
	a.Replies = reply.NewService(reviews, businessClient)

	shared := sending.NewSMTPSender(sending.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	campaigns := postgres.NewCampaignRepo(db)
	a.Campaigns = campaign.NewService(campaign.Deps{
		Campaigns:  campaigns,
		Contacts:   postgres.NewContactRepo(db),
		Recipients: postgres.NewRecipientRepo(db),
		Channels:   sending.NewSelector(a.Integrations, shared, gmailClient),
		Composer:   sending.NewComposer(cfg.Server.PublicBaseURL),
	}, cfg.Dispatch.Throttle())

	a.Locks = distlock.NewFactory(a.Redis, db, cfg.Dispatch.LockTTL())
	a.Dispatch = worker.NewDispatchQueue(a.Campaigns, a.Locks, cfg.Dispatch.QueueSize)
	a.Campaigns.SetScheduler(a.Dispatch)
	a.Recovery = worker.NewQueueRecoveryWorker(campaigns, a.Dispatch, 0, 0)

	log.Info("services wired", "lock_backend", a.Locks.Backend(), "throttle", cfg.Dispatch.Throttle().String())
	return a, nil
}

// Ping reports whether the database answers.
func (a *App) Ping(ctx context.Context) error {
	return a.DB.PingContext(ctx)
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn("close redis", "error", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		log.Warn("close database", "error", err)
	}
}

// openRedis returns nil when Redis is not configured or unreachable, in
// which case dispatch locks use Postgres.
func openRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, falling back to advisory locks", "error", err)
		client.Close()
		return nil
	}
	return client
}

func oauthConfig(cfg *config.Config, p domain.Provider, scopes []string) *oauth2.Config {
	g := cfg.Google
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  RedirectURL(cfg, p),
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  g.AuthURL,
			TokenURL: g.TokenURL,
		},
	}
}

// RedirectURL is the callback for provider p. A configured redirect URL may
// carry a {provider} placeholder.
func RedirectURL(cfg *config.Config, p domain.Provider) string {
	if cfg.Google.RedirectURL != "" {
		return strings.ReplaceAll(cfg.Google.RedirectURL, "{provider}", string(p))
	}
	return strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/oauth/" + string(p) + "/callback"
}

// StateSecret is the key that signs OAuth state.
func StateSecret(cfg *config.Config) string {
	if cfg.Server.StateSecret != "" {
		return cfg.Server.StateSecret
	}
	return cfg.Vault.EncryptionKey
}
