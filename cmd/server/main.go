package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sassongal/revWave-sub000/internal/api"
	"github.com/sassongal/revWave-sub000/internal/app"
	"github.com/sassongal/revWave-sub000/internal/config"
	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/spf13/cobra"
)

var log = logger.With("server")

func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "server",
		Short:         "Serve the review and campaign API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	if err := root.Execute(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	a, err := app.New(startCtx, cfg)
	startCancel()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Dispatch.Start(ctx)
	defer a.Dispatch.Stop()
	go a.Recovery.Start(ctx)

	limiter := api.NewRateLimiter(1, 10)
	go sweep(ctx, limiter)

	handlers := api.NewHandlers(api.Deps{
		Sync:      a.Sync,
		Campaigns: a.Campaigns,
		Replies:   a.Replies,
		Connectors: map[domain.Provider]api.Connector{
			domain.ProviderGoogleBusiness: a.Business,
			domain.ProviderGmail:          a.Gmail,
		},
		State: api.NewStateCodec(app.StateSecret(cfg)),
		Ready: a.Ping,
	})
	server := api.NewServer(cfg.Server, handlers, limiter)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr(), "public_url", cfg.Server.PublicBaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	return nil
}

func sweep(ctx context.Context, rl *api.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}
