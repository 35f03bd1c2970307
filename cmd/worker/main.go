package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sassongal/revWave-sub000/internal/app"
	"github.com/sassongal/revWave-sub000/internal/config"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	"github.com/sassongal/revWave-sub000/internal/worker"
	"github.com/spf13/cobra"
)

var log = logger.With("worker")

type options struct {
	configPath string
	once       bool
	timeout    time.Duration
}

func main() {
	var opts options
	root := &cobra.Command{
		Use:           "worker",
		Short:         "Run scheduled review sync and campaign dispatch",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	root.Flags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to config file")
	root.Flags().BoolVar(&opts.once, "once", false, "run a single sync pass and exit")
	root.Flags().DurationVar(&opts.timeout, "tenant-timeout", 10*time.Minute, "per-tenant sync timeout")

	if err := root.Execute(); err != nil {
		log.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadFromEnv(opts.configPath)
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

	sched, err := worker.NewSyncScheduler(a.Integrations, a.Sync, cfg.Sync.Schedule, opts.timeout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.once {
		sum := sched.RunOnce(ctx)
		if sum.Failed > 0 {
			return fmt.Errorf("%d of %d tenants failed to sync", sum.Failed, sum.Tenants)
		}
		return nil
	}

	sched.Start()
	defer sched.Stop()
	log.Info("worker running", "schedule", cfg.Sync.Schedule)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Info("shutting down")
	return nil
}
