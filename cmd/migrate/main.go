package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sassongal/revWave-sub000/internal/config"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
	pgrepo "github.com/sassongal/revWave-sub000/internal/repository/postgres"
	"github.com/spf13/cobra"
)

var log = logger.With("migrate")

func main() {
	var configPath, dir string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	root.PersistentFlags().StringVarP(&dir, "dir", "d", "", "migrations directory (default from config)")

	open := func() (*migrate.Migrate, func(), error) {
		cfg, err := config.LoadFromEnv(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		if cfg.Database.URL == "" {
			return nil, nil, errors.New("DATABASE_URL is required")
		}
		if dir == "" {
			dir = cfg.Database.MigrationsPath
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := pgrepo.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		driver, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("create migration driver: %w", err)
		}
		m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("create migration instance: %w", err)
		}
		return m, func() { m.Close() }, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("run migrations: %w", err)
			}
			return report(m)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (one step by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				steps = n
			}
			m, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("roll back: %w", err)
			}
			return report(m)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()
			return report(m)
		},
	})

	if err := root.Execute(); err != nil {
		log.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func report(m *migrate.Migrate) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	log.Info("schema version", "version", v, "dirty", dirty)
	return nil
}
