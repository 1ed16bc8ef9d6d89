package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stats-tracker/internal/clock"
	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/feed"
	"github.com/stats-tracker/internal/logger"
	"github.com/stats-tracker/internal/postgres"
	"github.com/stats-tracker/internal/redis"
	"github.com/stats-tracker/internal/service"
	"github.com/stats-tracker/internal/session"
	"github.com/stats-tracker/internal/sqlite"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "tracker",
	Short:        "Player stats tracker",
	SilenceUsage: true,
}

// app holds everything a command needs. The caller must defer app.Close()
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    service.Store
	sessions service.SessionTracker
	service  *service.TrackerService

	closers []func() error
}

// newApp loads the config, opens the store and builds the tracker service
func newApp(ctx context.Context) (*app, error) {
	cfg, loadErr := config.Load(configPath)
	if loadErr != nil {
		// A missing file means defaults; a broken one is fatal
		if !errors.Is(loadErr, os.ErrNotExist) {
			return nil, loadErr
		}
		cfg = config.DefaultConfig()
	}

	log, sync, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Log.Environment,
		ServiceName: "stats-tracker",
	})
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	slog.SetDefault(log)
	if loadErr != nil {
		log.Warn("failed to load config file, using defaults", "path", configPath, "error", loadErr)
	}

	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func() error {
		// stderr and stdout sinks cannot be synced on some platforms
		_ = sync()
		return nil
	})

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if cfg.Redis.Enabled {
		log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		tracker, err := redis.NewSessionTracker(&cfg.Redis, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.sessions = tracker
		a.closers = append(a.closers, tracker.Close)
	} else {
		a.sessions = session.NewMemoryTracker()
	}

	a.service = service.NewTrackerService(
		store,
		feed.New(cfg.Feed.Capacity),
		a.sessions,
		clock.Real{},
		&cfg.Query,
		log,
	)

	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to close resource", "error", err)
		}
	}
}

// openStore opens the configured persistence backend and applies its schema
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (service.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		log.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return repo, nil
	default:
		log.Info("opening SQLite store", "path", cfg.Store.SQLite.Path)
		store, err := sqlite.NewStore(&cfg.Store.SQLite, log)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "Write the export to this file instead of stdout")
	rootCmd.AddCommand(clearCmd)
}
