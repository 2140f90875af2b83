package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/afroash/flood-monitor/internal/config"
	"github.com/afroash/flood-monitor/internal/feed"
	"github.com/afroash/flood-monitor/internal/observability"
	"github.com/afroash/flood-monitor/internal/poller"
	"github.com/afroash/flood-monitor/internal/preferences"
	"github.com/afroash/flood-monitor/internal/server"
	"github.com/afroash/flood-monitor/internal/storage"
)

const (
	version           = "v0.3.0"
	heartbeatInterval = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger zerolog.Logger) error {
	logger.Info().
		Str("version", version).
		Str("channel_id", cfg.Feed.ChannelID).
		Int("port", cfg.Server.Port).
		Msg("Starting Flood Monitor Server")
	logger.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	metrics := observability.NewMetrics()

	store := server.NewMemoryStore(cfg.Storage.BufferSize)
	state := server.NewTrendState(cfg.Alert.FloodThreshold)
	hub := server.NewHub(cfg.Server.AuthToken, logger, cfg.Server.AllowedOrigins...)
	hub.SetMetrics(metrics)

	monitor := server.NewMonitor(store, state, hub, logger)
	monitor.SetMetrics(metrics)
	hub.SetSnapshotFunc(monitor.SnapshotMessage)

	var (
		sqliteStore      *storage.SQLiteStore
		dbWriter         *storage.DBWriter
		retentionCleaner *storage.RetentionCleaner
		apiHandler       *server.APIHandler
	)

	if cfg.Database.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}

		var err error
		sqliteStore, err = storage.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("open SQLite store: %w", err)
		}
		defer sqliteStore.Close()

		dbWriter = storage.NewDBWriter(sqliteStore, storage.DBWriterConfig{
			BatchSize:   cfg.Database.BatchSize,
			FlushPeriod: cfg.Database.FlushPeriod,
			ChannelSize: cfg.Database.ChannelSize,
		}, logger)

		retentionCleaner, err = storage.NewRetentionCleaner(sqliteStore, storage.RetentionCleanerConfig{
			RetentionDays: cfg.Database.RetentionDays,
			Schedule:      cfg.Database.CleanupSchedule,
		}, logger)
		if err != nil {
			dbWriter.Stop()
			return fmt.Errorf("start retention cleaner: %w", err)
		}

		monitor.SetDBWriter(dbWriter, sqliteStore)

		apiHandler = server.NewAPIHandlerWithHistory(store, state, sqliteStore, logger)
		apiHandler.SetPreferences(preferences.NewService(sqliteStore, clockwork.NewRealClock(), logger))
		apiHandler.SetStatsSources(dbWriter, retentionCleaner, hub)
	} else {
		logger.Warn().Msg("Database disabled: history and preferences endpoints will return 503")
		apiHandler = server.NewAPIHandler(store, state, logger)
		apiHandler.SetStatsSources(nil, nil, hub)
	}
	apiHandler.SetDefaultChannel(cfg.Feed.ChannelID)
	apiHandler.SetBroadcaster(hub)

	client := feed.NewClient(feed.Config{
		BaseURL:            cfg.Feed.BaseURL,
		ChannelID:          cfg.Feed.ChannelID,
		ReadAPIKey:         cfg.Feed.ReadAPIKey,
		Field:              cfg.Feed.Field,
		Results:            cfg.Feed.Results,
		Timeout:            cfg.Feed.Timeout,
		MinRequestInterval: cfg.Feed.MinRequestInterval,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := poller.New(client, monitor, poller.Options{
		Interval: cfg.Poller.Interval,
		Logger:   logger,
		Metrics:  metrics,
	})
	handle := p.Start(ctx)
	apiHandler.SetRefresher(handle)

	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.NewRouter(server.RouterConfig{
			API:       apiHandler,
			Hub:       hub,
			AuthToken: cfg.Server.AuthToken,
			Version:   version,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return hub.RunHeartbeat(gctx, heartbeatInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		handle.Stop()
		logger.Info().Msg("Poller stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown error")
		}

		hub.Close()
		if dbWriter != nil {
			dbWriter.Stop()
			logger.Info().Msg("DBWriter stopped")
		}
		if retentionCleaner != nil {
			retentionCleaner.Stop()
			logger.Info().Msg("RetentionCleaner stopped")
		}
		return nil
	})

	err := g.Wait()
	logger.Info().Msg("Server stopped")
	return err
}
