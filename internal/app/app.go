package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"SceneBroker/internal/api"
	"SceneBroker/internal/broker"
	"SceneBroker/internal/config"
	"SceneBroker/internal/infrastructure/alert"
	"SceneBroker/internal/infrastructure/remote"
	"SceneBroker/internal/infrastructure/scheduler"
	"SceneBroker/internal/infrastructure/storage"
	"SceneBroker/internal/logging"
	"SceneBroker/internal/ports"
	"SceneBroker/internal/tiles"
	"SceneBroker/internal/usecase"
)

// Application wires configs to the ingest engines, serving surface, and
// lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.PostgresStore
	closeDB   func() error
	cycle     *usecase.IngestCycle
	scheduler *usecase.IngestScheduler
	server    *http.Server
}

// New builds a runnable application instance, opening the database pool.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(ctx, cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := storage.NewPostgresStore(db)

	listingSource := remote.NewListingFetcher(nil, cfg.Source.ListingURL, cfg.Source.Name)
	metadataSource := remote.NewMetadataFetcher(nil)
	assetSource := remote.NewAssetIndexFetcher(nil)

	var alerts ports.AlertNotifier
	if cfg.Alerts.TelegramBotToken != "" && cfg.Alerts.TelegramChatID != "" {
		alerts = alert.NewTelegramNotifier(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID)
	}

	reconciler := usecase.NewReconciler(listingSource, store,
		baseLogger.With("component", "reconciler"), cfg.Ingest.BatchSize)
	completer := usecase.NewCompleter(metadataSource, store,
		baseLogger.With("component", "completer"), usecase.CompleterOptions{
			Workers:      cfg.Ingest.Workers,
			Limit:        cfg.Ingest.CompletionLimit,
			ClaimLease:   cfg.Ingest.ClaimLease,
			FetchTimeout: cfg.Ingest.FetchTimeout,
		})
	cycle := usecase.NewIngestCycle(reconciler, completer, store, alerts,
		baseLogger.With("component", "ingest"), cfg.Ingest.PassBudget)

	ingestScheduler := usecase.NewIngestScheduler(
		scheduler.NewIntervalScheduler(cfg.Ingest.ReconcileInterval),
		scheduler.NewIntervalScheduler(cfg.Ingest.CompleteInterval),
		cycle,
	)

	profile := broker.SourceProfile{
		SensorName:       cfg.Source.SensorName,
		ResolutionMeters: cfg.Source.ResolutionMeters,
		FileFormat:       cfg.Source.FileFormat,
	}
	brokerSvc := broker.NewService(store, assetSource, profile,
		baseLogger.With("component", "broker"))
	resolver := tiles.NewResolver(store)

	apiServer := api.NewServer(brokerSvc, resolver, cycle,
		baseLogger.With("component", "api"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		closeDB:   db.Close,
		cycle:     cycle,
		scheduler: ingestScheduler,
		server:    &http.Server{Addr: cfg.HTTP.Addr, Handler: apiServer.Handler()},
	}, nil
}

// Run starts the recurring ingest phases and the HTTP surface, then blocks
// until the context is canceled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.HTTP.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	return a.shutdown()
}

func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop failed", "error", err)
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", "error", err)
	}
	if err := a.closeDB(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
