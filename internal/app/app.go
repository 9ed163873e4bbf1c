package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"NewsAggregator/internal/api"
	"NewsAggregator/internal/config"
	"NewsAggregator/internal/infrastructure/llm"
	"NewsAggregator/internal/infrastructure/parser"
	"NewsAggregator/internal/infrastructure/scheduler"
	"NewsAggregator/internal/infrastructure/storage"
	"NewsAggregator/internal/infrastructure/telegram"
	"NewsAggregator/internal/logging"
	"NewsAggregator/internal/metrics"
	"NewsAggregator/internal/ports"
	"NewsAggregator/internal/scanner"
	"NewsAggregator/internal/usecase"
)

var (
	// ErrPipelineUnavailable is returned when no summarization client is configured.
	ErrPipelineUnavailable = errors.New("pipeline unavailable: llm api key is not configured")
	// ErrDatabaseRequired is returned by operations that need Postgres.
	ErrDatabaseRequired = errors.New("database dsn is not configured")
)

const shutdownTimeout = 15 * time.Second

// store is the union of every storage port the application uses.
type store interface {
	ports.ItemStore
	ports.RunStore
	ports.ItemReader
	ports.RunReader
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	postgres *storage.PostgresRepository
	store    store
	metrics  *metrics.Metrics
	pipeline *usecase.Pipeline
}

// New builds the application. Without a DSN items are kept in memory; without
// an LLM key the query API still works but runs are refused.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Log.Level, cfg.Log.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	if cfg.Database.DSN != "" {
		db, err := storage.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.postgres = storage.NewPostgresRepository(db)
		a.store = a.postgres
	} else {
		baseLogger.Warn("no database configured, keeping items in memory")
		a.store = storage.NewMemoryRepository()
	}

	pipeline, err := a.buildPipeline()
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		baseLogger.Warn("no llm api key configured, pipeline runs are disabled")
	case err != nil:
		a.Close()
		return nil, err
	default:
		a.pipeline = pipeline
	}
	return a, nil
}

func (a *Application) buildPipeline() (*usecase.Pipeline, error) {
	cfg, log := a.cfg, a.logger

	summarizer, err := llm.NewSummarizer(cfg.LLM, log)
	if err != nil {
		return nil, err
	}

	var embedder ports.Embedder
	if cfg.Embedding.Enabled() {
		e, err := llm.NewEmbedder(cfg.Embedding, log)
		if err != nil {
			return nil, err
		}
		embedder = e
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewFeedScanner(nil, log.With("component", "scanner.feed")))
	registry.Register(parser.NewArxivScanner(nil, log.With("component", "scanner.arxiv")))
	collector := parser.NewStrategySource(registry, cfg.Pipeline.SourceTimeout, log.With("component", "collector"))

	enricher, err := usecase.NewEnricher(summarizer, embedder, usecase.EnricherConfig{
		Concurrency:         cfg.Pipeline.Concurrency,
		MaxRetries:          cfg.Pipeline.MaxRetries,
		RetryDelay:          cfg.Pipeline.RetryDelay,
		MaxContentRunes:     cfg.Pipeline.MaxContentRunes,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
	}, log.With("component", "enricher"))
	if err != nil {
		return nil, err
	}

	writer, err := usecase.NewWriter(a.store, a.store, log.With("component", "writer"))
	if err != nil {
		return nil, err
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram)
	}

	return usecase.NewPipeline(usecase.PipelineDeps{
		Collector:    collector,
		Sources:      cfg.DomainSources(),
		Deduplicator: usecase.NewDeduplicator(log.With("component", "dedup")),
		Enricher:     enricher,
		Writer:       writer,
		Publisher:    usecase.NewPublisher(),
		Notifier:     notifier,
		Observer:     a.metrics,
		Logger:       log.With("component", "pipeline"),
	})
}

// RunOnce performs a single pipeline execution.
func (a *Application) RunOnce(ctx context.Context, backfillDays int) (*usecase.RunState, error) {
	if a.pipeline == nil {
		return nil, ErrPipelineUnavailable
	}
	return a.pipeline.Run(ctx, backfillDays)
}

// Serve runs the HTTP API until ctx ends, optionally with the cron scheduler.
func (a *Application) Serve(ctx context.Context, withScheduler bool) error {
	deps := api.Deps{
		Items:               a.store,
		Runs:                a.store,
		Metrics:             a.metrics.Handler(),
		DefaultBackfillDays: a.cfg.Pipeline.BackfillDays,
		Logger:              a.logger,
	}
	if a.pipeline != nil {
		deps.Runner = a.pipeline
	}
	if a.db != nil {
		deps.Health = a.db.PingContext
	}

	server := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withScheduler {
		sched, err := a.startScheduler(ctx)
		if err != nil {
			return err
		}
		defer a.stopScheduler(sched)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Schedule runs the pipeline on the configured cron expression until ctx ends.
func (a *Application) Schedule(ctx context.Context) error {
	sched, err := a.startScheduler(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	a.stopScheduler(sched)
	return nil
}

func (a *Application) startScheduler(ctx context.Context) (*usecase.Scheduler, error) {
	if a.pipeline == nil {
		return nil, ErrPipelineUnavailable
	}
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), a.logger)
	sched := usecase.NewScheduler(driver, a.pipeline, a.cfg.Pipeline.BackfillDays, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return nil, fmt.Errorf("start scheduler: %w", err)
	}
	return sched, nil
}

func (a *Application) stopScheduler(sched *usecase.Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
}

// SetupDB creates the extension, tables, indexes and triggers.
func (a *Application) SetupDB(ctx context.Context) error {
	if a.postgres == nil {
		return ErrDatabaseRequired
	}
	if err := a.postgres.Migrate(ctx, a.cfg.Embedding.Dimensions); err != nil {
		return err
	}
	a.logger.Info("database schema ready", "embedding_dimensions", a.cfg.Embedding.Dimensions)
	return nil
}

// Close releases the database connection, if any.
func (a *Application) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
}
