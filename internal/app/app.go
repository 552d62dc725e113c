package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"FRBScanner/internal/api"
	"FRBScanner/internal/config"
	"FRBScanner/internal/dedup"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/infrastructure/llm"
	"FRBScanner/internal/infrastructure/ml"
	"FRBScanner/internal/infrastructure/parser"
	"FRBScanner/internal/infrastructure/proposal"
	"FRBScanner/internal/infrastructure/scheduler"
	"FRBScanner/internal/infrastructure/search"
	"FRBScanner/internal/infrastructure/storage"
	"FRBScanner/internal/infrastructure/telegram"
	"FRBScanner/internal/logging"
	"FRBScanner/internal/ports"
	"FRBScanner/internal/scanner"
	"FRBScanner/internal/usecase"
	"FRBScanner/internal/validate"
)

// RunRequest is a CLI or API request for one run.
type RunRequest struct {
	Trigger domain.Trigger
	// Days overrides the sources' fetch window when positive.
	Days   int
	DryRun bool
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	dbs      []*sql.DB
	catalog  *storage.CatalogRepository
	ledger   *storage.RunLedger
	pipeline *usecase.Pipeline
	catalogs *usecase.CatalogService
	outbox   *proposal.OutboxEmitter
	now      func() time.Time
}

// New opens the catalog and state databases and builds the pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: baseLogger, now: time.Now}

	catalogDB, err := storage.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	a.dbs = append(a.dbs, catalogDB)

	stateDB := catalogDB
	if cfg.State.Path != "" && cfg.State.Path != cfg.Catalog.Path {
		if stateDB, err = storage.Open(cfg.State.Path); err != nil {
			_ = a.Close()
			return nil, err
		}
		a.dbs = append(a.dbs, stateDB)
	}

	version, dirty, err := storage.RunMigrations(stateDB)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	baseLogger.Debug("state migrations applied", "version", version, "dirty", dirty)

	if a.catalog, err = storage.NewCatalogRepository(catalogDB, cfg.Catalog.Table); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.catalog.EnsureSchema(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.ledger = storage.NewRunLedger(stateDB)
	a.catalogs = usecase.NewCatalogService(a.catalog, baseLogger.With("component", "catalog"))
	a.outbox = proposal.NewOutboxEmitter(cfg.Proposal.OutboxDir, baseLogger.With("component", "proposal.outbox"))

	registry := scanner.NewRegistry(
		parser.NewATelFetcher(nil, baseLogger.With("component", "fetcher.atel")),
		parser.NewArxivFetcher(nil),
	)
	source := parser.NewStrategySource(registry, cfg.Sources, baseLogger.With("component", "source"))

	var screen ports.RelevanceScreen
	if ks := search.NewKeywordScreen(cfg.Relevance.Keywords); ks.Enabled() {
		screen = ks
	}

	var notifier ports.Notifier
	if n := telegram.NewNotifier(cfg.Notifications.Telegram, nil); n.Configured() {
		notifier = n
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:    source,
		Screen:    screen,
		Backend:   NewBackend(cfg.Extraction),
		Catalog:   a.catalog,
		Emitter:   a.emitter(),
		Notifier:  notifier,
		Ledger:    a.ledger,
		Validator: validate.New(cfg.Validation.ConfidenceThreshold),
		Dedup: dedup.New(dedup.Policy{
			MinRadiusArcsec: cfg.Dedup.MinRadiusArcsec,
			SafetyFactor:    cfg.Dedup.SafetyFactor,
		}),
		Concurrency: cfg.Extraction.Concurrency,
		DocTimeout:  cfg.Extraction.Timeout,
		LockTTL:     cfg.State.LockTTL,
		EmitEmpty:   cfg.Proposal.EmitEmpty,
		Logger:      baseLogger.With("component", "pipeline"),
	})
	return a, nil
}

// NewBackend selects the extraction backend named in configuration.
func NewBackend(cfg config.ExtractionConfig) ports.ExtractionBackend {
	switch cfg.Backend {
	case config.BackendOpenAI:
		return llm.NewChatGPTClient(cfg)
	case config.BackendInference:
		return ml.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout)
	default:
		return llm.NewAnthropicClient(cfg)
	}
}

func (a *Application) emitter() ports.ProposalEmitter {
	if a.cfg.Proposal.Channel == config.ChannelGitHub {
		return proposal.NewGitHubEmitter(a.cfg.Proposal.GitHub, nil, a.logger.With("component", "proposal.github"))
	}
	return a.outbox
}

func (a *Application) runOptions(req RunRequest) usecase.RunOptions {
	opts := usecase.RunOptions{Trigger: req.Trigger, DryRun: req.DryRun}
	if req.Days > 0 {
		opts.Since = a.now().Add(-time.Duration(req.Days) * 24 * time.Hour)
	}
	if req.DryRun {
		opts.Emitter = a.outbox
	}
	return opts
}

// Run performs one pipeline execution and waits for it.
func (a *Application) Run(ctx context.Context, req RunRequest) (usecase.RunResult, error) {
	return a.pipeline.Run(ctx, a.runOptions(req))
}

// StartRun implements api.RunStarter.
func (a *Application) StartRun(ctx context.Context, req api.RunRequest) (domain.RunSummary, error) {
	summary, done, err := a.pipeline.Launch(ctx, a.runOptions(RunRequest{
		Trigger: domain.TriggerManual,
		Days:    req.Days,
		DryRun:  req.DryRun,
	}))
	if err != nil {
		return domain.RunSummary{}, err
	}
	go func() {
		if err := <-done; err != nil {
			a.logger.Warn("manual run ended with error", "run", summary.RunID, "error", err)
		}
	}()
	return summary, nil
}

// Catalog exposes the stats, export and apply use cases.
func (a *Application) Catalog() *usecase.CatalogService {
	return a.catalogs
}

// Serve runs the weekly scheduler and the HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	sched := usecase.NewScheduler(
		scheduler.NewWeeklyScheduler(a.cfg.Scheduler.Day(), a.cfg.Scheduler.Hour, a.cfg.Scheduler.Location()),
		a.pipeline,
		a.logger.With("component", "scheduler"),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	handler := api.NewHandler(ctx, a, a.ledger, a.catalog, a.logger.With("component", "api"))
	httpServer := &http.Server{
		Addr:         a.cfg.HTTP.Listen,
		Handler:      api.NewServer(handler, a.cfg.HTTP.APIKey, slogWriter{a.logger.With("component", "http")}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.HTTP.Listen, "auth", a.cfg.HTTP.APIKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("http server: %w", err)
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler stop failed", "error", err)
	}
	return runErr
}

// Close releases database handles.
func (a *Application) Close() error {
	var errs []error
	for _, db := range a.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.dbs = nil
	return errors.Join(errs...)
}

// slogWriter forwards gin access log lines to slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(trimNewline(p)))
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	for len(p) > 0 && (p[len(p)-1] == '\n' || p[len(p)-1] == '\r') {
		p = p[:len(p)-1]
	}
	return p
}
