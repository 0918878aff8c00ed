// Package app assembles configuration, adapters, and use cases into a
// runnable application.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"MerchScanner/internal/canonical"
	"MerchScanner/internal/config"
	"MerchScanner/internal/dedup"
	"MerchScanner/internal/images"
	"MerchScanner/internal/infrastructure/feeds"
	"MerchScanner/internal/infrastructure/fetch"
	"MerchScanner/internal/infrastructure/llm"
	"MerchScanner/internal/infrastructure/objectstore"
	intervals "MerchScanner/internal/infrastructure/scheduler"
	"MerchScanner/internal/infrastructure/scrape"
	"MerchScanner/internal/infrastructure/storage"
	"MerchScanner/internal/infrastructure/telegram"
	"MerchScanner/internal/lifecycle"
	"MerchScanner/internal/logging"
	"MerchScanner/internal/ports"
	"MerchScanner/internal/scanner"
	"MerchScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	db        *sql.DB
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	fetcher := fetch.New(
		cfg.Fetch.ProxyURL,
		cfg.Fetch.BlockedDomains,
		time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second,
		logging.Component(baseLogger, "fetch"),
	)

	registry := scanner.NewRegistry()
	registry.Register(scanner.DefaultKind, feeds.New(fetcher, logging.Component(baseLogger, "feeds")))

	releases := storage.NewPostgresReleases(db)

	var notifier ports.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:   storage.NewPostgresSources(db),
		Processed: storage.NewPostgresProcessed(db),
		Releases:  releases,
		Registry:  registry,
		Scraper:   scrape.New(fetcher, logging.Component(baseLogger, "scrape")),
		Extractor: llm.NewExtractor(cfg.Extractor, logging.Component(baseLogger, "extractor")),
		Resolver:  dedup.New(releases, logging.Component(baseLogger, "dedup")),
		Images: images.New(
			fetcher,
			llm.NewVision(cfg.Extractor, logging.Component(baseLogger, "vision")),
			objectstore.New(cfg.Storage),
			logging.Component(baseLogger, "images"),
		),
		Lifecycle: lifecycle.New(clockIn(cfg.Scheduler.Location())),
		Canonical: canonical.New(cfg.Ingest.ExtraStopWords...),
		Locker:    storage.NewPostgresLock(db),
		Notifier:  notifier,
		Logger:    logging.Component(baseLogger, "pipeline"),
		Policy: usecase.Policy{
			LockName:        cfg.Ingest.LockName,
			LockTTL:         cfg.Ingest.LockTTL(),
			ArticleDelay:    cfg.Ingest.ArticleDelay(),
			SourceDelay:     cfg.Ingest.SourceDelay(),
			MinContentChars: cfg.Ingest.MinContentChars,
		},
	})

	driver := intervals.NewIntervalScheduler(time.Duration(cfg.Scheduler.IntervalHours) * time.Hour)
	sched := usecase.NewScheduler(driver, pipeline, logging.Component(baseLogger, "scheduler"))

	return &Application{cfg: cfg, db: db, pipeline: pipeline, scheduler: sched}, nil
}

// clockIn yields wall time in the configured timezone, so lifecycle
// date stamps land on the operator's calendar day.
func clockIn(loc *time.Location) lifecycle.Clock {
	return func() time.Time { return time.Now().In(loc) }
}

// Run starts the recurring ingestion schedule and blocks until the
// context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}

	return a.db.Close()
}

// RunOnce executes a single forced ingestion pass and exits. Meant for
// manual invocations; the pass-level lock still applies.
func (a *Application) RunOnce(ctx context.Context) error {
	defer a.db.Close()

	_, err := a.pipeline.RunPass(ctx, true)
	return err
}
