// Package appctx wires every component into one explicit AppContext,
// built once in cmd/geneingestd and passed down to the registry, the
// orchestrator, and the control-surface adapters. This replaces a pattern
// of module-global singletons (package-level vars reached for from
// anywhere) with one struct an operator can see the whole dependency
// graph of at a glance.
package appctx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"geneingest/internal/control"
	"geneingest/internal/evidence"
	"geneingest/internal/fetch"
	"geneingest/internal/normalize"
	"geneingest/internal/orchestrator"
	"geneingest/internal/progress"
	"geneingest/internal/registry"
	"geneingest/internal/scoring"
	"geneingest/internal/sources"
	"geneingest/migrations"
	"geneingest/pkg/audit"
	"geneingest/pkg/cache"
	"geneingest/pkg/config"
	"geneingest/pkg/database"
	"geneingest/pkg/ratelimit"
)

// hgncBulkSourceName is the config entry normalize.Normalizer prepares
// its index from; it is also registered as its own annotation driver in
// internal/sources, a deliberate separation between the resolution
// concern and the annotation concern over the same upstream file.
const hgncBulkSourceName = "hgnc"

// AppContext holds every long-lived dependency the process needs, built
// once and shut down once via Close.
type AppContext struct {
	Config *config.Config
	Logger *slog.Logger

	DB      *database.PostgresDB
	Cache   cache.Cache
	Limiter ratelimit.Limiter
	Auditor audit.Logger

	FetchEngine *fetch.Engine
	Registry    *registry.Registry
	Normalizer  *normalize.Normalizer
	Store       *evidence.Store
	Scorer      *scoring.Engine
	Tracker     *progress.Tracker

	Orchestrator *orchestrator.Orchestrator
	Scheduler    *orchestrator.Scheduler
	Control      *control.Service
}

// Deps lets callers override the pieces that normally come from the
// network (HTTP client, literature API base URL) so tests can build an
// AppContext against fakes; the zero value uses real defaults.
type Deps struct {
	HTTPClient    *http.Client
	LiteratureAPI string
}

// New builds and wires a full AppContext from cfg. It connects to the
// database, optionally runs migrations (cfg.Database.AutoMigrate), and
// constructs every internal package in dependency order: cache → rate
// limiter → fetch engine → registry/sources → normalizer/store/scorer →
// tracker → orchestrator/scheduler → control.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, deps Deps) (*AppContext, error) {
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("appctx: connect database: %w", err)
	}

	if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, migrations.FS, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("appctx: run migrations: %w", err)
	}

	// A crash leaves progress rows in a non-terminal state; mark them failed
	// so the restart begins from fresh state.
	if _, err := db.Exec(ctx, `UPDATE data_source_progress
		SET state = 'failed', last_error = 'interrupted', updated_at = now()
		WHERE state IN ('queued', 'running', 'paused')`); err != nil {
		db.Close()
		return nil, fmt.Errorf("appctx: mark interrupted progress rows: %w", err)
	}

	cacheOpts := cache.FromConfig(&cfg.Cache)
	if cacheOpts.Backend == cache.BackendPostgres {
		cacheOpts.PostgresPool = db.Pool()
	}
	l1Opts := *cacheOpts
	l1Opts.Backend = cache.BackendMemory
	l1 := cache.NewMemoryCache(&l1Opts)
	l2, err := cache.New(cacheOpts)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("appctx: build cache: %w", err)
	}
	appCache := cache.Cache(cache.NewTiered(l1, l2))
	if !cfg.Cache.Enabled {
		appCache = l1
	}

	limiter, err := ratelimit.New(rateLimitConfig(cfg.RateLimit))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("appctx: build rate limiter: %w", err)
	}

	auditor, err := audit.New(auditConfig(cfg.Audit))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("appctx: build audit logger: %w", err)
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Fetch.HTTPTimeout}
	}
	fetchEngine := fetch.New(httpClient, appCache, limiter)

	reg := registry.New(cfg.Sources.Entries)
	if err := sources.RegisterAll(reg, fetchEngine, sources.Deps{
		CacheDir:      cfg.Cache.BulkCacheRoot,
		HGNCBulkURL:   hgncBulkURL(cfg.Sources.Entries),
		LiteratureAPI: deps.LiteratureAPI,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("appctx: register source drivers: %w", err)
	}

	store := evidence.NewStore(db)

	normLog := normalize.NewPostgresLog(db)
	bulkTTL := time.Duration(cfg.Fetch.BulkDefaultTTLHrs) * time.Hour
	normProfile := fetch.Profile{Source: hgncBulkSourceName, MaxRetries: cfg.Retry.MaxAttempts, DefaultTTL: bulkTTL}
	normalizer := normalize.New(fetchEngine, normProfile, hgncBulkURL(cfg.Sources.Entries), cfg.Cache.BulkCacheRoot,
		bulkTTL, normLog)

	scorer := scoring.NewEngine(db, reg).WithBands(cfg.Scoring.Bands)

	persister := progress.NewPostgresPersister(db)
	tracker := progress.NewTracker(persister)

	orch := orchestrator.New(cfg.Orchestrator, reg, tracker, normalizer, store, scorer, auditor, cfg.Panel.Symbols)

	scheduler, err := orchestrator.NewScheduler(cfg.Orchestrator, orch, bulkRefreshSources(cfg.Sources.Entries), log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("appctx: build scheduler: %w", err)
	}

	svc := control.New(orch, store, scorer)

	return &AppContext{
		Config:       cfg,
		Logger:       log,
		DB:           db,
		Cache:        appCache,
		Limiter:      limiter,
		Auditor:      auditor,
		FetchEngine:  fetchEngine,
		Registry:     reg,
		Normalizer:   normalizer,
		Store:        store,
		Scorer:       scorer,
		Tracker:      tracker,
		Orchestrator: orch,
		Scheduler:    scheduler,
		Control:      svc,
	}, nil
}

// Close releases every resource AppContext opened, in reverse build order.
func (a *AppContext) Close() {
	if a.Auditor != nil {
		if err := a.Auditor.Close(); err != nil {
			a.Logger.Error("close audit logger", "error", err)
		}
	}
	if a.Limiter != nil {
		if err := a.Limiter.Close(); err != nil {
			a.Logger.Error("close rate limiter", "error", err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Error("close cache", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func rateLimitConfig(c config.RateLimitConfig) *ratelimit.Config {
	return &ratelimit.Config{
		Strategy:        c.Strategy,
		Backend:         c.Backend,
		BurstSize:       c.BurstSize,
		CleanupInterval: c.CleanupInterval,
		RedisAddr:       c.RedisAddr,
	}
}

func auditConfig(c config.AuditConfig) *audit.Config {
	return &audit.Config{
		Enabled:        c.Enabled,
		Backend:        c.Backend,
		FilePath:       c.FilePath,
		BufferSize:     c.BufferSize,
		FlushPeriod:    c.FlushPeriod,
		ExcludeMethods: c.ExcludeMethods,
	}
}

func hgncBulkURL(entries []config.SourceConfig) string {
	for _, e := range entries {
		if e.Name == hgncBulkSourceName {
			return e.BulkURL
		}
	}
	return ""
}

// bulkRefreshSources returns the names of every bulk-capable, non-retired
// source the weekly scheduler drives, per its scoped responsibility over
// the slow-moving bulk-file sources rather than every source.
func bulkRefreshSources(entries []config.SourceConfig) []string {
	var names []string
	for _, e := range entries {
		if e.SupportsBulk && !e.Retired {
			names = append(names, e.Name)
		}
	}
	return names
}
