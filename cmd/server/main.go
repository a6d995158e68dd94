package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	eventapp "github.com/erp/stockledger/internal/application/event"
	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/ecommerce"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/scheduler"
	"github.com/erp/stockledger/internal/infrastructure/storage"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/erp/stockledger/internal/interfaces/http/router"
	"github.com/erp/stockledger/migrations"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var _ inventoryapp.Metrics = (*telemetry.InventoryMetrics)(nil)

//	@title			Stock Ledger API
//	@version		1.0
//	@description	Inventory ledger, valuation and stock reconciliation
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}

	// OTLP log export tees every entry into the collector
	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, cfg.Telemetry.LogsEnabled, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	if logProvider.IsEnabled() {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}
		if log, err = logger.New(logCfg, logProvider.ZapCore(cfg.Telemetry.ServiceName, level)); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting stock ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		Tags:              map[string]string{"env": cfg.App.Env, "version": version},
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := logProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down log provider", zap.Error(err))
		}
	}()
	meter := meterProvider.Meter("github.com/erp/stockledger")

	if err := checkSchema(cfg, log); err != nil {
		log.Fatal("Database schema is not current; run the migrate command", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to access connection pool", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         tracerProvider.IsEnabled() && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to register query tracing", zap.Error(err))
	}
	dbMetrics, err := telemetry.NewDBMetrics(meter, telemetry.DBMetricsConfig{
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		PoolStatsInterval:  cfg.Telemetry.MetricsInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to create database metrics", zap.Error(err))
	}
	if err := dbMetrics.Register(db.DB); err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	dbMetrics.StartPoolStatsCollection(ctx, sqlDB)
	defer dbMetrics.Stop()

	backends, err := cache.NewBackends(ctx, cfg.Redis, cache.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize cache backends", zap.Error(err))
	}
	defer func() {
		if err := backends.Close(); err != nil {
			log.Error("Error closing cache backends", zap.Error(err))
		}
	}()

	// Domain events are written to the outbox in the same transaction as the movement
	serializer := event.NewRegisteredSerializer()
	outboxPublisher := event.NewOutboxPublisher(serializer)
	txScope := persistence.NewGormTransactionScope(db.DB, outboxPublisher)
	repos := persistence.NewRepositories(db.DB)

	invMetrics, err := telemetry.NewInventoryMetrics(meter, log)
	if err != nil {
		log.Fatal("Failed to create inventory metrics", zap.Error(err))
	}
	invMetrics.StartPeriodicCollection(ctx, telemetry.NewGormInventoryStats(db.DB), cfg.Telemetry.MetricsInterval)
	defer invMetrics.Stop()

	audit := inventoryapp.NewZapAuditSink(log)
	defaultMethod := inventory.CostMethod(cfg.Valuation.DefaultMethod)

	ledger := inventoryapp.NewStockLedger(repos, txScope, defaultMethod, log).
		WithNotifier(backends.Notifier).
		WithAuditSink(audit).
		WithMetrics(invMetrics)
	balanceService := inventoryapp.NewBalanceService(repos, txScope, log).WithAuditSink(audit)
	valuationService := inventoryapp.NewValuationService(repos, defaultMethod)
	countService := inventoryapp.NewCountService(repos, txScope, ledger, log).WithAuditSink(audit)
	alertService := inventoryapp.NewAlertService(repos, txScope, log).
		WithMetrics(invMetrics).
		WithAuditSink(audit)
	reconcileService := inventoryapp.NewReconcileService(repos, txScope, ledger, inventoryapp.ReconcileConfig{
		TargetLocationID: cfg.Reconcile.TargetLocationID,
		IdempotencyTTL:   cfg.Reconcile.IdempotencyTTL,
		ProgressEvery:    cfg.Reconcile.BatchSize,
		ArchiveEnabled:   cfg.Reconcile.ArchiveEnabled && cfg.Storage.Enabled(),
	}, log).
		WithIdempotencyStore(backends.Idempotency).
		WithMetrics(invMetrics)

	if cfg.Marketplace.BaseURL != "" {
		source, err := ecommerce.NewWooCommerceFeedSource(ecommerce.WooCommerceConfig{
			BaseURL:        cfg.Marketplace.BaseURL,
			ConsumerKey:    cfg.Marketplace.ConsumerKey,
			ConsumerSecret: cfg.Marketplace.ConsumerSecret,
			Timeout:        cfg.Marketplace.Timeout,
			PerPage:        cfg.Marketplace.PerPage,
			MaxRetries:     cfg.Marketplace.MaxRetries,
		}, log)
		if err != nil {
			log.Fatal("Invalid marketplace configuration", zap.Error(err))
		}
		reconcileService.WithFeedSource(source)
		log.Info("Marketplace feed configured", zap.String("base_url", cfg.Marketplace.BaseURL))
	}

	var reports handler.ReportLinker
	if cfg.Storage.Enabled() {
		archive, err := storage.NewS3ReportArchive(&cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
		)
		if err != nil {
			log.Fatal("Failed to initialize report archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Report bucket check failed; archiving may fail", zap.Error(err))
		}
		reconcileService.WithArchive(archive)
		countService.WithArchive(archive)
		reports = archive
	}

	// stock.changed events re-evaluate alerts for every touched scope
	eventBus := event.NewInMemoryEventBus(log)
	stockChangedHandler := event.NewIdempotentHandler(
		"stock_changed_alerts",
		inventoryapp.NewStockChangedHandler(alertService, log),
		backends.Idempotency,
		log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
		event.WithHandlerMeter(meter),
	)
	eventBus.Subscribe(stockChangedHandler)
	log.Info("Event handlers registered", zap.Strings("stock_changed_events", stockChangedHandler.EventTypes()))

	if cfg.Event.ProcessorEnabled {
		outboxCfg := event.DefaultOutboxProcessorConfig()
		outboxCfg.BatchSize = cfg.Event.BatchSize
		outboxCfg.PollInterval = cfg.Event.PollInterval
		outboxCfg.CleanupEnabled = cfg.Event.CleanupEnabled
		outboxCfg.CleanupRetention = cfg.Event.CleanupRetention
		outboxProcessor := event.NewOutboxProcessor(event.NewGormOutboxRepository(db.DB), eventBus, serializer, outboxCfg, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", outboxCfg.BatchSize),
			zap.Duration("poll_interval", outboxCfg.PollInterval),
		)
	}

	if cfg.Scheduler.Enabled {
		stop := startScheduler(ctx, cfg, db, reconcileService, alertService, log)
		defer stop()
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
		}),
		middleware.TracingAttributeInjector(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(meter),
		middleware.CORSWithConfig(corsCfg),
		middleware.SecureWithConfig(middleware.SecurityConfig{
			HSTSEnabled:           cfg.App.Env == "production",
			HSTSMaxAge:            31536000,
			HSTSIncludeSubdomains: true,
		}),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer limiter.Stop()
		engine.Use(middleware.RateLimit(limiter))
	}

	systemHandler := handler.NewSystemHandler(sqlDB, version)
	engine.GET("/health", systemHandler.Health)
	engine.GET("/ping", systemHandler.Ping)

	r := router.NewRouter(engine, router.WithAPIVersion("v1")).Use(
		middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			Validator:   auth.NewJWTService(cfg.JWT),
			Revocations: backends.Revocations,
			Logger:      log,
		}),
		middleware.Profiling(profiler.IsEnabled()),
	)
	r.Register(router.NewInventoryRoutes(router.InventoryHandlers{
		Movements: handler.NewMovementHandler(ledger),
		Balances:  handler.NewBalanceHandler(balanceService),
		Valuation: handler.NewValuationHandler(valuationService),
		Counts:    handler.NewCountHandler(countService),
		Alerts:    handler.NewAlertHandler(alertService),
		Reconcile: handler.NewReconcileHandler(reconcileService, reports),
	}))
	r.Register(router.NewEventRoutes(handler.NewOutboxHandler(
		eventapp.NewDeadLetterService(event.NewGormOutboxRepository(db.DB), log),
	)))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	log.Info("Server exited gracefully")
}

// startScheduler registers the reconcile and alert sweep jobs and starts one
// interval trigger per enabled job. The returned func stops everything.
func startScheduler(
	ctx context.Context,
	cfg *config.Config,
	db *persistence.Database,
	reconciler scheduler.Reconciler,
	sweeper scheduler.AlertSweeper,
	log *zap.Logger,
) func() {
	sched := scheduler.New(scheduler.Config{
		JobTimeout:    cfg.Scheduler.JobTimeout,
		RetryAttempts: cfg.Scheduler.RetryAttempts,
		RetryDelay:    cfg.Scheduler.RetryDelay,
	}, log)
	sched.Register(scheduler.JobKindReconcile,
		scheduler.NewReconcileJob(reconciler, cfg.Reconcile.ActorID, cfg.Reconcile.TargetLocationID, log))
	sched.Register(scheduler.JobKindAlertSweep, scheduler.NewAlertSweepJob(sweeper, log))

	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	var triggers []*scheduler.IntervalTrigger
	if cfg.Scheduler.ReconcileEnabled {
		if cfg.Reconcile.CompanyID == uuid.Nil {
			log.Warn("Scheduled reconciliation enabled without reconcile.company_id; skipping")
		} else {
			triggers = append(triggers, scheduler.NewIntervalTrigger(
				scheduler.JobKindReconcile,
				cfg.Scheduler.ReconcileInterval,
				cfg.Scheduler.RetryAttempts,
				scheduler.StaticCompanies{cfg.Reconcile.CompanyID},
				sched, log,
			))
		}
	}
	if cfg.Scheduler.AlertSweepEnabled {
		triggers = append(triggers, scheduler.NewIntervalTrigger(
			scheduler.JobKindAlertSweep,
			cfg.Scheduler.AlertSweepInterval,
			cfg.Scheduler.RetryAttempts,
			scheduler.NewRuleCompanies(db.DB),
			sched, log,
		))
	}
	for _, t := range triggers {
		if err := t.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler trigger", zap.Error(err))
		}
	}
	log.Info("Scheduler started",
		zap.Int("triggers", len(triggers)),
		zap.Duration("job_timeout", cfg.Scheduler.JobTimeout),
	)

	return func() {
		for _, t := range triggers {
			t.Stop()
		}
		if err := sched.Stop(context.Background()); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}
}

// checkSchema refuses to serve against a dirty or outdated schema. It uses
// its own connection because closing the migrator closes the pool.
func checkSchema(cfg *config.Config, log *zap.Logger) error {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	m, err := migration.NewFromFS(db, migrations.FS, log)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()

	latest, err := migration.LatestVersion(migrations.FS)
	if err != nil {
		return err
	}
	status, err := m.Status(latest)
	if err != nil {
		return err
	}
	if status.Dirty {
		return fmt.Errorf("schema version %d is dirty", status.Version)
	}
	if status.Pending {
		return fmt.Errorf("schema version %d is behind %d", status.Version, latest)
	}
	log.Info("Schema is current", zap.Uint("version", status.Version))
	return nil
}
