package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	appkeg "github.com/taproom/kegledger/internal/application/keg"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/analysis"
	"github.com/taproom/kegledger/internal/infrastructure/config"
	"github.com/taproom/kegledger/internal/infrastructure/event"
	"github.com/taproom/kegledger/internal/infrastructure/ledger"
	"github.com/taproom/kegledger/internal/infrastructure/lock"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"github.com/taproom/kegledger/internal/infrastructure/persistence"
	"github.com/taproom/kegledger/internal/infrastructure/pos"
	"github.com/taproom/kegledger/internal/infrastructure/scheduler"
	"github.com/taproom/kegledger/internal/infrastructure/telemetry"
	"github.com/taproom/kegledger/internal/interfaces/http/handler"
	"github.com/taproom/kegledger/internal/interfaces/http/middleware"
	"github.com/taproom/kegledger/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	// Telemetry first so every component below logs and traces through it
	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	logsProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = logsProvider.Bridge(log, cfg.Telemetry.ServiceName, zapcore.InfoLevel)

	log.Info("Starting keg ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.String("ledger_mode", cfg.Ledger.Mode),
		zap.String("pos_mode", cfg.POS.Mode),
	)

	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracer := telemetry.NewDBTracer(telemetry.DBTracingConfig{
		Enabled:   cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing,
		SlowQuery: cfg.Telemetry.SlowQuery,
	}, log)
	if err := dbTracer.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	kegRepo := persistence.NewGormKegRepository(db.DB)
	scanRepo := persistence.NewGormScanRepository(db.DB)
	reportRepo := persistence.NewGormVarianceReportRepository(db.DB)
	snapshotRepo := persistence.NewGormPosSnapshotRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// External systems; each factory builds a client bounded by its own timeout
	ledgerAdapter, err := ledger.NewAdapter(cfg.Ledger, db.DB, nil, log)
	if err != nil {
		log.Fatal("Failed to initialize ledger adapter", zap.Error(err))
	}
	posAdapter, err := pos.NewAdapter(cfg.POS, nil, log)
	if err != nil {
		log.Fatal("Failed to initialize POS adapter", zap.Error(err))
	}
	analyzer, err := analysis.NewAnalyzer(cfg.Analysis, nil, log)
	if err != nil {
		log.Fatal("Failed to initialize analyzer", zap.Error(err))
	}

	var redisClient redis.UniversalClient
	if cfg.Lock.Mode == config.ModeRedis {
		client, err := lock.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		redisClient = client
	}
	locker, err := lock.New(cfg.Lock, redisClient, log)
	if err != nil {
		log.Fatal("Failed to initialize keg locker", zap.Error(err))
	}

	// Event bus: audit log plus business metrics
	kegMetrics, err := telemetry.NewKegMetrics(meterProvider.Meter("kegledger"))
	if err != nil {
		log.Fatal("Failed to initialize keg metrics", zap.Error(err))
	}
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewAuditLogHandler(log))
	eventBus.Subscribe(kegMetrics)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	engine, err := keg.NewVarianceEngine(cfg.Variance.WarningThreshold, cfg.Variance.CriticalThreshold)
	if err != nil {
		log.Fatal("Invalid variance thresholds", zap.Error(err))
	}

	dispatcher := appkeg.NewAnalysisDispatcher(scanRepo, reportRepo, analyzer, cfg.Analysis.Timeout, log)

	kegService := appkeg.NewKegService(kegRepo, scanRepo, reportRepo, snapshotRepo, ledgerAdapter, log)
	kegService.SetEventPublisher(eventBus)

	scanRecorder := appkeg.NewScanRecorder(txScope, ledgerAdapter, locker, appkeg.ScanRecorderConfig{
		MirrorMode:    appkeg.MirrorMode(cfg.Ledger.MirrorMode),
		MirrorTimeout: cfg.Ledger.MirrorTimeout,
	}, log)
	scanRecorder.SetEventPublisher(eventBus)

	retirement := appkeg.NewRetirementCoordinator(kegRepo, txScope, posAdapter, ledgerAdapter, engine, dispatcher, locker, log)
	retirement.SetEventPublisher(eventBus)

	syncCoordinator := appkeg.NewSyncCoordinator(kegRepo, snapshotRepo, posAdapter, cfg.Sync.Concurrency, log)
	syncTrigger, err := scheduler.NewSyncTrigger(scheduler.SyncTriggerConfig{
		Interval: cfg.Sync.Interval,
		Timeout:  cfg.Sync.Timeout,
	}, syncCoordinator, kegMetrics, log)
	if err != nil {
		log.Fatal("Failed to initialize sync trigger", zap.Error(err))
	}
	if cfg.Sync.ScheduleEnabled {
		if err := syncTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sync schedule", zap.Error(err))
		}
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	ginEngine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := ginEngine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(meterProvider.Meter("kegledger/http"))
	if err != nil {
		log.Fatal("Failed to initialize HTTP metrics", zap.Error(err))
	}

	// Tracing must precede the request logger and span enricher
	ginEngine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     tracerProvider.IsEnabled(),
	}))
	ginEngine.Use(logger.Recovery(log))
	ginEngine.Use(logger.GinMiddleware(log))
	ginEngine.Use(middleware.Actor())
	ginEngine.Use(middleware.SpanEnricher())
	ginEngine.Use(httpMetrics)
	ginEngine.Use(middleware.Secure())
	ginEngine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Only the write routes are rate limited
	var writeMiddleware []gin.HandlerFunc
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		writeMiddleware = append(writeMiddleware, middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, db)
	ginEngine.GET("/health", systemHandler.Health)

	kegHandler := handler.NewKegHandler(kegService, scanRecorder, retirement, syncTrigger)
	router.NewRouter(ginEngine, router.WithAPIVersion("v1")).
		Register(handler.KegRoutes(kegHandler, writeMiddleware...)).
		Register(handler.SystemRoutes(systemHandler)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := syncTrigger.Stop(shutdownCtx); err != nil {
		log.Warn("Sync trigger did not stop cleanly", zap.Error(err))
	}
	// drain ledger mirrors still in flight before the database closes
	scanRecorder.Close()
	_ = eventBus.Stop(shutdownCtx)

	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logs":   logsProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}
