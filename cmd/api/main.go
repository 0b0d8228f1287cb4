package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/auth"
	"github.com/SergeiKhy/site-analytics/internal/config"
	"github.com/SergeiKhy/site-analytics/internal/ga4"
	"github.com/SergeiKhy/site-analytics/internal/geo"
	"github.com/SergeiKhy/site-analytics/internal/handler"
	"github.com/SergeiKhy/site-analytics/internal/metrics"
	"github.com/SergeiKhy/site-analytics/internal/middleware"
	"github.com/SergeiKhy/site-analytics/internal/observability"
	"github.com/SergeiKhy/site-analytics/internal/repository"
	"github.com/SergeiKhy/site-analytics/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Повышенные привилегии подключаются лениво, после аутентификации администратора
	adminDB := repository.NewAdminDB(cfg.DB, db)
	defer adminDB.Close()
	if !cfg.DB.HasAdminCredentials() {
		logger.Warn("Admin database credentials not set, reset is disabled")
	}

	// Инициализация репозиториев
	pageViewRepo := repository.NewPageViewRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	var rateLimitRepo, resetRateLimitRepo repository.RateLimitRepository
	switch cfg.RateLimit.Backend {
	case "redis":
		redis, err := repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		logger.Info("Connected to Redis")

		rateLimitRepo = repository.NewRedisRateLimitRepository(redis)
		resetRateLimitRepo = rateLimitRepo
	default:
		rateLimitRepo = repository.NewRateLimitRepository(db)
		resetRateLimitRepo = repository.NewRateLimitRepository(adminDB.Elevated())
	}

	// Геолокация
	var lookup geo.Lookup = geo.Noop{}
	if cfg.Geo.Enabled {
		lookup = geo.NewClient(geo.Config{
			CacheSize: cfg.Geo.CacheSize,
			CacheTTL:  cfg.Geo.CacheTTL,
		}, logger)
	}

	// Инициализация сервисов
	limiter := service.NewRateLimiter(rateLimitRepo, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, logger)
	ingestService := service.NewIngestService(pageViewRepo, sessionRepo, limiter, lookup, logger)
	resetService := service.NewResetService(
		repository.NewPageViewRepository(adminDB.Elevated()),
		repository.NewSessionRepository(adminDB.Elevated()),
		resetRateLimitRepo,
		logger,
	)

	// Очистка истёкших окон ограничения частоты по расписанию
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.RateLimit.PruneSchedule, func() {
		pruned, err := limiter.Prune(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("Failed to prune rate limit windows", zap.Error(err))
			return
		}
		logger.Debug("Pruned rate limit windows", zap.Int64("count", pruned))
	})
	if err != nil {
		logger.Fatal("Invalid prune schedule", zap.String("schedule", cfg.RateLimit.PruneSchedule), zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Источник метрик
	var source metrics.Source
	switch cfg.Metrics.Source {
	case "ga4":
		ga4Source, err := ga4.New(ctx, cfg.GA4, logger)
		if err != nil {
			logger.Fatal("Failed to create GA4 source", zap.Error(err))
		}
		source = ga4Source
		logger.Info("Metrics served from GA4", zap.String("property", cfg.GA4.PropertyID))
	default:
		zone, err := metrics.LoadCivilZone(cfg.Metrics.CivilTimezone)
		if err != nil {
			logger.Fatal("Failed to load civil timezone", zap.String("timezone", cfg.Metrics.CivilTimezone), zap.Error(err))
		}
		source = metrics.NewAggregator(
			repository.NewPageViewRepository(adminDB),
			repository.NewSessionRepository(adminDB),
			metrics.AggregatorConfig{
				Zone:               zone,
				SiteDomain:         cfg.Metrics.SiteDomain,
				ExcludedIdentities: cfg.Metrics.ExcludedIdentities,
			},
			logger,
		)
	}

	// Аутентификация администратора
	verifier, err := auth.New(ctx, cfg.Auth, logger)
	if err != nil {
		logger.Fatal("Failed to create token verifier", zap.String("mode", cfg.Auth.Mode), zap.Error(err))
	}
	logger.Info("Admin authentication enabled", zap.String("mode", cfg.Auth.Mode))

	adminThrottle := middleware.NewRateLimiter(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.AdminRequestsPerSecond,
		BurstSize:         cfg.RateLimit.AdminBurstSize,
		CleanupInterval:   time.Minute,
	})

	// Настройка роутера
	router := handler.NewRouter(handler.RouterDeps{
		Ingest:         ingestService,
		Reset:          resetService,
		Metrics:        source,
		Verifier:       verifier,
		AdminThrottle:  adminThrottle,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustedProxies: cfg.CORS.TrustedProxies,
		Observability:  observability.NewMetrics(nil),
		Logger:         logger,
	})

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
