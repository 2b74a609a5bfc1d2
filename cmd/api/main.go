package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/cache"
	"github.com/commercekit/webhook-dispatch/internal/config"
	"github.com/commercekit/webhook-dispatch/internal/handler"
	"github.com/commercekit/webhook-dispatch/internal/infra/postgresql"
	"github.com/commercekit/webhook-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/commercekit/webhook-dispatch/internal/infra/redis"
	"github.com/commercekit/webhook-dispatch/internal/observability"
	"github.com/commercekit/webhook-dispatch/internal/repository"
	"github.com/commercekit/webhook-dispatch/internal/service"
	"github.com/commercekit/webhook-dispatch/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subscriptionRepo := repository.NewGormSubscriptionRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	activeCache := cache.NewActiveCache()
	if err := activeCache.Init(ctx, subscriptionRepo); err != nil {
		logger.Fatal("active subscription cache warmup failed", zap.Error(err))
	}
	defer activeCache.Shutdown()

	metrics := observability.NewMetrics()

	subscriptionService, err := service.NewSubscriptionService(subscriptionRepo, activeCache, logger)
	if err != nil {
		logger.Fatal("subscription service init failed", zap.Error(err))
	}
	subscriptionService.SetMetrics(metrics)

	disablePolicy, err := service.NewDisablePolicy(
		attemptRepo,
		subscriptionService,
		cfg.DisableThreshold,
		time.Duration(cfg.DisableWindowHours)*time.Hour,
		logger,
	)
	if err != nil {
		logger.Fatal("disable policy init failed", zap.Error(err))
	}
	disablePolicy.SetMetrics(metrics)

	deliverer, err := service.NewDeliverer(
		attemptRepo,
		disablePolicy,
		time.Duration(cfg.DeliveryTimeoutSec)*time.Second,
		cfg.MaxResponseBodyBytes,
		logger,
	)
	if err != nil {
		logger.Fatal("deliverer init failed", zap.Error(err))
	}
	deliverer.SetMetrics(metrics)

	if cfg.DeliveryRateLimitPerSec > 0 {
		limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.DeliveryRateLimitPerSec)
		if err != nil {
			logger.Fatal("delivery rate limiter init failed", zap.Error(err))
		}
		deliverer.SetRateLimiter(limiter)
	}

	dispatcher, err := service.NewDispatcher(activeCache, subscriptionRepo, deliverer, logger)
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterWebhookRoutes(app, subscriptionService, attemptRepo, dispatcher); err != nil {
		logger.Fatal("webhook routes init failed", zap.Error(err))
	}
	if err := handler.RegisterEventRoutes(app, dispatcher, logger); err != nil {
		logger.Fatal("event routes init failed", zap.Error(err))
	}

	go func() {
		logger.Info("webhook-dispatch api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("webhook-dispatch api stopped")
}
