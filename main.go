package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ms-distribution/internal/admin"
	admindb "ms-distribution/internal/admin/db"
	"ms-distribution/internal/admin/qr"
	"ms-distribution/internal/allocation"
	allocationdb "ms-distribution/internal/allocation/db"
	"ms-distribution/internal/auth"
	"ms-distribution/internal/config"
	"ms-distribution/internal/database"
	"ms-distribution/internal/database/migrations"
	"ms-distribution/internal/kafka"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/metrics"
	"ms-distribution/internal/notify"
	"ms-distribution/internal/ratelimit"
	"ms-distribution/internal/staff"
	staffdb "ms-distribution/internal/staff/db"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var bunDB *bun.DB
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 4), ctx)

	err := backoff.Retry(func() error {
		attempt++
		log.Info("DATABASE", fmt.Sprintf("Connecting to %s (attempt %d/5)", cfg.Driver, attempt))
		db, err := database.Open(ctx, cfg)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Connection failed: %v", err))
			return err
		}
		bunDB = db
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	log.LogDatabase("CONNECT", cfg.Driver, fmt.Sprintf("✅ Database connection successful after %d attempt(s)", attempt))
	return bunDB, nil
}

func runMigrations(cfg config.DatabaseConfig, log *logger.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return err
	}
	runner := migrations.NewRunner(sqlDB, log)
	defer runner.Close()
	return runner.RunMigrations()
}

func newLimiter(ctx context.Context, cfg *config.Config, log *logger.Logger) (ratelimit.Limiter, func()) {
	if cfg.Redis.Addr == "" {
		limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.PerMinute)
		limiter.StartJanitor(ctx, time.Minute)
		log.Warn("REDIS", "REDIS_ADDR not set, rate limiting is per instance")
		return limiter, func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis ping failed, limiter will fail open until it recovers: %v", err))
	} else {
		log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	}
	return ratelimit.NewRedisLimiter(client, cfg.RateLimit.PerMinute), func() { client.Close() }
}

func newDispatcher(cfg *config.Config, log *logger.Logger) (allocation.Dispatcher, func()) {
	if !cfg.Kafka.Enabled {
		log.Info("KAFKA", "Kafka disabled, confirmations are sent inline")
		return &notify.SendDispatcher{Sender: notify.NewSenderFromConfig(cfg.SMS, log), Logger: log}, func() {}
	}

	topic := cfg.Kafka.Topics.RegistrationConfirmed
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{topic}, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	producer := kafka.NewProducer(cfg.Kafka.Brokers, topic)
	log.Info("KAFKA", "Kafka producer initialized successfully")
	return notify.NewKafkaDispatcher(producer, topic, log), func() { producer.Close() }
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	if cfg.OIDCIssuer != "" {
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("either OIDC_ISSUER or JWT_SECRET must be set")
	}
	return auth.NewHMACVerifier(cfg.JWTSecret), nil
}

func main() {
	cfg := config.Load()
	log := logger.NewLogger("distribution-service", cfg.LogDir)
	defer log.Close()

	log.Info("APP", "Starting Distribution Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := connectDatabase(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect: %v", err))
	}
	defer bunDB.Close()

	if cfg.Database.Driver != "sqlite" && cfg.Database.AutoMigrate {
		if err := runMigrations(cfg.Database, log); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
		}
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	limiter, closeLimiter := newLimiter(ctx, cfg, log)
	defer closeLimiter()

	dispatcher, closeDispatcher := newDispatcher(cfg, log)
	defer closeDispatcher()

	m := metrics.New()

	allocationService := allocation.NewService(
		&allocationdb.DB{Bun: bunDB, LockTimeout: cfg.Allocation.LockTimeout},
		dispatcher,
		log,
		allocation.WithCooldown(cfg.Allocation.Cooldown),
		allocation.WithReferencePrefix(cfg.Allocation.ReferencePrefix),
		allocation.WithTimeout(cfg.Allocation.Timeout),
		allocation.WithRecorder(m),
	)
	staffService := staff.NewStaffService(&staffdb.DB{Bun: bunDB}, allocationService, log)
	adminService := admin.NewAdminService(&admindb.DB{Bun: bunDB}, qr.NewQRGenerator(cfg.Server.PublicURL, 256), log)
	adminService.Cooldown = cfg.Allocation.Cooldown

	log.Info("HTTP", "Setting up router and middleware")
	server := &http.Server{
		Addr: cfg.Server.Port,
		Handler: newRouter(routerDeps{
			Logger:     log,
			Metrics:    m,
			Limiter:    limiter,
			TrustXFF:   cfg.RateLimit.TrustXForwardedFor,
			Verifier:   verifier,
			Allocation: allocationService,
			Staff:      staffService,
			Admin:      adminService,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Distribution Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	allocationService.Wait()
	log.Info("HTTP", "✅ Distribution Service shutdown complete")
}
