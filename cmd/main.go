/**
 * @description
 * Entry point for the school fees payment service. It wires the database,
 * the credential store, the accounting client, the event publisher, the
 * maintenance scheduler and the HTTP server, then waits for a shutdown signal.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pool.
 * - github.com/redis/go-redis/v9: Optional lookup rate limiting and credential backend.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/schoolfees/payment-service/internal/api"
	"github.com/schoolfees/payment-service/internal/app"
	"github.com/schoolfees/payment-service/internal/config"
	"github.com/schoolfees/payment-service/internal/credentials"
	"github.com/schoolfees/payment-service/internal/store"
	"github.com/schoolfees/payment-service/pkg/quickbooks"
	"github.com/schoolfees/payment-service/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	redisClient := connectRedis(logger, cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var sealer credentials.Sealer = credentials.NoopSealer{}
	if strings.TrimSpace(cfg.CredentialEncryptionKey) != "" {
		aead, err := credentials.NewAEADSealer(cfg.CredentialEncryptionKey)
		if err != nil {
			logger.Error("invalid credential encryption key", "error", err)
			os.Exit(1)
		}
		sealer = aead
	} else {
		logger.Warn("credential encryption key not set; accounting tokens are stored in plaintext")
	}

	var backend credentials.Backend = store.NewPostgresSettingsStore(dbpool)
	if cfg.CredentialBackend == config.CredentialBackendRedis {
		if redisClient != nil {
			backend = store.NewRedisSettingsStore(redisClient, cfg.RedisRateLimitPrefix)
		} else {
			logger.Warn("redis unavailable; storing accounting credential in postgres")
		}
	}
	credentialStore := credentials.NewStore(backend, sealer)

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			logger.Info("rabbitmq producer connected")
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}
	defer publisher.Close()

	clientFactory := app.NewQuickBooksClientFactory(quickBooksConfig(cfg.QuickBooks))
	accountingSync := app.NewAccountingSync(credentialStore, clientFactory, logger)

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, accountingSync, publisher, cfg.EventsExchange, logger)
	if redisClient != nil && cfg.LookupRateLimitPerMinute > 0 {
		service.SetLookupRateLimiter(app.NewRedisLookupRateLimiter(redisClient, cfg.RedisRateLimitPrefix), cfg.LookupRateLimitPerMinute)
	}
	admin := app.NewAccountingAdmin(credentialStore, accountingSync, logger)

	scheduler := app.NewScheduler(app.NewJobs(service, logger), logger, cfg.OverdueSweepSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	if strings.TrimSpace(cfg.AdminJWTSecret) == "" {
		logger.Warn("admin JWT secret not set; admin endpoints are disabled")
	}
	handler := api.NewHandler(service, admin)
	router := api.NewRouter(handler, cfg.AllowedOrigins(), cfg.AdminJWTSecret)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled jobs still running at shutdown")
	}

	logger.Info("server stopped")
}

// connectRedis returns nil when Redis is not configured or not reachable.
func connectRedis(logger *slog.Logger, redisURL string) *redis.Client {
	if strings.TrimSpace(redisURL) == "" {
		logger.Info("redis url not set; lookup rate limiting disabled")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("redis url parse failed; lookup rate limiting disabled", "error", err)
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; lookup rate limiting disabled", "error", err)
		client.Close()
		return nil
	}

	logger.Info("redis connected")
	return client
}

func quickBooksConfig(c config.QuickBooksConfig) quickbooks.Config {
	return quickbooks.Config{
		BaseURL:                c.BaseURL,
		Timeout:                time.Duration(c.TimeoutSeconds) * time.Second,
		PlaceholderEmailDomain: c.PlaceholderEmailDomain,
		PlaceholderPhone:       c.PlaceholderPhone,
		DefaultDueToday:        c.DefaultDueToday,
		ItemRef:                c.ItemRef,
		DepositAccountRef:      c.DepositAccountRef,
		PaymentMethodRefs:      map[string]string{"cash": c.CashPaymentMethodRef},
		BillAddress: quickbooks.Address{
			Line1:   c.BillAddressLine1,
			City:    c.BillAddressCity,
			Country: c.BillAddressCountry,
		},
	}
}
