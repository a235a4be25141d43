/**
 * @description
 * Entry point for the payment-service. It wires configuration, PostgreSQL, the
 * Flouci client, the RabbitMQ producer, the Redis rate limiter and the outbox
 * workers, then serves POST /paiement until SIGINT/SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: .env loading for local development.
 * - github.com/redis/go-redis/v9: donation rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: service packages.
 * - pkg/flouci, pkg/rabbitmq: provider and broker clients.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/yahiasaidi031/PFE/internal/api"
	"github.com/yahiasaidi031/PFE/internal/app"
	"github.com/yahiasaidi031/PFE/internal/config"
	"github.com/yahiasaidi031/PFE/internal/logging"
	"github.com/yahiasaidi031/PFE/internal/metrics"
	"github.com/yahiasaidi031/PFE/internal/store"
	"github.com/yahiasaidi031/PFE/pkg/flouci"
	"github.com/yahiasaidi031/PFE/pkg/rabbitmq"
)

const serviceName = "payment-service"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(serviceName, cfg.AppEnv, cfg.LogLevel)
	boot := logger.With().Str("component", "bootstrap").Logger()
	boot.Info().Str("port", cfg.ServerPort).Msg("starting payment-service")

	if cfg.AutoMigrate {
		if err := store.MigrateUp(context.Background(), cfg.DatabaseURL); err != nil {
			boot.Fatal().Err(err).Msg("database migration failed")
		}
	}

	dbpool, err := store.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		boot.Fatal().Err(err).Msg("database connection failed")
	}
	defer dbpool.Close()
	boot.Info().Msg("database connected")

	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewReconnectingProducer(cfg.RabbitMQURL, logger)
	switch {
	case err != nil:
		boot.Warn().Err(err).Msg("rabbitmq url invalid; events will stay parked in the outbox")
		producer = &rabbitmq.EventProducerFallback{Logger: logger}
	case !eventProducer.Connected():
		boot.Warn().Msg("rabbitmq unreachable; events will be parked in the outbox until it returns")
		producer = eventProducer
	default:
		boot.Info().Msg("rabbitmq producer connected")
		producer = eventProducer
	}
	defer producer.Close()

	m := metrics.New(serviceName)
	repository := store.NewPostgresDonationRepository(dbpool)
	flouciClient := flouci.NewClient(flouci.Config{
		BaseURL:             cfg.FlouciBaseURL,
		AppToken:            cfg.FlouciAppToken,
		AppSecret:           cfg.FlouciAppSecret,
		SuccessLink:         cfg.FlouciSuccessLink,
		FailLink:            cfg.FlouciFailLink,
		DeveloperTrackingID: cfg.FlouciTrackingID,
		SessionTimeoutSecs:  cfg.FlouciSessionTimeout,
	}, cfg.FlouciTimeout(), logger)

	routing := app.Routing{
		Exchange:          cfg.ExchangeName,
		PaymentBindingKey: cfg.PaymentBindingKey,
		UserBindingKey:    cfg.UserBindingKey,
	}
	paymentService := app.NewPaymentService(repository, repository, flouciClient, producer, routing, cfg.FlouciTimeout(), m, logger)

	if redisClient := connectRedis(cfg, boot); redisClient != nil {
		defer redisClient.Close()
		paymentService.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix), cfg.DonationRateLimitPerMinute)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	dispatcher := app.NewOutboxDispatcher(repository, producer, cfg.OutboxPollInterval(), cfg.OutboxBatchSize, m, logger)
	go dispatcher.Run(workerCtx)

	janitor := app.NewOutboxJanitor(repository, cfg.OutboxRetentionSchedule, time.Duration(cfg.OutboxRetentionHours)*time.Hour, logger)
	if err := janitor.Start(); err != nil {
		boot.Fatal().Err(err).Msg("outbox janitor start failed")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           api.NewPaymentRouter(cfg, logger, m, paymentService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("component", "http").Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Str("component", "http").Err(err).Msg("server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Str("component", "http").Msg("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Str("component", "http").Err(err).Msg("shutdown failed")
	}
	stopWorkers()
	<-janitor.Stop().Done()

	logger.Info().Str("component", "http").Msg("shutdown complete")
}

// connectRedis returns nil when rate limiting is disabled or Redis is unreachable.
func connectRedis(cfg config.Config, boot zerolog.Logger) *redis.Client {
	if cfg.DonationRateLimitPerMinute <= 0 {
		return nil
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		boot.Warn().Msg("redis url missing; donation rate limiting disabled")
		return nil
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		boot.Warn().Err(err).Msg("redis url parse failed; donation rate limiting disabled")
		return nil
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		boot.Warn().Err(err).Msg("redis ping failed; donation rate limiting disabled")
		client.Close()
		return nil
	}
	boot.Info().Msg("redis connected")
	return client
}
