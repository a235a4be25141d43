/**
 * @description
 * Entry point for the project-service. It serves the project API and consumes
 * confirmed-donation events to credit campaign collections.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yahiasaidi031/PFE/internal/api"
	"github.com/yahiasaidi031/PFE/internal/app"
	"github.com/yahiasaidi031/PFE/internal/config"
	"github.com/yahiasaidi031/PFE/internal/logging"
	"github.com/yahiasaidi031/PFE/internal/metrics"
	"github.com/yahiasaidi031/PFE/internal/store"
	"github.com/yahiasaidi031/PFE/pkg/rabbitmq"
)

const serviceName = "project-service"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(serviceName, cfg.AppEnv, cfg.LogLevel)
	boot := logger.With().Str("component", "bootstrap").Logger()
	boot.Info().Str("port", cfg.ServerPort).Msg("starting project-service")

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
	repository := store.NewPostgresProjectRepository(dbpool)
	routing := app.Routing{
		Exchange:          cfg.ExchangeName,
		PaymentBindingKey: cfg.PaymentBindingKey,
		UserBindingKey:    cfg.UserBindingKey,
	}
	projectService := app.NewProjectService(repository, repository, repository, producer, routing, m, logger)
	ledgerUpdater := app.NewLedgerUpdater(repository, m, logger)

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger, rabbitmq.ConsumerOptions{
		MaxAttempts:    cfg.MaxDeliveryAttempts,
		Prefetch:       1,
		Observer:       m,
		RetryBaseDelay: cfg.RetryBaseDelay(),
		RetryMaxDelay:  cfg.RetryMaxDelay(),
	})
	if err != nil {
		boot.Fatal().Err(err).Msg("rabbitmq consumer init failed")
	}
	defer consumer.Close()

	bindings := map[string]rabbitmq.Handler{
		cfg.PaymentBindingKey: ledgerUpdater.HandleMessage,
	}
	if err := consumer.ConsumeWithBindings(cfg.ExchangeName, cfg.PaymentQueue, bindings); err != nil {
		boot.Fatal().Err(err).Msg("payment consumer start failed")
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
		Handler:           api.NewProjectRouter(cfg, logger, m, projectService),
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
