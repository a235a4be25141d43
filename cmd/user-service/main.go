/**
 * @description
 * Entry point for the user-service. It consumes the user routing key to keep a
 * donation history per user and serves GET /user/{id}/donations.
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

const serviceName = "user-service"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(serviceName, cfg.AppEnv, cfg.LogLevel)
	boot := logger.With().Str("component", "bootstrap").Logger()
	boot.Info().Str("port", cfg.ServerPort).Msg("starting user-service")

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

	m := metrics.New(serviceName)
	userService := app.NewUserService(store.NewPostgresNotificationRepository(dbpool), logger)

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
		cfg.UserBindingKey: userService.HandleMessage,
	}
	if err := consumer.ConsumeWithBindings(cfg.ExchangeName, cfg.UserQueue, bindings); err != nil {
		boot.Fatal().Err(err).Msg("user consumer start failed")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           api.NewUserRouter(cfg, logger, m, userService),
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

	logger.Info().Str("component", "http").Msg("shutdown complete")
}
