/**
 * @description
 * Configuration for the crowdfunding services. Every binary (payment, project,
 * user, crowdfundctl) loads the same Config through Viper; each one only reads
 * the fields it needs.
 *
 * @dependencies
 * - github.com/spf13/viper: environment and optional .env file binding.
 */

package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables shared by the services.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	AppEnv      string `mapstructure:"APP_ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	AutoMigrate bool   `mapstructure:"AUTO_MIGRATE"`

	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	DonationRateLimitPerMinute int    `mapstructure:"DONATION_RATE_LIMIT_PER_MINUTE"`

	RabbitMQURL         string `mapstructure:"RABBITMQ_URL"`
	ExchangeName        string `mapstructure:"EXCHANGE_NAME"`
	PaymentBindingKey   string `mapstructure:"PAYMENT_BINDING_KEY"`
	UserBindingKey      string `mapstructure:"USER_BINDING_KEY"`
	PaymentQueue        string `mapstructure:"PAYMENT_QUEUE"`
	UserQueue           string `mapstructure:"USER_QUEUE"`
	MaxDeliveryAttempts int    `mapstructure:"MAX_DELIVERY_ATTEMPTS"`
	RetryBaseDelayMs    int    `mapstructure:"RETRY_BASE_DELAY_MS"`
	RetryMaxDelayMs     int    `mapstructure:"RETRY_MAX_DELAY_MS"`

	FlouciBaseURL        string `mapstructure:"FLOUCI_BASE_URL"`
	FlouciAppToken       string `mapstructure:"FLOUCI_APP_TOKEN"`
	FlouciAppSecret      string `mapstructure:"FLOUCI_APP_SECRET"`
	FlouciSuccessLink    string `mapstructure:"FLOUCI_SUCCESS_LINK"`
	FlouciFailLink       string `mapstructure:"FLOUCI_FAIL_LINK"`
	FlouciTrackingID     string `mapstructure:"FLOUCI_DEVELOPER_TRACKING_ID"`
	FlouciSessionTimeout int    `mapstructure:"FLOUCI_SESSION_TIMEOUT_SECS"`
	FlouciTimeoutSeconds int    `mapstructure:"FLOUCI_TIMEOUT"`

	AppSecret          string `mapstructure:"APP_SECRET"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	OutboxPollIntervalMs    int    `mapstructure:"OUTBOX_POLL_INTERVAL_MS"`
	OutboxBatchSize         int    `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxRetentionSchedule string `mapstructure:"OUTBOX_RETENTION_SCHEDULE"`
	OutboxRetentionHours    int    `mapstructure:"OUTBOX_RETENTION_HOURS"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file located in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "crowdfund:rate_limit")
	viper.SetDefault("DONATION_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("EXCHANGE_NAME", "crowdfund.events")
	viper.SetDefault("PAYMENT_BINDING_KEY", "payment.confirmed")
	viper.SetDefault("USER_BINDING_KEY", "user.notification")
	viper.SetDefault("PAYMENT_QUEUE", "project_service.payments")
	viper.SetDefault("USER_QUEUE", "user_service.notifications")
	viper.SetDefault("MAX_DELIVERY_ATTEMPTS", 5)
	viper.SetDefault("RETRY_BASE_DELAY_MS", 2000)
	viper.SetDefault("RETRY_MAX_DELAY_MS", 120000)
	viper.SetDefault("FLOUCI_BASE_URL", "https://developers.flouci.com")
	viper.SetDefault("FLOUCI_SESSION_TIMEOUT_SECS", 1200)
	viper.SetDefault("FLOUCI_TIMEOUT", 30)
	viper.SetDefault("OUTBOX_POLL_INTERVAL_MS", 1200)
	viper.SetDefault("OUTBOX_BATCH_SIZE", 50)
	viper.SetDefault("OUTBOX_RETENTION_SCHEDULE", "@hourly")
	viper.SetDefault("OUTBOX_RETENTION_HOURS", 72)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("APP_ENV")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("DONATION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL", "RABBITMQ_URL", "MESSAGE_BROKER_URL")
	_ = viper.BindEnv("EXCHANGE_NAME")
	_ = viper.BindEnv("PAYMENT_BINDING_KEY", "PAYMENT_BINDING_KEY", "PAIMENT_BINDING_KEY")
	_ = viper.BindEnv("USER_BINDING_KEY")
	_ = viper.BindEnv("PAYMENT_QUEUE")
	_ = viper.BindEnv("USER_QUEUE")
	_ = viper.BindEnv("MAX_DELIVERY_ATTEMPTS")
	_ = viper.BindEnv("RETRY_BASE_DELAY_MS")
	_ = viper.BindEnv("RETRY_MAX_DELAY_MS")
	_ = viper.BindEnv("FLOUCI_BASE_URL")
	_ = viper.BindEnv("FLOUCI_APP_TOKEN")
	_ = viper.BindEnv("FLOUCI_APP_SECRET", "FLOUCI_APP_SECRET", "FLOUCI_SECRET")
	_ = viper.BindEnv("FLOUCI_SUCCESS_LINK")
	_ = viper.BindEnv("FLOUCI_FAIL_LINK")
	_ = viper.BindEnv("FLOUCI_DEVELOPER_TRACKING_ID")
	_ = viper.BindEnv("FLOUCI_SESSION_TIMEOUT_SECS")
	_ = viper.BindEnv("FLOUCI_TIMEOUT")
	_ = viper.BindEnv("APP_SECRET")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("OUTBOX_POLL_INTERVAL_MS")
	_ = viper.BindEnv("OUTBOX_BATCH_SIZE")
	_ = viper.BindEnv("OUTBOX_RETENTION_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_RETENTION_HOURS")

	// A missing .env file is fine; anything else is surfaced to the caller.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.AppEnv = strings.ToLower(strings.TrimSpace(config.AppEnv))
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "crowdfund:rate_limit"
	}
	config.FlouciBaseURL = strings.TrimRight(strings.TrimSpace(config.FlouciBaseURL), "/")

	if config.DonationRateLimitPerMinute < 0 {
		config.DonationRateLimitPerMinute = 0
	}
	if config.MaxDeliveryAttempts <= 0 {
		config.MaxDeliveryAttempts = 5
	}
	if config.RetryBaseDelayMs <= 0 {
		config.RetryBaseDelayMs = 2000
	}
	if config.RetryMaxDelayMs < config.RetryBaseDelayMs {
		config.RetryMaxDelayMs = config.RetryBaseDelayMs
	}
	if config.FlouciSessionTimeout <= 0 {
		config.FlouciSessionTimeout = 1200
	}
	if config.FlouciTimeoutSeconds <= 0 {
		config.FlouciTimeoutSeconds = 30
	}
	if config.OutboxPollIntervalMs < 100 {
		config.OutboxPollIntervalMs = 100
	}
	if config.OutboxBatchSize <= 0 {
		config.OutboxBatchSize = 50
	}
	if config.OutboxRetentionHours <= 0 {
		config.OutboxRetentionHours = 72
	}

	return
}

// FlouciTimeout returns the per-request deadline for the payment provider.
func (c Config) FlouciTimeout() time.Duration {
	return time.Duration(c.FlouciTimeoutSeconds) * time.Second
}

// OutboxPollInterval returns how often the outbox dispatcher polls for work.
func (c Config) OutboxPollInterval() time.Duration {
	return time.Duration(c.OutboxPollIntervalMs) * time.Millisecond
}

// RetryBaseDelay is the wait before a failed delivery is redelivered the first time.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas, defaulting to "*".
func (c Config) AllowedOrigins() []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
