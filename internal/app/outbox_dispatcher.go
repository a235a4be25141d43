package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/yahiasaidi031/PFE/internal/metrics"
	"github.com/yahiasaidi031/PFE/internal/store"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
)

// RawPublisher publishes an already-encoded JSON body.
type RawPublisher interface {
	PublishRaw(ctx context.Context, exchange, routingKey string, body []byte) error
}

// OutboxDispatcher re-drives events that could not be published inline.
type OutboxDispatcher struct {
	repo                store.OutboxRepository
	publisher           RawPublisher
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	metrics             *metrics.Metrics
	logger              zerolog.Logger
}

func NewOutboxDispatcher(repo store.OutboxRepository, publisher RawPublisher, pollInterval time.Duration, batchSize int, m *metrics.Metrics, logger zerolog.Logger) *OutboxDispatcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &OutboxDispatcher{
		repo:                repo,
		publisher:           publisher,
		batchSize:           batchSize,
		pollInterval:        pollInterval,
		staleProcessingTime: defaultStaleProcessing,
		metrics:             m,
		logger:              logger.With().Str("component", "outbox_dispatcher").Logger(),
	}
}

// Run polls the outbox until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.flushOnce(ctx); err != nil {
				d.logger.Error().Err(err).Msg("outbox flush failed")
			}
		}
	}
}

func (d *OutboxDispatcher) flushOnce(ctx context.Context) error {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return err
	}

	for _, message := range messages {
		if err := d.publisher.PublishRaw(ctx, message.Exchange, message.RoutingKey, message.Payload); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			d.metrics.OutboxDispatched("failed")
			d.logger.Warn().Err(err).Int64("outbox_id", message.ID).Int("retry_after_seconds", retryAfter).Msg("outbox publish failed")
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				d.logger.Error().Err(markErr).Int64("outbox_id", message.ID).Msg("failed to reschedule outbox message")
			}
			continue
		}
		d.metrics.OutboxDispatched("published")
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error().Err(err).Int64("outbox_id", message.ID).Msg("failed to mark outbox message as published")
		}
	}
	return nil
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 8)
	if delay > 300 {
		return 300
	}
	return delay
}
