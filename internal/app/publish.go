package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/yahiasaidi031/PFE/internal/metrics"
	"github.com/yahiasaidi031/PFE/internal/store"
)

const publishTimeout = 5 * time.Second

// publishOrPark publishes payload and falls back to the outbox when the broker
// is unavailable. The caller's work is already committed, so neither failure
// is returned; a lost event is logged and counted instead.
func publishOrPark(
	ctx context.Context,
	publisher EventPublisher,
	outbox store.OutboxRepository,
	m *metrics.Metrics,
	logger zerolog.Logger,
	exchange, routingKey string,
	payload interface{},
) {
	log := logger.With().Str("routing_key", routingKey).Logger()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := publisher.Publish(pubCtx, exchange, routingKey, payload)
	if err == nil {
		m.Published(routingKey, "ok")
		return
	}
	log.Warn().Err(err).Msg("event publish failed; parking in outbox")

	if outbox == nil {
		m.Published(routingKey, "failed")
		m.PublishInconsistency()
		log.Error().Msg("event lost: no outbox configured")
		return
	}
	if outboxErr := outbox.EnqueueOutboxMessage(pubCtx, exchange, routingKey, payload); outboxErr != nil {
		m.Published(routingKey, "failed")
		m.PublishInconsistency()
		log.Error().Err(outboxErr).Msg("event lost: outbox enqueue failed")
		return
	}
	m.Published(routingKey, "outboxed")
}
