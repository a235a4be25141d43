/**
 * @description
 * Consumes confirmed-donation events on the project service and credits the
 * referenced campaign collection.
 *
 * @notes
 * - Credits are a single atomic UPDATE, so concurrent consumers cannot lose
 *   increments.
 * - Events carrying an eventId are applied at most once per consumer through the
 *   processed_events table. Legacy events without one are applied on every
 *   delivery.
 * - A collection that does not exist yields Retry. The consumer's attempt bound
 *   moves the message to the dead-letter queue once retries are exhausted.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yahiasaidi031/PFE/internal/domain"
	"github.com/yahiasaidi031/PFE/internal/metrics"
	"github.com/yahiasaidi031/PFE/internal/store"
	"github.com/yahiasaidi031/PFE/pkg/rabbitmq"
)

// LedgerConsumerName identifies the ledger updater in processed_events.
const LedgerConsumerName = "project_service.ledger"

const ledgerHandlerTimeout = 15 * time.Second

type LedgerUpdater struct {
	ledger  store.CampaignLedger
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewLedgerUpdater(ledger store.CampaignLedger, m *metrics.Metrics, logger zerolog.Logger) *LedgerUpdater {
	return &LedgerUpdater{
		ledger:  ledger,
		metrics: m,
		logger:  logger.With().Str("component", "ledger_updater").Logger(),
	}
}

// HandleMessage is a rabbitmq.Handler for the payment routing key.
func (u *LedgerUpdater) HandleMessage(body []byte) rabbitmq.Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerHandlerTimeout)
	defer cancel()

	outcome, err := u.Apply(ctx, body)
	if err != nil {
		switch outcome {
		case rabbitmq.Reject:
			u.logger.Error().Err(err).Str("body", truncateForLog(body)).Msg("dropping undecodable donation event")
		default:
			u.logger.Error().Err(err).Msg("donation event not applied; will retry")
		}
	}
	return outcome
}

// Apply credits the collection referenced by body and reports how the
// delivery should be settled.
func (u *LedgerUpdater) Apply(ctx context.Context, body []byte) (rabbitmq.Outcome, error) {
	event, err := decodeDonationEvent(body)
	if err != nil {
		u.metrics.LedgerCredit("malformed")
		return rabbitmq.Reject, err
	}

	log := u.logger.With().
		Str("compagne_collect_id", event.CampaignCollectionID).
		Str("event_id", event.EventID).
		Logger()

	if _, err := u.ledger.FindCampaignCollectionByID(ctx, event.CampaignCollectionID); err != nil {
		return u.creditFailed(err)
	}

	if event.EventID == "" {
		total, err := u.ledger.IncrementCollectedAmount(ctx, event.CampaignCollectionID, event.Amount)
		if err != nil {
			return u.creditFailed(err)
		}
		u.metrics.LedgerCredit("applied")
		log.Info().Str("montant", event.Amount.String()).Str("total", total.String()).Msg("campaign collection credited")
		return rabbitmq.Ack, nil
	}

	applied, total, err := u.ledger.ApplyDonationOnce(ctx, LedgerConsumerName, event.EventID, event.CampaignCollectionID, event.Amount)
	if err != nil {
		return u.creditFailed(err)
	}
	if !applied {
		u.metrics.LedgerCredit("duplicate")
		log.Info().Msg("duplicate donation event ignored")
		return rabbitmq.Ack, nil
	}
	u.metrics.LedgerCredit("applied")
	log.Info().Str("montant", event.Amount.String()).Str("total", total.String()).Msg("campaign collection credited")
	return rabbitmq.Ack, nil
}

func (u *LedgerUpdater) creditFailed(err error) (rabbitmq.Outcome, error) {
	if errors.Is(err, store.ErrCampaignCollectionNotFound) {
		u.metrics.LedgerCredit("not_found")
		return rabbitmq.Retry, fmt.Errorf("%w: %w", ErrEntityNotFound, err)
	}
	u.metrics.LedgerCredit("error")
	return rabbitmq.Retry, err
}

func decodeDonationEvent(body []byte) (domain.DonationConfirmedEvent, error) {
	var event domain.DonationConfirmedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("%w: %w", ErrMessageDecode, err)
	}
	if strings.TrimSpace(event.CampaignCollectionID) == "" {
		return event, fmt.Errorf("%w: compagneCollectId is required", ErrMessageDecode)
	}
	if !event.Amount.IsPositive() {
		return event, fmt.Errorf("%w: montant must be positive", ErrMessageDecode)
	}
	return event, nil
}

func truncateForLog(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
