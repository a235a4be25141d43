/**
 * @description
 * Payment orchestration: validate a donation request, open a payment session with
 * the provider, record the donation, then announce it on the event bus twice
 * (payment routing key for the ledger, user routing key for notifications).
 *
 * @notes
 * - The provider charge, the donation row and the publishes are not one
 *   transaction. A publish that fails after the donation is stored is parked in
 *   the outbox and re-driven by OutboxDispatcher instead of failing the request.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yahiasaidi031/PFE/internal/domain"
	"github.com/yahiasaidi031/PFE/internal/metrics"
	"github.com/yahiasaidi031/PFE/internal/store"
	"github.com/yahiasaidi031/PFE/pkg/flouci"
)

const (
	donationConfirmedMessage = "Paiement effectué avec succès via Flouci."
	donationRateLimitScope   = "donation"
	defaultProviderTimeout   = 30 * time.Second

	// amountScale matches the NUMERIC(20, 3) amount columns.
	amountScale = 3
)

// PaymentProvider opens a payment session for an amount.
type PaymentProvider interface {
	GeneratePayment(ctx context.Context, amount decimal.Decimal) (*flouci.GeneratePaymentResponse, error)
}

// EventPublisher publishes a JSON event.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// DonationRateLimiter counts requests per subject within a window.
type DonationRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Routing names the exchange and routing keys donation events go to.
type Routing struct {
	Exchange          string
	PaymentBindingKey string
	UserBindingKey    string
}

// PaymentService orchestrates donations.
type PaymentService struct {
	donations       store.DonationRepository
	outbox          store.OutboxRepository
	provider        PaymentProvider
	publisher       EventPublisher
	routing         Routing
	providerTimeout time.Duration
	limiter         DonationRateLimiter
	limitPerMinute  int
	metrics         *metrics.Metrics
	logger          zerolog.Logger
	now             func() time.Time
}

func NewPaymentService(
	donations store.DonationRepository,
	outbox store.OutboxRepository,
	provider PaymentProvider,
	publisher EventPublisher,
	routing Routing,
	providerTimeout time.Duration,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *PaymentService {
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}
	return &PaymentService{
		donations:       donations,
		outbox:          outbox,
		provider:        provider,
		publisher:       publisher,
		routing:         routing,
		providerTimeout: providerTimeout,
		metrics:         m,
		logger:          logger.With().Str("component", "payment_service").Logger(),
		now:             time.Now,
	}
}

// SetRateLimiter enables per-user donation rate limiting. A limit of zero disables it.
func (s *PaymentService) SetRateLimiter(limiter DonationRateLimiter, perMinute int) {
	s.limiter = limiter
	s.limitPerMinute = perMinute
}

// ConfirmDonation runs the full donation workflow for req.
func (s *PaymentService) ConfirmDonation(ctx context.Context, req domain.DonationRequest) (*domain.DonationConfirmation, error) {
	userID, collectionID, amount, err := validateDonationRequest(req)
	if err != nil {
		s.metrics.DonationOutcome("invalid")
		return nil, err
	}

	if err := s.checkRateLimit(ctx, userID); err != nil {
		s.metrics.DonationOutcome("rate_limited")
		return nil, err
	}

	providerResult, err := s.generatePayment(ctx, decimal.NewFromFloat(amount))
	if err != nil {
		s.metrics.DonationOutcome("provider_error")
		return nil, err
	}

	donation, err := s.RecordDonation(ctx, userID, collectionID, amount)
	if err != nil {
		s.metrics.DonationOutcome("persistence_error")
		return nil, err
	}

	s.announce(ctx, *donation)
	s.metrics.DonationOutcome("confirmed")

	return &domain.DonationConfirmation{
		Message:              donationConfirmedMessage,
		ProviderData:         providerResult.Raw,
		UserID:               userID,
		CampaignCollectionID: collectionID,
		Amount:               amount,
		DonationID:           donation.ID,
	}, nil
}

// RecordDonation coerces amount to a decimal and persists a new donation.
// Identical calls create distinct donations.
func (s *PaymentService) RecordDonation(ctx context.Context, userID, campaignCollectionID string, amount interface{}) (*domain.Donation, error) {
	value, ok := coerceAmount(amount)
	if !ok || !value.IsPositive() || !fitsAmountScale(value) {
		return nil, ErrValidation
	}

	donation := &domain.Donation{
		ID:                   uuid.New(),
		UserID:               userID,
		CampaignCollectionID: campaignCollectionID,
		Amount:               value,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.donations.CreateDonation(ctx, donation); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("compagne_collect_id", campaignCollectionID).Msg("donation insert failed")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return donation, nil
}

func (s *PaymentService) checkRateLimit(ctx context.Context, userID string) error {
	if s.limiter == nil || s.limitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, donationRateLimitScope, userID, s.limitPerMinute, time.Minute)
	if err != nil {
		// Fail open: an unavailable limiter must not block donations.
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("rate limiter unavailable")
		return nil
	}
	if count > s.limitPerMinute {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *PaymentService) generatePayment(ctx context.Context, amount decimal.Decimal) (*flouci.GeneratePaymentResponse, error) {
	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	started := s.now()
	result, err := s.provider.GeneratePayment(providerCtx, amount)
	s.metrics.ObserveProviderLatency(s.now().Sub(started).Seconds())
	if err != nil {
		var apiErr *flouci.APIError
		if errors.As(err, &apiErr) {
			return nil, &PaymentProviderError{Status: apiErr.StatusCode, Body: apiErr.Body, Err: err}
		}
		return nil, &PaymentProviderError{Err: err}
	}
	if result == nil {
		return &flouci.GeneratePaymentResponse{Raw: json.RawMessage("null")}, nil
	}
	return result, nil
}

// announce publishes the confirmed donation on the payment key, then the user key.
func (s *PaymentService) announce(ctx context.Context, donation domain.Donation) {
	event := domain.NewDonationConfirmedEvent(donation)
	log := s.logger.With().Str("event_id", event.EventID).Logger()
	for _, routingKey := range []string{s.routing.PaymentBindingKey, s.routing.UserBindingKey} {
		publishOrPark(ctx, s.publisher, s.outbox, s.metrics, log, s.routing.Exchange, routingKey, event)
	}
}

func validateDonationRequest(req domain.DonationRequest) (string, string, float64, error) {
	userID, ok := req.UserID.(string)
	if !ok || strings.TrimSpace(userID) == "" {
		return "", "", 0, invalidInput("userId must be a non-empty string")
	}
	collectionID, ok := req.CampaignCollectionID.(string)
	if !ok || strings.TrimSpace(collectionID) == "" {
		return "", "", 0, invalidInput("compagneCollectId must be a non-empty string")
	}
	amount, ok := req.Amount.(float64)
	if !ok || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return "", "", 0, invalidInput("montant must be a finite positive number")
	}
	if !fitsAmountScale(decimal.NewFromFloat(amount)) {
		return "", "", 0, invalidInput(fmt.Sprintf("montant must have at most %d decimal places", amountScale))
	}
	return userID, collectionID, amount, nil
}

// fitsAmountScale reports whether d can be stored without rounding.
func fitsAmountScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(amountScale))
}

// coerceAmount converts the numeric forms a caller may hand the recorder.
func coerceAmount(v interface{}) (decimal.Decimal, bool) {
	switch amount := v.(type) {
	case decimal.Decimal:
		return amount, true
	case float64:
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(amount), true
	case float32:
		return coerceAmount(float64(amount))
	case int:
		return decimal.NewFromInt(int64(amount)), true
	case int64:
		return decimal.NewFromInt(amount), true
	case json.Number:
		d, err := decimal.NewFromString(amount.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(amount))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
