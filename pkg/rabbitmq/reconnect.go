package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultRedialInterval = 5 * time.Second

// Dialer opens a fresh publisher.
type Dialer func() (Publisher, error)

// ReconnectingProducer publishes through an inner producer and re-dials the
// broker when it is missing or a publish on it fails. Dial attempts are spaced
// at least redialInterval apart; in between, publishes fail fast with
// ErrProducerUnavailable.
type ReconnectingProducer struct {
	mu             sync.Mutex
	dial           Dialer
	current        Publisher
	redialInterval time.Duration
	lastDial       time.Time
	now            func() time.Time
	logger         zerolog.Logger
}

// NewReconnectingProducer validates amqpURL and makes a first connection
// attempt. A broker that is down at boot is not an error; the next publish
// after redialInterval tries again.
func NewReconnectingProducer(amqpURL string, logger zerolog.Logger) (*ReconnectingProducer, error) {
	if _, err := sanitizeURL(amqpURL); err != nil {
		return nil, err
	}
	p := NewReconnectingProducerWithDialer(func() (Publisher, error) {
		return NewEventProducer(amqpURL, logger)
	}, DefaultRedialInterval, logger)
	_, _ = p.acquire()
	return p, nil
}

func NewReconnectingProducerWithDialer(dial Dialer, redialInterval time.Duration, logger zerolog.Logger) *ReconnectingProducer {
	if redialInterval <= 0 {
		redialInterval = DefaultRedialInterval
	}
	return &ReconnectingProducer{
		dial:           dial,
		redialInterval: redialInterval,
		now:            time.Now,
		logger:         logger.With().Str("component", "rabbitmq_producer").Str("mode", "reconnecting").Logger(),
	}
}

// Connected reports whether a live producer is currently held.
func (p *ReconnectingProducer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *ReconnectingProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return p.PublishRaw(ctx, exchange, routingKey, jsonBody)
}

func (p *ReconnectingProducer) PublishRaw(ctx context.Context, exchange, routingKey string, body []byte) error {
	pub, err := p.acquire()
	if err != nil {
		return err
	}
	if err := pub.PublishRaw(ctx, exchange, routingKey, body); err != nil {
		p.discard(pub, err)
		return err
	}
	return nil
}

func (p *ReconnectingProducer) acquire() (Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return p.current, nil
	}
	now := p.now()
	if !p.lastDial.IsZero() && now.Sub(p.lastDial) < p.redialInterval {
		return nil, ErrProducerUnavailable
	}
	p.lastDial = now

	pub, err := p.dial()
	if err != nil {
		p.logger.Warn().Err(err).Dur("redial_in", p.redialInterval).Msg("broker dial failed")
		return nil, fmt.Errorf("%w: %w", ErrProducerUnavailable, err)
	}
	p.current = pub
	p.logger.Info().Msg("broker connected")
	return pub, nil
}

// discard drops pub so the next publish dials again. A concurrent caller may
// already have replaced it.
func (p *ReconnectingProducer) discard(pub Publisher, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != pub {
		return
	}
	p.logger.Warn().Err(cause).Msg("publish failed; dropping broker connection")
	p.current.Close()
	p.current = nil
}

func (p *ReconnectingProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Close()
		p.current = nil
	}
}
