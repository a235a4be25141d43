/**
 * @description
 * Consuming side of the event bus. A Consumer declares a durable queue bound to
 * a topic exchange and dispatches each delivery to the handler registered for
 * its routing key. Handlers decide the fate of the message through an Outcome.
 *
 * Retries are bounded and delayed: a retried message is parked on the queue's
 * <queue>.retry sibling with a per-message expiration that doubles with each
 * attempt. When it expires the broker dead-letters it back onto the work queue
 * through the default exchange. Once MaxAttempts is reached (or the handler
 * rejects it) the message is parked on the dead-letter queue instead.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: RabbitMQ client library.
 * - github.com/rs/zerolog: structured logging.
 */
package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Outcome is a handler's verdict on a delivery.
type Outcome int

const (
	// Ack acknowledges the message.
	Ack Outcome = iota
	// Retry schedules another delivery, up to the attempt bound.
	Retry
	// Reject dead-letters the message immediately.
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Handler processes one message body.
type Handler func(body []byte) Outcome

// Header names carried by retried and dead-lettered messages.
const (
	HeaderDeliveryAttempt    = "x-delivery-attempt"
	HeaderOriginalRoutingKey = "x-original-routing-key"
	HeaderOriginalExchange   = "x-original-exchange"
	HeaderDeathReason        = "x-death-reason"
	HeaderDeadLetteredAt     = "x-dead-lettered-at"
)

const (
	DefaultMaxAttempts    = 5
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultRetryMaxDelay  = 2 * time.Minute
	publishTimeout        = 5 * time.Second
)

// DeliveryObserver is notified of every settled delivery.
type DeliveryObserver interface {
	ObserveDelivery(queue string, outcome Outcome, deadLettered bool)
}

// channelPublisher is the subset of *amqp.Channel used to republish messages.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ConsumerOptions tunes a Consumer.
type ConsumerOptions struct {
	MaxAttempts int
	Prefetch    int
	Observer    DeliveryObserver
	// RetryBaseDelay is the wait before the second attempt; each later attempt
	// waits twice as long, up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	publisher   channelPublisher
	maxAttempts int
	prefetch    int
	baseDelay   time.Duration
	maxDelay    time.Duration
	observer    DeliveryObserver
	logger      zerolog.Logger
}

func NewConsumer(amqpURL string, logger zerolog.Logger, opts ConsumerOptions) (*Consumer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := newConsumer(ch, logger, opts)
	c.conn = conn
	c.ch = ch
	return c, nil
}

func newConsumer(publisher channelPublisher, logger zerolog.Logger, opts ConsumerOptions) *Consumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if opts.RetryMaxDelay < opts.RetryBaseDelay {
		opts.RetryMaxDelay = max(DefaultRetryMaxDelay, opts.RetryBaseDelay)
	}
	return &Consumer{
		publisher:   publisher,
		maxAttempts: opts.MaxAttempts,
		prefetch:    opts.Prefetch,
		baseDelay:   opts.RetryBaseDelay,
		maxDelay:    opts.RetryMaxDelay,
		observer:    opts.Observer,
		logger:      logger.With().Str("component", "rabbitmq_consumer").Logger(),
	}
}

// DeadLetterExchange names the dead-letter exchange paired with exchange.
func DeadLetterExchange(exchange string) string {
	return exchange + ".dlx"
}

// DeadLetterQueue names the dead-letter queue paired with queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dead"
}

// RetryQueue names the delay queue paired with queue.
func RetryQueue(queue string) string {
	return queue + ".retry"
}

// ConsumeWithBindings declares the queue and its dead-letter sink, binds every
// routing key in bindings and starts consuming in a goroutine.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]Handler) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := declareTopicExchange(c.ch, exchange); err != nil {
		return err
	}
	if err := c.declareDeadLetterSink(exchange, queueName); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := c.declareRetryQueue(q.Name); err != nil {
		return err
	}

	handlers := make(map[string]Handler)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			c.dispatch(exchange, q.Name, handlers, d)
		}
		c.logger.Warn().Str("queue", q.Name).Msg("delivery channel closed")
	}()

	return nil
}

func (c *Consumer) declareDeadLetterSink(exchange, queueName string) error {
	dlx := DeadLetterExchange(exchange)
	if err := c.ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	dlq, err := c.ch.QueueDeclare(DeadLetterQueue(queueName), true, false, false, false, nil)
	if err != nil {
		return err
	}
	return c.ch.QueueBind(dlq.Name, queueName, dlx, false, nil)
}

// declareRetryQueue declares <queue>.retry. It has no consumers; expired
// messages are dead-lettered back to queueName via the default exchange.
func (c *Consumer) declareRetryQueue(queueName string) error {
	_, err := c.ch.QueueDeclare(RetryQueue(queueName), true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queueName,
	})
	return err
}

func (c *Consumer) dispatch(exchange, queueName string, handlers map[string]Handler, d amqp.Delivery) {
	routingKey := originalRoutingKey(d)
	handler, ok := handlers[routingKey]
	if !ok {
		c.logger.Warn().Str("queue", queueName).Str("routing_key", routingKey).Msg("no handler for routing key; acknowledging to drop")
		c.ack(d)
		c.observe(queueName, Ack, false)
		return
	}

	outcome := c.invoke(handler, d.Body)
	c.settle(exchange, queueName, d, outcome)
}

// invoke shields the consume loop from handler panics; a panic counts as a retry.
func (c *Consumer) invoke(handler Handler, body []byte) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("handler panicked")
			outcome = Retry
		}
	}()
	return handler(body)
}

// settle applies outcome to d.
func (c *Consumer) settle(exchange, queueName string, d amqp.Delivery, outcome Outcome) {
	attempt := DeliveryAttempt(d.Headers)
	log := c.logger.With().
		Str("queue", queueName).
		Str("routing_key", originalRoutingKey(d)).
		Int("attempt", attempt).
		Str("outcome", outcome.String()).
		Logger()

	switch outcome {
	case Ack:
		c.ack(d)
		c.observe(queueName, Ack, false)
		return
	case Retry:
		if attempt < c.maxAttempts {
			delay := c.retryDelay(attempt)
			if err := c.republish(queueName, d, attempt+1, delay); err != nil {
				log.Error().Err(err).Msg("retry republish failed; requeueing")
				c.nack(d)
				c.observe(queueName, Retry, false)
				return
			}
			log.Warn().Dur("retry_in", delay).Msg("message scheduled for redelivery")
			c.ack(d)
			c.observe(queueName, Retry, false)
			return
		}
		c.deadLetter(exchange, queueName, d, attempt, fmt.Sprintf("max delivery attempts (%d) exhausted", c.maxAttempts), log)
	default:
		c.deadLetter(exchange, queueName, d, attempt, "rejected by handler", log)
	}
}

func (c *Consumer) deadLetter(exchange, queueName string, d amqp.Delivery, attempt int, reason string, log zerolog.Logger) {
	headers := copyHeaders(d.Headers)
	headers[HeaderDeliveryAttempt] = int32(attempt)
	headers[HeaderOriginalRoutingKey] = originalRoutingKey(d)
	headers[HeaderOriginalExchange] = exchange
	headers[HeaderDeathReason] = reason
	headers[HeaderDeadLetteredAt] = time.Now().UTC().Format(time.RFC3339)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := c.publisher.PublishWithContext(ctx, DeadLetterExchange(exchange), queueName, false, false, republishing(d, headers))
	if err != nil {
		log.Error().Err(err).Msg("dead-letter publish failed; requeueing")
		c.nack(d)
		c.observe(queueName, Retry, false)
		return
	}
	log.Error().Str("reason", reason).Msg("message dead-lettered")
	c.ack(d)
	c.observe(queueName, Reject, true)
}

// republish parks a copy of d on the retry queue of queueName through the
// default exchange so that only this consumer sees the retry. The message
// returns to queueName once delay has elapsed.
func (c *Consumer) republish(queueName string, d amqp.Delivery, nextAttempt int, delay time.Duration) error {
	headers := copyHeaders(d.Headers)
	headers[HeaderDeliveryAttempt] = int32(nextAttempt)
	headers[HeaderOriginalRoutingKey] = originalRoutingKey(d)

	msg := republishing(d, headers)
	msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return c.publisher.PublishWithContext(ctx, "", RetryQueue(queueName), false, false, msg)
}

// retryDelay is the wait after a failed attempt: base, 2*base, 4*base, ...
// capped at maxDelay.
func (c *Consumer) retryDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return min(delay, c.maxDelay)
}

func (c *Consumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.logger.Error().Err(err).Msg("ack failed")
	}
}

func (c *Consumer) nack(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		c.logger.Error().Err(err).Msg("nack failed")
	}
}

func (c *Consumer) observe(queueName string, outcome Outcome, deadLettered bool) {
	if c.observer != nil {
		c.observer.ObserveDelivery(queueName, outcome, deadLettered)
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// DeliveryAttempt reads the x-delivery-attempt header, defaulting to 1.
func DeliveryAttempt(headers amqp.Table) int {
	if headers == nil {
		return 1
	}
	var attempt int
	switch v := headers[HeaderDeliveryAttempt].(type) {
	case int:
		attempt = v
	case int8:
		attempt = int(v)
	case int16:
		attempt = int(v)
	case int32:
		attempt = int(v)
	case int64:
		attempt = int(v)
	case uint8:
		attempt = int(v)
	case uint16:
		attempt = int(v)
	case uint32:
		attempt = int(v)
	}
	if attempt < 1 {
		return 1
	}
	return attempt
}

func originalRoutingKey(d amqp.Delivery) string {
	if key, ok := d.Headers[HeaderOriginalRoutingKey].(string); ok && key != "" {
		return key
	}
	return d.RoutingKey
}

func copyHeaders(in amqp.Table) amqp.Table {
	out := make(amqp.Table, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func republishing(d amqp.Delivery, headers amqp.Table) amqp.Publishing {
	contentType := d.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return amqp.Publishing{
		Headers:      headers,
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Body:         d.Body,
	}
}
