package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetter is a parked message as seen by operators.
type DeadLetter struct {
	MessageID          string
	OriginalRoutingKey string
	OriginalExchange   string
	Reason             string
	Attempts           int
	DeadLetteredAt     string
	Body               []byte
}

// getter is the subset of *amqp.Channel used to pull messages one at a time.
type getter interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
}

func deadLetterFromDelivery(d amqp.Delivery) DeadLetter {
	reason, _ := d.Headers[HeaderDeathReason].(string)
	exchange, _ := d.Headers[HeaderOriginalExchange].(string)
	at, _ := d.Headers[HeaderDeadLetteredAt].(string)
	return DeadLetter{
		MessageID:          d.MessageId,
		OriginalRoutingKey: originalRoutingKey(d),
		OriginalExchange:   exchange,
		Reason:             reason,
		Attempts:           DeliveryAttempt(d.Headers),
		DeadLetteredAt:     at,
		Body:               d.Body,
	}
}

// PeekDeadLetters returns up to limit messages from a dead-letter queue
// without removing them.
func (c *Consumer) PeekDeadLetters(queue string, limit int) ([]DeadLetter, error) {
	return peekDeadLetters(c.ch, queue, limit)
}

// ReplayDeadLetters republishes up to limit dead-lettered messages to
// exchange under their original routing key with the attempt counter reset.
func (c *Consumer) ReplayDeadLetters(ctx context.Context, queue, exchange string, limit int) (int, error) {
	return replayDeadLetters(ctx, c.ch, c.publisher, queue, exchange, limit)
}

func peekDeadLetters(g getter, queue string, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 10
	}
	held := make([]amqp.Delivery, 0, limit)
	// Held messages stay unacked until the end so the same message is not fetched twice.
	defer func() {
		for _, d := range held {
			_ = d.Nack(false, true)
		}
	}()

	out := make([]DeadLetter, 0, limit)
	for len(out) < limit {
		d, ok, err := g.Get(queue, false)
		if err != nil {
			return out, fmt.Errorf("get from %s: %w", queue, err)
		}
		if !ok {
			break
		}
		held = append(held, d)
		out = append(out, deadLetterFromDelivery(d))
	}
	return out, nil
}

func replayDeadLetters(ctx context.Context, g getter, p channelPublisher, queue, exchange string, limit int) (int, error) {
	if limit <= 0 {
		limit = 10
	}
	replayed := 0
	for replayed < limit {
		d, ok, err := g.Get(queue, false)
		if err != nil {
			return replayed, fmt.Errorf("get from %s: %w", queue, err)
		}
		if !ok {
			break
		}

		headers := copyHeaders(d.Headers)
		delete(headers, HeaderDeathReason)
		delete(headers, HeaderDeadLetteredAt)
		delete(headers, HeaderOriginalExchange)
		delete(headers, HeaderOriginalRoutingKey)
		headers[HeaderDeliveryAttempt] = int32(1)

		target := exchange
		if original, ok := d.Headers[HeaderOriginalExchange].(string); ok && original != "" && target == "" {
			target = original
		}

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = p.PublishWithContext(pubCtx, target, originalRoutingKey(d), false, false, amqp.Publishing{
			Headers:      headers,
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    d.MessageId,
			Timestamp:    time.Now().UTC(),
			Body:         d.Body,
		})
		cancel()
		if err != nil {
			_ = d.Nack(false, true)
			return replayed, fmt.Errorf("replay message %s: %w", d.MessageId, err)
		}
		if err := d.Ack(false); err != nil {
			return replayed, fmt.Errorf("ack replayed message %s: %w", d.MessageId, err)
		}
		replayed++
	}
	return replayed, nil
}
