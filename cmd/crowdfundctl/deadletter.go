package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yahiasaidi031/PFE/pkg/rabbitmq"
)

var (
	dlQueue    string
	dlLimit    int
	dlExchange string
	dlJSON     bool
)

func deadLetterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dlq"},
		Short:   "Inspect and replay messages parked in dead-letter queues",
	}
	cmd.PersistentFlags().StringVarP(&dlQueue, "queue", "q", "", "source queue (its .dead sibling is read)")
	cmd.PersistentFlags().IntVarP(&dlLimit, "limit", "n", 10, "maximum messages to handle")

	peek := &cobra.Command{
		Use:   "peek",
		Short: "Show parked messages without removing them",
		Args:  cobra.NoArgs,
		RunE:  runPeek,
	}
	peek.Flags().BoolVarP(&dlJSON, "json", "j", false, "output as JSON")

	replay := &cobra.Command{
		Use:   "replay",
		Short: "Republish parked messages under their original routing key",
		Args:  cobra.NoArgs,
		RunE:  runReplay,
	}
	replay.Flags().StringVar(&dlExchange, "exchange", "", "target exchange (defaults to EXCHANGE_NAME)")

	cmd.AddCommand(peek, replay)
	return cmd
}

func openConsumer() (*rabbitmq.Consumer, string, string, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, "", "", err
	}
	queue := dlQueue
	if queue == "" {
		queue = cfg.PaymentQueue
	}
	exchange := dlExchange
	if exchange == "" {
		exchange = cfg.ExchangeName
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger, rabbitmq.ConsumerOptions{})
	if err != nil {
		return nil, "", "", fmt.Errorf("connect rabbitmq: %w", err)
	}
	return consumer, deadLetterQueueName(queue), exchange, nil
}

// deadLetterQueueName accepts either the work queue or its dead-letter sibling.
func deadLetterQueueName(queue string) string {
	if strings.HasSuffix(queue, ".dead") {
		return queue
	}
	return rabbitmq.DeadLetterQueue(queue)
}

func runPeek(cmd *cobra.Command, args []string) error {
	consumer, queue, _, err := openConsumer()
	if err != nil {
		return err
	}
	defer consumer.Close()

	letters, err := consumer.PeekDeadLetters(queue, dlLimit)
	if err != nil {
		return fmt.Errorf("peek %s: %w", queue, err)
	}
	return printDeadLetters(cmd.OutOrStdout(), queue, letters, dlJSON)
}

func runReplay(cmd *cobra.Command, args []string) error {
	consumer, queue, exchange, err := openConsumer()
	if err != nil {
		return err
	}
	defer consumer.Close()

	n, err := consumer.ReplayDeadLetters(cmd.Context(), queue, exchange, dlLimit)
	if err != nil {
		return fmt.Errorf("replay %s after %d messages: %w", queue, n, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d message(s) from %s to %s\n", n, queue, exchange)
	return nil
}

type deadLetterView struct {
	MessageID      string          `json:"messageId"`
	RoutingKey     string          `json:"routingKey"`
	Exchange       string          `json:"exchange"`
	Reason         string          `json:"reason"`
	Attempts       int             `json:"attempts"`
	DeadLetteredAt string          `json:"deadLetteredAt"`
	Body           json.RawMessage `json:"body"`
}

func printDeadLetters(w io.Writer, queue string, letters []rabbitmq.DeadLetter, asJSON bool) error {
	if asJSON {
		views := make([]deadLetterView, 0, len(letters))
		for _, l := range letters {
			body := json.RawMessage(l.Body)
			if !json.Valid(body) {
				quoted, _ := json.Marshal(string(l.Body))
				body = quoted
			}
			views = append(views, deadLetterView{
				MessageID:      l.MessageID,
				RoutingKey:     l.OriginalRoutingKey,
				Exchange:       l.OriginalExchange,
				Reason:         l.Reason,
				Attempts:       l.Attempts,
				DeadLetteredAt: l.DeadLetteredAt,
				Body:           body,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(letters) == 0 {
		fmt.Fprintf(w, "%s is empty\n", queue)
		return nil
	}
	fmt.Fprintf(w, "%d message(s) in %s\n\n", len(letters), queue)
	for i, l := range letters {
		fmt.Fprintf(w, "[%d] id=%s key=%s attempts=%d reason=%s at=%s\n", i+1, l.MessageID, l.OriginalRoutingKey, l.Attempts, l.Reason, l.DeadLetteredAt)
		fmt.Fprintf(w, "    %s\n", l.Body)
	}
	return nil
}
