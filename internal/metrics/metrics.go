package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yahiasaidi031/PFE/pkg/rabbitmq"
)

// Metrics groups the collectors shared by the services. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	donations              *prometheus.CounterVec
	published              *prometheus.CounterVec
	publishInconsistencies prometheus.Counter
	deliveries             *prometheus.CounterVec
	deadLetters            *prometheus.CounterVec
	ledgerCredits          *prometheus.CounterVec
	outboxDispatched       *prometheus.CounterVec
	providerLatency        prometheus.Histogram
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		registry: reg,
		donations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crowdfund",
			Name:        "donations_total",
			Help:        "Donation requests by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crowdfund",
			Name:        "events_published_total",
			Help:        "Event publishes by routing key and result.",
			ConstLabels: labels,
		}, []string{"routing_key", "result"}),
		publishInconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "crowdfund",
			Name:        "publish_inconsistencies_total",
			Help:        "Donations persisted whose event could neither be published nor stored in the outbox.",
			ConstLabels: labels,
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crowdfund",
			Name:        "consumer_deliveries_total",
			Help:        "Consumed deliveries by queue and outcome.",
			ConstLabels: labels,
		}, []string{"queue", "outcome"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crowdfund",
			Name:        "consumer_dead_letters_total",
			Help:        "Messages parked on a dead-letter queue.",
			ConstLabels: labels,
		}, []string{"queue"}),
		ledgerCredits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crowdfund",
			Name:        "ledger_credits_total",
			Help:        "Campaign collection credit attempts by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		outboxDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crowdfund",
			Name:        "outbox_dispatched_total",
			Help:        "Outbox messages re-driven by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "crowdfund",
			Name:        "payment_provider_seconds",
			Help:        "Latency of payment provider calls.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.donations,
		m.published,
		m.publishInconsistencies,
		m.deliveries,
		m.deadLetters,
		m.ledgerCredits,
		m.outboxDispatched,
		m.providerLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DonationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.donations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Published(routingKey, result string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(routingKey, result).Inc()
}

func (m *Metrics) PublishInconsistency() {
	if m == nil {
		return
	}
	m.publishInconsistencies.Inc()
}

func (m *Metrics) LedgerCredit(result string) {
	if m == nil {
		return
	}
	m.ledgerCredits.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxDispatched(result string) {
	if m == nil {
		return
	}
	m.outboxDispatched.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveProviderLatency(seconds float64) {
	if m == nil {
		return
	}
	m.providerLatency.Observe(seconds)
}

// ObserveDelivery implements rabbitmq.DeliveryObserver.
func (m *Metrics) ObserveDelivery(queue string, outcome rabbitmq.Outcome, deadLettered bool) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(queue, outcome.String()).Inc()
	if deadLettered {
		m.deadLetters.WithLabelValues(queue).Inc()
	}
}
