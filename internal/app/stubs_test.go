package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yahiasaidi031/PFE/internal/domain"
	"github.com/yahiasaidi031/PFE/internal/store"
	"github.com/yahiasaidi031/PFE/pkg/flouci"
)

var testRouting = Routing{
	Exchange:          "crowdfund.events",
	PaymentBindingKey: "payment.confirmed",
	UserBindingKey:    "user.notification",
}

type donationRepoStub struct {
	store.DonationRepository
	created []domain.Donation
	err     error
}

func (s *donationRepoStub) CreateDonation(ctx context.Context, donation *domain.Donation) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, *donation)
	return nil
}

type outboxEntry struct {
	exchange   string
	routingKey string
	payload    []byte
}

type outboxRepoStub struct {
	store.OutboxRepository
	enqueued   []outboxEntry
	enqueueErr error

	claimed      []store.OutboxMessage
	claimErr     error
	published    []int64
	failed       map[int64]int
	failReasons  map[int64]string
	purgedWith   []time.Duration
	purgeRemoved int64
	purgeErr     error
}

func (s *outboxRepoStub) EnqueueOutboxMessage(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.enqueued = append(s.enqueued, outboxEntry{exchange: exchange, routingKey: routingKey, payload: body})
	return nil
}

func (s *outboxRepoStub) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]store.OutboxMessage, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	claimed := s.claimed
	s.claimed = nil
	return claimed, nil
}

func (s *outboxRepoStub) MarkOutboxPublished(ctx context.Context, id int64) error {
	s.published = append(s.published, id)
	return nil
}

func (s *outboxRepoStub) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	if s.failed == nil {
		s.failed = map[int64]int{}
		s.failReasons = map[int64]string{}
	}
	s.failed[id] = retryAfterSeconds
	s.failReasons[id] = reason
	return nil
}

func (s *outboxRepoStub) PurgePublishedOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.purgedWith = append(s.purgedWith, olderThan)
	return s.purgeRemoved, s.purgeErr
}

type providerStub struct {
	calls   int
	amounts []decimal.Decimal
	resp    *flouci.GeneratePaymentResponse
	err     error
}

func (s *providerStub) GeneratePayment(ctx context.Context, amount decimal.Decimal) (*flouci.GeneratePaymentResponse, error) {
	s.calls++
	s.amounts = append(s.amounts, amount)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type publishedMessage struct {
	exchange   string
	routingKey string
	body       []byte
}

type publisherStub struct {
	mu        sync.Mutex
	messages  []publishedMessage
	errForKey map[string]error
	rawErr    error
}

func (s *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if err := s.errForKey[routingKey]; err != nil {
		return err
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.record(exchange, routingKey, encoded)
}

func (s *publisherStub) PublishRaw(ctx context.Context, exchange, routingKey string, body []byte) error {
	if s.rawErr != nil {
		return s.rawErr
	}
	return s.record(exchange, routingKey, body)
}

func (s *publisherStub) Close() {}

func (s *publisherStub) record(exchange, routingKey string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, publishedMessage{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
	subjects   []string
}

func (s *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	s.subjects = append(s.subjects, subject)
	return s.count, s.retryAfter, s.err
}

// memoryLedger is an in-memory CampaignLedger with the same atomicity as the
// SQL implementation.
type memoryLedger struct {
	mu          sync.Mutex
	collections map[string]decimal.Decimal
	processed   map[string]bool
	mutations   int
	findErr     error
	creditErr   error
}

func newMemoryLedger(ids ...string) *memoryLedger {
	l := &memoryLedger{collections: map[string]decimal.Decimal{}, processed: map[string]bool{}}
	for _, id := range ids {
		l.collections[id] = decimal.Zero
	}
	return l
}

func (l *memoryLedger) FindCampaignCollectionByID(ctx context.Context, id string) (*domain.CampaignCollection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findErr != nil {
		return nil, l.findErr
	}
	amount, ok := l.collections[id]
	if !ok {
		return nil, store.ErrCampaignCollectionNotFound
	}
	collectionID, _ := uuid.Parse(id)
	return &domain.CampaignCollection{ID: collectionID, CurrentAmount: amount}, nil
}

func (l *memoryLedger) IncrementCollectedAmount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.incrementLocked(id, amount)
}

func (l *memoryLedger) ApplyDonationOnce(ctx context.Context, consumer, eventID, id string, amount decimal.Decimal) (bool, decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := consumer + "/" + eventID
	if l.processed[key] {
		return false, l.collections[id], nil
	}
	total, err := l.incrementLocked(id, amount)
	if err != nil {
		return false, decimal.Zero, err
	}
	l.processed[key] = true
	return true, total, nil
}

func (l *memoryLedger) incrementLocked(id string, amount decimal.Decimal) (decimal.Decimal, error) {
	if l.creditErr != nil {
		return decimal.Zero, l.creditErr
	}
	current, ok := l.collections[id]
	if !ok {
		return decimal.Zero, store.ErrCampaignCollectionNotFound
	}
	current = current.Add(amount)
	l.collections[id] = current
	l.mutations++
	return current, nil
}

func (l *memoryLedger) amount(id string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collections[id]
}

type notificationRepoStub struct {
	store.NotificationRepository
	recorded []domain.UserNotification
	seen     map[string]bool
	err      error
	listed   string
}

func (s *notificationRepoStub) RecordNotification(ctx context.Context, n *domain.UserNotification) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if n.EventID != nil {
		if s.seen == nil {
			s.seen = map[string]bool{}
		}
		if s.seen[*n.EventID] {
			return false, nil
		}
		s.seen[*n.EventID] = true
	}
	s.recorded = append(s.recorded, *n)
	return true, nil
}

func (s *notificationRepoStub) ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]domain.UserNotification, error) {
	s.listed = userID
	var out []domain.UserNotification
	for _, n := range s.recorded {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
