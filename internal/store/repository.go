/**
 * @description
 * Data access contracts for the crowdfunding services. Each service depends on
 * the narrow interface it needs; PostgreSQL implementations live alongside.
 *
 * @dependencies
 * - github.com/shopspring/decimal: money amounts.
 * - internal/domain: domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yahiasaidi031/PFE/internal/domain"
)

var (
	ErrCampaignCollectionNotFound = errors.New("campaign collection not found")
	ErrProjectNotFound            = errors.New("project not found")
	ErrProgressUpdateNotFound     = errors.New("progress update not found")
)

// DonationRepository persists donations. Used by the payment service.
type DonationRepository interface {
	CreateDonation(ctx context.Context, donation *domain.Donation) error
}

// OutboxRepository stores events whose publish failed so they can be re-driven.
type OutboxRepository interface {
	EnqueueOutboxMessage(ctx context.Context, exchange, routingKey string, payload interface{}) error
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
	PurgePublishedOutbox(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CampaignLedger reads and credits campaign collections. Used by the project service.
type CampaignLedger interface {
	FindCampaignCollectionByID(ctx context.Context, id string) (*domain.CampaignCollection, error)
	// IncrementCollectedAmount adds amount to the collection in a single
	// statement and returns the new total.
	IncrementCollectedAmount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error)
	// ApplyDonationOnce records eventID for consumer and increments the
	// collection in one transaction. applied is false when the event had
	// already been recorded.
	ApplyDonationOnce(ctx context.Context, consumer, eventID, id string, amount decimal.Decimal) (applied bool, total decimal.Decimal, err error)
}

// ProjectRepository manages projects and their children.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	ListProjects(ctx context.Context) ([]domain.Project, error)
	FindProjectByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	UpdateProject(ctx context.Context, id uuid.UUID, update domain.UpdateProjectRequest) (*domain.Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error
	CreateProgressUpdate(ctx context.Context, update *domain.ProgressUpdate) error
	UpdateProgressUpdate(ctx context.Context, id uuid.UUID, update domain.UpdateProgressUpdateRequest) (*domain.ProgressUpdate, error)
}

// NotificationRepository stores user notifications. Used by the user service.
type NotificationRepository interface {
	// RecordNotification inserts n. created is false when a notification for
	// the same event id already exists.
	RecordNotification(ctx context.Context, n *domain.UserNotification) (created bool, err error)
	ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]domain.UserNotification, error)
}

// OutboxMessage is a claimed row of event_outbox.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}
