package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yahiasaidi031/PFE/internal/domain"
	"github.com/yahiasaidi031/PFE/internal/store"
	"github.com/yahiasaidi031/PFE/pkg/rabbitmq"
)

// UserService records notifications consumed from the user routing key.
// Donation events become notifications for the donor; project announcements
// are only logged.
type UserService struct {
	repo   store.NotificationRepository
	logger zerolog.Logger
}

func NewUserService(repo store.NotificationRepository, logger zerolog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger.With().Str("component", "user_service").Logger(),
	}
}

func (c *UserService) HandleMessage(body []byte) rabbitmq.Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerHandlerTimeout)
	defer cancel()

	var envelope struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Error().Err(err).Str("body", truncateForLog(body)).Msg("dropping undecodable user event")
		return rabbitmq.Reject
	}

	switch envelope.EventType {
	case domain.EventTypeProjectCreated:
		var event domain.ProjectCreatedEvent
		if err := json.Unmarshal(body, &event); err != nil {
			c.logger.Error().Err(err).Msg("dropping undecodable project event")
			return rabbitmq.Reject
		}
		c.logger.Info().Str("project_id", event.Project.ID.String()).Str("title", event.Project.Title).Msg("project announced")
		return rabbitmq.Ack
	case "", domain.EventTypeDonationConfirmed:
		return c.recordDonation(ctx, body)
	default:
		c.logger.Warn().Str("event_type", envelope.EventType).Msg("ignoring unknown user event type")
		return rabbitmq.Ack
	}
}

func (c *UserService) recordDonation(ctx context.Context, body []byte) rabbitmq.Outcome {
	event, err := decodeDonationEvent(body)
	if err == nil && strings.TrimSpace(event.UserID) == "" {
		err = fmt.Errorf("%w: userId is required", ErrMessageDecode)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("body", truncateForLog(body)).Msg("dropping undecodable donation event")
		return rabbitmq.Reject
	}

	notification := &domain.UserNotification{
		UserID:               event.UserID,
		Kind:                 domain.NotificationKindDonation,
		CampaignCollectionID: event.CampaignCollectionID,
		Amount:               event.Amount,
	}
	if event.EventID != "" {
		id := event.EventID
		notification.EventID = &id
	}
	if event.OccurredAt != nil {
		notification.CreatedAt = event.OccurredAt.UTC()
	} else {
		notification.CreatedAt = time.Now().UTC()
	}

	created, err := c.repo.RecordNotification(ctx, notification)
	if err != nil {
		c.logger.Error().Err(err).Str("user_id", event.UserID).Msg("failed to record donation notification")
		return rabbitmq.Retry
	}
	if !created {
		c.logger.Info().Str("event_id", event.EventID).Msg("duplicate donation notification ignored")
		return rabbitmq.Ack
	}
	c.logger.Info().Str("user_id", event.UserID).Str("montant", event.Amount.String()).Msg("donation notification recorded")
	return rabbitmq.Ack
}

// ListUserDonations returns the donor's most recent donation notifications.
func (c *UserService) ListUserDonations(ctx context.Context, userID string, limit int) ([]domain.UserNotification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidInput("user id is required")
	}
	return c.repo.ListNotificationsByUser(ctx, userID, limit)
}
