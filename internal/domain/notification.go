package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification kinds stored by the user service.
const (
	NotificationKindDonation = "donation"
)

// UserNotification is the user service's record of something that happened to
// a user, currently only donations they made.
type UserNotification struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               string          `json:"userId"`
	Kind                 string          `json:"kind"`
	EventID              *string         `json:"eventId,omitempty"`
	CampaignCollectionID string          `json:"compagneCollectId"`
	Amount               decimal.Decimal `json:"montant"`
	CreatedAt            time.Time       `json:"createdAt"`
}
