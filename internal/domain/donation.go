/**
 * @description
 * Core domain models for the crowdfunding services: donations, the campaign
 * collections they credit, and the events that carry a confirmed donation
 * between services.
 *
 * @notes
 * - Money is held as decimal.Decimal so repeated increments never drift the way
 *   binary floating point does.
 * - JSON field names on the wire keep the contract existing clients already
 *   speak (userId, compagneCollectId, montant).
 */

package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type discriminators carried in the optional eventType field.
const (
	EventTypeDonationConfirmed = "donation.confirmed"
	EventTypeProjectCreated    = "project.created"
)

// Donation is an immutable record of a single contribution. Maps to the
// `donations` table.
type Donation struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               string          `json:"userId"`
	CampaignCollectionID string          `json:"compagneCollectId"`
	Amount               decimal.Decimal `json:"montant"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// DonationRequest is the body accepted by POST /paiement. Fields are decoded
// loosely so that type mismatches surface as validation errors rather than
// decode failures.
type DonationRequest struct {
	UserID               interface{} `json:"userId"`
	CampaignCollectionID interface{} `json:"compagneCollectId"`
	Amount               interface{} `json:"montant"`
}

// DonationConfirmation is returned to the caller once a donation has been
// recorded and announced.
type DonationConfirmation struct {
	Message              string          `json:"message"`
	ProviderData         json.RawMessage `json:"flouciData"`
	UserID               string          `json:"userId"`
	CampaignCollectionID string          `json:"compagneCollectId"`
	Amount               float64         `json:"montant"`
	DonationID           uuid.UUID       `json:"donationId"`
}

// DonationConfirmedEvent is published once per recorded donation, on the
// payment routing key and again on the user routing key.
//
// EventID is the donation id. Legacy producers omit it; consumers must then
// treat each delivery as a new donation.
type DonationConfirmedEvent struct {
	EventID              string          `json:"eventId,omitempty"`
	EventType            string          `json:"eventType,omitempty"`
	UserID               string          `json:"userId"`
	CampaignCollectionID string          `json:"compagneCollectId"`
	Amount               decimal.Decimal `json:"montant"`
	OccurredAt           *time.Time      `json:"occurredAt,omitempty"`
}

type donationConfirmedEventWire struct {
	EventID              string      `json:"eventId,omitempty"`
	EventType            string      `json:"eventType,omitempty"`
	UserID               string      `json:"userId"`
	CampaignCollectionID string      `json:"compagneCollectId"`
	Amount               json.Number `json:"montant"`
	OccurredAt           *time.Time  `json:"occurredAt,omitempty"`
}

// NewDonationConfirmedEvent builds the event announcing d.
func NewDonationConfirmedEvent(d Donation) DonationConfirmedEvent {
	occurred := d.CreatedAt.UTC()
	return DonationConfirmedEvent{
		EventID:              d.ID.String(),
		EventType:            EventTypeDonationConfirmed,
		UserID:               d.UserID,
		CampaignCollectionID: d.CampaignCollectionID,
		Amount:               d.Amount,
		OccurredAt:           &occurred,
	}
}

// MarshalJSON writes montant as a JSON number.
func (e DonationConfirmedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(donationConfirmedEventWire{
		EventID:              e.EventID,
		EventType:            e.EventType,
		UserID:               e.UserID,
		CampaignCollectionID: e.CampaignCollectionID,
		Amount:               json.Number(e.Amount.String()),
		OccurredAt:           e.OccurredAt,
	})
}

// UnmarshalJSON accepts montant as a JSON number or a numeric string.
func (e *DonationConfirmedEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		EventID              string          `json:"eventId"`
		EventType            string          `json:"eventType"`
		UserID               string          `json:"userId"`
		CampaignCollectionID string          `json:"compagneCollectId"`
		Amount               json.RawMessage `json:"montant"`
		OccurredAt           *time.Time      `json:"occurredAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Amount) == 0 || string(raw.Amount) == "null" {
		return fmt.Errorf("montant is required")
	}
	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(raw.Amount); err != nil {
		return fmt.Errorf("montant: %w", err)
	}

	*e = DonationConfirmedEvent{
		EventID:              raw.EventID,
		EventType:            raw.EventType,
		UserID:               raw.UserID,
		CampaignCollectionID: raw.CampaignCollectionID,
		Amount:               amount,
		OccurredAt:           raw.OccurredAt,
	}
	return nil
}
