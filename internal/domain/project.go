package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Project is a fundraising project with its progress updates and campaign
// collections.
type Project struct {
	ID                  uuid.UUID            `json:"id"`
	Title               string               `json:"title"`
	Description         string               `json:"description"`
	Category            string               `json:"category"`
	Objective           string               `json:"objective,omitempty"`
	Tags                string               `json:"tags,omitempty"`
	Image               string               `json:"image,omitempty"`
	ProgressUpdates     []ProgressUpdate     `json:"avancements"`
	CampaignCollections []CampaignCollection `json:"compagniecollect"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// ProgressUpdate is a news item posted against a project.
type ProgressUpdate struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Video       string    `json:"video,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CampaignCollection is the ledger entry a donation targets.
// CurrentAmount must equal the sum of every donation applied to it.
type CampaignCollection struct {
	ID            uuid.UUID       `json:"id"`
	ProjectID     uuid.UUID       `json:"project"`
	CurrentAmount decimal.Decimal `json:"montant"`
	TargetAmount  decimal.Decimal `json:"objectivemontant"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// CreateProjectRequest is the admin payload for POST /project/create.
type CreateProjectRequest struct {
	Title               string                    `json:"title"`
	Description         string                    `json:"description"`
	Category            string                    `json:"category"`
	Objective           string                    `json:"objective"`
	Tags                string                    `json:"tags"`
	Image               string                    `json:"image"`
	ProgressUpdates     []ProgressUpdateInput     `json:"avancements"`
	CampaignCollections []CampaignCollectionInput `json:"compagniecollect"`
	// Companie is accepted as an alias for compagniecollect.
	Companie []CampaignCollectionInput `json:"companie"`
}

// ProgressUpdateInput describes a progress update to create.
type ProgressUpdateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Video       string `json:"video"`
}

// CampaignCollectionInput seeds a campaign collection. Montant is the opening
// collected amount and ObjectiveMontant the fundraising target.
type CampaignCollectionInput struct {
	Montant          decimal.Decimal `json:"montant"`
	ObjectiveMontant decimal.Decimal `json:"objectivemontant"`
}

// UpdateProjectRequest carries the scalar fields an admin may change.
type UpdateProjectRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Objective   *string `json:"objective"`
	Tags        *string `json:"tags"`
	Image       *string `json:"image"`
}

// UpdateProgressUpdateRequest carries the progress update fields an admin may change.
type UpdateProgressUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	Video       *string `json:"video"`
}

// ProjectCreatedEvent is published on the user routing key when a project is created.
type ProjectCreatedEvent struct {
	EventType string  `json:"eventType"`
	Project   Project `json:"project"`
}
