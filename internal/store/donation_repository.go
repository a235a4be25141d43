package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yahiasaidi031/PFE/internal/domain"
)

// PostgresDonationRepository implements DonationRepository and OutboxRepository
// for the payment service database.
type PostgresDonationRepository struct {
	db *pgxpool.Pool
}

func NewPostgresDonationRepository(db *pgxpool.Pool) *PostgresDonationRepository {
	return &PostgresDonationRepository{db: db}
}

// CreateDonation inserts donation, assigning its id and timestamp when unset.
func (r *PostgresDonationRepository) CreateDonation(ctx context.Context, donation *domain.Donation) error {
	if donation.ID == uuid.Nil {
		donation.ID = uuid.New()
	}
	if donation.CreatedAt.IsZero() {
		donation.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO donations (id, user_id, campaign_collection_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, donation.ID, donation.UserID, donation.CampaignCollectionID, donation.Amount, donation.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (r *PostgresDonationRepository) EnqueueOutboxMessage(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	return enqueueOutbox(ctx, r.db, exchange, routingKey, payload)
}

func (r *PostgresDonationRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error) {
	return claimOutbox(ctx, r.db, limit, staleAfterSeconds)
}

func (r *PostgresDonationRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	return markOutboxPublished(ctx, r.db, id)
}

func (r *PostgresDonationRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	return markOutboxFailed(ctx, r.db, id, retryAfterSeconds, reason)
}

func (r *PostgresDonationRepository) PurgePublishedOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	return purgePublishedOutbox(ctx, r.db, olderThan)
}
