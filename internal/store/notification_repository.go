package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yahiasaidi031/PFE/internal/domain"
)

type PostgresNotificationRepository struct {
	db *pgxpool.Pool
}

func NewPostgresNotificationRepository(db *pgxpool.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) RecordNotification(ctx context.Context, n *domain.UserNotification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	// event_id is UNIQUE; NULLs never conflict so legacy events always insert.
	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_notifications (id, user_id, kind, event_id, campaign_collection_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, n.ID, n.UserID, n.Kind, n.EventID, n.CampaignCollectionID, n.Amount, n.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresNotificationRepository) ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]domain.UserNotification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, kind, event_id, campaign_collection_id, amount, created_at
		FROM user_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.UserNotification, error) {
		var n domain.UserNotification
		err := row.Scan(&n.ID, &n.UserID, &n.Kind, &n.EventID, &n.CampaignCollectionID, &n.Amount, &n.CreatedAt)
		return n, err
	})
}
