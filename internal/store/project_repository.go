/**
 * @description
 * PostgreSQL implementation of the project service storage: projects, progress
 * updates, campaign collections (the donation ledger) and the processed-event
 * inbox that keeps ledger credits idempotent.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/shopspring/decimal: NUMERIC columns.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/yahiasaidi031/PFE/internal/domain"
)

// PostgresProjectRepository implements ProjectRepository, CampaignLedger and
// OutboxRepository.
type PostgresProjectRepository struct {
	db *pgxpool.Pool
}

func NewPostgresProjectRepository(db *pgxpool.Pool) *PostgresProjectRepository {
	return &PostgresProjectRepository{db: db}
}

// CreateProject inserts the project with its progress updates and campaign
// collections in one transaction.
func (r *PostgresProjectRepository) CreateProject(ctx context.Context, project *domain.Project) error {
	now := time.Now().UTC()
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	project.CreatedAt = now
	project.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO projects (id, title, description, category, objective, tags, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, project.ID, project.Title, project.Description, project.Category, project.Objective, project.Tags, project.Image, now)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}

	for i := range project.ProgressUpdates {
		update := &project.ProgressUpdates[i]
		update.ProjectID = project.ID
		if err := insertProgressUpdate(ctx, tx, update, now); err != nil {
			return err
		}
	}

	for i := range project.CampaignCollections {
		collection := &project.CampaignCollections[i]
		if collection.ID == uuid.Nil {
			collection.ID = uuid.New()
		}
		collection.ProjectID = project.ID
		collection.CreatedAt = now
		collection.UpdatedAt = now
		_, err := tx.Exec(ctx, `
			INSERT INTO campaign_collections (id, project_id, current_amount, target_amount, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, collection.ID, collection.ProjectID, collection.CurrentAmount, collection.TargetAmount, now)
		if err != nil {
			return fmt.Errorf("insert campaign collection: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListProjects returns every project with its children, newest first.
func (r *PostgresProjectRepository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, description, category, objective, tags, image, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	projects, err := pgx.CollectRows(rows, scanProject)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return projects, nil
	}

	index := make(map[uuid.UUID]int, len(projects))
	ids := make([]uuid.UUID, 0, len(projects))
	for i, p := range projects {
		index[p.ID] = i
		ids = append(ids, p.ID)
	}

	updates, err := r.progressUpdatesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range updates {
		i := index[u.ProjectID]
		projects[i].ProgressUpdates = append(projects[i].ProgressUpdates, u)
	}

	collections, err := r.collectionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		i := index[c.ProjectID]
		projects[i].CampaignCollections = append(projects[i].CampaignCollections, c)
	}

	return projects, nil
}

func (r *PostgresProjectRepository) FindProjectByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, description, category, objective, tags, image, created_at, updated_at
		FROM projects
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	project, err := pgx.CollectOneRow(rows, scanProject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	ids := []uuid.UUID{project.ID}
	if project.ProgressUpdates, err = r.progressUpdatesFor(ctx, ids); err != nil {
		return nil, err
	}
	if project.CampaignCollections, err = r.collectionsFor(ctx, ids); err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdateProject applies the non-nil fields of update.
func (r *PostgresProjectRepository) UpdateProject(ctx context.Context, id uuid.UUID, update domain.UpdateProjectRequest) (*domain.Project, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE projects
		SET title = COALESCE($2, title),
			description = COALESCE($3, description),
			category = COALESCE($4, category),
			objective = COALESCE($5, objective),
			tags = COALESCE($6, tags),
			image = COALESCE($7, image),
			updated_at = NOW()
		WHERE id = $1
	`, id, update.Title, update.Description, update.Category, update.Objective, update.Tags, update.Image)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProjectNotFound
	}
	return r.FindProjectByID(ctx, id)
}

// DeleteProject removes the project; progress updates and collections cascade.
func (r *PostgresProjectRepository) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (r *PostgresProjectRepository) CreateProgressUpdate(ctx context.Context, update *domain.ProgressUpdate) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, update.ProjectID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrProjectNotFound
	}
	return insertProgressUpdate(ctx, r.db, update, time.Now().UTC())
}

func (r *PostgresProjectRepository) UpdateProgressUpdate(ctx context.Context, id uuid.UUID, update domain.UpdateProgressUpdateRequest) (*domain.ProgressUpdate, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE progress_updates
		SET title = COALESCE($2, title),
			description = COALESCE($3, description),
			image = COALESCE($4, image),
			video = COALESCE($5, video),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, project_id, title, description, image, video, created_at, updated_at
	`, id, update.Title, update.Description, update.Image, update.Video)
	if err != nil {
		return nil, fmt.Errorf("update progress update: %w", err)
	}
	updated, err := pgx.CollectOneRow(rows, scanProgressUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProgressUpdateNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (r *PostgresProjectRepository) FindCampaignCollectionByID(ctx context.Context, id string) (*domain.CampaignCollection, error) {
	collectionID, ok := parseCollectionID(id)
	if !ok {
		return nil, ErrCampaignCollectionNotFound
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, current_amount, target_amount, created_at, updated_at
		FROM campaign_collections
		WHERE id = $1
	`, collectionID)
	if err != nil {
		return nil, err
	}
	collection, err := pgx.CollectOneRow(rows, scanCampaignCollection)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignCollectionNotFound
		}
		return nil, err
	}
	return &collection, nil
}

func (r *PostgresProjectRepository) IncrementCollectedAmount(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	return incrementCollected(ctx, r.db, id, amount)
}

func (r *PostgresProjectRepository) ApplyDonationOnce(ctx context.Context, consumer, eventID, id string, amount decimal.Decimal) (bool, decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_events (consumer, event_id)
		VALUES ($1, $2)
		ON CONFLICT (consumer, event_id) DO NOTHING
	`, consumer, eventID)
	if err != nil {
		return false, decimal.Zero, fmt.Errorf("record processed event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, decimal.Zero, nil
	}

	// A missing collection rolls the inbox row back so a later redelivery can still apply.
	total, err := incrementCollected(ctx, tx, id, amount)
	if err != nil {
		return false, decimal.Zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, decimal.Zero, err
	}
	return true, total, nil
}

func (r *PostgresProjectRepository) EnqueueOutboxMessage(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	return enqueueOutbox(ctx, r.db, exchange, routingKey, payload)
}

func (r *PostgresProjectRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error) {
	return claimOutbox(ctx, r.db, limit, staleAfterSeconds)
}

func (r *PostgresProjectRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	return markOutboxPublished(ctx, r.db, id)
}

func (r *PostgresProjectRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	return markOutboxFailed(ctx, r.db, id, retryAfterSeconds, reason)
}

func (r *PostgresProjectRepository) PurgePublishedOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	return purgePublishedOutbox(ctx, r.db, olderThan)
}

func incrementCollected(ctx context.Context, q querier, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	collectionID, ok := parseCollectionID(id)
	if !ok {
		return decimal.Zero, ErrCampaignCollectionNotFound
	}
	var total decimal.Decimal
	err := q.QueryRow(ctx, `
		UPDATE campaign_collections
		SET current_amount = current_amount + $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING current_amount
	`, collectionID, amount).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrCampaignCollectionNotFound
		}
		return decimal.Zero, fmt.Errorf("increment collected amount: %w", err)
	}
	return total, nil
}

func insertProgressUpdate(ctx context.Context, q querier, update *domain.ProgressUpdate, now time.Time) error {
	if update.ID == uuid.Nil {
		update.ID = uuid.New()
	}
	update.CreatedAt = now
	update.UpdatedAt = now
	_, err := q.Exec(ctx, `
		INSERT INTO progress_updates (id, project_id, title, description, image, video, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, update.ID, update.ProjectID, update.Title, update.Description, update.Image, update.Video, now)
	if err != nil {
		return fmt.Errorf("insert progress update: %w", err)
	}
	return nil
}

func (r *PostgresProjectRepository) progressUpdatesFor(ctx context.Context, projectIDs []uuid.UUID) ([]domain.ProgressUpdate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, title, description, image, video, created_at, updated_at
		FROM progress_updates
		WHERE project_id = ANY($1)
		ORDER BY created_at
	`, projectIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanProgressUpdate)
}

func (r *PostgresProjectRepository) collectionsFor(ctx context.Context, projectIDs []uuid.UUID) ([]domain.CampaignCollection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, current_amount, target_amount, created_at, updated_at
		FROM campaign_collections
		WHERE project_id = ANY($1)
		ORDER BY created_at
	`, projectIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanCampaignCollection)
}

func scanProject(row pgx.CollectableRow) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.Objective, &p.Tags, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	p.ProgressUpdates = []domain.ProgressUpdate{}
	p.CampaignCollections = []domain.CampaignCollection{}
	return p, err
}

func scanProgressUpdate(row pgx.CollectableRow) (domain.ProgressUpdate, error) {
	var u domain.ProgressUpdate
	err := row.Scan(&u.ID, &u.ProjectID, &u.Title, &u.Description, &u.Image, &u.Video, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func scanCampaignCollection(row pgx.CollectableRow) (domain.CampaignCollection, error) {
	var c domain.CampaignCollection
	err := row.Scan(&c.ID, &c.ProjectID, &c.CurrentAmount, &c.TargetAmount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// parseCollectionID reports whether id can name a stored collection. Anything
// that is not a UUID cannot, so callers treat it as not found.
func parseCollectionID(id string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil || parsed == uuid.Nil {
		return uuid.Nil, false
	}
	return parsed, true
}
