package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yahiasaidi031/PFE/internal/domain"
	"github.com/yahiasaidi031/PFE/internal/metrics"
	"github.com/yahiasaidi031/PFE/internal/store"
)

// ProjectService manages projects and exposes campaign ledgers.
type ProjectService struct {
	projects  store.ProjectRepository
	ledger    store.CampaignLedger
	outbox    store.OutboxRepository
	publisher EventPublisher
	routing   Routing
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewProjectService(
	projects store.ProjectRepository,
	ledger store.CampaignLedger,
	outbox store.OutboxRepository,
	publisher EventPublisher,
	routing Routing,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ProjectService {
	return &ProjectService{
		projects:  projects,
		ledger:    ledger,
		outbox:    outbox,
		publisher: publisher,
		routing:   routing,
		metrics:   m,
		logger:    logger.With().Str("component", "project_service").Logger(),
	}
}

// CreateProject stores the project with its children and announces it on the
// user routing key.
func (s *ProjectService) CreateProject(ctx context.Context, req domain.CreateProjectRequest) (*domain.Project, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, invalidInput("title is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, invalidInput("description is required")
	}
	if strings.TrimSpace(req.Category) == "" {
		return nil, invalidInput("category is required")
	}

	collections := req.CampaignCollections
	if len(collections) == 0 {
		collections = req.Companie
	}

	project := &domain.Project{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Category:    req.Category,
		Objective:   req.Objective,
		Tags:        req.Tags,
		Image:       req.Image,
	}
	for _, input := range req.ProgressUpdates {
		if strings.TrimSpace(input.Title) == "" {
			return nil, invalidInput("avancement title is required")
		}
		project.ProgressUpdates = append(project.ProgressUpdates, domain.ProgressUpdate{
			Title:       input.Title,
			Description: input.Description,
			Image:       input.Image,
			Video:       input.Video,
		})
	}
	for _, input := range collections {
		if input.Montant.IsNegative() || input.ObjectiveMontant.IsNegative() {
			return nil, invalidInput("montant and objectivemontant must not be negative")
		}
		project.CampaignCollections = append(project.CampaignCollections, domain.CampaignCollection{
			CurrentAmount: input.Montant,
			TargetAmount:  input.ObjectiveMontant,
		})
	}

	if err := s.projects.CreateProject(ctx, project); err != nil {
		s.logger.Error().Err(err).Msg("project insert failed")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if project.ProgressUpdates == nil {
		project.ProgressUpdates = []domain.ProgressUpdate{}
	}
	if project.CampaignCollections == nil {
		project.CampaignCollections = []domain.CampaignCollection{}
	}

	event := domain.ProjectCreatedEvent{EventType: domain.EventTypeProjectCreated, Project: *project}
	log := s.logger.With().Str("project_id", project.ID.String()).Logger()
	publishOrPark(ctx, s.publisher, s.outbox, s.metrics, log, s.routing.Exchange, s.routing.UserBindingKey, event)

	log.Info().Int("collections", len(project.CampaignCollections)).Msg("project created")
	return project, nil
}

func (s *ProjectService) ListProjects(ctx context.Context) ([]domain.Project, error) {
	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return projects, nil
}

func (s *ProjectService) UpdateProject(ctx context.Context, id string, req domain.UpdateProjectRequest) (*domain.Project, error) {
	projectID, err := parseID(id, "project id")
	if err != nil {
		return nil, err
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, invalidInput("title must not be empty")
	}
	project, err := s.projects.UpdateProject(ctx, projectID, req)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return project, nil
}

// DeleteProject removes the project together with its progress updates and
// campaign collections.
func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	projectID, err := parseID(id, "project id")
	if err != nil {
		return err
	}
	if err := s.projects.DeleteProject(ctx, projectID); err != nil {
		return mapStoreError(err)
	}
	s.logger.Info().Str("project_id", id).Msg("project deleted")
	return nil
}

func (s *ProjectService) AddProgressUpdate(ctx context.Context, projectID string, input domain.ProgressUpdateInput) (*domain.ProgressUpdate, error) {
	pid, err := parseID(projectID, "project id")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, invalidInput("title is required")
	}
	update := &domain.ProgressUpdate{
		ProjectID:   pid,
		Title:       input.Title,
		Description: input.Description,
		Image:       input.Image,
		Video:       input.Video,
	}
	if err := s.projects.CreateProgressUpdate(ctx, update); err != nil {
		return nil, mapStoreError(err)
	}
	return update, nil
}

func (s *ProjectService) UpdateProgressUpdate(ctx context.Context, id string, req domain.UpdateProgressUpdateRequest) (*domain.ProgressUpdate, error) {
	updateID, err := parseID(id, "avancement id")
	if err != nil {
		return nil, err
	}
	updated, err := s.projects.UpdateProgressUpdate(ctx, updateID, req)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return updated, nil
}

// GetCampaignCollection reads one collection's ledger.
func (s *ProjectService) GetCampaignCollection(ctx context.Context, id string) (*domain.CampaignCollection, error) {
	collection, err := s.ledger.FindCampaignCollectionByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return collection, nil
}

// Progress reports how much of the collection's target has been reached, as a
// percentage rounded to two places. A zero target reports zero.
func Progress(c domain.CampaignCollection) decimal.Decimal {
	if !c.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	return c.CurrentAmount.Div(c.TargetAmount).Mul(decimal.NewFromInt(100)).Round(2)
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, invalidInput(field + " must be a valid uuid")
	}
	return id, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, store.ErrProgressUpdateNotFound),
		errors.Is(err, store.ErrCampaignCollectionNotFound):
		return fmt.Errorf("%w: %w", ErrEntityNotFound, err)
	default:
		return err
	}
}
