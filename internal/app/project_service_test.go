package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yahiasaidi031/PFE/internal/domain"
	"github.com/yahiasaidi031/PFE/internal/store"
)

type projectRepoStub struct {
	store.ProjectRepository
	created   []domain.Project
	createErr error
	updateErr error
	deleteErr error
	deleted   []uuid.UUID
	progress  []domain.ProgressUpdate
}

func (s *projectRepoStub) CreateProject(ctx context.Context, project *domain.Project) error {
	if s.createErr != nil {
		return s.createErr
	}
	project.ID = uuid.New()
	for i := range project.CampaignCollections {
		project.CampaignCollections[i].ID = uuid.New()
		project.CampaignCollections[i].ProjectID = project.ID
	}
	s.created = append(s.created, *project)
	return nil
}

func (s *projectRepoStub) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return nil, nil
}

func (s *projectRepoStub) UpdateProject(ctx context.Context, id uuid.UUID, update domain.UpdateProjectRequest) (*domain.Project, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return &domain.Project{ID: id, Title: *update.Title}, nil
}

func (s *projectRepoStub) DeleteProject(ctx context.Context, id uuid.UUID) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *projectRepoStub) CreateProgressUpdate(ctx context.Context, update *domain.ProgressUpdate) error {
	update.ID = uuid.New()
	s.progress = append(s.progress, *update)
	return nil
}

func newTestProjectService(repo *projectRepoStub, ledger *memoryLedger, publisher *publisherStub) *ProjectService {
	return NewProjectService(repo, ledger, nil, publisher, testRouting, nil, testLogger())
}

func TestCreateProject_StoresChildrenAndAnnounces(t *testing.T) {
	repo := &projectRepoStub{}
	publisher := &publisherStub{}
	svc := newTestProjectService(repo, newMemoryLedger(), publisher)

	var req domain.CreateProjectRequest
	body := `{"title":"School roof","description":"Fix it","category":"education",
		"avancements":[{"title":"Quotes collected"}],
		"companie":[{"montant":0,"objectivemontant":1500}]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}

	project, err := svc.CreateProject(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(project.CampaignCollections) != 1 || !project.CampaignCollections[0].TargetAmount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected companie alias to seed one collection, got %+v", project.CampaignCollections)
	}
	if len(project.ProgressUpdates) != 1 || project.ProgressUpdates[0].Title != "Quotes collected" {
		t.Fatalf("unexpected progress updates: %+v", project.ProgressUpdates)
	}

	if len(publisher.messages) != 1 || publisher.messages[0].routingKey != "user.notification" {
		t.Fatalf("expected one announcement on the user key, got %+v", publisher.messages)
	}
	var event domain.ProjectCreatedEvent
	if err := json.Unmarshal(publisher.messages[0].body, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.EventType != domain.EventTypeProjectCreated || event.Project.ID != project.ID {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestCreateProject_Validation(t *testing.T) {
	cases := map[string]domain.CreateProjectRequest{
		"missing title":    {Description: "d", Category: "c"},
		"missing category": {Title: "t", Description: "d"},
		"negative target": {Title: "t", Description: "d", Category: "c",
			CampaignCollections: []domain.CampaignCollectionInput{{ObjectiveMontant: decimal.NewFromInt(-1)}}},
		"untitled avancement": {Title: "t", Description: "d", Category: "c",
			ProgressUpdates: []domain.ProgressUpdateInput{{Description: "no title"}}},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &projectRepoStub{}
			publisher := &publisherStub{}
			svc := newTestProjectService(repo, newMemoryLedger(), publisher)

			if _, err := svc.CreateProject(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if len(repo.created) != 0 || len(publisher.messages) != 0 {
				t.Fatalf("expected nothing stored or published")
			}
		})
	}
}

func TestCreateProject_PersistenceFailureDoesNotAnnounce(t *testing.T) {
	publisher := &publisherStub{}
	svc := newTestProjectService(&projectRepoStub{createErr: errors.New("tx aborted")}, newMemoryLedger(), publisher)

	_, err := svc.CreateProject(context.Background(), domain.CreateProjectRequest{Title: "t", Description: "d", Category: "c"})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(publisher.messages) != 0 {
		t.Fatalf("expected no announcement")
	}
}

func TestProjectMutations_MapErrors(t *testing.T) {
	title := "New title"
	svc := newTestProjectService(&projectRepoStub{
		updateErr: store.ErrProjectNotFound,
		deleteErr: store.ErrProjectNotFound,
	}, newMemoryLedger(), &publisherStub{})

	if _, err := svc.UpdateProject(context.Background(), "not-a-uuid", domain.UpdateProjectRequest{Title: &title}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad id, got %v", err)
	}
	if _, err := svc.UpdateProject(context.Background(), uuid.NewString(), domain.UpdateProjectRequest{Title: &title}); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
	if err := svc.DeleteProject(context.Background(), uuid.NewString()); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound on delete, got %v", err)
	}
	if _, err := svc.GetCampaignCollection(context.Background(), "does-not-exist"); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound for missing collection, got %v", err)
	}
}

func TestAddProgressUpdate(t *testing.T) {
	repo := &projectRepoStub{}
	svc := newTestProjectService(repo, newMemoryLedger(), &publisherStub{})
	projectID := uuid.New()

	update, err := svc.AddProgressUpdate(context.Background(), projectID.String(), domain.ProgressUpdateInput{Title: "Walls up"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.ProjectID != projectID || len(repo.progress) != 1 {
		t.Fatalf("unexpected update %+v", update)
	}

	if _, err := svc.AddProgressUpdate(context.Background(), projectID.String(), domain.ProgressUpdateInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without a title, got %v", err)
	}
}

func TestListProjects_NeverNil(t *testing.T) {
	svc := newTestProjectService(&projectRepoStub{}, newMemoryLedger(), &publisherStub{})
	projects, err := svc.ListProjects(context.Background())
	if err != nil || projects == nil {
		t.Fatalf("expected empty slice, got %v, %v", projects, err)
	}
}

func TestProgress(t *testing.T) {
	cases := []struct {
		current, target, want string
	}{
		{"75", "300", "25"},
		{"1", "3", "33.33"},
		{"10", "0", "0"},
		{"450", "300", "150"},
	}
	for _, tc := range cases {
		got := Progress(domain.CampaignCollection{
			CurrentAmount: decimal.RequireFromString(tc.current),
			TargetAmount:  decimal.RequireFromString(tc.target),
		})
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("Progress(%s/%s) = %s, want %s", tc.current, tc.target, got, tc.want)
		}
	}
}
