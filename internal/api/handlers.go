/**
 * @description
 * HTTP handlers for the payment, project and user services. Handlers parse the
 * request, call the service and write a JSON response or an {"error": ...} body.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/yahiasaidi031/PFE/internal/app"
	"github.com/yahiasaidi031/PFE/internal/domain"
)

// DonationConfirmer is the payment service as seen by its handler.
type DonationConfirmer interface {
	ConfirmDonation(ctx context.Context, req domain.DonationRequest) (*domain.DonationConfirmation, error)
}

// ProjectManager is the project service as seen by its handlers.
type ProjectManager interface {
	CreateProject(ctx context.Context, req domain.CreateProjectRequest) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	UpdateProject(ctx context.Context, id string, req domain.UpdateProjectRequest) (*domain.Project, error)
	DeleteProject(ctx context.Context, id string) error
	AddProgressUpdate(ctx context.Context, projectID string, input domain.ProgressUpdateInput) (*domain.ProgressUpdate, error)
	UpdateProgressUpdate(ctx context.Context, id string, req domain.UpdateProgressUpdateRequest) (*domain.ProgressUpdate, error)
	GetCampaignCollection(ctx context.Context, id string) (*domain.CampaignCollection, error)
}

// DonationHistory is the user service as seen by its handler.
type DonationHistory interface {
	ListUserDonations(ctx context.Context, userID string, limit int) ([]domain.UserNotification, error)
}

// PaymentHandler serves POST /paiement.
type PaymentHandler struct {
	service DonationConfirmer
}

func NewPaymentHandler(service DonationConfirmer) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// CreatePaiement confirms a donation with the provider and records it.
func (h *PaymentHandler) CreatePaiement(w http.ResponseWriter, r *http.Request) {
	var req domain.DonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	confirmation, err := h.service.ConfirmDonation(r.Context(), req)
	if err != nil {
		var limitErr *app.RateLimitError
		if errors.Is(err, app.ErrInvalidInput) || errors.As(err, &limitErr) {
			writeAppError(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Erreur lors de la création du paiement : %v", err))
		return
	}

	writeJSON(w, http.StatusOK, confirmation)
}

// ProjectHandler serves the /project routes.
type ProjectHandler struct {
	service ProjectManager
}

func NewProjectHandler(service ProjectManager) *ProjectHandler {
	return &ProjectHandler{service: service}
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	project, err := h.service.CreateProject(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListProjects(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	project, err := h.service.UpdateProject(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Project deleted"})
}

func (h *ProjectHandler) AddProgressUpdate(w http.ResponseWriter, r *http.Request) {
	var input domain.ProgressUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	update, err := h.service.AddProgressUpdate(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, update)
}

func (h *ProjectHandler) UpdateProgressUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProgressUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	update, err := h.service.UpdateProgressUpdate(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}

type campaignCollectionResponse struct {
	domain.CampaignCollection
	Progress decimal.Decimal `json:"progress"`
}

// GetCampaignCollection returns one collection's ledger with its progress percentage.
func (h *ProjectHandler) GetCampaignCollection(w http.ResponseWriter, r *http.Request) {
	collection, err := h.service.GetCampaignCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignCollectionResponse{
		CampaignCollection: *collection,
		Progress:           app.Progress(*collection),
	})
}

// UserHandler serves the /user routes.
type UserHandler struct {
	service DonationHistory
}

func NewUserHandler(service DonationHistory) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) ListDonations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	donations, err := h.service.ListUserDonations(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if donations == nil {
		donations = []domain.UserNotification{}
	}
	writeJSON(w, http.StatusOK, donations)
}
