/**
 * @description
 * Routers for the payment, project and user services. All three share the same
 * middleware stack, health check and metrics endpoint.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and stock middleware.
 * - github.com/go-chi/cors: CORS handling.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/yahiasaidi031/PFE/internal/config"
	"github.com/yahiasaidi031/PFE/internal/metrics"
)

func newBaseRouter(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", m.Handler())

	return r
}

// NewPaymentRouter serves POST /paiement.
func NewPaymentRouter(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics, service DonationConfirmer) http.Handler {
	r := newBaseRouter(cfg, logger, m)
	r.Post("/paiement", NewPaymentHandler(service).CreatePaiement)
	return r
}

// NewProjectRouter serves the public project listing and the admin-only mutations.
func NewProjectRouter(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics, service ProjectManager) http.Handler {
	r := newBaseRouter(cfg, logger, m)
	h := NewProjectHandler(service)

	r.Route("/project", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Get("/collections/{id}", h.GetCampaignCollection)

		// Group routes that require an admin token
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AppSecret))

			r.Post("/create", h.CreateProject)
			r.Put("/{id}", h.UpdateProject)
			r.Delete("/{id}", h.DeleteProject)
			r.Post("/{id}/avancement", h.AddProgressUpdate)
			r.Put("/avancement/{id}", h.UpdateProgressUpdate)
		})
	})

	return r
}

// NewUserRouter serves a user's donation history.
func NewUserRouter(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics, service DonationHistory) http.Handler {
	r := newBaseRouter(cfg, logger, m)
	r.Get("/user/{id}/donations", NewUserHandler(service).ListDonations)
	return r
}
