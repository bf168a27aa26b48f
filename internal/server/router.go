package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter builds the chi router with the middleware stack and all routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(recovery)

	r.Get("/api/v1/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", h.SubmitDocument)
		r.Post("/documents/sync", h.SubmitDocumentSync)

		r.Get("/jobs/{jobID}", h.GetJob)
		r.Delete("/jobs/{jobID}", h.CancelJob)
		r.Get("/jobs/{jobID}/report.xlsx", h.JobReport)
	})

	return r
}
