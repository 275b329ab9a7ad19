package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1/tuning", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Run lifecycle
		r.Post("/runs", h.StartRun)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Post("/runs/{id}/cancel", h.CancelRun)
		r.Post("/runs/{id}/accept", h.AcceptRun)
		r.Delete("/runs/{id}", h.DeleteRun)

		// Active configuration
		r.Get("/candidate", h.GetActiveCandidate)
		r.Get("/candidate/versions", h.ListCandidateVersions)

		// Adhoc evaluation and curation
		r.Post("/evaluate", h.Evaluate)
		r.Get("/compare", h.Compare)
		r.Post("/suggestions/preview", h.PreviewSuggestions)

		// Pinned suites
		r.Get("/datasets", h.ListDatasets)
	})
}
