package http

import (
	"net/http"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// GetActiveCandidate handles GET /api/v1/tuning/candidate
func (h *Handlers) GetActiveCandidate(w http.ResponseWriter, r *http.Request) {
	v, err := h.Runs.ActiveCandidate(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListCandidateVersions handles GET /api/v1/tuning/candidate/versions
func (h *Handlers) ListCandidateVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.Runs.Versions(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if versions == nil {
		versions = []tuning.CandidateVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

// Evaluate handles POST /api/v1/tuning/evaluate: one suite against the
// active candidate, no loop.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	params, ok := readJSON[tuning.GenerationParams](w, r)
	if !ok {
		return
	}
	result, err := h.Evaluations.Evaluate(r.Context(), params)
	if err != nil {
		writeDomainError(w, err, "evaluate")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Compare handles GET /api/v1/tuning/compare
func (h *Handlers) Compare(w http.ResponseWriter, r *http.Request) {
	result, err := h.Evaluations.Compare(r.Context())
	if err != nil {
		writeDomainError(w, err, "nothing to compare yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PreviewSuggestions handles POST /api/v1/tuning/suggestions/preview
func (h *Handlers) PreviewSuggestions(w http.ResponseWriter, r *http.Request) {
	accept, ok := readJSON[tuning.Acceptance](w, r)
	if !ok {
		return
	}
	preview, err := h.Evaluations.PreviewSuggestions(r.Context(), accept)
	if err != nil {
		writeDomainError(w, err, "no evaluation recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ListDatasets handles GET /api/v1/tuning/datasets. An empty list when no
// datasets directory is configured.
func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if h.Datasets != nil {
		var err error
		names, err = h.Datasets.ListDatasets()
		if err != nil {
			writeInternalError(w, err)
			return
		}
		if names == nil {
			names = []string{}
		}
	}
	writeJSON(w, http.StatusOK, names)
}
