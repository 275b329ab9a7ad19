package http

import (
	"net/http"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// StartRun handles POST /api/v1/tuning/runs. The request body is decoded
// over the configured defaults, so callers only set what they want to
// change. The loop executes in the background; the response carries the
// created run for polling.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	opts := h.Runs.DefaultOptions()
	if !readJSONInto(w, r, &opts) {
		return
	}
	run, err := h.Runs.Start(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err, "start run")
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// ListRuns handles GET /api/v1/tuning/runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Runs.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if runs == nil {
		runs = []tuning.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/tuning/runs/{id}. The response includes the
// iteration history recorded so far, so the UI polls this while a run is
// in flight.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	detail, err := h.Runs.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CancelRun handles POST /api/v1/tuning/runs/{id}/cancel
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Runs.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DeleteRun handles DELETE /api/v1/tuning/runs/{id}
func (h *Handlers) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Runs.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcceptRun handles POST /api/v1/tuning/runs/{id}/accept
func (h *Handlers) AcceptRun(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	version, err := h.Runs.Accept(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusCreated, version)
}
