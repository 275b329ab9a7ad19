package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/dataset"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/litellm"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/ws"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/messagequeue"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Runs        *service.RunManager
	Evaluations *service.EvaluationService
	Datasets    *dataset.Loader
	Hub         *ws.Hub
	Pool        *pgxpool.Pool
	Queue       messagequeue.Queue
	LiteLLM     *litellm.Client
}

type healthResponse struct {
	Status      string `json:"status"`
	Postgres    bool   `json:"postgres"`
	NATS        bool   `json:"nats"`
	LLM         bool   `json:"llm"`
	ActiveRuns  int    `json:"active_runs"`
	WSConns     int    `json:"ws_connections"`
}

// Health handles GET /health. It reports degraded rather than failing the
// request when a dependency is down; orchestrators read the flags.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if h.Pool != nil {
		resp.Postgres = h.Pool.Ping(ctx) == nil
	}
	if h.Queue != nil {
		resp.NATS = h.Queue.IsConnected()
	}
	if h.LiteLLM != nil {
		ok, err := h.LiteLLM.Health(ctx)
		resp.LLM = ok && err == nil
	}
	if h.Runs != nil {
		resp.ActiveRuns = h.Runs.ActiveCount()
	}
	if h.Hub != nil {
		resp.WSConns = h.Hub.ConnectionCount()
	}

	if !resp.Postgres || !resp.NATS {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}
