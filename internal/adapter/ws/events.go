package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// Event type constants for WebSocket messages.
const (
	EventRunStatus = "tuning.run"
	EventIteration = "tuning.iteration"
)

// RunStatusEvent is broadcast when a tuning run changes lifecycle state.
type RunStatusEvent struct {
	RunID      string            `json:"run_id"`
	Status     tuning.RunStatus  `json:"status"`
	StopReason tuning.StopReason `json:"stop_reason,omitempty"`
	BestScore  float64           `json:"best_score"`
	Error      string            `json:"error,omitempty"`
}

// IterationEvent is broadcast as each iteration record completes. It omits
// the candidate body; clients fetch full history over HTTP.
type IterationEvent struct {
	RunID         string  `json:"run_id"`
	Iteration     int     `json:"iteration"`
	TrainRate     float64 `json:"train_rate"`
	HoldoutRate   float64 `json:"holdout_rate,omitempty"`
	CombinedScore float64 `json:"combined_score"`
	CombinedDelta float64 `json:"combined_delta"`
	Improved      bool    `json:"improved"`
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
