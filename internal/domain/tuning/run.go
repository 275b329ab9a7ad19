package tuning

import "time"

// RunStatus is the lifecycle state of a persisted tuning run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Run is the persisted record of one loop run: its parameters, lifecycle
// state, and (once finished) the recommendation. The per-iteration audit
// trail is stored separately as IterationRecords.
type Run struct {
	ID            string     `json:"id"`
	Status        RunStatus  `json:"status"`
	Options       Options    `json:"options"`
	StopReason    StopReason `json:"stop_reason,omitempty"`
	BestScore     float64    `json:"best_score"`
	BestCandidate *Candidate `json:"best_candidate,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// CandidateVersion is one accepted configuration, persisted when an operator
// explicitly commits a run's recommendation. The loop never writes these.
type CandidateVersion struct {
	Version     int       `json:"version"`
	Candidate   Candidate `json:"candidate"`
	SourceRunID string    `json:"source_run_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
