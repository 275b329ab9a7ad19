package tuning

import "errors"

// StopReason is the terminal state of a loop run.
type StopReason string

const (
	// StopTargetReached: the best combined score met the target rate.
	StopTargetReached StopReason = "target_reached"
	// StopNoImprovement: patience consecutive iterations failed to improve.
	StopNoImprovement StopReason = "no_improvement"
	// StopMaxIterations: the iteration budget ran out. This is a successful
	// completion with a clear reason, not an error.
	StopMaxIterations StopReason = "max_iterations_reached"
	// StopCanceled: the caller canceled the run between iterations.
	StopCanceled StopReason = "canceled"
	// StopFailed: an external collaborator failed; partial history is kept.
	StopFailed StopReason = "failed"
)

// Failure sentinels for the three external collaborators. The loop wraps
// the underlying error with the matching sentinel so callers can classify
// without string matching.
var (
	ErrGeneration = errors.New("suite generation failed")
	ErrEvaluation = errors.New("evaluation failed")
	ErrSuggestion = errors.New("suggestion generation failed")
)

// IterationRecord is the append-only audit record of one loop iteration.
type IterationRecord struct {
	Iteration     int               `json:"iteration"` // zero-based
	Candidate     Candidate         `json:"candidate"`
	Train         EvaluationResult  `json:"train"`
	Holdout       *EvaluationResult `json:"holdout,omitempty"`
	CombinedScore float64           `json:"combined_score"`

	// Deltas versus the previous iteration; zero for the first.
	TrainDelta    float64 `json:"train_delta"`
	HoldoutDelta  float64 `json:"holdout_delta"`
	CombinedDelta float64 `json:"combined_delta"`

	// Improved reports whether this iteration advanced the best score by at
	// least the configured minimum delta.
	Improved bool `json:"improved"`
}

// RunResult is the authoritative output of one loop run.
type RunResult struct {
	History       []IterationRecord `json:"history"`
	BestCandidate Candidate         `json:"best_candidate"`
	BestScore     float64           `json:"best_score"`
	StopReason    StopReason        `json:"stop_reason"`

	// FinalTrain/FinalHoldout always correspond to BestCandidate, not merely
	// the last candidate tried; the loop re-evaluates when they differ.
	FinalTrain   *EvaluationResult `json:"final_train,omitempty"`
	FinalHoldout *EvaluationResult `json:"final_holdout,omitempty"`
}
