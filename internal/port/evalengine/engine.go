// Package evalengine defines the evaluation engine port (interface).
package evalengine

import (
	"context"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// Engine runs a suite against a candidate configuration in dry-run mode:
// questions flow through the tool-selection pipeline but no tool executes.
// Evaluation must not mutate the suite or the candidate.
type Engine interface {
	Evaluate(ctx context.Context, suite *tuning.Suite, candidate tuning.Candidate) (*tuning.EvaluationResult, error)
}
