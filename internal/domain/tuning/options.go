package tuning

import (
	"fmt"
	"time"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain"
)

// MaxIterationsCap bounds the iteration budget a single run may request.
const MaxIterationsCap = 30

// Options are the caller-supplied parameters of one loop run.
type Options struct {
	TargetSuccessRate   float64 `json:"target_success_rate"`
	MaxIterations       int     `json:"max_iterations"`
	Patience            int     `json:"patience"`
	MinImprovementDelta float64 `json:"min_improvement_delta"`
	UseHoldout          bool    `json:"use_holdout"`

	Train   GenerationParams `json:"train"`
	Holdout GenerationParams `json:"holdout"`

	// Per-call timeouts for the long-running, network-bound collaborators.
	// Zero means no timeout beyond the run context.
	GenerateTimeout time.Duration `json:"generate_timeout,omitempty"`
	EvalTimeout     time.Duration `json:"eval_timeout,omitempty"`
	SuggestTimeout  time.Duration `json:"suggest_timeout,omitempty"`
}

// Validate rejects bad parameters before the run starts. All errors wrap
// domain.ErrValidation.
func (o *Options) Validate() error {
	if o.TargetSuccessRate < 0 || o.TargetSuccessRate > 1 {
		return fmt.Errorf("%w: target_success_rate must be in [0,1], got %g", domain.ErrValidation, o.TargetSuccessRate)
	}
	if o.MaxIterations < 1 || o.MaxIterations > MaxIterationsCap {
		return fmt.Errorf("%w: max_iterations must be in [1,%d], got %d", domain.ErrValidation, MaxIterationsCap, o.MaxIterations)
	}
	if o.Patience < 1 {
		return fmt.Errorf("%w: patience must be >= 1, got %d", domain.ErrValidation, o.Patience)
	}
	if o.MinImprovementDelta < 0 {
		return fmt.Errorf("%w: min_improvement_delta must be >= 0, got %g", domain.ErrValidation, o.MinImprovementDelta)
	}
	if err := o.Train.Validate(); err != nil {
		return fmt.Errorf("%w: train suite: %v", domain.ErrValidation, err)
	}
	if o.UseHoldout {
		if err := o.Holdout.Validate(); err != nil {
			return fmt.Errorf("%w: holdout suite: %v", domain.ErrValidation, err)
		}
	}
	return nil
}
