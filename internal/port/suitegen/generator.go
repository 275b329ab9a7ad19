// Package suitegen defines the suite generation port (interface).
package suitegen

import (
	"context"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// Generator produces a frozen test suite for a loop run. Implementations
// may generate questions (LLM-backed) or load a pinned dataset; either way
// the returned suite must not change for the lifetime of the run.
type Generator interface {
	Generate(ctx context.Context, kind tuning.SuiteKind, params tuning.GenerationParams) (*tuning.Suite, error)
}
