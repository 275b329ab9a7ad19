package service

import (
	"context"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/suitegen"
)

// SuiteSource routes suite generation: pinned datasets when the request
// names one, LLM generation otherwise. Both sides implement the same port,
// so the loop never knows which it got.
type SuiteSource struct {
	llm      suitegen.Generator
	datasets suitegen.Generator
}

// NewSuiteSource creates a SuiteSource. datasets may be nil when no
// datasets directory is configured.
func NewSuiteSource(llm, datasets suitegen.Generator) *SuiteSource {
	return &SuiteSource{llm: llm, datasets: datasets}
}

// Generate implements suitegen.Generator.
func (s *SuiteSource) Generate(ctx context.Context, kind tuning.SuiteKind, params tuning.GenerationParams) (*tuning.Suite, error) {
	if params.Dataset != "" && s.datasets != nil {
		return s.datasets.Generate(ctx, kind, params)
	}
	return s.llm.Generate(ctx, kind, params)
}
