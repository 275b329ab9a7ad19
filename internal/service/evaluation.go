package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/database"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/evalengine"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/suggester"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/suitegen"
)

// EvaluationService answers one-off questions outside the loop: "how does
// the active configuration score right now", "how does that compare to the
// last run", and "what would the suggester change". Nothing here mutates
// the accepted configuration.
type EvaluationService struct {
	suites  suitegen.Generator
	engine  evalengine.Engine
	suggest suggester.Suggester
	runs    *RunManager
	store   database.Store
}

// NewEvaluationService creates an EvaluationService.
func NewEvaluationService(suites suitegen.Generator, engine evalengine.Engine, suggest suggester.Suggester, runs *RunManager, store database.Store) *EvaluationService {
	return &EvaluationService{suites: suites, engine: engine, suggest: suggest, runs: runs, store: store}
}

// adhocEvaluation is the persisted record of the latest one-off evaluation.
// The suite is kept alongside the result so failing cases can be resolved
// later (suggestion preview, comparison context).
type adhocEvaluation struct {
	Suite     tuning.Suite            `json:"suite"`
	Result    tuning.EvaluationResult `json:"result"`
	Candidate tuning.Candidate        `json:"candidate"`
	CreatedAt time.Time               `json:"created_at"`
}

// Evaluate runs one freshly generated suite against the active candidate
// and records the outcome as the latest adhoc evaluation.
func (s *EvaluationService) Evaluate(ctx context.Context, params tuning.GenerationParams) (*tuning.EvaluationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	active, err := s.runs.ActiveCandidate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active candidate: %w", err)
	}

	suite, err := s.suites.Generate(ctx, tuning.SuiteTrain, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tuning.ErrGeneration, err)
	}

	result, err := s.engine.Evaluate(ctx, suite, active.Candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tuning.ErrEvaluation, err)
	}

	record := adhocEvaluation{
		Suite:     *suite,
		Result:    *result,
		Candidate: active.Candidate,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation record: %w", err)
	}
	if err := s.store.UpsertSetting(ctx, settingLastEvaluation, data); err != nil {
		return nil, fmt.Errorf("persist evaluation record: %w", err)
	}

	return result, nil
}

// CompareResult pairs the latest adhoc evaluation with the final train
// metrics of the most recent completed run.
type CompareResult struct {
	Previous   *tuning.EvaluationResult `json:"previous"`
	Current    *tuning.EvaluationResult `json:"current"`
	Comparison tuning.Comparison        `json:"comparison"`
}

// Compare diffs the latest adhoc evaluation against the best iteration of
// the most recent completed run.
func (s *EvaluationService) Compare(ctx context.Context) (*CompareResult, error) {
	last, err := s.lastEvaluation(ctx)
	if err != nil {
		return nil, err
	}

	previous, err := s.lastRunTrainResult(ctx)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, fmt.Errorf("no completed run to compare against: %w", domain.ErrNotFound)
	}

	current := last.Result
	return &CompareResult{
		Previous:   previous,
		Current:    &current,
		Comparison: tuning.Compare(previous, &current),
	}, nil
}

// SuggestionPreview is the read-only output of the curation flow: the full
// suggestion set, the subset the acceptance selects, and the candidate that
// subset would produce. Nothing is persisted.
type SuggestionPreview struct {
	Suggestions tuning.SuggestionSet `json:"suggestions"`
	Accepted    tuning.SuggestionSet `json:"accepted"`
	Merged      tuning.Candidate     `json:"merged"`
}

// PreviewSuggestions asks the suggester for edits addressing the latest
// adhoc evaluation's failures, then shows what merging the accepted subset
// would yield.
func (s *EvaluationService) PreviewSuggestions(ctx context.Context, accept tuning.Acceptance) (*SuggestionPreview, error) {
	last, err := s.lastEvaluation(ctx)
	if err != nil {
		return nil, err
	}

	failing := last.Result.FailingCases(&last.Suite)
	suggestions, err := s.suggest.Suggest(ctx, last.Candidate, failing)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tuning.ErrSuggestion, err)
	}

	accepted := tuning.FilterSuggestions(suggestions, accept)
	return &SuggestionPreview{
		Suggestions: suggestions,
		Accepted:    accepted,
		Merged:      last.Candidate.Apply(accepted),
	}, nil
}

func (s *EvaluationService) lastEvaluation(ctx context.Context) (*adhocEvaluation, error) {
	data, err := s.store.GetSetting(ctx, settingLastEvaluation)
	if err != nil {
		return nil, fmt.Errorf("no evaluation recorded yet: %w", err)
	}
	var record adhocEvaluation
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal evaluation record: %w", err)
	}
	return &record, nil
}

// lastRunTrainResult returns the train metrics of the best iteration of the
// most recent completed run, or nil when no run has completed yet.
func (s *EvaluationService) lastRunTrainResult(ctx context.Context) (*tuning.EvaluationResult, error) {
	runs, err := s.runs.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.Status != tuning.RunCompleted {
			continue
		}
		iterations, err := s.store.ListIterations(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if len(iterations) == 0 {
			return nil, nil
		}
		best := iterations[0]
		for _, rec := range iterations[1:] {
			if rec.Improved && rec.CombinedScore >= best.CombinedScore {
				best = rec
			}
		}
		train := best.Train
		return &train, nil
	}
	return nil, nil
}
