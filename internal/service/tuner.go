package service

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/evalengine"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/suggester"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/suitegen"
)

// Progress is invoked after each iteration completes, before the stop
// decision. Used for UI streaming; the authoritative output is the returned
// RunResult.
type Progress func(ctx context.Context, rec tuning.IterationRecord)

// Tuner drives the auto-tuning loop: a bounded iterative search over
// configuration candidates, scored by suite success rate, with a
// patience-based stopping rule and a train/holdout generalization gate.
//
// The loop is strictly sequential across iterations (candidate N+1 depends
// on candidate N's failures) and never persists candidates itself;
// committing the returned recommendation is an explicit operator action.
type Tuner struct {
	suites  suitegen.Generator
	engine  evalengine.Engine
	suggest suggester.Suggester
}

// NewTuner creates a Tuner with its three external collaborators.
func NewTuner(suites suitegen.Generator, engine evalengine.Engine, suggest suggester.Suggester) *Tuner {
	return &Tuner{suites: suites, engine: engine, suggest: suggest}
}

// loopState is the single-owner mutable state of one run. It is never
// shared with another goroutine.
type loopState struct {
	history       []tuning.IterationRecord
	bestScore     float64
	bestCandidate tuning.Candidate
	bestIteration int // index into history; -1 before the first record
	noImprovement int
}

// Run executes the loop against the initial candidate and returns the full
// iteration history plus the best-scoring candidate. On collaborator
// failure it returns the partial result alongside the error; the error
// wraps tuning.ErrGeneration, tuning.ErrEvaluation, or tuning.ErrSuggestion.
// Cancellation between iterations ends the run gracefully with
// tuning.StopCanceled and no error.
func (t *Tuner) Run(ctx context.Context, initial tuning.Candidate, opts tuning.Options, onProgress Progress) (*tuning.RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	train, err := t.generate(ctx, tuning.SuiteTrain, opts.Train, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: train: %w", tuning.ErrGeneration, err)
	}
	var holdout *tuning.Suite
	if opts.UseHoldout {
		holdout, err = t.generate(ctx, tuning.SuiteHoldout, opts.Holdout, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: holdout: %w", tuning.ErrGeneration, err)
		}
	}

	st := &loopState{
		bestScore:     math.Inf(-1),
		bestCandidate: initial,
		bestIteration: -1,
	}
	candidate := initial

	for iteration := 0; iteration < opts.MaxIterations; iteration++ {
		// Cancellation checkpoint between iterations.
		if ctx.Err() != nil {
			return t.terminal(st, tuning.StopCanceled, initial), nil
		}

		trainRes, holdoutRes, err := t.evaluate(ctx, train, holdout, candidate, opts)
		if err != nil {
			if ctx.Err() != nil {
				return t.terminal(st, tuning.StopCanceled, initial), nil
			}
			return t.terminal(st, tuning.StopFailed, initial),
				fmt.Errorf("iteration %d: %w", iteration, err)
		}

		combined := trainRes.SuccessRate
		if holdoutRes != nil {
			// Minimum, not average: a candidate that improves train success
			// while holdout degrades must not be rewarded.
			combined = math.Min(trainRes.SuccessRate, holdoutRes.SuccessRate)
		}

		rec := tuning.IterationRecord{
			Iteration:     iteration,
			Candidate:     candidate,
			Train:         *trainRes,
			Holdout:       holdoutRes,
			CombinedScore: combined,
		}
		if prev := len(st.history) - 1; prev >= 0 {
			rec.TrainDelta = trainRes.SuccessRate - st.history[prev].Train.SuccessRate
			rec.CombinedDelta = combined - st.history[prev].CombinedScore
			if holdoutRes != nil && st.history[prev].Holdout != nil {
				rec.HoldoutDelta = holdoutRes.SuccessRate - st.history[prev].Holdout.SuccessRate
			}
		}

		if combined >= st.bestScore+opts.MinImprovementDelta {
			rec.Improved = true
			st.bestScore = combined
			st.bestCandidate = candidate
			st.bestIteration = iteration
			st.noImprovement = 0
		} else {
			st.noImprovement++
		}
		st.history = append(st.history, rec)

		if onProgress != nil {
			onProgress(ctx, rec)
		}

		// Stop conditions in order; first match wins.
		var stop tuning.StopReason
		switch {
		case st.bestScore >= opts.TargetSuccessRate:
			stop = tuning.StopTargetReached
		case st.noImprovement >= opts.Patience:
			stop = tuning.StopNoImprovement
		case iteration+1 >= opts.MaxIterations:
			stop = tuning.StopMaxIterations
		}
		if stop != "" {
			return t.finish(ctx, st, stop, train, holdout, opts)
		}

		// Derive the next candidate from this iteration's train failures.
		// Holdout failures are never fed back; that would collapse the
		// train/holdout separation.
		next, err := t.proposeNext(ctx, candidate, trainRes.FailingCases(train), opts)
		if err != nil {
			if ctx.Err() != nil {
				return t.terminal(st, tuning.StopCanceled, initial), nil
			}
			return t.terminal(st, tuning.StopFailed, initial),
				fmt.Errorf("iteration %d: %w", iteration, err)
		}
		candidate = next
	}

	// Unreachable: the max-iterations stop fires on the last pass.
	return t.terminal(st, tuning.StopMaxIterations, initial), nil
}

func (t *Tuner) generate(ctx context.Context, kind tuning.SuiteKind, params tuning.GenerationParams, opts tuning.Options) (*tuning.Suite, error) {
	if opts.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.GenerateTimeout)
		defer cancel()
	}
	return t.suites.Generate(ctx, kind, params)
}

// evaluate runs the train suite, and the holdout suite when present,
// against the candidate. The two evaluations share the candidate but use
// disjoint question sets, so they run concurrently and join here.
func (t *Tuner) evaluate(ctx context.Context, train, holdout *tuning.Suite, candidate tuning.Candidate, opts tuning.Options) (*tuning.EvaluationResult, *tuning.EvaluationResult, error) {
	if opts.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.EvalTimeout)
		defer cancel()
	}

	var trainRes, holdoutRes *tuning.EvaluationResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trainRes, err = t.engine.Evaluate(gctx, train, candidate)
		if err != nil {
			return fmt.Errorf("%w: train suite: %w", tuning.ErrEvaluation, err)
		}
		return nil
	})
	if holdout != nil {
		g.Go(func() error {
			var err error
			holdoutRes, err = t.engine.Evaluate(gctx, holdout, candidate)
			if err != nil {
				return fmt.Errorf("%w: holdout suite: %w", tuning.ErrEvaluation, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return trainRes, holdoutRes, nil
}

func (t *Tuner) proposeNext(ctx context.Context, candidate tuning.Candidate, failing []tuning.TestCase, opts tuning.Options) (tuning.Candidate, error) {
	if opts.SuggestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.SuggestTimeout)
		defer cancel()
	}
	sugg, err := t.suggest.Suggest(ctx, candidate, failing)
	if err != nil {
		return tuning.Candidate{}, fmt.Errorf("%w: %w", tuning.ErrSuggestion, err)
	}
	// An empty set is a valid "nothing left to try" answer; the candidate
	// carries over unchanged and the patience rule ends the run.
	return candidate.Apply(sugg), nil
}

// finish assembles the result for a normal stop. The reported final metrics
// must correspond to the best candidate, not merely the last one tried, so
// it re-evaluates when the two differ.
func (t *Tuner) finish(ctx context.Context, st *loopState, reason tuning.StopReason, train, holdout *tuning.Suite, opts tuning.Options) (*tuning.RunResult, error) {
	res := t.terminal(st, reason, st.bestCandidate)

	last := len(st.history) - 1
	if st.bestIteration == last {
		return res, nil
	}

	trainRes, holdoutRes, err := t.evaluate(ctx, train, holdout, st.bestCandidate, opts)
	if err != nil {
		// The search itself succeeded but the confirmation run did not;
		// surface the failure rather than report stale metrics.
		res.StopReason = tuning.StopFailed
		res.FinalTrain = nil
		res.FinalHoldout = nil
		return res, fmt.Errorf("re-evaluate best candidate: %w", err)
	}
	res.FinalTrain = trainRes
	res.FinalHoldout = holdoutRes
	return res, nil
}

// terminal builds a RunResult from the state gathered so far. fallback is
// used as the best candidate when no iteration completed.
func (t *Tuner) terminal(st *loopState, reason tuning.StopReason, fallback tuning.Candidate) *tuning.RunResult {
	res := &tuning.RunResult{
		History:       st.history,
		StopReason:    reason,
		BestCandidate: fallback,
	}
	if st.bestIteration >= 0 {
		res.BestCandidate = st.bestCandidate
		res.BestScore = st.bestScore
		best := st.history[st.bestIteration]
		trainRes := best.Train
		res.FinalTrain = &trainRes
		res.FinalHoldout = best.Holdout
	}
	return res
}
