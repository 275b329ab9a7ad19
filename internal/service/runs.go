package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	ostel "github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/otel"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/ws"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/broadcast"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/cache"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/configstore"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/database"
)

const (
	activeCandidateCacheKey = "candidate:active"
	settingLastEvaluation   = "last_evaluation"
)

// RunManager owns the lifecycle of tuning runs: starting the loop in the
// background, persisting its audit trail, streaming progress, and gating
// the accept step. The Tuner itself stays free of persistence; everything
// stateful lives here.
type RunManager struct {
	tuner    *Tuner
	defaults tuning.Options
	store    database.Store
	versions configstore.Store
	cache    cache.Cache
	cacheTTL time.Duration
	hub      broadcast.Broadcaster
	metrics  *ostel.Metrics

	mu     sync.Mutex
	active map[string]context.CancelFunc // running run IDs -> cancel
}

// NewRunManager creates a RunManager. defaults are the configured baseline
// options for runs whose request omits fields. hub and metrics may be nil.
func NewRunManager(tuner *Tuner, defaults tuning.Options, store database.Store, versions configstore.Store, c cache.Cache, cacheTTL time.Duration, hub broadcast.Broadcaster, metrics *ostel.Metrics) *RunManager {
	return &RunManager{
		tuner:    tuner,
		defaults: defaults,
		store:    store,
		versions: versions,
		cache:    c,
		cacheTTL: cacheTTL,
		hub:      hub,
		metrics:  metrics,
		active:   make(map[string]context.CancelFunc),
	}
}

// DefaultOptions returns the configured baseline run options. Callers that
// accept partial options (the HTTP API) decode over this value so unset
// fields inherit the configuration.
func (m *RunManager) DefaultOptions() tuning.Options {
	return m.defaults
}

// RunDetail is a run plus its full iteration history.
type RunDetail struct {
	Run        tuning.Run               `json:"run"`
	Iterations []tuning.IterationRecord `json:"iterations"`
}

// Start validates the options, persists a new run row, and launches the
// loop in the background against the active accepted candidate. It returns
// immediately with the created run.
func (m *RunManager) Start(ctx context.Context, opts tuning.Options) (*tuning.Run, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	initial, err := m.ActiveCandidate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active candidate: %w", err)
	}

	r := &tuning.Run{Status: tuning.RunRunning, Options: opts}
	if err := m.store.CreateRun(ctx, r); err != nil {
		return nil, err
	}

	// The loop outlives the HTTP request; it gets its own cancelable
	// context, tracked so Cancel can reach it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	m.active[r.ID] = cancel
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RunsStarted.Add(ctx, 1)
	}

	go m.execute(runCtx, r, initial.Candidate, opts)

	return r, nil
}

// execute drives one run to completion in its own goroutine.
func (m *RunManager) execute(ctx context.Context, r *tuning.Run, initial tuning.Candidate, opts tuning.Options) {
	start := time.Now()
	runCtx, span := ostel.StartRunSpan(ctx, r.ID, opts.MaxIterations)
	defer span.End()

	defer func() {
		m.mu.Lock()
		if cancel, ok := m.active[r.ID]; ok {
			cancel()
			delete(m.active, r.ID)
		}
		m.mu.Unlock()
	}()

	onProgress := func(ctx context.Context, rec tuning.IterationRecord) {
		// A cancel racing the last iteration must not drop its audit record.
		appendCtx := context.WithoutCancel(ctx)
		if err := m.store.AppendIteration(appendCtx, r.ID, &rec); err != nil {
			slog.Error("append iteration record", "run_id", r.ID, "iteration", rec.Iteration, "error", err)
		}
		if m.metrics != nil {
			m.metrics.Iterations.Add(ctx, 1)
		}
		if m.hub != nil {
			ev := ws.IterationEvent{
				RunID:         r.ID,
				Iteration:     rec.Iteration,
				TrainRate:     rec.Train.SuccessRate,
				CombinedScore: rec.CombinedScore,
				CombinedDelta: rec.CombinedDelta,
				Improved:      rec.Improved,
			}
			if rec.Holdout != nil {
				ev.HoldoutRate = rec.Holdout.SuccessRate
			}
			m.hub.BroadcastEvent(ctx, ws.EventIteration, ev)
		}
	}

	result, runErr := m.tuner.Run(runCtx, initial, opts, onProgress)

	now := time.Now().UTC()
	r.CompletedAt = &now
	switch {
	case runErr != nil:
		r.Status = tuning.RunFailed
		r.Error = runErr.Error()
	case result.StopReason == tuning.StopCanceled:
		r.Status = tuning.RunCanceled
	default:
		r.Status = tuning.RunCompleted
	}
	if result != nil {
		r.StopReason = result.StopReason
		r.BestScore = result.BestScore
		best := result.BestCandidate
		r.BestCandidate = &best
	}

	// Persist with a fresh context; the run context may already be canceled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), 30*time.Second)
	defer cancel()
	if err := m.store.UpdateRun(saveCtx, r); err != nil {
		slog.Error("persist run result", "run_id", r.ID, "error", err)
	}

	if m.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("stop_reason", string(r.StopReason)))
		if r.Status == tuning.RunFailed {
			m.metrics.RunsFailed.Add(saveCtx, 1, attrs)
		} else {
			m.metrics.RunsCompleted.Add(saveCtx, 1, attrs)
			m.metrics.BestScore.Record(saveCtx, r.BestScore, attrs)
		}
		m.metrics.RunDuration.Record(saveCtx, time.Since(start).Seconds(), attrs)
	}

	if m.hub != nil {
		m.hub.BroadcastEvent(saveCtx, ws.EventRunStatus, ws.RunStatusEvent{
			RunID:      r.ID,
			Status:     r.Status,
			StopReason: r.StopReason,
			BestScore:  r.BestScore,
			Error:      r.Error,
		})
	}

	slog.Info("tuning run finished",
		"run_id", r.ID,
		"status", r.Status,
		"stop_reason", r.StopReason,
		"best_score", r.BestScore,
		"iterations", len(resultHistory(result)),
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

func resultHistory(result *tuning.RunResult) []tuning.IterationRecord {
	if result == nil {
		return nil
	}
	return result.History
}

// Cancel requests cancellation of a running loop. The loop notices at the
// next iteration boundary and finishes gracefully.
func (m *RunManager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	cancel, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		// Distinguish "no such run" from "already finished".
		r, err := m.store.GetRun(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("run %s is %s: %w", id, r.Status, domain.ErrConflict)
	}
	cancel()
	return nil
}

// Get returns a run with its full iteration history.
func (m *RunManager) Get(ctx context.Context, id string) (*RunDetail, error) {
	r, err := m.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	iterations, err := m.store.ListIterations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: *r, Iterations: iterations}, nil
}

// List returns all runs, newest first.
func (m *RunManager) List(ctx context.Context) ([]tuning.Run, error) {
	return m.store.ListRuns(ctx)
}

// Delete removes a finished run and its iteration records. Running runs
// must be canceled first.
func (m *RunManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, running := m.active[id]
	m.mu.Unlock()
	if running {
		return fmt.Errorf("run %s is still running: %w", id, domain.ErrConflict)
	}
	return m.store.DeleteRun(ctx, id)
}

// Accept commits a finished run's recommendation as a new candidate
// version. This is the only path that writes configuration; the loop never
// persists candidates on its own.
func (m *RunManager) Accept(ctx context.Context, id string) (*tuning.CandidateVersion, error) {
	r, err := m.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != tuning.RunCompleted {
		return nil, fmt.Errorf("run %s is %s, only completed runs can be accepted: %w", id, r.Status, domain.ErrConflict)
	}
	if r.BestCandidate == nil {
		return nil, fmt.Errorf("run %s has no recommendation: %w", id, domain.ErrConflict)
	}

	v, err := m.versions.SaveVersion(ctx, *r.BestCandidate, r.ID)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.Delete(ctx, activeCandidateCacheKey); err != nil {
			slog.Warn("invalidate candidate cache", "error", err)
		}
	}

	slog.Info("run recommendation accepted", "run_id", id, "version", v.Version, "best_score", r.BestScore)
	return v, nil
}

// ActiveCandidate returns the current accepted configuration, served from
// cache when warm. When nothing has been accepted yet it returns version
// zero with an empty candidate, so the first run starts from a clean slate.
func (m *RunManager) ActiveCandidate(ctx context.Context) (*tuning.CandidateVersion, error) {
	if m.cache != nil {
		if data, ok, err := m.cache.Get(ctx, activeCandidateCacheKey); err == nil && ok {
			var v tuning.CandidateVersion
			if err := json.Unmarshal(data, &v); err == nil {
				return &v, nil
			}
		}
	}

	v, err := m.versions.Active(ctx)
	if err != nil {
		if domainNotFound(err) {
			return &tuning.CandidateVersion{}, nil
		}
		return nil, err
	}

	if m.cache != nil {
		if data, err := json.Marshal(v); err == nil {
			if err := m.cache.Set(ctx, activeCandidateCacheKey, data, m.cacheTTL); err != nil {
				slog.Warn("cache active candidate", "error", err)
			}
		}
	}
	return v, nil
}

// Versions returns the accepted configuration history, newest first.
func (m *RunManager) Versions(ctx context.Context) ([]tuning.CandidateVersion, error) {
	return m.versions.ListVersions(ctx)
}

// ActiveCount reports how many runs are currently executing.
func (m *RunManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func domainNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
