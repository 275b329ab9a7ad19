package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/broadcast"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/evalengine"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/service"
)

// memStore is an in-memory database.Store.
type memStore struct {
	mu         sync.Mutex
	nextID     int
	runs       map[string]tuning.Run
	iterations map[string][]tuning.IterationRecord
	settings   map[string]json.RawMessage
}

func newMemStore() *memStore {
	return &memStore{
		runs:       make(map[string]tuning.Run),
		iterations: make(map[string][]tuning.IterationRecord),
		settings:   make(map[string]json.RawMessage),
	}
}

func (s *memStore) CreateRun(_ context.Context, r *tuning.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = fmt.Sprintf("run-%d", s.nextID)
	r.CreatedAt = time.Now().UTC()
	s.runs[r.ID] = *r
	return nil
}

func (s *memStore) GetRun(_ context.Context, id string) (*tuning.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *memStore) ListRuns(_ context.Context) ([]tuning.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tuning.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) UpdateRun(_ context.Context, r *tuning.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; !ok {
		return fmt.Errorf("run %s: %w", r.ID, domain.ErrNotFound)
	}
	s.runs[r.ID] = *r
	return nil
}

func (s *memStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	delete(s.runs, id)
	delete(s.iterations, id)
	return nil
}

func (s *memStore) AppendIteration(ctx context.Context, runID string, rec *tuning.IterationRecord) error {
	// Behaves like a real driver: a done context fails the write.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations[runID] = append(s.iterations[runID], *rec)
	return nil
}

func (s *memStore) ListIterations(_ context.Context, runID string) ([]tuning.IterationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tuning.IterationRecord(nil), s.iterations[runID]...), nil
}

func (s *memStore) GetSetting(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	if !ok {
		return nil, fmt.Errorf("setting %s: %w", key, domain.ErrNotFound)
	}
	return v, nil
}

func (s *memStore) UpsertSetting(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// memVersions is an in-memory configstore.Store.
type memVersions struct {
	mu       sync.Mutex
	versions []tuning.CandidateVersion
}

func (v *memVersions) Active(context.Context) (*tuning.CandidateVersion, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.versions) == 0 {
		return nil, fmt.Errorf("no accepted candidate: %w", domain.ErrNotFound)
	}
	out := v.versions[len(v.versions)-1]
	return &out, nil
}

func (v *memVersions) SaveVersion(_ context.Context, c tuning.Candidate, sourceRunID string) (*tuning.CandidateVersion, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cv := tuning.CandidateVersion{
		Version:     len(v.versions) + 1,
		Candidate:   c,
		SourceRunID: sourceRunID,
		CreatedAt:   time.Now().UTC(),
	}
	v.versions = append(v.versions, cv)
	return &cv, nil
}

func (v *memVersions) ListVersions(context.Context) ([]tuning.CandidateVersion, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]tuning.CandidateVersion, 0, len(v.versions))
	for i := len(v.versions) - 1; i >= 0; i-- {
		out = append(out, v.versions[i])
	}
	return out, nil
}

// memCache is an in-memory cache.Cache that counts hits and misses.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
	misses  int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// recordingHub captures broadcast events.
type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func (h *recordingHub) count(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// cancelMidEvalEngine invokes a caller-supplied cancel during its first
// evaluation, then delegates to the wrapped engine.
type cancelMidEvalEngine struct {
	inner   evalengine.Engine
	cancels chan func()
	once    sync.Once
}

func (e *cancelMidEvalEngine) Evaluate(ctx context.Context, suite *tuning.Suite, candidate tuning.Candidate) (*tuning.EvaluationResult, error) {
	e.once.Do(func() { (<-e.cancels)() })
	return e.inner.Evaluate(ctx, suite, candidate)
}

// blockingEngine blocks every evaluation until its context is canceled.
type blockingEngine struct {
	started chan struct{}
	once    sync.Once
}

func (e *blockingEngine) Evaluate(ctx context.Context, _ *tuning.Suite, _ tuning.Candidate) (*tuning.EvaluationResult, error) {
	e.once.Do(func() { close(e.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func waitForStatus(t *testing.T, m *service.RunManager, id string, want tuning.RunStatus) *service.RunDetail {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		detail, err := m.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get run: %v", err)
		}
		if detail.Run.Status == want && m.ActiveCount() == 0 {
			return detail
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %q", id, want)
	return nil
}

func newManager(engine evalengine.Engine, store *memStore, versions *memVersions, c *memCache, hub *recordingHub) *service.RunManager {
	tuner := service.NewTuner(&stubSuites{}, engine, &stubSuggester{})
	var b broadcast.Broadcaster
	if hub != nil {
		b = hub
	}
	return service.NewRunManager(tuner, defaultOptions(), store, versions, c, time.Minute, b, nil)
}

func TestStartRunsToCompletion(t *testing.T) {
	store := newMemStore()
	hub := &recordingHub{}
	m := newManager(newStubEngine([]float64{0.5, 0.65, 0.82}, nil), store, &memVersions{}, newMemCache(), hub)

	r, err := m.Start(context.Background(), defaultOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.ID == "" || r.Status != tuning.RunRunning {
		t.Fatalf("run = %+v, want running with assigned id", r)
	}

	detail := waitForStatus(t, m, r.ID, tuning.RunCompleted)
	if detail.Run.StopReason != tuning.StopTargetReached {
		t.Errorf("stop reason = %q", detail.Run.StopReason)
	}
	if detail.Run.BestScore != 0.82 {
		t.Errorf("best score = %g, want 0.82", detail.Run.BestScore)
	}
	if len(detail.Iterations) != 3 {
		t.Errorf("persisted iterations = %d, want 3", len(detail.Iterations))
	}
	if got := hub.count("tuning.iteration"); got != 3 {
		t.Errorf("iteration events = %d, want 3", got)
	}
	if got := hub.count("tuning.run"); got != 1 {
		t.Errorf("run status events = %d, want 1", got)
	}
}

func TestStartPersistsFailure(t *testing.T) {
	store := newMemStore()
	engine := newStubEngine([]float64{0.5, 0.55}, nil)
	engine.failAt = 1
	m := newManager(engine, store, &memVersions{}, newMemCache(), nil)

	opts := defaultOptions()
	opts.MaxIterations = 5
	r, err := m.Start(context.Background(), opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	detail := waitForStatus(t, m, r.ID, tuning.RunFailed)
	if detail.Run.StopReason != tuning.StopFailed {
		t.Errorf("stop reason = %q", detail.Run.StopReason)
	}
	if detail.Run.Error == "" {
		t.Error("failed run has no error message")
	}
	if len(detail.Iterations) != 1 {
		t.Errorf("persisted iterations = %d, want the partial trail", len(detail.Iterations))
	}
}

func TestStartRejectsInvalidOptions(t *testing.T) {
	m := newManager(newStubEngine([]float64{0.5}, nil), newMemStore(), &memVersions{}, newMemCache(), nil)

	opts := defaultOptions()
	opts.Patience = 0
	if _, err := m.Start(context.Background(), opts); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCancelRunningRun(t *testing.T) {
	store := newMemStore()
	engine := &blockingEngine{started: make(chan struct{})}
	m := newManager(engine, store, &memVersions{}, newMemCache(), nil)

	r, err := m.Start(context.Background(), defaultOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-engine.started

	if err := m.Cancel(context.Background(), r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	detail := waitForStatus(t, m, r.ID, tuning.RunCanceled)
	if detail.Run.Error != "" {
		t.Errorf("canceled run carries error %q", detail.Run.Error)
	}
}

func TestCancelDuringIterationKeepsAuditRecord(t *testing.T) {
	store := newMemStore()
	engine := &cancelMidEvalEngine{
		inner:   newStubEngine([]float64{0.5}, nil),
		cancels: make(chan func(), 1),
	}
	m := newManager(engine, store, &memVersions{}, newMemCache(), nil)

	r, err := m.Start(context.Background(), defaultOptions())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	engine.cancels <- func() { _ = m.Cancel(context.Background(), r.ID) }

	// The iteration in flight when the cancel lands must still reach the
	// store; only subsequent iterations are cut off.
	detail := waitForStatus(t, m, r.ID, tuning.RunCanceled)
	if len(detail.Iterations) != 1 {
		t.Errorf("persisted iterations = %d, want 1", len(detail.Iterations))
	}
}

func TestCancelFinishedRunConflicts(t *testing.T) {
	store := newMemStore()
	m := newManager(newStubEngine([]float64{0.82}, nil), store, &memVersions{}, newMemCache(), nil)

	r, _ := m.Start(context.Background(), defaultOptions())
	waitForStatus(t, m, r.ID, tuning.RunCompleted)

	if err := m.Cancel(context.Background(), r.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict for finished run", err)
	}
	if err := m.Cancel(context.Background(), "run-999"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for unknown run", err)
	}
}

func TestAcceptCommitsVersionAndInvalidatesCache(t *testing.T) {
	store := newMemStore()
	versions := &memVersions{}
	c := newMemCache()
	m := newManager(newStubEngine([]float64{0.82}, nil), store, versions, c, nil)

	// Warm the cache with the empty first-run candidate.
	if _, err := m.ActiveCandidate(context.Background()); err != nil {
		t.Fatalf("active candidate: %v", err)
	}

	r, _ := m.Start(context.Background(), defaultOptions())
	waitForStatus(t, m, r.ID, tuning.RunCompleted)

	v, err := m.Accept(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if v.Version != 1 || v.SourceRunID != r.ID {
		t.Errorf("version = %+v", v)
	}

	active, err := m.ActiveCandidate(context.Background())
	if err != nil {
		t.Fatalf("active candidate: %v", err)
	}
	if active.Version != 1 {
		t.Errorf("active version = %d, want the accepted one", active.Version)
	}

	// Accepting twice appends a second version; the history keeps both.
	if _, err := m.Accept(context.Background(), r.ID); err != nil {
		t.Fatalf("second accept: %v", err)
	}
	list, err := m.Versions(context.Background())
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(list) != 2 || list[0].Version != 2 {
		t.Errorf("versions = %+v, want newest first", list)
	}
}

func TestAcceptRequiresCompletedRun(t *testing.T) {
	store := newMemStore()
	engine := newStubEngine([]float64{0.5, 0.55}, nil)
	engine.failAt = 1
	m := newManager(engine, store, &memVersions{}, newMemCache(), nil)

	opts := defaultOptions()
	opts.MaxIterations = 5
	r, _ := m.Start(context.Background(), opts)
	waitForStatus(t, m, r.ID, tuning.RunFailed)

	if _, err := m.Accept(context.Background(), r.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict for failed run", err)
	}
}

func TestDeleteRunningRunConflicts(t *testing.T) {
	store := newMemStore()
	engine := &blockingEngine{started: make(chan struct{})}
	m := newManager(engine, store, &memVersions{}, newMemCache(), nil)

	r, _ := m.Start(context.Background(), defaultOptions())
	<-engine.started

	if err := m.Delete(context.Background(), r.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict while running", err)
	}

	_ = m.Cancel(context.Background(), r.ID)
	waitForStatus(t, m, r.ID, tuning.RunCanceled)

	if err := m.Delete(context.Background(), r.ID); err != nil {
		t.Errorf("delete finished run: %v", err)
	}
	if _, err := m.Get(context.Background(), r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after delete", err)
	}
}

func TestActiveCandidateDefaultsToEmpty(t *testing.T) {
	m := newManager(newStubEngine([]float64{0.5}, nil), newMemStore(), &memVersions{}, newMemCache(), nil)

	v, err := m.ActiveCandidate(context.Background())
	if err != nil {
		t.Fatalf("active candidate: %v", err)
	}
	if v.Version != 0 || len(v.Candidate.Metadata) != 0 {
		t.Errorf("fresh install candidate = %+v, want version zero", v)
	}
}

func TestActiveCandidateServedFromCache(t *testing.T) {
	versions := &memVersions{}
	if _, err := versions.SaveVersion(context.Background(), tuning.Candidate{
		Prompts: map[string]string{"router": "route"},
	}, "run-1"); err != nil {
		t.Fatal(err)
	}
	c := newMemCache()
	m := newManager(newStubEngine([]float64{0.5}, nil), newMemStore(), versions, c, nil)

	for i := 0; i < 3; i++ {
		v, err := m.ActiveCandidate(context.Background())
		if err != nil {
			t.Fatalf("active candidate: %v", err)
		}
		if v.Candidate.Prompts["router"] != "route" {
			t.Errorf("candidate = %+v", v)
		}
	}
	c.mu.Lock()
	hits, misses := c.hits, c.misses
	c.mu.Unlock()
	if misses != 1 || hits != 2 {
		t.Errorf("cache hits/misses = %d/%d, want 2/1", hits, misses)
	}
}

func TestRunErrorMentionsFailedIteration(t *testing.T) {
	store := newMemStore()
	engine := newStubEngine([]float64{0.5, 0.55, 0.6}, nil)
	engine.failAt = 2
	m := newManager(engine, store, &memVersions{}, newMemCache(), nil)

	opts := defaultOptions()
	opts.MaxIterations = 5
	r, _ := m.Start(context.Background(), opts)
	detail := waitForStatus(t, m, r.ID, tuning.RunFailed)
	if !strings.Contains(detail.Run.Error, "iteration 2") {
		t.Errorf("error = %q, want failing iteration named", detail.Run.Error)
	}
}
