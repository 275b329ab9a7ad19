package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/service"
)

func newEvalService(engine *stubEngine, suggest *stubSuggester, store *memStore, m *service.RunManager) *service.EvaluationService {
	return service.NewEvaluationService(&stubSuites{}, engine, suggest, m, store)
}

func TestEvaluatePersistsLatestRecord(t *testing.T) {
	store := newMemStore()
	m := newManager(newStubEngine([]float64{0.5}, nil), store, &memVersions{}, newMemCache(), nil)
	svc := newEvalService(newStubEngine([]float64{0.75}, nil), &stubSuggester{}, store, m)

	res, err := svc.Evaluate(context.Background(), tuning.GenerationParams{QuestionCount: 2})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.SuccessRate != 0.75 {
		t.Errorf("success rate = %g, want 0.75", res.SuccessRate)
	}

	raw, err := store.GetSetting(context.Background(), "last_evaluation")
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	var record struct {
		Suite  tuning.Suite            `json:"suite"`
		Result tuning.EvaluationResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if record.Result.SuccessRate != 0.75 || len(record.Suite.Cases) != 2 {
		t.Errorf("record = %+v, want suite kept alongside result", record)
	}
}

func TestEvaluateRejectsInvalidParams(t *testing.T) {
	store := newMemStore()
	m := newManager(newStubEngine([]float64{0.5}, nil), store, &memVersions{}, newMemCache(), nil)
	svc := newEvalService(newStubEngine([]float64{0.75}, nil), &stubSuggester{}, store, m)

	_, err := svc.Evaluate(context.Background(), tuning.GenerationParams{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCompareRequiresBothSides(t *testing.T) {
	store := newMemStore()
	m := newManager(newStubEngine([]float64{0.5}, nil), store, &memVersions{}, newMemCache(), nil)
	svc := newEvalService(newStubEngine([]float64{0.75}, nil), &stubSuggester{}, store, m)

	// No adhoc evaluation recorded yet.
	if _, err := svc.Compare(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound without an evaluation", err)
	}

	// Evaluation recorded, but no completed run to diff against.
	if _, err := svc.Evaluate(context.Background(), tuning.GenerationParams{QuestionCount: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Compare(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound without a completed run", err)
	}
}

func TestCompareAgainstBestRunIteration(t *testing.T) {
	store := newMemStore()
	m := newManager(newStubEngine([]float64{0.5, 0.65, 0.82}, nil), store, &memVersions{}, newMemCache(), nil)
	svc := newEvalService(newStubEngine([]float64{0.70}, nil), &stubSuggester{}, store, m)

	r, err := m.Start(context.Background(), defaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, m, r.ID, tuning.RunCompleted)

	if _, err := svc.Evaluate(context.Background(), tuning.GenerationParams{QuestionCount: 2}); err != nil {
		t.Fatal(err)
	}

	cmp, err := svc.Compare(context.Background())
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Previous.SuccessRate != 0.82 {
		t.Errorf("previous = %g, want the run's best iteration", cmp.Previous.SuccessRate)
	}
	if cmp.Current.SuccessRate != 0.70 {
		t.Errorf("current = %g, want the adhoc result", cmp.Current.SuccessRate)
	}
	if cmp.Comparison.Trend != tuning.TrendDegraded {
		t.Errorf("trend = %q, want degraded", cmp.Comparison.Trend)
	}
	if math.Abs(cmp.Comparison.SuccessRateDelta-(-0.12)) > 1e-9 {
		t.Errorf("delta = %g, want -0.12", cmp.Comparison.SuccessRateDelta)
	}
}

func TestPreviewSuggestionsMergesAcceptedSubset(t *testing.T) {
	store := newMemStore()
	m := newManager(newStubEngine([]float64{0.5}, nil), store, &memVersions{}, newMemCache(), nil)
	svc := newEvalService(newStubEngine([]float64{0.5}, nil), &stubSuggester{}, store, m)

	if _, err := svc.Evaluate(context.Background(), tuning.GenerationParams{QuestionCount: 2}); err != nil {
		t.Fatal(err)
	}

	preview, err := svc.PreviewSuggestions(context.Background(), tuning.Acceptance{Tools: []string{"tool-b"}})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(preview.Suggestions.Metadata) != 1 {
		t.Errorf("suggestions = %+v", preview.Suggestions)
	}
	if preview.Merged.Metadata["tool-b"].Description != "refined" {
		t.Errorf("merged = %+v, want accepted edit applied", preview.Merged)
	}

	// Nothing accepted: the merge is the unchanged candidate.
	preview, err = svc.PreviewSuggestions(context.Background(), tuning.Acceptance{})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !preview.Accepted.Empty() {
		t.Errorf("accepted = %+v, want empty", preview.Accepted)
	}
	if len(preview.Merged.Metadata) != 0 {
		t.Errorf("merged = %+v, want candidate untouched", preview.Merged)
	}
}

func TestPreviewSuggestionsRequiresEvaluation(t *testing.T) {
	store := newMemStore()
	m := newManager(newStubEngine([]float64{0.5}, nil), store, &memVersions{}, newMemCache(), nil)
	svc := newEvalService(newStubEngine([]float64{0.5}, nil), &stubSuggester{}, store, m)

	if _, err := svc.PreviewSuggestions(context.Background(), tuning.Acceptance{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound before any evaluation", err)
	}
}
