package evalbus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/messagequeue"
)

// fakeQueue loops published requests back through a scripted worker.
type fakeQueue struct {
	worker     func(req messagequeue.EvaluateRequestPayload) messagequeue.EvaluateResultPayload
	handler    messagequeue.Handler
	publishErr error
}

func (q *fakeQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	if subject != messagequeue.SubjectEvaluateRequest {
		return nil
	}
	var req messagequeue.EvaluateRequestPayload
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if q.worker == nil {
		return nil // request swallowed; no reply ever arrives
	}
	reply, err := json.Marshal(q.worker(req))
	if err != nil {
		return err
	}
	go q.handler(ctx, messagequeue.SubjectEvaluateResult, reply) //nolint:errcheck
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, _ string, handler messagequeue.Handler) (func(), error) {
	q.handler = handler
	return func() {}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func testSuite() *tuning.Suite {
	return &tuning.Suite{
		ID:    "s1",
		Kind:  tuning.SuiteTrain,
		Cases: []tuning.TestCase{{ID: "c1", Question: "q"}},
	}
}

func TestEvaluateRoundTrip(t *testing.T) {
	queue := &fakeQueue{
		worker: func(req messagequeue.EvaluateRequestPayload) messagequeue.EvaluateResultPayload {
			return messagequeue.EvaluateResultPayload{
				RequestID: req.RequestID,
				Result: &tuning.EvaluationResult{
					SuiteID:     req.Suite.ID,
					SuiteKind:   req.Suite.Kind,
					SuccessRate: 0.75,
					Outcomes:    []tuning.CaseOutcome{{CaseID: "c1", Passed: true}},
				},
			}
		},
	}
	engine := New(queue)
	stop, err := engine.StartSubscriber(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	res, err := engine.Evaluate(context.Background(), testSuite(), tuning.Candidate{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.SuccessRate != 0.75 || res.SuiteID != "s1" {
		t.Errorf("result = %+v, want worker reply", res)
	}
}

func TestEvaluateWorkerErrorSurfaces(t *testing.T) {
	queue := &fakeQueue{
		worker: func(req messagequeue.EvaluateRequestPayload) messagequeue.EvaluateResultPayload {
			return messagequeue.EvaluateResultPayload{RequestID: req.RequestID, Error: "pipeline crashed"}
		},
	}
	engine := New(queue)
	stop, _ := engine.StartSubscriber(context.Background())
	defer stop()

	_, err := engine.Evaluate(context.Background(), testSuite(), tuning.Candidate{})
	if err == nil || !strings.Contains(err.Error(), "pipeline crashed") {
		t.Errorf("err = %v, want worker error text", err)
	}
}

func TestEvaluateTimesOutWithoutReply(t *testing.T) {
	queue := &fakeQueue{} // no worker, so the reply never comes
	engine := New(queue)
	stop, _ := engine.StartSubscriber(context.Background())
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := engine.Evaluate(ctx, testSuite(), tuning.Candidate{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestEvaluatePublishFailure(t *testing.T) {
	queue := &fakeQueue{publishErr: errors.New("nats down")}
	engine := New(queue)
	stop, _ := engine.StartSubscriber(context.Background())
	defer stop()

	_, err := engine.Evaluate(context.Background(), testSuite(), tuning.Candidate{})
	if err == nil || !strings.Contains(err.Error(), "nats down") {
		t.Errorf("err = %v, want publish error", err)
	}
}

func TestDeliverIgnoresUnknownRequestID(t *testing.T) {
	engine := New(&fakeQueue{})
	// Must not panic or block when nobody is waiting.
	engine.deliver(&messagequeue.EvaluateResultPayload{RequestID: "stale"})
}
