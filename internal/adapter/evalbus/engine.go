// Package evalbus implements the evaluation engine port as request/reply
// over the message queue. The routing-pipeline worker consumes evaluation
// requests, runs each case in dry-run mode, and publishes per-case outcomes
// keyed by the request's correlation ID.
package evalbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	ostel "github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/otel"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/messagequeue"
)

// Engine implements evalengine.Engine over a message queue.
type Engine struct {
	queue messagequeue.Queue

	mu      sync.Mutex
	waiters map[string]chan *messagequeue.EvaluateResultPayload
}

// New creates an Engine on top of the given queue. StartSubscriber must be
// called before Evaluate.
func New(queue messagequeue.Queue) *Engine {
	return &Engine{
		queue:   queue,
		waiters: make(map[string]chan *messagequeue.EvaluateResultPayload),
	}
}

// Evaluate publishes an evaluation request and waits for the worker's reply.
// The caller bounds the wait through ctx; on expiry the evaluation counts as
// an engine failure. Retries are left to the orchestrator's policy.
func (e *Engine) Evaluate(ctx context.Context, suite *tuning.Suite, candidate tuning.Candidate) (*tuning.EvaluationResult, error) {
	ctx, span := ostel.StartEvaluationSpan(ctx, suite.ID, string(suite.Kind))
	defer span.End()

	requestID := uuid.New().String()

	ch := make(chan *messagequeue.EvaluateResultPayload, 1)
	e.mu.Lock()
	e.waiters[requestID] = ch
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.waiters, requestID)
		e.mu.Unlock()
	}()

	payload := messagequeue.EvaluateRequestPayload{
		RequestID: requestID,
		Suite:     *suite,
		Candidate: candidate,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluate request: %w", err)
	}

	if err := e.queue.Publish(ctx, messagequeue.SubjectEvaluateRequest, data); err != nil {
		return nil, fmt.Errorf("publish evaluate request: %w", err)
	}

	select {
	case result := <-ch:
		if result.Error != "" {
			return nil, fmt.Errorf("evaluation worker: %s", result.Error)
		}
		if result.Result == nil {
			return nil, errors.New("evaluation worker returned no result")
		}
		return result.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("evaluate %s suite %s: %w", suite.Kind, suite.ID, ctx.Err())
	}
}

// StartSubscriber subscribes to evaluation results and dispatches them to
// waiting callers. The returned function cancels the subscription.
func (e *Engine) StartSubscriber(ctx context.Context) (func(), error) {
	cancel, err := e.queue.Subscribe(ctx, messagequeue.SubjectEvaluateResult, func(_ context.Context, _ string, data []byte) error {
		var payload messagequeue.EvaluateResultPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal evaluate result: %w", err)
		}
		e.deliver(&payload)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe evaluate result: %w", err)
	}
	return cancel, nil
}

func (e *Engine) deliver(payload *messagequeue.EvaluateResultPayload) {
	e.mu.Lock()
	ch, ok := e.waiters[payload.RequestID]
	if ok {
		delete(e.waiters, payload.RequestID)
	}
	e.mu.Unlock()

	if !ok {
		// Ordinary after a timeout: the waiter gave up before the worker
		// answered.
		slog.Warn("no waiter for evaluate result", "request_id", payload.RequestID)
		return
	}

	ch <- payload
}
