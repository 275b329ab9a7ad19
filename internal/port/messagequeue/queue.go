// Package messagequeue defines the message queue port (interface) and the
// wire payloads exchanged with the evaluation worker.
package messagequeue

import (
	"context"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the evaluation worker protocol.
const (
	// SubjectEvaluateRequest carries a dry-run evaluation request to the
	// routing-pipeline worker.
	SubjectEvaluateRequest = "tuning.evaluate.request"
	// SubjectEvaluateResult carries the worker's per-case outcomes back.
	SubjectEvaluateResult = "tuning.evaluate.result"
)

// EvaluateRequestPayload asks the worker to run a suite against a candidate
// in dry-run mode. RequestID correlates the reply.
type EvaluateRequestPayload struct {
	RequestID string           `json:"request_id"`
	Suite     tuning.Suite     `json:"suite"`
	Candidate tuning.Candidate `json:"candidate"`
}

// EvaluateResultPayload is the worker's reply.
type EvaluateResultPayload struct {
	RequestID string                   `json:"request_id"`
	Result    *tuning.EvaluationResult `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
}
