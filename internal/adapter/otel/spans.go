package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "oneseek-tuning"

// StartRunSpan starts a span covering a whole tuning run.
func StartRunSpan(ctx context.Context, runID string, maxIterations int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tuning.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.max_iterations", maxIterations),
		),
	)
}

// StartEvaluationSpan starts a span for a single suite evaluation.
func StartEvaluationSpan(ctx context.Context, suiteID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tuning.evaluate",
		trace.WithAttributes(
			attribute.String("suite.id", suiteID),
			attribute.String("suite.kind", kind),
		),
	)
}
