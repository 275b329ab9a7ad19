package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "oneseek-tuning"

// Metrics holds the tuning service's metric instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	Iterations    metric.Int64Counter
	BestScore     metric.Float64Histogram
	RunDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("tuning.runs.started",
		metric.WithDescription("Number of tuning runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("tuning.runs.completed",
		metric.WithDescription("Number of tuning runs completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("tuning.runs.failed",
		metric.WithDescription("Number of tuning runs failed"))
	if err != nil {
		return nil, err
	}

	m.Iterations, err = meter.Int64Counter("tuning.iterations",
		metric.WithDescription("Number of loop iterations executed"))
	if err != nil {
		return nil, err
	}

	m.BestScore, err = meter.Float64Histogram("tuning.run.best_score",
		metric.WithDescription("Best combined score reached per run"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("tuning.run.duration_seconds",
		metric.WithDescription("Tuning run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
