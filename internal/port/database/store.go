// Package database defines the database store port (interface).
package database

import (
	"context"
	"encoding/json"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// Store is the port interface for run history and settings persistence.
type Store interface {
	// Tuning runs
	CreateRun(ctx context.Context, r *tuning.Run) error
	GetRun(ctx context.Context, id string) (*tuning.Run, error)
	ListRuns(ctx context.Context) ([]tuning.Run, error)
	UpdateRun(ctx context.Context, r *tuning.Run) error
	DeleteRun(ctx context.Context, id string) error

	// Iteration records (append-only audit trail per run)
	AppendIteration(ctx context.Context, runID string, rec *tuning.IterationRecord) error
	ListIterations(ctx context.Context, runID string) ([]tuning.IterationRecord, error)

	// Settings (admin token hash, last adhoc evaluation, ...)
	GetSetting(ctx context.Context, key string) (json.RawMessage, error)
	UpsertSetting(ctx context.Context, key string, value json.RawMessage) error
}
