// Package configstore defines the candidate version store port (interface).
package configstore

import (
	"context"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// Store persists accepted retrieval configurations as an append-only
// version history. The loop never writes here; SaveVersion happens only
// when an operator explicitly accepts a run's recommendation.
type Store interface {
	// Active returns the highest-version accepted candidate, or
	// domain.ErrNotFound when none has been accepted yet.
	Active(ctx context.Context) (*tuning.CandidateVersion, error)

	// SaveVersion appends the candidate as a new version and returns the
	// stored record with its assigned version number.
	SaveVersion(ctx context.Context, candidate tuning.Candidate, sourceRunID string) (*tuning.CandidateVersion, error)

	// ListVersions returns all accepted versions, newest first.
	ListVersions(ctx context.Context) ([]tuning.CandidateVersion, error)
}
