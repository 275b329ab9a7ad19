package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// --- Candidate versions ---

// Active returns the highest-version accepted candidate.
func (s *Store) Active(ctx context.Context) (*tuning.CandidateVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT version, candidate, source_run_id, created_at
		 FROM candidate_versions ORDER BY version DESC LIMIT 1`)

	v, err := scanCandidateVersion(row)
	if err != nil {
		return nil, notFoundWrap(err, "active candidate")
	}
	return &v, nil
}

// SaveVersion appends the candidate as a new version. Version numbers are
// assigned by the database to keep the history strictly increasing under
// concurrent accepts.
func (s *Store) SaveVersion(ctx context.Context, candidate tuning.Candidate, sourceRunID string) (*tuning.CandidateVersion, error) {
	candidateJSON, err := json.Marshal(candidate)
	if err != nil {
		return nil, fmt.Errorf("marshal candidate: %w", err)
	}

	var srcID *string
	if sourceRunID != "" {
		srcID = &sourceRunID
	}

	v := tuning.CandidateVersion{Candidate: candidate, SourceRunID: sourceRunID}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO candidate_versions (version, candidate, source_run_id)
		 VALUES ((SELECT COALESCE(MAX(version), 0) + 1 FROM candidate_versions), $1, $2)
		 RETURNING version, created_at`,
		candidateJSON, srcID,
	).Scan(&v.Version, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save candidate version: %w", err)
	}
	return &v, nil
}

// ListVersions returns all accepted versions, newest first.
func (s *Store) ListVersions(ctx context.Context) ([]tuning.CandidateVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version, candidate, source_run_id, created_at
		 FROM candidate_versions ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("list candidate versions: %w", err)
	}
	defer rows.Close()

	var versions []tuning.CandidateVersion
	for rows.Next() {
		v, err := scanCandidateVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanCandidateVersion(row scannable) (tuning.CandidateVersion, error) {
	var v tuning.CandidateVersion
	var candidateJSON []byte
	var srcID *string
	err := row.Scan(&v.Version, &candidateJSON, &srcID, &v.CreatedAt)
	if err != nil {
		return v, err
	}
	if srcID != nil {
		v.SourceRunID = *srcID
	}
	if err := json.Unmarshal(candidateJSON, &v.Candidate); err != nil {
		return v, fmt.Errorf("unmarshal candidate: %w", err)
	}
	return v, nil
}
