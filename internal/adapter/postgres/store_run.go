package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// --- Tuning runs ---

// CreateRun inserts a new run row and fills in the generated ID and
// creation timestamp.
func (s *Store) CreateRun(ctx context.Context, r *tuning.Run) error {
	optionsJSON, err := json.Marshal(r.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO tuning_runs (status, options)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		string(r.Status), optionsJSON)

	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*tuning.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, options, stop_reason, best_score, best_candidate, error, created_at, completed_at
		 FROM tuning_runs WHERE id = $1`, id)

	r, err := scanRun(row)
	if err != nil {
		return nil, notFoundWrap(err, "get run %s", id)
	}
	return &r, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]tuning.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, options, stop_reason, best_score, best_candidate, error, created_at, completed_at
		 FROM tuning_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []tuning.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpdateRun persists the run's terminal fields.
func (s *Store) UpdateRun(ctx context.Context, r *tuning.Run) error {
	var candidateJSON []byte
	if r.BestCandidate != nil {
		var err error
		candidateJSON, err = json.Marshal(r.BestCandidate)
		if err != nil {
			return fmt.Errorf("marshal best candidate: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tuning_runs
		 SET status = $2, stop_reason = $3, best_score = $4, best_candidate = $5, error = $6, completed_at = $7
		 WHERE id = $1`,
		r.ID, string(r.Status), string(r.StopReason), r.BestScore, candidateJSON, r.Error, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run %s: %w", r.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tuning_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// --- Iteration records ---

// AppendIteration stores one iteration record. Records are append-only;
// there is no update path.
func (s *Store) AppendIteration(ctx context.Context, runID string, rec *tuning.IterationRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal iteration record: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tuning_iterations (run_id, iteration, record)
		 VALUES ($1, $2, $3)`,
		runID, rec.Iteration, recordJSON)
	if err != nil {
		return fmt.Errorf("append iteration %d for run %s: %w", rec.Iteration, runID, err)
	}
	return nil
}

// ListIterations returns a run's iteration records in iteration order.
func (s *Store) ListIterations(ctx context.Context, runID string) ([]tuning.IterationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM tuning_iterations WHERE run_id = $1 ORDER BY iteration ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list iterations for run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []tuning.IterationRecord
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("scan iteration record: %w", err)
		}
		var rec tuning.IterationRecord
		if err := json.Unmarshal(recordJSON, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal iteration record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Scanners ---

func scanRun(row scannable) (tuning.Run, error) {
	var r tuning.Run
	var optionsJSON, candidateJSON []byte
	var stopReason *string
	err := row.Scan(&r.ID, &r.Status, &optionsJSON, &stopReason, &r.BestScore, &candidateJSON, &r.Error, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return r, err
	}
	if stopReason != nil {
		r.StopReason = tuning.StopReason(*stopReason)
	}
	if optionsJSON != nil {
		if err := json.Unmarshal(optionsJSON, &r.Options); err != nil {
			return r, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if candidateJSON != nil {
		var c tuning.Candidate
		if err := json.Unmarshal(candidateJSON, &c); err != nil {
			return r, fmt.Errorf("unmarshal best candidate: %w", err)
		}
		r.BestCandidate = &c
	}
	return r, nil
}
