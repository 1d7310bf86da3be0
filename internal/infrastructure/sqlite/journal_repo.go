package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// DeployRecordRepo implements [domain.DeployRecordRepository] backed by
// SQLite. Writes upsert on (run_id, solution) so workflow replays and full
// pipeline re-runs converge on the latest state.
type DeployRecordRepo struct {
	DB *sql.DB
}

func (r *DeployRecordRepo) Put(ctx context.Context, rec domain.DeployRecord) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO deploy_records (run_id, solution, target, state, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, solution) DO UPDATE SET
		   target = excluded.target,
		   state = excluded.state,
		   version = excluded.version,
		   updated_at = excluded.updated_at`,
		rec.RunID, rec.Solution, rec.Target,
		string(rec.State), rec.Version.String(), rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert deploy record: %w", err)
	}
	return nil
}

func (r *DeployRecordRepo) Get(ctx context.Context, runID, solution string) (domain.DeployRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT run_id, solution, target, state, version, updated_at
		 FROM deploy_records WHERE run_id = ? AND solution = ?`,
		runID, solution,
	)
	rec, err := scanDeployRecord(row)
	if errors.Is(err, domain.ErrNotFound) {
		return rec, fmt.Errorf("deploy record %s/%s: %w", runID, solution, domain.ErrNotFound)
	}
	return rec, err
}

func (r *DeployRecordRepo) ListByRun(ctx context.Context, runID string) ([]domain.DeployRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT run_id, solution, target, state, version, updated_at
		 FROM deploy_records WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list deploy records: %w", err)
	}
	defer rows.Close()

	var records []domain.DeployRecord
	for rows.Next() {
		rec, err := scanDeployRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *DeployRecordRepo) DeleteByRun(ctx context.Context, runID string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM deploy_records WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return fmt.Errorf("delete deploy records: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployRecord(s scanner) (domain.DeployRecord, error) {
	var rec domain.DeployRecord
	var stateStr, versionStr, updatedAtStr string
	if err := s.Scan(&rec.RunID, &rec.Solution, &rec.Target, &stateStr, &versionStr, &updatedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, domain.ErrNotFound
		}
		return rec, fmt.Errorf("scan deploy record: %w", err)
	}
	rec.State = domain.SolutionRunState(stateStr)
	v, err := domain.ParseVersion(versionStr)
	if err != nil {
		return rec, fmt.Errorf("parse stored version: %w", err)
	}
	rec.Version = v
	t, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return rec, fmt.Errorf("parse updated_at: %w", err)
	}
	rec.UpdatedAt = t
	return rec, nil
}
