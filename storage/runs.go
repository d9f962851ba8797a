package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"runwatch/monitor"
)

// Submit records a re-execution as a queued run and returns its new id
func (s *Storage) Submit(ctx context.Context, sub monitor.Submission) (string, error) {
	config := ""
	if len(sub.Config) > 0 {
		data, err := yaml.Marshal(sub.Config)
		if err != nil {
			return "", fmt.Errorf("failed to encode run config: %w", err)
		}
		config = string(data)
	}

	run := &Run{
		RunID:         uuid.NewString(),
		ParentRunID:   sub.Request.PreviousRunID,
		PipelineName:  sub.PipelineName,
		Mode:          sub.Mode,
		Status:        StatusQueued,
		Config:        config,
		StepKeys:      sub.Request.StepKeys,
		StepSubset:    sub.StepSubset,
		ReusedOutputs: sub.Request.ReusedOutputs,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.SaveRun(ctx, run); err != nil {
		return "", err
	}
	return run.RunID, nil
}

// SaveRun inserts a run together with the outputs it reuses
func (s *Storage) SaveRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Mode == "" {
		run.Mode = "default"
	}

	stepKeys, err := marshalList(run.StepKeys)
	if err != nil {
		return err
	}
	stepSubset, err := marshalList(run.StepSubset)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, parent_run_id, pipeline_name, mode, status, config, step_keys, step_subset, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ParentRunID, run.PipelineName, run.Mode, run.Status, run.Config, stepKeys, stepSubset, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	if err := insertOutputHandles(ctx, tx, run.RunID, run.ReusedOutputs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRuns retrieves runs, most recent first
func (s *Storage) GetRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, parent_run_id, pipeline_name, mode, status, config, step_keys, step_subset, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun retrieves a single run and the outputs it reuses
func (s *Storage) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, parent_run_id, pipeline_name, mode, status, config, step_keys, step_subset, created_at
		FROM runs WHERE run_id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	r.ReusedOutputs, err = s.GetReusedOutputs(ctx, runID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var stepKeys, stepSubset string
	err := row.Scan(&r.RunID, &r.ParentRunID, &r.PipelineName, &r.Mode, &r.Status, &r.Config,
		&stepKeys, &stepSubset, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(stepKeys), &r.StepKeys); err != nil {
		return nil, fmt.Errorf("failed to decode step keys of run %s: %w", r.RunID, err)
	}
	if err := json.Unmarshal([]byte(stepSubset), &r.StepSubset); err != nil {
		return nil, fmt.Errorf("failed to decode step subset of run %s: %w", r.RunID, err)
	}
	return &r, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}
