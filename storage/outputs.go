package storage

import (
	"context"
	"database/sql"
	"fmt"

	"runwatch/plan"
)

func insertOutputHandles(ctx context.Context, tx *sql.Tx, runID string, handles []plan.StepOutputHandle) error {
	for i, h := range handles {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO step_output_handles (run_id, position, step_key, output_name) VALUES (?, ?, ?, ?)",
			runID, i, h.StepKey, h.OutputName,
		)
		if err != nil {
			return fmt.Errorf("failed to store output handle: %w", err)
		}
	}
	return nil
}

// GetReusedOutputs returns the outputs a run reads from its parent, in
// request order. Repeated handles are kept.
func (s *Storage) GetReusedOutputs(ctx context.Context, runID string) ([]plan.StepOutputHandle, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT step_key, output_name FROM step_output_handles WHERE run_id = ? ORDER BY position ASC",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query output handles: %w", err)
	}
	defer rows.Close()

	handles := []plan.StepOutputHandle{}
	for rows.Next() {
		var h plan.StepOutputHandle
		if err := rows.Scan(&h.StepKey, &h.OutputName); err != nil {
			return nil, fmt.Errorf("failed to scan output handle: %w", err)
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}
