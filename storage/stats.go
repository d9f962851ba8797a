package storage

import (
	"context"
	"fmt"
)

// PipelineStats summarises the runs recorded for a pipeline
type PipelineStats struct {
	PipelineName  string `json:"pipeline_name"`
	Runs          int    `json:"runs"`
	Reexecutions  int    `json:"reexecutions"`
	LastCreatedAt string `json:"last_created_at"`
}

// GetPipelineStats returns per-pipeline run counts ordered by pipeline name
func (s *Storage) GetPipelineStats(ctx context.Context) ([]PipelineStats, error) {
	query := `
		SELECT
			pipeline_name,
			COUNT(*),
			SUM(CASE WHEN parent_run_id != '' THEN 1 ELSE 0 END),
			MAX(created_at)
		FROM runs
		GROUP BY pipeline_name
		ORDER BY pipeline_name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline stats: %w", err)
	}
	defer rows.Close()

	stats := make([]PipelineStats, 0)
	for rows.Next() {
		var st PipelineStats
		if err := rows.Scan(&st.PipelineName, &st.Runs, &st.Reexecutions, &st.LastCreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
