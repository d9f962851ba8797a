package storage

import (
	"time"

	"runwatch/plan"
)

const (
	// StatusQueued marks a re-execution handed to the execution system
	StatusQueued = "queued"
	// StatusObserved marks a run registered by a run view
	StatusObserved = "observed"
)

// Run is a run record. Re-executions carry the id of the run they reuse
// outputs from and the steps they cover.
type Run struct {
	RunID         string                  `json:"run_id"`
	ParentRunID   string                  `json:"parent_run_id,omitempty"`
	PipelineName  string                  `json:"pipeline_name"`
	Mode          string                  `json:"mode"`
	Status        string                  `json:"status"`
	Config        string                  `json:"config,omitempty"`
	StepKeys      []string                `json:"step_keys"`
	StepSubset    []string                `json:"step_subset"`
	ReusedOutputs []plan.StepOutputHandle `json:"reused_outputs,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}
