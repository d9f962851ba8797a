package monitor

import (
	"context"

	"runwatch/plan"
)

// Submission is everything the execution system needs to start a re-execution
type Submission struct {
	Request      plan.ReexecutionRequest `json:"request"`
	PipelineName string                  `json:"pipeline_name"`
	StepSubset   []string                `json:"step_subset"`
	Config       map[string]any          `json:"config"`
	Mode         string                  `json:"mode"`
}

// Submitter hands a submission to the execution system and returns the id of
// the new run
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (string, error)
}

// SubmitterFunc adapts a function to Submitter
type SubmitterFunc func(ctx context.Context, sub Submission) (string, error)

func (f SubmitterFunc) Submit(ctx context.Context, sub Submission) (string, error) {
	return f(ctx, sub)
}
