package plan

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultOutputName is the output a step produces when it declares none
const DefaultOutputName = "result"

// ErrStepNotFound is matched by errors for targets missing from the plan
var ErrStepNotFound = errors.New("step not found in execution plan")

// StepNotFoundError reports a target step key the plan does not contain.
// The plan is stale relative to the caller's selection; nothing should be
// submitted.
type StepNotFoundError struct {
	StepKey string
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step %q not found in execution plan", e.StepKey)
}

func (e *StepNotFoundError) Is(target error) bool {
	return target == ErrStepNotFound
}

// StepOutputHandle identifies one output of one step
type StepOutputHandle struct {
	StepKey    string `json:"step_key"`
	OutputName string `json:"output_name"`
}

// ReexecutionRequest asks to re-run StepKeys of a previous run, reading
// ReusedOutputs from that run instead of recomputing them
type ReexecutionRequest struct {
	PreviousRunID string             `json:"previous_run_id"`
	StepKeys      []string           `json:"step_keys"`
	ReusedOutputs []StepOutputHandle `json:"reused_outputs"`
}

// Planner builds re-execution requests from an execution plan
type Planner struct{}

// NewPlanner creates a planner
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan builds the request for re-running targets of previousRunID.
//
// Every input of every target contributes the upstream outputs it reads, in
// target order then input declaration order. Entries are not deduplicated and
// upstream steps are not followed past the immediate dependency. The request
// is built even when the plan does not persist artifacts; callers check
// ExecutionPlan.ArtifactsPersisted before submitting.
func (p *Planner) Plan(ep *ExecutionPlan, targets []string, previousRunID string) (ReexecutionRequest, error) {
	stepKeys := make([]string, 0, len(targets))
	var reused []StepOutputHandle

	for _, key := range targets {
		node, ok := ep.Node(key)
		if !ok {
			return ReexecutionRequest{}, &StepNotFoundError{StepKey: key}
		}
		if !slices.Contains(stepKeys, key) {
			stepKeys = append(stepKeys, key)
		}
		for _, in := range node.Inputs {
			reused = append(reused, upstreamHandles(ep, in)...)
		}
	}

	if reused == nil {
		reused = []StepOutputHandle{}
	}
	return ReexecutionRequest{
		PreviousRunID: previousRunID,
		StepKeys:      stepKeys,
		ReusedOutputs: reused,
	}, nil
}

// upstreamHandles lists the outputs an input reads: the named output, or
// every declared output of the upstream step when the input names none
func upstreamHandles(ep *ExecutionPlan, in StepInput) []StepOutputHandle {
	if in.DependsOnOutputName != "" {
		return []StepOutputHandle{{StepKey: in.DependsOnStepKey, OutputName: in.DependsOnOutputName}}
	}

	up, ok := ep.Node(in.DependsOnStepKey)
	if !ok || len(up.Outputs) == 0 {
		return []StepOutputHandle{{StepKey: in.DependsOnStepKey, OutputName: DefaultOutputName}}
	}

	handles := make([]StepOutputHandle, 0, len(up.Outputs))
	for _, out := range up.Outputs {
		handles = append(handles, StepOutputHandle{StepKey: up.Key, OutputName: out.Name})
	}
	return handles
}
