// Package status derives per-step execution state from a run's event log.
package status

import (
	"time"

	"runwatch/events"
)

// State is the execution state of a step
type State string

const (
	StateWaiting   State = "WAITING"
	StateStarted   State = "STARTED"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateSkipped   State = "SKIPPED"
)

// Terminal reports whether no further transition can leave s
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkipped
}

// StepStatus is the derived status of one step
type StepStatus struct {
	State     State               `json:"state"`
	StartedAt *time.Time          `json:"started_at,omitempty"`
	EndedAt   *time.Time          `json:"ended_at,omitempty"`
	LastError *events.ErrorInfo   `json:"last_error,omitempty"`
	Outputs   []events.OutputInfo `json:"outputs,omitempty"`
}

// Duration returns the time between start and end, or zero when either is
// unknown. Producers may have skewed clocks, so negative spans count as zero.
func (s StepStatus) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	d := s.EndedAt.Sub(*s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

func (s StepStatus) clone() StepStatus {
	c := s
	if s.Outputs != nil {
		c.Outputs = append([]events.OutputInfo(nil), s.Outputs...)
	}
	return c
}

type transitionKey struct {
	from State
	kind events.Kind
}

// transitions lists every state change a step event can cause. Pairs missing
// from the table leave the state untouched.
var transitions = map[transitionKey]State{
	{StateWaiting, events.KindStepStart}:   StateStarted,
	{StateWaiting, events.KindStepSuccess}: StateSucceeded,
	{StateWaiting, events.KindStepFailure}: StateFailed,
	{StateWaiting, events.KindStepSkipped}: StateSkipped,
	{StateStarted, events.KindStepSuccess}: StateSucceeded,
	{StateStarted, events.KindStepFailure}: StateFailed,
	{StateStarted, events.KindStepSkipped}: StateSkipped,
}

// changesState reports whether kind takes part in the state machine at all
func changesState(kind events.Kind) bool {
	switch kind {
	case events.KindStepStart, events.KindStepSuccess, events.KindStepFailure, events.KindStepSkipped:
		return true
	}
	return false
}

func recordsOutput(kind events.Kind) bool {
	return kind == events.KindStepOutput || kind == events.KindStepMaterialization
}
