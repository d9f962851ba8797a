package status

import (
	"log/slog"
	"maps"

	"runwatch/events"
)

// Engine folds run events into step statuses incrementally
type Engine struct {
	steps     map[string]StepStatus
	processed int
	ignored   int
	onIgnored func(events.RunEvent, State)
}

// Option configures an Engine
type Option func(*Engine)

// WithIgnoredHook is called for every start or terminal event dropped because
// the step was already in a conflicting state
func WithIgnoredHook(fn func(e events.RunEvent, current State)) Option {
	return func(en *Engine) {
		en.onIgnored = fn
	}
}

// NewEngine creates an engine with every step waiting
func NewEngine(opts ...Option) *Engine {
	e := &Engine{steps: make(map[string]StepStatus)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process folds batch in order and returns only the steps whose status the
// batch changed. Statuses returns the full mapping.
func (en *Engine) Process(batch []events.RunEvent) map[string]StepStatus {
	changed := make(map[string]StepStatus)
	for _, e := range batch {
		if en.apply(e) {
			changed[e.StepKey] = en.steps[e.StepKey].clone()
		}
	}
	en.processed += len(batch)
	return changed
}

// Listener adapts Process to an event log subscription
func (en *Engine) Listener() events.Listener {
	return func(_ int, batch []events.RunEvent) {
		en.Process(batch)
	}
}

// apply folds a single event and reports whether the step status changed
func (en *Engine) apply(e events.RunEvent) bool {
	if !e.IsStepEvent() {
		return false
	}

	current := en.steps[e.StepKey]
	if current.State == "" {
		current.State = StateWaiting
	}

	if recordsOutput(e.Kind) {
		if e.Output == nil {
			return false
		}
		current.Outputs = append(current.Outputs, *e.Output)
		en.steps[e.StepKey] = current
		return true
	}

	if !changesState(e.Kind) {
		return false
	}

	next, ok := transitions[transitionKey{current.State, e.Kind}]
	if !ok {
		en.ignored++
		slog.Debug("ignoring duplicate step event",
			"step_key", e.StepKey, "kind", e.Kind, "state", current.State, "seq", e.Seq)
		if en.onIgnored != nil {
			en.onIgnored(e, current.State)
		}
		return false
	}

	ts := e.Timestamp
	current.State = next
	switch {
	case next == StateStarted:
		current.StartedAt = &ts
	case next.Terminal():
		current.EndedAt = &ts
		if next == StateFailed {
			errInfo := events.ErrorInfo{Message: e.Message}
			if e.Error != nil {
				errInfo = *e.Error
			}
			current.LastError = &errInfo
		}
	}
	en.steps[e.StepKey] = current
	return true
}

// Status returns the status of key; steps without events are waiting
func (en *Engine) Status(key string) StepStatus {
	s, ok := en.steps[key]
	if !ok {
		return StepStatus{State: StateWaiting}
	}
	return s.clone()
}

// Statuses returns a copy of every step status seen so far
func (en *Engine) Statuses() map[string]StepStatus {
	out := make(map[string]StepStatus, len(en.steps))
	for k, v := range en.steps {
		out[k] = v.clone()
	}
	return out
}

// Processed returns how many events have been folded
func (en *Engine) Processed() int {
	return en.processed
}

// Ignored returns how many duplicate or conflicting events were dropped
func (en *Engine) Ignored() int {
	return en.ignored
}

// Recompute derives step statuses from the whole log in one pass
func Recompute(log *events.Log) map[string]StepStatus {
	en := NewEngine()
	en.Process(log.Snapshot())
	return maps.Clone(en.steps)
}
