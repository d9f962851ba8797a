package logfilter

import (
	"iter"

	"runwatch/events"
)

// Apply lazily yields the events of log that pass spec, in log order.
// It holds no state between calls.
func Apply(log *events.Log, spec Spec) iter.Seq[events.RunEvent] {
	spec = spec.clone()
	m := newMatcher(spec)
	return func(yield func(events.RunEvent) bool) {
		open := spec.SinceStepKey == ""
		for _, e := range log.All() {
			if !open {
				if !opensWindow(spec, e) {
					continue
				}
				open = true
			}
			if m.match(e) && !yield(e) {
				return
			}
		}
	}
}

// Engine keeps the visible subset of a log up to date as the log grows or
// the spec changes. Work can be split into chunks with WithChunkSize, in which
// case the owner drives it with Pump and Busy reports a pass in progress.
type Engine struct {
	log     *events.Log
	spec    Spec
	m       matcher
	open    bool
	visible []int
	cursor  int
	chunk   int
	busy    bool
	passes  int
}

// Option configures an Engine
type Option func(*Engine)

// WithChunkSize limits how many events a change processes before returning;
// the rest is left for Pump. Zero processes everything immediately.
func WithChunkSize(n int) Option {
	return func(f *Engine) {
		if n > 0 {
			f.chunk = n
		}
	}
}

// WithSpec sets the initial spec
func WithSpec(spec Spec) Option {
	return func(f *Engine) {
		f.spec = spec.clone()
	}
}

// NewEngine creates an engine over log showing every event by default
func NewEngine(log *events.Log, opts ...Option) *Engine {
	f := &Engine{log: log, spec: DefaultSpec()}
	for _, opt := range opts {
		opt(f)
	}
	f.reset()
	return f
}

// SetSpec switches to spec and recomputes from the start of the log.
// It returns false and keeps the current result when spec is unchanged.
func (f *Engine) SetSpec(spec Spec) bool {
	if f.spec.Equal(spec) {
		return false
	}
	f.spec = spec.clone()
	f.reset()
	return true
}

// Listener extends the result when events are appended to the log
func (f *Engine) Listener() events.Listener {
	return func(int, []events.RunEvent) {
		f.busy = true
		f.step(f.chunk)
	}
}

// Pump processes up to budget pending events (all when budget <= 0) and
// reports whether the result has caught up with the log
func (f *Engine) Pump(budget int) bool {
	f.step(budget)
	return !f.busy
}

func (f *Engine) reset() {
	f.m = newMatcher(f.spec)
	f.open = f.spec.SinceStepKey == ""
	f.visible = f.visible[:0]
	f.cursor = 0
	f.busy = true
	f.passes++
	f.step(f.chunk)
}

func (f *Engine) step(budget int) {
	end := f.log.Len()
	if budget > 0 {
		end = min(end, f.cursor+budget)
	}
	for i, e := range f.log.Range(f.cursor, end) {
		f.cursor = i + 1
		if !f.open {
			if !opensWindow(f.spec, e) {
				continue
			}
			f.open = true
		}
		if f.m.match(e) {
			f.visible = append(f.visible, i)
		}
	}
	f.busy = f.cursor < f.log.Len()
}

// Busy reports whether a filter pass has not yet reached the end of the log
func (f *Engine) Busy() bool {
	return f.busy
}

// Spec returns the active spec
func (f *Engine) Spec() Spec {
	return f.spec.clone()
}

// Passes returns how many full recomputations have started
func (f *Engine) Passes() int {
	return f.passes
}

// Len returns the number of visible events computed so far
func (f *Engine) Len() int {
	return len(f.visible)
}

// Visible returns the events that passed the filter so far
func (f *Engine) Visible() []events.RunEvent {
	out := make([]events.RunEvent, len(f.visible))
	for i, pos := range f.visible {
		out[i] = f.log.At(pos)
	}
	return out
}

// Seq iterates over the visible events
func (f *Engine) Seq() iter.Seq[events.RunEvent] {
	return func(yield func(events.RunEvent) bool) {
		for _, pos := range f.visible {
			if !yield(f.log.At(pos)) {
				return
			}
		}
	}
}
