package events

import "iter"

// Listener is notified with the events appended by a single Append call.
// from is the sequence number of the first event in batch.
type Listener func(from int, batch []RunEvent)

// Log is the append-only event log of one run view
type Log struct {
	entries   []RunEvent
	listeners []*subscription
}

type subscription struct {
	fn     Listener
	active bool
}

// NewLog creates an empty event log
func NewLog() *Log {
	return &Log{}
}

// Append adds events in the given order, assigns their sequence numbers and
// notifies subscribers in registration order
func (l *Log) Append(batch ...RunEvent) {
	if len(batch) == 0 {
		return
	}

	from := len(l.entries)
	appended := make([]RunEvent, len(batch))
	for i, e := range batch {
		e.Seq = from + i
		appended[i] = e
	}
	l.entries = append(l.entries, appended...)

	for _, sub := range l.listeners {
		if sub.active {
			sub.fn(from, appended)
		}
	}
}

// Subscribe registers fn for future appends and returns a function that
// removes the subscription
func (l *Log) Subscribe(fn Listener) func() {
	sub := &subscription{fn: fn, active: true}
	l.listeners = append(l.listeners, sub)
	return func() {
		sub.active = false
		for i, s := range l.listeners {
			if s == sub {
				l.listeners = append(l.listeners[:i:i], l.listeners[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of events in the log
func (l *Log) Len() int {
	return len(l.entries)
}

// At returns the event at position i
func (l *Log) At(i int) RunEvent {
	return l.entries[i]
}

// All iterates over every event in arrival order
func (l *Log) All() iter.Seq2[int, RunEvent] {
	return l.Range(0, len(l.entries))
}

// Range iterates over positions [from, to), clamped to the log bounds.
// The upper bound is fixed when iteration starts.
func (l *Log) Range(from, to int) iter.Seq2[int, RunEvent] {
	return func(yield func(int, RunEvent) bool) {
		if from < 0 {
			from = 0
		}
		end := min(to, len(l.entries))
		for i := from; i < end; i++ {
			if !yield(i, l.entries[i]) {
				return
			}
		}
	}
}

// Snapshot returns a copy of the log contents
func (l *Log) Snapshot() []RunEvent {
	out := make([]RunEvent, len(l.entries))
	copy(out, l.entries)
	return out
}
