// Package logfilter narrows a run's event log by text, level and step.
package logfilter

import (
	"maps"
	"strings"

	"runwatch/events"
)

// LevelSet is a set of event levels
type LevelSet map[events.Level]struct{}

// NewLevelSet builds a set from the given levels
func NewLevelSet(levels ...events.Level) LevelSet {
	s := make(LevelSet, len(levels))
	for _, l := range levels {
		s[l] = struct{}{}
	}
	return s
}

// AllLevels returns a set holding every known level
func AllLevels() LevelSet {
	return NewLevelSet(events.Levels...)
}

// ParseLevels parses a comma separated list of level names.
// An empty string selects every level.
func ParseLevels(s string) (LevelSet, error) {
	if strings.TrimSpace(s) == "" {
		return AllLevels(), nil
	}
	set := make(LevelSet)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, err := events.ParseLevel(part)
		if err != nil {
			return nil, err
		}
		set[l] = struct{}{}
	}
	return set, nil
}

// Has reports whether l is in the set
func (s LevelSet) Has(l events.Level) bool {
	_, ok := s[l]
	return ok
}

// Sorted returns the levels in severity order
func (s LevelSet) Sorted() []events.Level {
	out := make([]events.Level, 0, len(s))
	for _, l := range events.Levels {
		if s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// Spec describes which events are visible
type Spec struct {
	Text         string   `json:"text"`
	Levels       LevelSet `json:"-"`
	SinceStepKey string   `json:"since_step_key,omitempty"`
}

// DefaultSpec shows every event
func DefaultSpec() Spec {
	return Spec{Levels: AllLevels()}
}

// Equal compares two specs structurally
func (s Spec) Equal(o Spec) bool {
	if s.Text != o.Text || s.SinceStepKey != o.SinceStepKey || len(s.Levels) != len(o.Levels) {
		return false
	}
	for l := range s.Levels {
		if !o.Levels.Has(l) {
			return false
		}
	}
	return true
}

// clone detaches the level set from the caller's map
func (s Spec) clone() Spec {
	c := s
	c.Levels = maps.Clone(s.Levels)
	return c
}

// matcher evaluates the text and level predicate of a spec
type matcher struct {
	needle string
	levels LevelSet
}

func newMatcher(s Spec) matcher {
	return matcher{needle: strings.ToLower(s.Text), levels: s.Levels}
}

func (m matcher) match(e events.RunEvent) bool {
	if !m.levels.Has(e.Level) {
		return false
	}
	return m.needle == "" || strings.Contains(strings.ToLower(e.Message), m.needle)
}

// opensWindow reports whether e is the first start of the since-step
func opensWindow(s Spec, e events.RunEvent) bool {
	return e.Kind == events.KindStepStart && e.StepKey == s.SinceStepKey
}
