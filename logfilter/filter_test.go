package logfilter

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwatch/events"
)

func sampleLog() *events.Log {
	l := events.NewLog()
	l.Append(
		events.RunEvent{Kind: events.KindEngineEvent, Message: "Starting run", Level: events.LevelDebug},
		events.RunEvent{Kind: events.KindStepStart, StepKey: "load", Message: "Started load", Level: events.LevelInfo},
		events.RunEvent{Kind: events.KindUserLog, StepKey: "load", Message: "Loaded 10 ROWS", Level: events.LevelInfo},
		events.RunEvent{Kind: events.KindStepStart, StepKey: "train", Message: "Started train", Level: events.LevelInfo},
		events.RunEvent{Kind: events.KindUserLog, StepKey: "train", Message: "rows look odd", Level: events.LevelWarning},
		events.RunEvent{Kind: events.KindStepFailure, StepKey: "train", Message: "train failed", Level: events.LevelError},
	)
	return l
}

func messages(seq []events.RunEvent) []string {
	out := make([]string, len(seq))
	for i, e := range seq {
		out[i] = e.Message
	}
	return out
}

func TestApplyIdentityFilter(t *testing.T) {
	l := sampleLog()
	got := slices.Collect(Apply(l, DefaultSpec()))
	assert.Equal(t, l.Snapshot(), got)
}

func TestApplyTextIsCaseInsensitive(t *testing.T) {
	l := sampleLog()
	got := slices.Collect(Apply(l, Spec{Text: "rows", Levels: AllLevels()}))
	assert.Equal(t, []string{"Loaded 10 ROWS", "rows look odd"}, messages(got))
}

func TestApplyLevels(t *testing.T) {
	l := sampleLog()
	got := slices.Collect(Apply(l, Spec{Levels: NewLevelSet(events.LevelWarning, events.LevelError)}))
	assert.Equal(t, []string{"rows look odd", "train failed"}, messages(got))

	assert.Empty(t, slices.Collect(Apply(l, Spec{})))
}

func TestApplySinceStep(t *testing.T) {
	l := sampleLog()
	got := slices.Collect(Apply(l, Spec{Levels: AllLevels(), SinceStepKey: "train"}))
	assert.Equal(t, []string{"Started train", "rows look odd", "train failed"}, messages(got))

	assert.Empty(t, slices.Collect(Apply(l, Spec{Levels: AllLevels(), SinceStepKey: "never"})))
}

func TestApplyIsIdempotent(t *testing.T) {
	l := sampleLog()
	spec := Spec{Text: "start", Levels: AllLevels()}
	first := slices.Collect(Apply(l, spec))
	second := slices.Collect(Apply(l, spec))
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestApplyStopsEarly(t *testing.T) {
	l := sampleLog()
	count := 0
	for range Apply(l, DefaultSpec()) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestSpecEqual(t *testing.T) {
	a := Spec{Text: "x", Levels: NewLevelSet(events.LevelInfo, events.LevelError)}
	b := Spec{Text: "x", Levels: NewLevelSet(events.LevelError, events.LevelInfo)}
	assert.True(t, a.Equal(b))

	b.Levels = NewLevelSet(events.LevelError)
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(Spec{Text: "y", Levels: a.Levels}))
}

func TestParseLevels(t *testing.T) {
	set, err := ParseLevels("info, error")
	require.NoError(t, err)
	assert.Equal(t, []events.Level{events.LevelInfo, events.LevelError}, set.Sorted())

	all, err := ParseLevels("")
	require.NoError(t, err)
	assert.Len(t, all, len(events.Levels))

	_, err = ParseLevels("info,shout")
	assert.Error(t, err)
}

func TestEngineMatchesApply(t *testing.T) {
	l := events.NewLog()
	spec := Spec{Text: "rows", Levels: AllLevels()}
	f := NewEngine(l, WithSpec(spec))
	l.Subscribe(f.Listener())

	for _, e := range sampleLog().Snapshot() {
		l.Append(e)
		assert.Equal(t, messages(slices.Collect(Apply(l, spec))), messages(f.Visible()))
	}
	assert.False(t, f.Busy())
	assert.Equal(t, 1, f.Passes())
}

func TestEngineRecomputesOnlyOnChange(t *testing.T) {
	l := sampleLog()
	f := NewEngine(l)
	assert.Equal(t, 6, f.Len())

	assert.False(t, f.SetSpec(DefaultSpec()))
	assert.Equal(t, 1, f.Passes())

	assert.True(t, f.SetSpec(Spec{Levels: NewLevelSet(events.LevelError)}))
	assert.Equal(t, 2, f.Passes())
	assert.Equal(t, []string{"train failed"}, messages(f.Visible()))
}

func TestEngineSpecIsDetachedFromCaller(t *testing.T) {
	l := sampleLog()
	levels := NewLevelSet(events.LevelError)
	f := NewEngine(l, WithSpec(Spec{Levels: levels}))
	levels[events.LevelInfo] = struct{}{}

	assert.Equal(t, 1, f.Len())
	assert.False(t, f.Spec().Levels.Has(events.LevelInfo))
}

func TestEngineChunkedPass(t *testing.T) {
	l := sampleLog()
	f := NewEngine(l, WithChunkSize(2))
	assert.True(t, f.Busy())
	assert.Equal(t, 2, f.Len())

	assert.False(t, f.Pump(2))
	assert.True(t, f.Busy())
	assert.True(t, f.Pump(0))
	assert.False(t, f.Busy())
	assert.Equal(t, l.Snapshot(), f.Visible())
}

func TestEngineSinceStepArrivesLater(t *testing.T) {
	l := events.NewLog()
	f := NewEngine(l, WithSpec(Spec{Levels: AllLevels(), SinceStepKey: "train"}))
	l.Subscribe(f.Listener())

	l.Append(events.RunEvent{Kind: events.KindUserLog, Message: "before", Level: events.LevelInfo})
	assert.Equal(t, 0, f.Len())

	l.Append(
		events.RunEvent{Kind: events.KindStepStart, StepKey: "train", Message: "go", Level: events.LevelInfo},
		events.RunEvent{Kind: events.KindUserLog, Message: "after", Level: events.LevelInfo},
	)
	var got []string
	for e := range f.Seq() {
		got = append(got, e.Message)
	}
	assert.Equal(t, []string{"go", "after"}, got)
}
