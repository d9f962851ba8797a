package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwatch/events"
	"runwatch/logfilter"
	"runwatch/metrics"
	"runwatch/plan"
	"runwatch/status"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recorder is a submitter that keeps every submission it receives
type recorder struct {
	subs []Submission
	err  error
}

func (r *recorder) Submit(_ context.Context, sub Submission) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.subs = append(r.subs, sub)
	return "run-new", nil
}

func chain(t *testing.T, persisted bool) *plan.ExecutionPlan {
	t.Helper()
	ep, err := plan.NewExecutionPlan([]plan.StepPlanNode{
		{Key: "load.compute", Outputs: []plan.StepOutput{{Name: "result"}}},
		{Key: "clean.compute", Outputs: []plan.StepOutput{{Name: "result"}},
			Inputs: []plan.StepInput{{Name: "raw", DependsOnStepKey: "load.compute", DependsOnOutputName: "result"}}},
		{Key: "report.compute",
			Inputs: []plan.StepInput{{Name: "rows", DependsOnStepKey: "clean.compute", DependsOnOutputName: "result"}}},
	}, persisted)
	require.NoError(t, err)
	return ep
}

func newFacade(t *testing.T, persisted bool, cfg string, rec *recorder) *Facade {
	t.Helper()
	run := RunInfo{RunID: "run-1", PipelineName: "etl", Mode: "default", Config: cfg}
	return New(run, chain(t, persisted), WithSubmitter(rec))
}

func TestStartThenFailureSelectsError(t *testing.T) {
	f := New(RunInfo{RunID: "run-1"}, nil)
	f.OnLogAppended(
		events.RunEvent{Kind: events.KindStepStart, StepKey: "X", Timestamp: t0, Level: events.LevelInfo},
		events.RunEvent{Kind: events.KindStepFailure, StepKey: "X", Timestamp: t0.Add(time.Second),
			Level: events.LevelError, Error: &events.ErrorInfo{Message: "boom"}},
	)

	st := f.Status("X")
	assert.Equal(t, status.StateFailed, st.State)
	require.NotNil(t, st.LastError)
	assert.Equal(t, "boom", st.LastError.Message)

	info, ok := f.OnSelectError("X")
	require.True(t, ok)
	assert.Equal(t, "boom", info.Message)
	sel, ok := f.SelectedError()
	require.True(t, ok)
	assert.Equal(t, "X", sel.StepKey)

	_, ok = f.OnSelectError("Y")
	assert.False(t, ok)
	sel, ok = f.SelectedError()
	require.True(t, ok, "failed lookup keeps the previous selection")
	assert.Equal(t, "X", sel.StepKey)

	f.OnDismissError()
	_, ok = f.SelectedError()
	assert.False(t, ok)
}

func TestStepStatusesIncludePlannedSteps(t *testing.T) {
	f := newFacade(t, true, "", &recorder{})
	f.OnLogAppended(events.RunEvent{Kind: events.KindStepStart, StepKey: "load.compute", Timestamp: t0})

	got := f.StepStatuses()
	assert.Len(t, got, 3)
	assert.Equal(t, status.StateStarted, got["load.compute"].State)
	assert.Equal(t, status.StateWaiting, got["report.compute"].State)
}

func TestFilterFollowsAppends(t *testing.T) {
	f := newFacade(t, true, "", &recorder{})
	f.OnLogAppended(
		events.RunEvent{Kind: events.KindUserLog, Message: "loading rows", Level: events.LevelInfo},
		events.RunEvent{Kind: events.KindUserLog, Message: "disk nearly full", Level: events.LevelWarning},
	)

	spec := logfilter.DefaultSpec()
	spec.Text = "ROWS"
	assert.True(t, f.OnFilterChanged(spec))
	assert.False(t, f.OnFilterChanged(spec))
	require.Len(t, f.Visible(), 1)
	assert.Equal(t, "loading rows", f.Visible()[0].Message)

	f.OnLogAppended(events.RunEvent{Kind: events.KindUserLog, Message: "wrote 10 rows", Level: events.LevelInfo})
	assert.Len(t, f.Visible(), 2)
	assert.False(t, f.Busy())
}

func TestReexecuteSubmitsRequest(t *testing.T) {
	rec := &recorder{}
	f := newFacade(t, true, "retries: 3\nresources:\n  io: local\n", rec)

	out, err := f.OnReexecuteRequested(context.Background(), "clean.compute", ReexecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "run-new", out.RunID)

	require.Len(t, rec.subs, 1)
	sub := rec.subs[0]
	assert.Equal(t, "run-1", sub.Request.PreviousRunID)
	assert.Equal(t, []string{"clean.compute"}, sub.Request.StepKeys)
	assert.Equal(t, []plan.StepOutputHandle{{StepKey: "load.compute", OutputName: "result"}}, sub.Request.ReusedOutputs)
	assert.Equal(t, []string{"clean"}, sub.StepSubset)
	assert.Equal(t, "etl", sub.PipelineName)
	assert.Equal(t, "default", sub.Mode)
	assert.Equal(t, 3, sub.Config["retries"])
}

func TestReexecuteFromIncludesDownstream(t *testing.T) {
	rec := &recorder{}
	f := newFacade(t, true, "", rec)

	out, err := f.OnReexecuteFromRequested(context.Background(), "clean.compute", ReexecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"clean.compute", "report.compute"}, out.Submission.Request.StepKeys)
	assert.Equal(t, []plan.StepOutputHandle{
		{StepKey: "load.compute", OutputName: "result"},
		{StepKey: "clean.compute", OutputName: "result"},
	}, out.Submission.Request.ReusedOutputs)
	assert.Equal(t, []string{"clean", "report"}, out.Submission.StepSubset)
}

func TestReexecuteUnknownStepSubmitsNothing(t *testing.T) {
	rec := &recorder{}
	f := newFacade(t, true, "", rec)

	_, err := f.OnReexecuteRequested(context.Background(), "missing", ReexecuteOptions{})
	assert.ErrorIs(t, err, plan.ErrStepNotFound)
	var notFound *plan.StepNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.StepKey)

	_, err = f.OnReexecuteFromRequested(context.Background(), "missing", ReexecuteOptions{})
	assert.ErrorIs(t, err, plan.ErrStepNotFound)
	assert.Empty(t, rec.subs)
	assert.True(t, IsRecoverable(err))
}

func TestReexecuteWarnsWhenArtifactsNotPersisted(t *testing.T) {
	rec := &recorder{}
	f := newFacade(t, false, "", rec)

	_, err := f.OnReexecuteRequested(context.Background(), "clean.compute", ReexecuteOptions{})
	require.ErrorIs(t, err, ErrArtifactsNotPersisted)
	var warn *ArtifactsNotPersistedError
	require.ErrorAs(t, err, &warn)
	assert.Equal(t, []string{"clean.compute"}, warn.Request.StepKeys)
	assert.Empty(t, rec.subs)

	out, err := f.OnReexecuteRequested(context.Background(), "clean.compute", ReexecuteOptions{AllowUnpersisted: true})
	require.NoError(t, err)
	assert.Equal(t, warn.Request, out.Submission.Request)
	assert.Len(t, rec.subs, 1)
}

func TestReexecuteRejectsBadConfig(t *testing.T) {
	rec := &recorder{}
	f := newFacade(t, true, "retries: [1, 2", rec)

	_, err := f.OnReexecuteRequested(context.Background(), "clean.compute", ReexecuteOptions{})
	assert.ErrorIs(t, err, ErrConfigParse)
	assert.Empty(t, rec.subs)
}

func TestReexecuteWrapsSubmitFailure(t *testing.T) {
	boom := errors.New("queue unavailable")
	f := newFacade(t, true, "", &recorder{err: boom})

	_, err := f.OnReexecuteRequested(context.Background(), "clean.compute", ReexecuteOptions{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsRecoverable(err))
}

func counterValue(t *testing.T, outcome string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.ReexecutionRequests.WithLabelValues(outcome).Write(&m))
	return m.GetCounter().GetValue()
}

func TestReexecuteWithoutSubmitter(t *testing.T) {
	before := counterValue(t, "no_submitter")

	f := New(RunInfo{RunID: "run-1"}, chain(t, true))
	_, err := f.OnReexecuteRequested(context.Background(), "load.compute", ReexecuteOptions{})
	assert.ErrorIs(t, err, ErrNoSubmitter)
	assert.Equal(t, before+1, counterValue(t, "no_submitter"))
}

func TestSplitRatioIsClamped(t *testing.T) {
	f := New(RunInfo{}, nil)
	assert.Equal(t, 0.5, f.SplitRatio())
	f.SetSplitRatio(1.7)
	assert.Equal(t, 1.0, f.SplitRatio())
	f.SetSplitRatio(-0.2)
	assert.Equal(t, 0.0, f.SplitRatio())
	f.SetSplitRatio(0.3)
	assert.Equal(t, 0.3, f.SplitRatio())
}

func TestExtraListenersRunAfterDerivedViews(t *testing.T) {
	var seen []status.State
	var f *Facade
	f = New(RunInfo{}, nil, WithListener(func(_ int, batch []events.RunEvent) {
		seen = append(seen, f.Status(batch[0].StepKey).State)
	}))
	f.OnLogAppended(events.RunEvent{Kind: events.KindStepStart, StepKey: "A", Timestamp: t0})
	assert.Equal(t, []status.State{status.StateStarted}, seen)
}
