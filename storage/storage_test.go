package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwatch/monitor"
	"runwatch/plan"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSubmitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	sub := monitor.Submission{
		Request: plan.ReexecutionRequest{
			PreviousRunID: "run-1",
			StepKeys:      []string{"clean.compute", "report.compute"},
			ReusedOutputs: []plan.StepOutputHandle{
				{StepKey: "load.compute", OutputName: "result"},
				{StepKey: "load.compute", OutputName: "result"},
			},
		},
		PipelineName: "etl",
		StepSubset:   []string{"clean", "report"},
		Config:       map[string]any{"retries": 3},
		Mode:         "default",
	}

	id, err := s.Submit(ctx, sub)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ParentRunID)
	assert.Equal(t, "etl", run.PipelineName)
	assert.Equal(t, StatusQueued, run.Status)
	assert.Equal(t, sub.Request.StepKeys, run.StepKeys)
	assert.Equal(t, sub.StepSubset, run.StepSubset)
	assert.Equal(t, sub.Request.ReusedOutputs, run.ReusedOutputs, "repeated handles are kept")

	cfg, err := monitor.DecodeRunConfig(run.Config)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg["retries"])
}

func TestSubmitGeneratesDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	sub := monitor.Submission{Request: plan.ReexecutionRequest{PreviousRunID: "run-1", StepKeys: []string{"a"}}}
	first, err := s.Submit(ctx, sub)
	require.NoError(t, err)
	second, err := s.Submit(ctx, sub)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	runs, err := s.GetRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].RunID)
	assert.Empty(t, runs[0].Config)
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveRunDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	run := &Run{PipelineName: "etl", Status: StatusObserved, Config: "retries: 1\n"}
	require.NoError(t, s.SaveRun(ctx, run))
	require.NotEmpty(t, run.RunID)

	got, err := s.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "default", got.Mode)
	assert.Equal(t, "retries: 1\n", got.Config)
	assert.Empty(t, got.StepKeys)
	assert.Empty(t, got.ReusedOutputs)
}

func TestGetPipelineStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SaveRun(ctx, &Run{RunID: "r1", PipelineName: "etl", Status: StatusObserved}))
	_, err := s.Submit(ctx, monitor.Submission{
		PipelineName: "etl",
		Request:      plan.ReexecutionRequest{PreviousRunID: "r1", StepKeys: []string{"a"}},
	})
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, &Run{RunID: "r2", PipelineName: "billing", Status: StatusObserved}))

	stats, err := s.GetPipelineStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "billing", stats[0].PipelineName)
	assert.Equal(t, 1, stats[0].Runs)
	assert.Equal(t, "etl", stats[1].PipelineName)
	assert.Equal(t, 2, stats[1].Runs)
	assert.Equal(t, 1, stats[1].Reexecutions)
}
