// Package monitor composes the event log, status engine, log filter and
// re-execution planner behind the API used by a run view.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"runwatch/events"
	"runwatch/logfilter"
	"runwatch/metrics"
	"runwatch/plan"
	"runwatch/status"
)

// RunInfo identifies the run a facade is pinned to
type RunInfo struct {
	RunID        string `json:"run_id"`
	PipelineName string `json:"pipeline_name"`
	Mode         string `json:"mode"`
	Config       string `json:"-"`
}

// SelectedError is the highlighted step failure
type SelectedError struct {
	StepKey string           `json:"step_key"`
	Error   events.ErrorInfo `json:"error"`
}

// ReexecuteOptions tunes a re-execution request
type ReexecuteOptions struct {
	// AllowUnpersisted submits even when the plan does not persist artifacts
	AllowUnpersisted bool
}

// Reexecution is a submitted re-execution
type Reexecution struct {
	RunID      string     `json:"run_id"`
	Submission Submission `json:"submission"`
}

// Facade is the state of one run view
type Facade struct {
	run       RunInfo
	plan      *plan.ExecutionPlan
	planner   *plan.Planner
	log       *events.Log
	status    *status.Engine
	filter    *logfilter.Engine
	submitter Submitter

	selected   *SelectedError
	splitRatio float64
}

type options struct {
	submitter   Submitter
	filterChunk int
	spec        *logfilter.Spec
	listeners   []events.Listener
}

// Option configures a Facade
type Option func(*options)

// WithSubmitter sets where re-execution requests are sent
func WithSubmitter(s Submitter) Option {
	return func(o *options) { o.submitter = s }
}

// WithFilterChunk makes filter passes process at most n events per step
func WithFilterChunk(n int) Option {
	return func(o *options) { o.filterChunk = n }
}

// WithFilterSpec sets the initial filter
func WithFilterSpec(spec logfilter.Spec) Option {
	return func(o *options) { o.spec = &spec }
}

// WithListener subscribes fn to appends after the derived views
func WithListener(fn events.Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, fn) }
}

// New creates the view state of run over its execution plan
func New(run RunInfo, ep *plan.ExecutionPlan, opts ...Option) *Facade {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if ep == nil {
		ep, _ = plan.NewExecutionPlan(nil, false)
	}

	log := events.NewLog()
	filterOpts := []logfilter.Option{logfilter.WithChunkSize(o.filterChunk)}
	if o.spec != nil {
		filterOpts = append(filterOpts, logfilter.WithSpec(*o.spec))
	}

	f := &Facade{
		run:     run,
		plan:    ep,
		planner: plan.NewPlanner(),
		log:     log,
		status: status.NewEngine(status.WithIgnoredHook(func(e events.RunEvent, current status.State) {
			metrics.DuplicateEvents.WithLabelValues(string(e.Kind)).Inc()
		})),
		filter:     logfilter.NewEngine(log, filterOpts...),
		submitter:  o.submitter,
		splitRatio: 0.5,
	}
	metrics.FilterPasses.Inc()

	log.Subscribe(f.status.Listener())
	log.Subscribe(f.filter.Listener())
	log.Subscribe(metrics.CountAppended)
	for _, fn := range o.listeners {
		log.Subscribe(fn)
	}
	return f
}

// RunID returns the id of the pinned run
func (f *Facade) RunID() string {
	return f.run.RunID
}

// Run returns the pinned run
func (f *Facade) Run() RunInfo {
	return f.run
}

// Plan returns the execution plan of the run
func (f *Facade) Plan() *plan.ExecutionPlan {
	return f.plan
}

// Log returns the event log for read access
func (f *Facade) Log() *events.Log {
	return f.log
}

// Subscribe registers fn for future appends
func (f *Facade) Subscribe(fn events.Listener) func() {
	return f.log.Subscribe(fn)
}

// OnLogAppended appends a batch delivered by the event feed
func (f *Facade) OnLogAppended(batch ...events.RunEvent) {
	f.log.Append(batch...)
}

// OnFilterChanged switches the log filter and reports whether the visible
// events are being recomputed
func (f *Facade) OnFilterChanged(spec logfilter.Spec) bool {
	changed := f.filter.SetSpec(spec)
	if changed {
		metrics.FilterPasses.Inc()
	}
	return changed
}

// Filter returns the active filter spec
func (f *Facade) Filter() logfilter.Spec {
	return f.filter.Spec()
}

// Visible returns the filtered events computed so far
func (f *Facade) Visible() []events.RunEvent {
	return f.filter.Visible()
}

// Busy reports whether the filtered view is still catching up
func (f *Facade) Busy() bool {
	return f.filter.Busy()
}

// Pump advances a chunked filter pass by up to budget events
func (f *Facade) Pump(budget int) bool {
	return f.filter.Pump(budget)
}

// Status returns the derived status of one step
func (f *Facade) Status(key string) status.StepStatus {
	return f.status.Status(key)
}

// StepStatuses returns the status of every planned step, plus any step that
// produced events without being in the plan
func (f *Facade) StepStatuses() map[string]status.StepStatus {
	out := f.status.Statuses()
	for _, key := range f.plan.Keys() {
		if _, ok := out[key]; !ok {
			out[key] = status.StepStatus{State: status.StateWaiting}
		}
	}
	return out
}

// OnSelectError highlights the first failure of stepKey. Nothing is selected
// when the step has not failed.
func (f *Facade) OnSelectError(stepKey string) (events.ErrorInfo, bool) {
	info, ok := status.FindError(f.log, stepKey)
	if !ok {
		return events.ErrorInfo{}, false
	}
	f.selected = &SelectedError{StepKey: stepKey, Error: info}
	return info, true
}

// OnDismissError clears the highlighted failure
func (f *Facade) OnDismissError() {
	f.selected = nil
}

// SelectedError returns the highlighted failure, if any
func (f *Facade) SelectedError() (SelectedError, bool) {
	if f.selected == nil {
		return SelectedError{}, false
	}
	return *f.selected, true
}

// SplitRatio returns the layout split between plan and log panes
func (f *Facade) SplitRatio() float64 {
	return f.splitRatio
}

// SetSplitRatio stores the layout split, clamped to [0, 1]
func (f *Facade) SetSplitRatio(r float64) {
	f.splitRatio = min(max(r, 0), 1)
}

// OnReexecuteRequested re-executes a single step of the pinned run
func (f *Facade) OnReexecuteRequested(ctx context.Context, stepKey string, opts ReexecuteOptions) (*Reexecution, error) {
	return f.reexecute(ctx, []string{stepKey}, opts)
}

// OnReexecuteFromRequested re-executes stepKey and every step downstream of it
func (f *Facade) OnReexecuteFromRequested(ctx context.Context, stepKey string, opts ReexecuteOptions) (*Reexecution, error) {
	targets := f.plan.Downstream(stepKey)
	if targets == nil {
		metrics.ReexecutionRequests.WithLabelValues("step_not_found").Inc()
		return nil, &plan.StepNotFoundError{StepKey: stepKey}
	}
	return f.reexecute(ctx, targets, opts)
}

func (f *Facade) reexecute(ctx context.Context, targets []string, opts ReexecuteOptions) (*Reexecution, error) {
	req, err := f.planner.Plan(f.plan, targets, f.run.RunID)
	if err != nil {
		metrics.ReexecutionRequests.WithLabelValues("step_not_found").Inc()
		return nil, err
	}

	if !f.plan.ArtifactsPersisted() && !opts.AllowUnpersisted {
		metrics.ReexecutionRequests.WithLabelValues("artifacts_not_persisted").Inc()
		return nil, &ArtifactsNotPersistedError{Request: req}
	}

	cfg, err := DecodeRunConfig(f.run.Config)
	if err != nil {
		metrics.ReexecutionRequests.WithLabelValues("config_invalid").Inc()
		return nil, err
	}

	if f.submitter == nil {
		metrics.ReexecutionRequests.WithLabelValues("no_submitter").Inc()
		return nil, ErrNoSubmitter
	}

	sub := Submission{
		Request:      req,
		PipelineName: f.run.PipelineName,
		StepSubset:   f.stepSubset(req.StepKeys),
		Config:       cfg,
		Mode:         f.run.Mode,
	}

	start := time.Now()
	runID, err := f.submitter.Submit(ctx, sub)
	metrics.SubmitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReexecutionRequests.WithLabelValues("submit_failed").Inc()
		return nil, fmt.Errorf("failed to submit re-execution: %w", err)
	}

	metrics.ReexecutionRequests.WithLabelValues("submitted").Inc()
	slog.Info("re-execution submitted",
		"previous_run_id", req.PreviousRunID, "run_id", runID, "steps", req.StepKeys)
	return &Reexecution{RunID: runID, Submission: sub}, nil
}

// stepSubset maps step keys to the names of their units of work
func (f *Facade) stepSubset(keys []string) []string {
	var names []string
	for _, key := range keys {
		node, _ := f.plan.Node(key)
		name := node.SolidName()
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// IsRecoverable reports whether err is a per-request condition the caller
// should surface rather than treat as a failure of the view
func IsRecoverable(err error) bool {
	return errors.Is(err, plan.ErrStepNotFound) ||
		errors.Is(err, ErrArtifactsNotPersisted) ||
		errors.Is(err, ErrConfigParse)
}
