package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sort"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"runwatch/events"
	"runwatch/logfilter"
	"runwatch/monitor"
	"runwatch/plan"
	"runwatch/status"
	"runwatch/storage"
)

// OpenRunRequest opens a view of a run. A stored run supplies the pipeline,
// config and mode that the request leaves empty.
type OpenRunRequest struct {
	RunID    string  `json:"run_id"`
	Pipeline string  `json:"pipeline"`
	Config   *string `json:"config,omitempty"`
	Mode     string  `json:"mode"`
}

// OpenRunResponse describes an opened view
type OpenRunResponse struct {
	RunID        string         `json:"run_id"`
	PipelineName string         `json:"pipeline_name"`
	Mode         string         `json:"mode"`
	Steps        []string       `json:"steps"`
	Problems     []plan.Problem `json:"problems,omitempty"`
}

// StepResponse is the status of one step of a run view
type StepResponse struct {
	StepKey string `json:"step_key"`
	Solid   string `json:"solid,omitempty"`
	status.StepStatus
	DurationMS int64 `json:"duration_ms"`
}

// LogsResponse is the filtered log of a run view
type LogsResponse struct {
	Busy   bool              `json:"busy"`
	Total  int               `json:"total"`
	Events []events.RunEvent `json:"events"`
}

// StatusUpdate is broadcast when appended events change step statuses
type StatusUpdate struct {
	RunID string                       `json:"run_id"`
	Steps map[string]status.StepStatus `json:"steps"`
}

// ListRuns returns recorded runs
// GET /api/runs
func (h *Handler) ListRuns(c echo.Context) error {
	if h.store == nil {
		return c.JSON(http.StatusOK, []*storage.Run{})
	}
	runs, err := h.store.GetRuns(c.Request().Context(), 100)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns a recorded run
// GET /api/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	runID := c.Param("run_id")
	if h.store == nil {
		return errorJSON(c, http.StatusNotFound, storage.ErrRunNotFound.Error())
	}
	run, err := h.store.GetRun(c.Request().Context(), runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		return errorJSON(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

// OpenRun creates the view of a run from a catalog pipeline
// POST /api/runs
func (h *Handler) OpenRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req OpenRunRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	if req.RunID != "" {
		if resp, ok := h.existingView(req.RunID); ok {
			return c.JSON(http.StatusOK, resp)
		}
	}

	var stored *storage.Run
	if req.RunID != "" && h.store != nil {
		run, err := h.store.GetRun(ctx, req.RunID)
		switch {
		case err == nil:
			stored = run
		case !errors.Is(err, storage.ErrRunNotFound):
			return errorJSON(c, http.StatusInternalServerError, err.Error())
		}
	}

	pipelineName := req.Pipeline
	if pipelineName == "" && stored != nil {
		pipelineName = stored.PipelineName
	}
	if pipelineName == "" {
		return errorJSON(c, http.StatusBadRequest, "pipeline is required")
	}
	p, err := h.catalog.Get(pipelineName)
	if err != nil {
		return errorJSON(c, http.StatusNotFound, err.Error())
	}

	_, ep, err := plan.LoadPlan(p.PlanPath(h.baseDir))
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	run := monitor.RunInfo{RunID: req.RunID, PipelineName: p.Name, Mode: req.Mode}
	switch {
	case req.Config != nil:
		run.Config = *req.Config
	case stored != nil:
		run.Config = stored.Config
	case p.Config != "":
		data, err := os.ReadFile(p.ConfigPath(h.baseDir))
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("failed to read run config: %v", err))
		}
		run.Config = string(data)
	}
	if run.Mode == "" && stored != nil {
		run.Mode = stored.Mode
	}
	if run.Mode == "" {
		run.Mode = p.ModeOrDefault()
	}

	if stored == nil {
		if h.store != nil {
			record := &storage.Run{
				RunID:        run.RunID,
				PipelineName: run.PipelineName,
				Mode:         run.Mode,
				Status:       storage.StatusObserved,
				Config:       run.Config,
			}
			if err := h.store.SaveRun(ctx, record); err != nil {
				return errorJSON(c, http.StatusInternalServerError, err.Error())
			}
			run.RunID = record.RunID
		} else if run.RunID == "" {
			run.RunID = uuid.NewString()
		}
	}

	if !h.views.Put(h.newFacade(run, ep)) {
		resp, _ := h.existingView(run.RunID)
		return c.JSON(http.StatusOK, resp)
	}
	slog.Info("opened run view", "run_id", run.RunID, "pipeline", run.PipelineName)

	return c.JSON(http.StatusCreated, OpenRunResponse{
		RunID:        run.RunID,
		PipelineName: run.PipelineName,
		Mode:         run.Mode,
		Steps:        ep.Keys(),
		Problems:     ep.Validate(),
	})
}

// existingView describes the live view of runID, if one is open
func (h *Handler) existingView(runID string) (OpenRunResponse, bool) {
	var resp OpenRunResponse
	ok := h.views.With(runID, func(f *monitor.Facade) {
		run := f.Run()
		resp = OpenRunResponse{
			RunID:        run.RunID,
			PipelineName: run.PipelineName,
			Mode:         run.Mode,
			Steps:        f.Plan().Keys(),
			Problems:     f.Plan().Validate(),
		}
	})
	return resp, ok
}

func (h *Handler) newFacade(run monitor.RunInfo, ep *plan.ExecutionPlan) *monitor.Facade {
	var f *monitor.Facade
	opts := []monitor.Option{
		monitor.WithFilterChunk(h.filterChunk),
		monitor.WithListener(h.broker.Forward(run.RunID)),
		monitor.WithListener(func(_ int, batch []events.RunEvent) {
			h.broadcastStatus(f, batch)
		}),
	}
	if h.store != nil {
		opts = append(opts, monitor.WithSubmitter(h.store))
	}
	f = monitor.New(run, ep, opts...)
	return f
}

func (h *Handler) broadcastStatus(f *monitor.Facade, batch []events.RunEvent) {
	steps := make(map[string]status.StepStatus)
	for _, e := range batch {
		if e.IsStepEvent() {
			steps[e.StepKey] = f.Status(e.StepKey)
		}
	}
	if len(steps) == 0 {
		return
	}
	h.broker.Broadcast("status", StatusUpdate{RunID: f.RunID(), Steps: steps})
}

// CloseRun drops the view of a run
// DELETE /api/runs/:run_id
func (h *Handler) CloseRun(c echo.Context) error {
	runID := c.Param("run_id")
	if !h.views.Delete(runID) {
		return viewNotFound(c, runID)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetSteps returns the status of every step, plan steps first
// GET /api/runs/:run_id/steps
func (h *Handler) GetSteps(c echo.Context) error {
	runID := c.Param("run_id")

	var steps []StepResponse
	ok := h.views.With(runID, func(f *monitor.Facade) {
		statuses := f.StepStatuses()
		keys := f.Plan().Keys()
		var extra []string
		for key := range statuses {
			if !slices.Contains(keys, key) {
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)

		steps = make([]StepResponse, 0, len(statuses))
		for _, key := range append(keys, extra...) {
			st := statuses[key]
			resp := StepResponse{StepKey: key, StepStatus: st, DurationMS: st.Duration().Milliseconds()}
			if node, ok := f.Plan().Node(key); ok {
				resp.Solid = node.SolidName()
			}
			steps = append(steps, resp)
		}
	})
	if !ok {
		return viewNotFound(c, runID)
	}
	return c.JSON(http.StatusOK, steps)
}

// GetLogs applies the filter in the query and returns the visible events.
// With a chunked filter a response may be partial; busy is set until a later
// request has caught up with the log.
// GET /api/runs/:run_id/logs?text=&levels=&since=
func (h *Handler) GetLogs(c echo.Context) error {
	runID := c.Param("run_id")

	levels, err := logfilter.ParseLevels(c.QueryParam("levels"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	spec := logfilter.Spec{
		Text:         c.QueryParam("text"),
		Levels:       levels,
		SinceStepKey: c.QueryParam("since"),
	}

	var resp LogsResponse
	ok := h.views.With(runID, func(f *monitor.Facade) {
		f.OnFilterChanged(spec)
		f.Pump(h.filterChunk)
		resp = LogsResponse{Busy: f.Busy(), Total: f.Log().Len(), Events: f.Visible()}
	})
	if !ok {
		return viewNotFound(c, runID)
	}
	return c.JSON(http.StatusOK, resp)
}

// SelectErrorRequest names the step whose failure is highlighted
type SelectErrorRequest struct {
	StepKey string `json:"step_key"`
}

// SelectError highlights the first failure of a step
// POST /api/runs/:run_id/error
func (h *Handler) SelectError(c echo.Context) error {
	runID := c.Param("run_id")

	var req SelectErrorRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.StepKey == "" {
		return errorJSON(c, http.StatusBadRequest, "step_key is required")
	}

	var (
		info  events.ErrorInfo
		found bool
	)
	ok := h.views.With(runID, func(f *monitor.Facade) {
		info, found = f.OnSelectError(req.StepKey)
	})
	if !ok {
		return viewNotFound(c, runID)
	}
	if !found {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("step %q has no recorded failure", req.StepKey))
	}
	return c.JSON(http.StatusOK, monitor.SelectedError{StepKey: req.StepKey, Error: info})
}

// GetSelectedError returns the highlighted failure
// GET /api/runs/:run_id/error
func (h *Handler) GetSelectedError(c echo.Context) error {
	runID := c.Param("run_id")

	var (
		sel   monitor.SelectedError
		found bool
	)
	ok := h.views.With(runID, func(f *monitor.Facade) {
		sel, found = f.SelectedError()
	})
	if !ok {
		return viewNotFound(c, runID)
	}
	if !found {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, sel)
}

// DismissError clears the highlighted failure
// DELETE /api/runs/:run_id/error
func (h *Handler) DismissError(c echo.Context) error {
	runID := c.Param("run_id")
	if !h.views.With(runID, func(f *monitor.Facade) { f.OnDismissError() }) {
		return viewNotFound(c, runID)
	}
	return c.NoContent(http.StatusNoContent)
}

// LayoutRequest sets the split between the plan and log panes
type LayoutRequest struct {
	SplitRatio *float64 `json:"split_ratio"`
}

// SetLayout stores the layout split of a view
// PUT /api/runs/:run_id/layout
func (h *Handler) SetLayout(c echo.Context) error {
	runID := c.Param("run_id")

	var req LayoutRequest
	if err := c.Bind(&req); err != nil || req.SplitRatio == nil {
		return errorJSON(c, http.StatusBadRequest, "split_ratio is required")
	}

	var ratio float64
	ok := h.views.With(runID, func(f *monitor.Facade) {
		f.SetSplitRatio(*req.SplitRatio)
		ratio = f.SplitRatio()
	})
	if !ok {
		return viewNotFound(c, runID)
	}
	return c.JSON(http.StatusOK, map[string]float64{"split_ratio": ratio})
}

// ReexecuteRequest asks to re-run a step of the viewed run
type ReexecuteRequest struct {
	StepKey string `json:"step_key"`
	// From also re-runs every step downstream of StepKey
	From             bool `json:"from"`
	AllowUnpersisted bool `json:"allow_unpersisted"`
}

// Reexecute submits a re-execution of the viewed run
// POST /api/runs/:run_id/reexecute
func (h *Handler) Reexecute(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	var req ReexecuteRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.StepKey == "" {
		return errorJSON(c, http.StatusBadRequest, "step_key is required")
	}
	opts := monitor.ReexecuteOptions{AllowUnpersisted: req.AllowUnpersisted || h.allowUnpersisted}

	var (
		out *monitor.Reexecution
		err error
	)
	ok := h.views.With(runID, func(f *monitor.Facade) {
		if req.From {
			out, err = f.OnReexecuteFromRequested(ctx, req.StepKey, opts)
		} else {
			out, err = f.OnReexecuteRequested(ctx, req.StepKey, opts)
		}
	})
	if !ok {
		return viewNotFound(c, runID)
	}

	var warn *monitor.ArtifactsNotPersistedError
	switch {
	case err == nil:
	case errors.Is(err, plan.ErrStepNotFound):
		return errorJSON(c, http.StatusNotFound, err.Error())
	case errors.As(err, &warn):
		return c.JSON(http.StatusConflict, map[string]any{
			"error":   err.Error(),
			"request": warn.Request,
		})
	case errors.Is(err, monitor.ErrConfigParse):
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, monitor.ErrNoSubmitter):
		return errorJSON(c, http.StatusServiceUnavailable, err.Error())
	default:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	h.broker.Broadcast("reexecution", out)
	return c.JSON(http.StatusCreated, out)
}
