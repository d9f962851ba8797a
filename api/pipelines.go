package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"runwatch/plan"
)

// PipelineResponse is a catalog entry with its validation state and run
// counts
type PipelineResponse struct {
	plan.Pipeline
	Valid        bool   `json:"valid"`
	Error        string `json:"error,omitempty"`
	Runs         int    `json:"runs"`
	Reexecutions int    `json:"reexecutions"`
}

// ListPipelines returns the configured pipelines
// GET /api/pipelines
func (h *Handler) ListPipelines(c echo.Context) error {
	counts := map[string][2]int{}
	if h.store != nil {
		stats, err := h.store.GetPipelineStats(c.Request().Context())
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, err.Error())
		}
		for _, st := range stats {
			counts[st.PipelineName] = [2]int{st.Runs, st.Reexecutions}
		}
	}

	pipelines := make([]PipelineResponse, 0, len(h.catalog.Pipelines))
	for _, p := range h.catalog.Pipelines {
		pr := PipelineResponse{Pipeline: p, Valid: true}
		if err := p.Validate(h.baseDir); err != nil {
			pr.Valid = false
			pr.Error = err.Error()
		}
		pr.Runs, pr.Reexecutions = counts[p.Name][0], counts[p.Name][1]
		pipelines = append(pipelines, pr)
	}
	return c.JSON(http.StatusOK, pipelines)
}
