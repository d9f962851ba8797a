// Package api exposes run views over HTTP.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"runwatch/events"
	"runwatch/metrics"
	"runwatch/plan"
	"runwatch/storage"
)

// Options configures a Handler
type Options struct {
	Storage *storage.Storage
	Broker  *events.Broker
	Catalog *plan.Catalog
	// BaseDir resolves relative catalog paths
	BaseDir          string
	FilterChunk      int
	AllowUnpersisted bool
}

// Handler handles HTTP requests
type Handler struct {
	store            *storage.Storage
	broker           *events.Broker
	catalog          *plan.Catalog
	baseDir          string
	filterChunk      int
	allowUnpersisted bool
	views            *Views
}

// NewHandler creates a handler over views
func NewHandler(views *Views, opts Options) *Handler {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = &plan.Catalog{}
	}
	broker := opts.Broker
	if broker == nil {
		broker = events.NewBroker()
	}
	return &Handler{
		store:            opts.Storage,
		broker:           broker,
		catalog:          catalog,
		baseDir:          opts.BaseDir,
		filterChunk:      opts.FilterChunk,
		allowUnpersisted: opts.AllowUnpersisted,
		views:            views,
	}
}

// RegisterRoutes registers routes with the echo server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/pipelines", h.ListPipelines)

	e.GET("/api/runs", h.ListRuns)
	e.POST("/api/runs", h.OpenRun)
	e.GET("/api/runs/:run_id", h.GetRun)
	e.DELETE("/api/runs/:run_id", h.CloseRun)

	// run view
	e.GET("/api/runs/:run_id/steps", h.GetSteps)
	e.GET("/api/runs/:run_id/logs", h.GetLogs)
	e.POST("/api/runs/:run_id/events", h.AppendEvents)
	e.GET("/api/runs/:run_id/error", h.GetSelectedError)
	e.POST("/api/runs/:run_id/error", h.SelectError)
	e.DELETE("/api/runs/:run_id/error", h.DismissError)
	e.PUT("/api/runs/:run_id/layout", h.SetLayout)
	e.POST("/api/runs/:run_id/reexecute", h.Reexecute)

	e.GET("/api/events", h.StreamEvents)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/health", h.Health)
}

// Health returns health status
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "healthy",
		"views":  h.views.Len(),
	})
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

func viewNotFound(c echo.Context, runID string) error {
	return errorJSON(c, http.StatusNotFound, "no view open for run "+runID)
}
