package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"runwatch/events"
	"runwatch/monitor"
)

// AppendEvents appends a batch to the log of a run view. The body is a JSON
// array of events, or one event per line with Content-Type
// application/x-ndjson.
// POST /api/runs/:run_id/events
func (h *Handler) AppendEvents(c echo.Context) error {
	runID := c.Param("run_id")

	var batch []events.RunEvent
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), "application/x-ndjson") {
		decoded, err := events.ReadJSONL(c.Request().Body)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
		batch = decoded
	} else {
		if err := json.NewDecoder(c.Request().Body).Decode(&batch); err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid request body")
		}
		if err := events.Normalize(batch); err != nil {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
	}

	var total int
	ok := h.views.With(runID, func(f *monitor.Facade) {
		f.OnLogAppended(batch...)
		total = f.Log().Len()
	})
	if !ok {
		return viewNotFound(c, runID)
	}
	return c.JSON(http.StatusAccepted, map[string]int{
		"appended": len(batch),
		"total":    total,
	})
}

// StreamEvents streams log batches, status changes and re-executions of all
// run views as Server-Sent Events
// GET /api/events
func (h *Handler) StreamEvents(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := make(chan string, 10)
	h.broker.Register(client)
	defer h.broker.Unregister(client)

	fmt.Fprint(w, "event: connected\ndata: {\"message\": \"Connected to runwatch events\"}\n\n")
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case message, ok := <-client:
			if !ok {
				return nil
			}
			fmt.Fprint(w, message)
			w.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}
