package cmd

import (
	"fmt"
	"io"
	"strings"

	"runwatch/events"
	"runwatch/logfilter"
	"runwatch/monitor"
	"runwatch/plan"
	"runwatch/status"
)

// ReplayOptions configures the 'replay' command
type ReplayOptions struct {
	PlanPath   string
	EventsPath string
	// Text, Levels and Since filter the printed log; Levels is a comma
	// separated list
	Text   string
	Levels string
	Since  string
	// ShowLog prints the filtered log after the step summary
	ShowLog bool
}

// Replay folds a recorded event log over its plan and prints step statuses
func Replay(w io.Writer, opts ReplayOptions) error {
	file, ep, err := plan.LoadPlan(opts.PlanPath)
	if err != nil {
		return err
	}
	batch, err := events.LoadJSONL(opts.EventsPath)
	if err != nil {
		return err
	}
	levels, err := logfilter.ParseLevels(opts.Levels)
	if err != nil {
		return err
	}

	for _, p := range ep.Validate() {
		fmt.Fprintf(w, "⚠️  %s\n", p)
	}

	f := monitor.New(monitor.RunInfo{PipelineName: file.Pipeline}, ep)
	f.OnLogAppended(batch...)

	fmt.Fprintf(w, "📦 Pipeline: %s (%d steps, %d events)\n", file.Pipeline, ep.Len(), len(batch))
	statuses := f.StepStatuses()
	for _, key := range ep.Keys() {
		printStep(w, key, statuses[key])
	}

	if opts.ShowLog {
		f.OnFilterChanged(logfilter.Spec{Text: opts.Text, Levels: levels, SinceStepKey: opts.Since})
		f.Pump(0)
		fmt.Fprintln(w)
		for _, e := range f.Visible() {
			printEvent(w, e)
		}
	}
	return nil
}

func printStep(w io.Writer, key string, st status.StepStatus) {
	switch st.State {
	case status.StateSucceeded:
		fmt.Fprintf(w, "✅ Done: %s (%s)\n", key, st.Duration())
	case status.StateFailed:
		msg := ""
		if st.LastError != nil {
			msg = st.LastError.Message
		}
		fmt.Fprintf(w, "❌ Step failed: %s: %s\n", key, msg)
	case status.StateSkipped:
		fmt.Fprintf(w, "⏭️  Skipped: %s\n", key)
	case status.StateStarted:
		fmt.Fprintln(w, "→", key)
	default:
		fmt.Fprintf(w, "   Waiting: %s\n", key)
	}
	for _, out := range st.Outputs {
		fmt.Fprintf(w, "     %s %s\n", out.OutputName, out.Path)
	}
}

func printEvent(w io.Writer, e events.RunEvent) {
	step := ""
	if e.StepKey != "" {
		step = " [" + e.StepKey + "]"
	}
	fmt.Fprintf(w, "%s %-8s%s %s\n",
		e.Timestamp.Format("15:04:05"), e.Level, step, strings.TrimSpace(e.Message))
}
