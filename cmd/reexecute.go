package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"runwatch/config"
	"runwatch/monitor"
	"runwatch/plan"
	"runwatch/storage"
)

// ReexecuteOptions configures the 'reexecute' command
type ReexecuteOptions struct {
	ConfigPath string
	Pipeline   string
	RunID      string
	StepKey    string
	// From also re-runs every step downstream of StepKey
	From             bool
	AllowUnpersisted bool
}

// Reexecute submits a re-execution of a step of a previous run to the
// submission store
func Reexecute(ctx context.Context, w io.Writer, opts ReexecuteOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	catalog, err := plan.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	p, err := catalog.Get(opts.Pipeline)
	if err != nil {
		return err
	}
	baseDir := catalogBaseDir(cfg)
	_, ep, err := plan.LoadPlan(p.PlanPath(baseDir))
	if err != nil {
		return err
	}

	run := monitor.RunInfo{RunID: opts.RunID, PipelineName: p.Name, Mode: p.ModeOrDefault()}
	if p.Config != "" {
		data, err := os.ReadFile(p.ConfigPath(baseDir))
		if err != nil {
			return fmt.Errorf("failed to read run config: %w", err)
		}
		run.Config = string(data)
	}

	store, err := openStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	f := monitor.New(run, ep, monitor.WithSubmitter(store))
	reopts := monitor.ReexecuteOptions{AllowUnpersisted: opts.AllowUnpersisted || cfg.Views.AllowUnpersisted}

	var out *monitor.Reexecution
	if opts.From {
		out, err = f.OnReexecuteFromRequested(ctx, opts.StepKey, reopts)
	} else {
		out, err = f.OnReexecuteRequested(ctx, opts.StepKey, reopts)
	}

	var warn *monitor.ArtifactsNotPersistedError
	if errors.As(err, &warn) {
		fmt.Fprintf(w, "⚠️  %v\n", warn)
		fmt.Fprintln(w, "   rerun with -allow-unpersisted to submit anyway")
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "🚀 Submitted run %s\n", out.RunID)
	fmt.Fprintf(w, "   steps:  %v\n", out.Submission.Request.StepKeys)
	for _, h := range out.Submission.Request.ReusedOutputs {
		fmt.Fprintf(w, "   reuses: %s.%s from %s\n", h.StepKey, h.OutputName, opts.RunID)
	}
	return nil
}

func catalogBaseDir(cfg *config.Config) string {
	if cfg.Catalog.BaseDir != "" {
		return cfg.Catalog.BaseDir
	}
	return filepath.Dir(cfg.Catalog.Path)
}

// openStorage creates the data directory and opens the submission store
func openStorage(path string) (*storage.Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := storage.NewStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}
