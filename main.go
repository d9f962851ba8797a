package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"runwatch/cmd"
)

const usage = `usage: runwatch <command> [flags]

commands:
  replay     -plan FILE -events FILE [-log] [-text S] [-levels L] [-since STEP]
  reexecute  -pipeline NAME -run RUN_ID -step STEP [-from] [-allow-unpersisted] [-config FILE]
  serve      [-config FILE]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command, args := os.Args[1], os.Args[2:]
	var err error
	switch command {
	case "replay":
		err = replay(args)
	case "reexecute":
		err = reexecute(args)
	case "serve":
		err = serve(args)
	default:
		fmt.Fprintln(os.Stderr, "Unknown command:", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func replay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	var opts cmd.ReplayOptions
	fs.StringVar(&opts.PlanPath, "plan", "plan.yml", "execution plan file")
	fs.StringVar(&opts.EventsPath, "events", "events.jsonl", "recorded events, one JSON object per line")
	fs.BoolVar(&opts.ShowLog, "log", false, "print the filtered log")
	fs.StringVar(&opts.Text, "text", "", "only log lines containing this text")
	fs.StringVar(&opts.Levels, "levels", "", "comma separated levels to show")
	fs.StringVar(&opts.Since, "since", "", "only log lines from the start of this step")
	fs.Parse(args)
	return cmd.Replay(os.Stdout, opts)
}

func reexecute(args []string) error {
	fs := flag.NewFlagSet("reexecute", flag.ExitOnError)
	var opts cmd.ReexecuteOptions
	fs.StringVar(&opts.ConfigPath, "config", "", "runwatch config file")
	fs.StringVar(&opts.Pipeline, "pipeline", "", "pipeline name from the catalog")
	fs.StringVar(&opts.RunID, "run", "", "id of the run to re-execute")
	fs.StringVar(&opts.StepKey, "step", "", "step key to re-execute")
	fs.BoolVar(&opts.From, "from", false, "also re-execute every downstream step")
	fs.BoolVar(&opts.AllowUnpersisted, "allow-unpersisted", false, "submit even when artifacts are not persisted")
	fs.Parse(args)
	return cmd.Reexecute(context.Background(), os.Stdout, opts)
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "runwatch config file")
	fs.Parse(args)
	return cmd.Serve(*configPath)
}
