package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kllcore/internal/capability"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/harness"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Step time.Duration // time between consecutive events
}

// EvalStep is one evaluated event and the actions it produced.
type EvalStep struct {
	Event   string               `json:"event"`
	AtMS    int64                `json:"at_ms"`
	Actions []harness.TraceEvent `json:"actions"`
	Error   string               `json:"error,omitempty"`
}

// EvalResult holds every evaluated event and the final layer stack.
type EvalResult struct {
	Steps  []EvalStep `json:"steps"`
	Layers []string   `json:"layers"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <tables> <event>...",
		Short: "Evaluate events immediately and show what each produced",
		Long: `Evaluate a short event sequence against a fresh engine, one event at
a time, and show the actions each event produced.

Events bypass the queue and the end-of-tick passes, so combo expiry,
hold release checks and repeats do not run. Use run or test for those.

Example:
  kll eval ./layout press:8 press:1 release:1 release:8
  kll eval ./layout --step 100ms press:6 press:7`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Step, "step", 10*time.Millisecond, "time between consecutive events")

	return cmd
}

func runEval(opts *EvalOptions, tablesPath string, events []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	specs := make([]EventSpec, len(events))
	for i, s := range events {
		spec, err := ParseEvent(s)
		if err != nil {
			_ = formatter.Error(ErrCodeBadEvent, err.Error(), nil)
			return WrapExitError(ExitCommandError, "bad event", err)
		}
		if spec.Board >= 0 {
			err := fmt.Errorf("event %q: eval takes global scan codes", s)
			_ = formatter.Error(ErrCodeBadEvent, err.Error(), nil)
			return WrapExitError(ExitCommandError, "bad event", err)
		}
		specs[i] = spec
	}

	ts, err := LoadValidTables(tablesPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		}
		return WrapExitError(ExitCommandError, "failed to load tables", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(formatter.GetErrWriter(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	eng := engine.New(
		engine.WithRegistry(capability.Standard()),
		engine.WithLogger(logger),
	)
	if err := eng.Load(ts); err != nil {
		return WrapExitError(ExitCommandError, "engine rejected tables", err)
	}

	result := EvalResult{Steps: make([]EvalStep, 0, len(specs)), Layers: []string{}}
	for i, spec := range specs {
		at := time.Duration(i) * opts.Step
		step := EvalStep{Event: spec.String(), AtMS: at.Milliseconds(), Actions: []harness.TraceEvent{}}

		ev := spec.InputEvent(at)
		if err := eng.ProcessEvent(ev); err != nil {
			step.Error = err.Error()
		}
		for _, a := range eng.DrainActions() {
			step.Actions = append(step.Actions, harness.NewTraceEvent(ts, a))
		}
		result.Steps = append(result.Steps, step)
	}
	for _, id := range eng.Layers() {
		result.Layers = append(result.Layers, ts.Layers[id].Name)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, step := range result.Steps {
		fmt.Fprintf(w, "%s @%dms\n", step.Event, step.AtMS)
		if step.Error != "" {
			fmt.Fprintf(w, "  ✗ %s\n", step.Error)
		}
		for _, a := range step.Actions {
			fmt.Fprintf(w, "  %s\n", formatAction(a))
		}
	}
	fmt.Fprintf(w, "\nActive layers: %v\n", result.Layers)
	return nil
}
