package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/kllcore/internal/capability"
	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/harness"
	"github.com/roach88/kllcore/internal/ir"
	"github.com/roach88/kllcore/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Database string
	Watch    bool

	// TimeSource overrides the engine clock (for testing).
	// If nil, defaults to engine.NewMonotonicTime().
	TimeSource engine.TimeSource
}

// RunSummary is printed when the input ends.
type RunSummary struct {
	Tables    string               `json:"tables"`
	TableHash string               `json:"table_hash"`
	Actions   []harness.TraceEvent `json:"actions"`
	Rejected  int                  `json:"rejected"`
	Stats     engine.Stats         `json:"stats"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [tables]",
		Short: "Run the engine on events read from stdin",
		Long: `Run the trigger engine, reading one input event per line from stdin
and printing every action as it is emitted.

Event lines look like "press 4", "release 4", "rotation 10 -1" or
"press 1/4" (board 1, local scan code 4). Blank lines and lines starting
with # are skipped. The engine stops at end of input or on Ctrl-C.

With --db every tick that saw input or produced output is journaled to
SQLite under a new session, which replay and trace can read back.

Example:
  kll run ./layout < events.txt
  kll run --config kll.toml --db ./kll.db ./layout
  kll run --watch ./layout`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tablesPath := ""
			if len(args) == 1 {
				tablesPath = args[0]
			}
			return runEngine(opts, tablesPath, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to a YAML or TOML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal to this SQLite database")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload the tables when they change")

	return cmd
}

func runEngine(opts *RunOptions, tablesPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	cfg, err := config.LoadOrDefault(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if tablesPath == "" {
		tablesPath = cfg.Tables.Path
	}
	if tablesPath == "" {
		return NewExitError(ExitCommandError, "no tables: pass a path or set tables.path in the config")
	}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Journal.Path
	}
	watch := opts.Watch || cfg.Tables.Watch
	if watch && dbPath != "" {
		return NewExitError(ExitCommandError, "--watch cannot be combined with a journal: a session replays against one table set")
	}

	ts, err := LoadValidTables(tablesPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load tables", err)
	}
	logger.Info("tables loaded", "path", tablesPath, "name", ts.Name, "triggers", len(ts.Triggers))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	timeSource := opts.TimeSource
	if timeSource == nil {
		timeSource = engine.NewMonotonicTime()
	}
	engOpts := []engine.Option{
		engine.WithConfig(cfg.Engine),
		engine.WithRegistry(capability.Standard()),
		engine.WithLogger(logger),
		engine.WithTimeSource(timeSource),
	}

	var sessionID string
	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		sess, err := store.NewSession(ts, cfg.Engine)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create session", err)
		}
		journal, err := st.StartSession(ctx, sess)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start session", err)
		}
		sessionID = journal.SessionID()
		engOpts = append(engOpts, engine.WithJournal(journal))
		logger.Info("journaling", "db", dbPath, "session", sessionID)
	}

	eng := engine.New(engOpts...)
	if err := eng.Load(ts); err != nil {
		return WrapExitError(ExitCommandError, "engine rejected tables", err)
	}

	if watch {
		w := config.NewTableWatcher(tablesPath, LoadValidTables)
		w.OnChange(func(next *ir.TableSet) {
			if err := eng.RequestReload(next); err != nil {
				logger.Warn("reload rejected", "error", err)
				return
			}
			logger.Info("tables reloaded", "name", next.Name)
		})
		if err := w.Start(); err != nil {
			return WrapExitError(ExitCommandError, "failed to watch tables", err)
		}
		defer w.Close()

		go func() {
			for {
				select {
				case err := <-w.Errors():
					logger.Warn("tables reload failed", "error", err)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	summary := RunSummary{Tables: tablesPath, TableHash: eng.TableHash(), Actions: []harness.TraceEvent{}}
	emit := func(acts []ir.Action) {
		tables := eng.Tables()
		for _, a := range acts {
			ev := harness.NewTraceEvent(tables, a)
			if opts.Format == "json" {
				summary.Actions = append(summary.Actions, ev)
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatAction(ev))
		}
	}

	// Run ticks and the printer drains until input ends.
	loopCtx, stopLoop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := eng.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine error", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-eng.Actions():
				emit(eng.DrainActions())
			}
		}
	}()

	summary.Rejected = feedEvents(ctx, eng, cmd.InOrStdin(), timeSource, logger)

	stopLoop()
	wg.Wait()
	eng.Tick(timeSource.Now())
	emit(eng.DrainActions())
	summary.Stats = eng.Stats()

	return outputRunSummary(cmd, opts, summary, sessionID)
}

// feedEvents pushes one event per input line until EOF or ctx is done.
// Returns the number of lines that could not be queued.
func feedEvents(ctx context.Context, eng *engine.Engine, in io.Reader, timeSource engine.TimeSource, logger *slog.Logger) int {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	rejected := 0
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return rejected
		case line, ok = <-lines:
			if !ok {
				return rejected
			}
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		spec, err := ParseEvent(line)
		if err != nil {
			rejected++
			logger.Warn("skipping input line", "error", err)
			continue
		}
		if err := pushEvent(eng, spec, timeSource); err != nil {
			rejected++
			logger.Warn("event rejected", "event", spec.String(), "error", err)
		}
	}
}

func pushEvent(eng *engine.Engine, spec EventSpec, timeSource engine.TimeSource) error {
	now := timeSource.Now()
	if spec.Board >= 0 {
		return eng.PushLocal(spec.Board, spec.Scan, spec.Edge, now, spec.Value)
	}
	return eng.Push(spec.InputEvent(now))
}

func outputRunSummary(cmd *cobra.Command, opts *RunOptions, summary RunSummary, sessionID string) error {
	if opts.Format == "json" {
		return encodeJSON(cmd.OutOrStdout(), CLIResponse{
			Status:    "ok",
			Data:      summary,
			SessionID: sessionID,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Processed %d event(s), emitted %d action(s) in %d tick(s)\n",
		summary.Stats.EventsProcessed, summary.Stats.ActionsEmitted, summary.Stats.Ticks)
	if summary.Rejected > 0 {
		fmt.Fprintf(w, "Rejected %d input line(s)\n", summary.Rejected)
	}
	if sessionID != "" {
		fmt.Fprintf(w, "Session: %s\n", sessionID)
	}
	return nil
}
