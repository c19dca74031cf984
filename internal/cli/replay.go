package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/kllcore/internal/capability"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/harness"
	"github.com/roach88/kllcore/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - specific session only
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	SessionID    string `json:"session_id"`
	TableName    string `json:"table_name"`
	Ticks        int    `json:"ticks"`
	Actions      int    `json:"actions"`
	Divergence   int    `json:"divergence"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	Match        bool   `json:"match"`

	// First differing actions, when the replay diverged.
	Expected *harness.TraceEvent `json:"expected,omitempty"`
	Actual   *harness.TraceEvent `json:"actual,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions      []ReplaySessionResult `json:"sessions"`
	TotalSessions int                   `json:"total_sessions"`
	AllMatch      bool                  `json:"all_match"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled sessions and verify determinism",
		Long: `Re-run journaled sessions against a fresh engine and compare the
emitted actions, seqs and timestamps included, with the recorded ones.

Each session carries its own tables and engine config, so replay needs
nothing but the database.

Exit codes:
  0 - Every session reproduced exactly
  1 - At least one session diverged
  2 - Command error (database not found, tampered tables, etc.)

Examples:
  kll replay --db ./kll.db
  kll replay --db ./kll.db --session 0190f1c2-...
  kll replay --db ./kll.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay specific session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var ids []string
	if opts.Session != "" {
		ids = []string{opts.Session}
	} else {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
	}

	result := ReplayResult{
		Sessions:      make([]ReplaySessionResult, 0, len(ids)),
		TotalSessions: len(ids),
		AllMatch:      true,
	}

	if len(ids) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found in database.")
		return nil
	}

	for _, id := range ids {
		sessionResult, err := replaySession(ctx, st, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", id), err)
		}
		result.Sessions = append(result.Sessions, sessionResult)
		if !sessionResult.Match {
			result.AllMatch = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replaySession re-runs one recorded session with the standard capabilities.
func replaySession(ctx context.Context, st *store.Store, id string) (ReplaySessionResult, error) {
	rec, err := st.LoadReplay(ctx, id)
	if err != nil {
		return ReplaySessionResult{}, err
	}

	res, err := rec.Replay(
		engine.WithRegistry(capability.Standard()),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return ReplaySessionResult{}, err
	}

	out := ReplaySessionResult{
		SessionID:    id,
		TableName:    rec.Session.TableName,
		Ticks:        res.Ticks,
		Actions:      len(res.Expected),
		Divergence:   res.Divergence,
		ExpectedHash: res.ExpectedHash,
		ActualHash:   res.ActualHash,
		Match:        res.Match(),
	}
	if i := res.Divergence; i >= 0 {
		if i < len(res.Expected) {
			ev := harness.NewTraceEvent(rec.Tables, res.Expected[i])
			out.Expected = &ev
		}
		if i < len(res.Actual) {
			ev := harness.NewTraceEvent(rec.Tables, res.Actual[i])
			out.Actual = &ev
		}
	}
	return out, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllMatch {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeDivergence,
			Message: "replay diverged from the journal",
		}
	}

	if err := encodeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !result.AllMatch {
		return NewExitError(ExitFailure, "replay diverged from the journal")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.Match {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Session: %s (%s)\n", status, s.SessionID, s.TableName)
		fmt.Fprintf(w, "  Ticks: %d, actions: %d\n", s.Ticks, s.Actions)
		if verbose {
			fmt.Fprintf(w, "  Trace hash: %s\n", s.ExpectedHash)
		}

		if !s.Match {
			fmt.Fprintf(w, "  Diverged at action %d\n", s.Divergence)
			if s.Expected != nil {
				fmt.Fprintf(w, "    recorded: %s\n", formatAction(*s.Expected))
			}
			if s.Actual != nil {
				fmt.Fprintf(w, "    replayed: %s\n", formatAction(*s.Actual))
			}
		}
		fmt.Fprintln(w)
	}

	if result.AllMatch {
		fmt.Fprintln(w, "✓ All sessions replayed identically")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay diverged from the journal")
	return NewExitError(ExitFailure, "replay diverged from the journal")
}
