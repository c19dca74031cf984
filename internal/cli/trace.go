package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/kllcore/internal/compiler"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/harness"
	"github.com/roach88/kllcore/internal/ir"
	"github.com/roach88/kllcore/internal/queryir"
	"github.com/roach88/kllcore/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Session    string // optional - defaults to the latest session
	List       bool   // list sessions instead

	// Filters; any of them switches the timeline to a filtered read.
	Capability string
	Phase      string
	Trigger    string
	Scan       int   // -1 for any
	FromSeq    int64 // 0 for unbounded
	ToSeq      int64 // 0 for unbounded
}

// filtered reports whether any timeline filter is set.
func (o *TraceOptions) filtered() bool {
	return o.actionFiltered() || o.Scan >= 0 || o.FromSeq > 0 || o.ToSeq > 0
}

func (o *TraceOptions) actionFiltered() bool {
	return o.Capability != "" || o.Phase != "" || o.Trigger != ""
}

// TraceEntry is one journaled input event or action.
type TraceEntry struct {
	Seq  int64  `json:"seq"`
	Tick int64  `json:"tick,omitempty"`
	AtMS int64  `json:"at_ms"`
	Kind string `json:"kind"` // "event" or "action"

	// Events
	Scan  *int   `json:"scan,omitempty"`
	Edge  string `json:"edge,omitempty"`
	Value int32  `json:"value,omitempty"`

	// Actions
	Action *harness.TraceEvent `json:"action,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	SessionID string       `json:"session_id"`
	TableName string       `json:"table_name"`
	TableHash string       `json:"table_hash"`
	Timeline  []TraceEntry `json:"timeline"`
	Stats     TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Ticks   int   `json:"ticks"`
	Events  int   `json:"events"`
	Actions int   `json:"actions"`
	LastSeq int64 `json:"last_seq"`
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	ID        string `json:"id"`
	TableName string `json:"table_name"`
	TableHash string `json:"table_hash"`
	Version   string `json:"version"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show what a journaled session saw and did",
		Long: `Show the journaled timeline of a session: every input event and every
action in seq order, named through the session's own tables.

The output includes:
- Timeline: events and actions, grouped by tick
- Stats: tick, event and action counts and the last seq

Filters narrow the timeline. --capability, --phase and --trigger keep
only matching actions; --scan keeps only events on that scan code;
--from-seq and --to-seq bound both. A filtered timeline is not grouped
by tick.

Examples:
  kll trace --db ./kll.db --list
  kll trace --db ./kll.db
  kll trace --db ./kll.db --session 0190f1c2-... --capability hid.keyboard
  kll trace --db ./kll.db --trigger fn --phase release
  kll trace --db ./kll.db --scan 4 --from-seq 100 --to-seq 200
  kll trace --db ./kll.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Capability, "capability", "", "show only actions of this capability")
	cmd.Flags().StringVar(&opts.Phase, "phase", "", "show only actions of this phase (press|repeat|release)")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "show only actions fired by this trigger")
	cmd.Flags().IntVar(&opts.Scan, "scan", -1, "show only events on this scan code")
	cmd.Flags().Int64Var(&opts.FromSeq, "from-seq", 0, "first seq to show")
	cmd.Flags().Int64Var(&opts.ToSeq, "to-seq", 0, "last seq to show")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.List {
		return listSessions(ctx, st, opts, cmd)
	}

	var sess store.Session
	if opts.Session != "" {
		sess, err = st.ReadSession(ctx, opts.Session)
	} else {
		sess, err = st.LatestSession(ctx)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, "session not found")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	ts, err := compiler.DecodeTables(sess.Tables)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode session tables", err)
	}

	result := TraceResult{
		SessionID: sess.ID,
		TableName: sess.TableName,
		TableHash: sess.TableHash,
		Timeline:  []TraceEntry{},
	}

	if opts.filtered() {
		if err := filteredTimeline(ctx, st, ts, opts, &result); err != nil {
			return err
		}
	} else {
		ticks, err := st.ReadTicks(ctx, sess.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read ticks", err)
		}
		result.Timeline = buildTimeline(ts, ticks)
		result.Stats.Ticks = len(ticks)
		for _, t := range ticks {
			result.Stats.Events += len(t.Events)
			result.Stats.Actions += len(t.Actions)
		}
	}

	if result.Stats.LastSeq, err = st.GetLastSeq(ctx, sess.ID); err != nil {
		return WrapExitError(ExitCommandError, "failed to read last seq", err)
	}

	if opts.Format == "json" {
		return encodeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, SessionID: sess.ID})
	}
	return outputTraceText(cmd.OutOrStdout(), result)
}

// journalFilters turns the filter flags into event and action predicates.
// A nil slice result means that kind of row is left out entirely.
func journalFilters(opts *TraceOptions, ts *ir.TableSet) (events, actions []queryir.Predicate, err error) {
	if opts.Scan >= 0 && opts.actionFiltered() {
		return nil, nil, errors.New("--scan selects events and cannot be combined with action filters")
	}
	var seq []queryir.Predicate
	if opts.FromSeq > 0 || opts.ToSeq > 0 {
		hi := opts.ToSeq
		if hi == 0 {
			hi = math.MaxInt64
		}
		seq = append(seq, queryir.Between{Field: "seq", Lo: opts.FromSeq, Hi: hi})
	}

	if opts.Scan < 0 {
		actions = append([]queryir.Predicate{}, seq...)
		if opts.Capability != "" {
			actions = append(actions, queryir.Equals{Field: "name", Value: opts.Capability})
		}
		if opts.Phase != "" {
			switch p := ir.Phase(opts.Phase); p {
			case ir.PhasePress, ir.PhaseRepeat, ir.PhaseRelease:
				actions = append(actions, queryir.Equals{Field: "phase", Value: p})
			default:
				return nil, nil, fmt.Errorf("unknown phase %q", opts.Phase)
			}
		}
		if opts.Trigger != "" {
			id := slices.IndexFunc(ts.Triggers, func(t ir.TriggerMacro) bool { return t.Name == opts.Trigger })
			if id < 0 {
				return nil, nil, fmt.Errorf("unknown trigger %q", opts.Trigger)
			}
			actions = append(actions, queryir.Equals{Field: "trigger_id", Value: id})
		}
	}

	if !opts.actionFiltered() {
		events = append([]queryir.Predicate{}, seq...)
		if opts.Scan >= 0 {
			events = append(events, queryir.Equals{Field: "scan_code", Value: opts.Scan})
		}
	}
	return events, actions, nil
}

// filteredTimeline reads the matching rows and merges them by seq.
func filteredTimeline(ctx context.Context, st *store.Store, ts *ir.TableSet, opts *TraceOptions, result *TraceResult) error {
	eventFilter, actionFilter, err := journalFilters(opts, ts)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	var rec engine.TickRecord
	if eventFilter != nil {
		rec.Events, err = st.QueryInputEvents(ctx, result.SessionID, queryir.And{Predicates: eventFilter})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
	}
	if actionFilter != nil {
		rec.Actions, err = st.QueryActions(ctx, result.SessionID, queryir.And{Predicates: actionFilter})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read actions", err)
		}
	}

	// Tick 0: rows of a filtered read are not grouped by tick.
	result.Timeline = buildTimeline(ts, []engine.TickRecord{rec})
	if result.Timeline == nil {
		result.Timeline = []TraceEntry{}
	}
	result.Stats.Events = len(rec.Events)
	result.Stats.Actions = len(rec.Actions)
	return nil
}

// buildTimeline merges each tick's events and actions in seq order.
func buildTimeline(ts *ir.TableSet, ticks []engine.TickRecord) []TraceEntry {
	var timeline []TraceEntry
	for _, t := range ticks {
		i, j := 0, 0
		for i < len(t.Events) || j < len(t.Actions) {
			if j == len(t.Actions) || (i < len(t.Events) && t.Events[i].Seq < t.Actions[j].Seq) {
				ev := t.Events[i]
				scan := int(ev.ScanCode)
				timeline = append(timeline, TraceEntry{
					Seq:   ev.Seq,
					Tick:  t.Tick,
					AtMS:  ev.Time.Milliseconds(),
					Kind:  "event",
					Scan:  &scan,
					Edge:  string(ev.Edge),
					Value: ev.Value,
				})
				i++
				continue
			}
			timeline = append(timeline, actionEntry(ts, t.Tick, t.Actions[j]))
			j++
		}
	}
	return timeline
}

func actionEntry(ts *ir.TableSet, tick int64, a ir.Action) TraceEntry {
	ev := harness.NewTraceEvent(ts, a)
	return TraceEntry{
		Seq:    a.Seq,
		Tick:   tick,
		AtMS:   ev.AtMS,
		Kind:   "action",
		Action: &ev,
	}
}

func listSessions(ctx context.Context, st *store.Store, opts *TraceOptions, cmd *cobra.Command) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	out := make([]SessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = SessionSummary{ID: s.ID, TableName: s.TableName, TableHash: s.TableHash, Version: s.Version}
	}

	if opts.Format == "json" {
		return encodeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: out})
	}

	w := cmd.OutOrStdout()
	if len(out) == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}
	for _, s := range out {
		fmt.Fprintf(w, "%s  %s  %s\n", s.ID, s.TableName, truncateHash(s.TableHash))
	}
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) error {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.SessionID)
	fmt.Fprintf(w, "Tables: %s (%s)\n", result.TableName, truncateHash(result.TableHash))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	var tick int64 = -1
	for _, e := range result.Timeline {
		if e.Tick != 0 && e.Tick != tick {
			tick = e.Tick
			fmt.Fprintf(w, "  tick %d\n", tick)
		}
		switch e.Kind {
		case "event":
			value := ""
			if e.Value != 0 {
				value = fmt.Sprintf(" %d", e.Value)
			}
			fmt.Fprintf(w, "    [%d] %dms %s %d%s\n", e.Seq, e.AtMS, e.Edge, *e.Scan, value)
		case "action":
			fmt.Fprintf(w, "    %s\n", formatAction(*e.Action))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Ticks:    %d\n", result.Stats.Ticks)
	fmt.Fprintf(w, "  Events:   %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Actions:  %d\n", result.Stats.Actions)
	fmt.Fprintf(w, "  Last seq: %d\n", result.Stats.LastSeq)
	return nil
}

// truncateHash shortens a hash for display.
func truncateHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:8] + "..." + h[len(h)-8:]
}
