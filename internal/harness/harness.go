package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/kllcore/internal/capability"
	"github.com/roach88/kllcore/internal/compiler"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

// Option configures a scenario run.
type Option func(*runner)

// WithLogger routes engine logs; by default they are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		r.logger = l
	}
}

// WithRegistry replaces the standard capability set.
func WithRegistry(reg *engine.Registry) Option {
	return func(r *runner) {
		r.registry = reg
	}
}

type runner struct {
	logger   *slog.Logger
	registry *engine.Registry
}

// Run executes a scenario on a fresh engine and evaluates its assertions.
//
// Execution flow:
//  1. Load the scenario's tables
//  2. Build an engine with the scenario config and the standard capabilities
//  3. For each tick, push its events and tick at its time
//  4. Collect the trace from the journal and snapshot the final state
//  5. Evaluate assertions
//
// An error is returned only when the scenario cannot run; assertion
// failures are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	ts, err := compiler.Load(scenario.Tables)
	if err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}
	return RunTables(scenario, ts, opts...)
}

// RunTables executes a scenario against already loaded tables.
func RunTables(scenario *Scenario, ts *ir.TableSet, opts ...Option) (*Result, error) {
	r := &runner{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: capability.Standard(),
	}
	for _, opt := range opts {
		opt(r)
	}

	cfg := scenario.Config
	cfg.ApplyDefaults()

	journal := engine.NewMemoryJournal()
	eng := engine.New(
		engine.WithConfig(cfg),
		engine.WithRegistry(r.registry),
		engine.WithLogger(r.logger),
		engine.WithJournal(journal),
	)
	if err := eng.Load(ts); err != nil {
		return nil, fmt.Errorf("failed to load tables into engine: %w", err)
	}

	result := NewResult()
	result.TableHash = eng.TableHash()

	for i, tick := range scenario.Ticks {
		now := time.Duration(tick.AtMS) * time.Millisecond
		for j, ev := range tick.Events {
			if err := push(eng, ev, now); err != nil {
				var engErr *engine.Error
				if !errors.As(err, &engErr) {
					return nil, fmt.Errorf("ticks[%d].events[%d]: %w", i, j, err)
				}
				result.Rejected = append(result.Rejected, string(engErr.Code))
				r.logger.Debug("event rejected", "tick", i, "event", j, "code", engErr.Code)
			}
		}
		eng.Tick(now)
		eng.DrainActions()
	}

	for _, a := range journal.Actions() {
		result.Trace = append(result.Trace, NewTraceEvent(ts, a))
	}
	result.State = snapshot(eng, ts)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func push(eng *engine.Engine, ev EventStep, now time.Duration) error {
	at := now
	if ev.AtMS != nil {
		at = time.Duration(*ev.AtMS) * time.Millisecond
	}
	edge := ir.EdgeKind(ev.Edge)
	if ev.Board != nil {
		return eng.PushLocal(*ev.Board, ir.ScanCode(ev.Scan), edge, at, ev.Value)
	}
	return eng.Push(ir.InputEvent{ScanCode: ir.ScanCode(ev.Scan), Edge: edge, Time: at, Value: ev.Value})
}

// NewTraceEvent names an action through the tables that produced it.
func NewTraceEvent(ts *ir.TableSet, a ir.Action) TraceEvent {
	params := make([]int32, a.NParams)
	copy(params, a.Args())
	return TraceEvent{
		Seq:        a.Seq,
		AtMS:       a.Time.Milliseconds(),
		Trigger:    ts.Triggers[a.Trigger].Name,
		Result:     ts.Results[a.Result].Name,
		Capability: a.Name,
		Phase:      string(a.Phase),
		Params:     params,
	}
}

func snapshot(eng *engine.Engine, ts *ir.TableSet) FinalState {
	st := FinalState{Layers: []string{}, Records: make(map[string]string, len(ts.Triggers))}
	for _, id := range eng.Layers() {
		st.Layers = append(st.Layers, ts.Layers[id].Name)
	}
	for i, trig := range ts.Triggers {
		if rec, ok := eng.Record(i); ok {
			st.Records[trig.Name] = rec.Status.String()
		}
	}
	st.Stats = eng.Stats()
	return st
}
