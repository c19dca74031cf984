package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/kllcore/internal/compiler"
	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/ir"
)

// Engine is one independent trigger-evaluation context.
//
// Thread-safety model:
//   - Push, PushLocal, PopAction, DrainActions, Stats: safe from any goroutine
//   - Tick, ProcessEvent, Load: serialized by the tick lock
//   - RequestReload: safe from any goroutine; applied by the next Tick
//   - Run: at most one goroutine
//
// INVARIANTS:
//   - exactly one record per trigger macro, sized at load
//   - records and layer stack are only replaced whole, under the tick lock
//   - events are evaluated in arrival order, candidates in table order
type Engine struct {
	cfg        config.Engine
	registry   *Registry
	logger     *slog.Logger
	timeSource TimeSource
	journal    Journal

	events *Ring[ir.InputEvent]
	output *Ring[ir.Action]

	ingress atomic.Pointer[ingress]
	staged  atomic.Pointer[state]

	tickMu sync.Mutex
	st     *state
	clock  *Clock
	tick   int64
	inv    Invocation

	// Per-tick journal buffers, reused.
	tickEvents  []ir.InputEvent
	tickActions []ir.Action

	stats counters
}

type counters struct {
	events              atomic.Int64
	actions             atomic.Int64
	completions         atomic.Int64
	invalidScanCodes    atomic.Int64
	invalidEvents       atomic.Int64
	unknownCapabilities atomic.Int64
	capabilityErrors    atomic.Int64
	expiredCombos       atomic.Int64
	loads               atomic.Int64
	rejectedLoads       atomic.Int64
	journalErrors       atomic.Int64
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Ticks               int64 `json:"ticks"`
	EventsProcessed     int64 `json:"events_processed"`
	ActionsEmitted      int64 `json:"actions_emitted"`
	Completions         int64 `json:"completions"`
	EventOverflows      int64 `json:"event_overflows"`
	OutputOverflows     int64 `json:"output_overflows"`
	InvalidScanCodes    int64 `json:"invalid_scan_codes"`
	InvalidEvents       int64 `json:"invalid_events"`
	UnknownCapabilities int64 `json:"unknown_capabilities"`
	CapabilityErrors    int64 `json:"capability_errors"`
	ExpiredCombos       int64 `json:"expired_combos"`
	Loads               int64 `json:"loads"`
	RejectedLoads       int64 `json:"rejected_loads"`
	JournalErrors       int64 `json:"journal_errors"`
}

// TickReport summarizes one tick.
type TickReport struct {
	Tick    int64         `json:"tick"`
	Now     time.Duration `json:"now"`
	Events  int           `json:"events"`
	Actions int           `json:"actions"`
	Expired int           `json:"expired"`
	Reload  bool          `json:"reload,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets queue sizes, overflow policy, default combo window, layer
// stack depth and layer switch policy. Zero fields take defaults.
func WithConfig(cfg config.Engine) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithRegistry sets the capability implementations tables are bound against.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithTimeSource sets the time source Run ticks with.
func WithTimeSource(ts TimeSource) Option {
	return func(e *Engine) {
		e.timeSource = ts
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithJournal records every tick that consumed events, emitted actions or
// expired combos.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// New creates an engine running on the empty table set: one empty default
// layer, no macros. Every scan code is rejected until Load succeeds.
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:   config.DefaultEngine(),
		clock: NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.ApplyDefaults()
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.timeSource == nil {
		e.timeSource = NewMonotonicTime()
	}

	e.events = NewRing[ir.InputEvent](e.cfg.EventQueueSize, e.cfg.Overflow)
	e.output = NewRing[ir.Action](e.cfg.OutputQueueSize, e.cfg.Overflow)
	if e.journal != nil {
		e.tickEvents = make([]ir.InputEvent, 0, e.cfg.EventQueueSize)
		e.tickActions = make([]ir.Action, 0, e.cfg.OutputQueueSize)
	}

	empty := ir.EmptyTableSet()
	e.install(buildState(empty, ir.MustTableHash(empty), e.cfg, nil))
	return e
}

// Load validates ts and, if it is sound, replaces the live tables. Records
// are rebuilt Idle and the layer stack is cleared.
//
// Validation is exhaustive and happens before any live state is touched: a
// rejected table set leaves the previous one running. The table set must not
// be modified after a successful Load.
func (e *Engine) Load(ts *ir.TableSet) error {
	st, err := e.prepare(ts)
	if err != nil {
		return err
	}
	e.tickMu.Lock()
	e.staged.Store(nil)
	e.install(st)
	e.tickMu.Unlock()
	e.stats.loads.Add(1)
	return nil
}

// RequestReload validates ts now and stages it; the next Tick installs it
// before draining events. A later request replaces an earlier unapplied one.
func (e *Engine) RequestReload(ts *ir.TableSet) error {
	st, err := e.prepare(ts)
	if err != nil {
		return err
	}
	e.staged.Store(st)
	e.logger.Info("table reload staged", "tables", ts.Name, "hash", st.hash)
	return nil
}

func (e *Engine) prepare(ts *ir.TableSet) (*state, error) {
	if ts == nil {
		e.stats.rejectedLoads.Add(1)
		return nil, NewInvalidTablesError("", []string{"table set is nil"})
	}
	if errs := compiler.ValidateTables(ts); len(errs) > 0 {
		problems := make([]string, len(errs))
		for i, ve := range errs {
			problems[i] = ve.Error()
		}
		e.stats.rejectedLoads.Add(1)
		e.logger.Error("table set rejected",
			"tables", ts.Name,
			"problems", len(problems),
			"first", problems[0])
		return nil, NewInvalidTablesError(ts.Name, problems)
	}

	hash, err := ir.TableHash(ts)
	if err != nil {
		e.stats.rejectedLoads.Add(1)
		return nil, fmt.Errorf("hash tables %q: %w", ts.Name, err)
	}

	bound, missing := e.registry.bind(ts.Capabilities)
	for _, name := range missing {
		e.logger.Warn("capability has no implementation; its actions will be skipped",
			"capability", name,
			"tables", ts.Name)
	}
	return buildState(ts, hash, e.cfg, bound), nil
}

// install swaps in st. Caller holds tickMu (or owns e exclusively).
func (e *Engine) install(st *state) {
	e.st = st
	e.inv = Invocation{}
	e.ingress.Store(st.ingressInfo())
	e.logger.Info("tables loaded",
		"tables", st.tables.Name,
		"hash", st.hash,
		"triggers", len(st.tables.Triggers),
		"layers", len(st.tables.Layers))
}

// Push queues an event for the next Tick.
//
// Events with an unknown edge kind or a scan code outside the loaded tables
// are rejected without touching any record. Under drop-newest a full queue
// rejects the event with QUEUE_OVERFLOW; under drop-oldest the oldest queued
// event is evicted instead. Either way the loss is counted.
//
// Thread-safe: may be called from any goroutine.
func (e *Engine) Push(ev ir.InputEvent) error {
	if err := e.check(ev); err != nil {
		return err
	}
	ev.Seq = 0
	if !e.events.Push(ev) {
		return NewQueueOverflowError("event", e.events.Cap())
	}
	return nil
}

// PushLocal queues an event from a connected board, translating its local
// scan code through the interconnect offset table.
// Board 0 without an offset table is treated as offset 0.
func (e *Engine) PushLocal(board int, local ir.ScanCode, edge ir.EdgeKind, t time.Duration, value int32) error {
	in := e.ingress.Load()
	offset := 0
	switch {
	case board >= 0 && board < len(in.offsets):
		offset = int(in.offsets[board])
	case board == 0 && len(in.offsets) == 0:
	default:
		e.stats.invalidScanCodes.Add(1)
		return NewUnknownBoardError(board, local)
	}
	global := offset + int(local)
	if global >= in.maxScanCode {
		e.stats.invalidScanCodes.Add(1)
		return NewInvalidScanCodeError(ir.ScanCode(min(global, ir.MaxScanCodeLimit-1)), in.maxScanCode)
	}
	return e.Push(ir.InputEvent{
		ScanCode: ir.ScanCode(global),
		Edge:     edge,
		Time:     t,
		Value:    value,
	})
}

func (e *Engine) check(ev ir.InputEvent) error {
	if !ev.Edge.Valid() {
		e.stats.invalidEvents.Add(1)
		return NewInvalidEventError(ev.Edge)
	}
	if limit := e.ingress.Load().maxScanCode; int(ev.ScanCode) >= limit {
		e.stats.invalidScanCodes.Add(1)
		return NewInvalidScanCodeError(ev.ScanCode, limit)
	}
	return nil
}

// Tick runs one evaluation cycle at time now:
//  1. install a staged reload
//  2. drain the events queued so far, in arrival order
//  3. expire combos whose window elapsed before now
//  4. release HeldActive records whose keys are up
//  5. fire one repeat for every HeldActive repeat macro
//
// Tick never fails; anomalies are counted in Stats and logged.
func (e *Engine) Tick(now time.Duration) TickReport {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	rep := TickReport{Now: now}
	if st := e.staged.Swap(nil); st != nil {
		e.install(st)
		e.stats.loads.Add(1)
		rep.Reload = true
	}

	e.tick++
	rep.Tick = e.tick
	e.tickEvents = e.tickEvents[:0]
	e.tickActions = e.tickActions[:0]
	before := e.stats.actions.Load()

	// Events pushed while draining wait for the next tick.
	for n := e.events.Len(); n > 0; n-- {
		ev, ok := e.events.Pop()
		if !ok {
			break
		}
		ev.Seq = e.clock.Next()
		if e.journal != nil {
			e.tickEvents = append(e.tickEvents, ev)
		}
		e.stats.events.Add(1)
		e.evaluate(&ev)
		rep.Events++
	}

	rep.Expired = e.expireCombos(now)
	e.recheckHolds(now)
	e.fireRepeats(now)
	rep.Actions = int(e.stats.actions.Load() - before)

	if e.journal != nil && (rep.Events > 0 || rep.Actions > 0 || rep.Expired > 0) {
		err := e.journal.RecordTick(TickRecord{
			Tick:    e.tick,
			Now:     now,
			Events:  e.tickEvents,
			Actions: e.tickActions,
		})
		if err != nil {
			e.stats.journalErrors.Add(1)
			e.logger.Warn("journal write failed", "tick", e.tick, "error", err)
		}
	}
	return rep
}

// ProcessEvent evaluates one event immediately, bypassing the queue and the
// end-of-tick passes. It is not journaled.
func (e *Engine) ProcessEvent(ev ir.InputEvent) error {
	if err := e.check(ev); err != nil {
		return err
	}
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	ev.Seq = e.clock.Next()
	e.stats.events.Add(1)
	e.evaluate(&ev)
	return nil
}

// PopAction removes the oldest emitted action.
// Thread-safe: may be called from any goroutine.
func (e *Engine) PopAction() (ir.Action, bool) {
	return e.output.Pop()
}

// DrainActions removes and returns every queued action.
func (e *Engine) DrainActions() []ir.Action {
	var out []ir.Action
	for {
		a, ok := e.output.Pop()
		if !ok {
			return out
		}
		out = append(out, a)
	}
}

// Actions returns a channel that signals when actions may be queued.
func (e *Engine) Actions() <-chan struct{} {
	return e.output.Wait()
}

// Run ticks on every queued event and at least once per tick interval,
// until ctx is cancelled.
//
// CRITICAL: Must be called from at most ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "tick_interval", e.cfg.TickInterval)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-e.events.Wait():
		case <-ticker.C:
		}
		e.Tick(e.timeSource.Now())
	}
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.tickMu.Lock()
	ticks := e.tick
	e.tickMu.Unlock()
	return Stats{
		Ticks:               ticks,
		EventsProcessed:     e.stats.events.Load(),
		ActionsEmitted:      e.stats.actions.Load(),
		Completions:         e.stats.completions.Load(),
		EventOverflows:      e.events.Dropped(),
		OutputOverflows:     e.output.Dropped(),
		InvalidScanCodes:    e.stats.invalidScanCodes.Load(),
		InvalidEvents:       e.stats.invalidEvents.Load(),
		UnknownCapabilities: e.stats.unknownCapabilities.Load(),
		CapabilityErrors:    e.stats.capabilityErrors.Load(),
		ExpiredCombos:       e.stats.expiredCombos.Load(),
		Loads:               e.stats.loads.Load(),
		RejectedLoads:       e.stats.rejectedLoads.Load(),
		JournalErrors:       e.stats.journalErrors.Load(),
	}
}

// Record returns a snapshot of trigger i's record.
func (e *Engine) Record(i int) (RecordView, bool) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if i < 0 || i >= len(e.st.records.records) {
		return RecordView{}, false
	}
	return e.st.records.view(i), true
}

// Layers returns the active layers, bottom to top. The default layer is
// implicit and not included.
func (e *Engine) Layers() []int {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.st.layers.Active()
}

// LayerMode returns the mode of layer id.
func (e *Engine) LayerMode(id int) LayerMode {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.st.layers.Mode(id)
}

// Tables returns the live table set. It must not be modified.
func (e *Engine) Tables() *ir.TableSet {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.st.tables
}

// TableHash returns the hash of the live table set.
func (e *Engine) TableHash() string {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.st.hash
}

// Config returns the effective engine configuration.
func (e *Engine) Config() config.Engine {
	return e.cfg
}
