package engine

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/ir"
)

// Trigger indices of testTables.
const (
	trigA = iota
	trigB
	trigAB
	trigCombo
	trigFn
	trigLatch
	trigBroken
	trigRepeat
	trigFnA
	trigKnob
	trigPedal
)

// Out parameters emitted by the "out" capability for each result.
const (
	outA      = 1
	outB      = 2
	outAB     = 3
	outCombo  = 4
	outBroken = 5
	outRepeat = 6
	outFnA    = 7
	outPedal  = 8
)

const layerFn = 1

func seqStep(sc ir.ScanCode) ir.TriggerStep {
	return ir.TriggerStep{Kind: ir.StepSequential, Conditions: []ir.Condition{{ScanCode: sc, Edge: ir.EdgePress}}}
}

func outCall(n int32) ir.CapabilityCall {
	return ir.CapabilityCall{Capability: 0, Params: []int32{n}}
}

// testTables is a two-layer keyboard exercising every trigger shape:
//
//	sc 1  a        (fn layer: fn_a)
//	sc 2  b        (fn layer: blocked)
//	sc 3,4 a then b sequence
//	sc 5+6 combo, 50ms
//	sc 7  fn, held layer shift
//	sc 8  latch fn layer
//	sc 9  broken result: failing, working and unbound capability
//	sc 10 repeat
//	sc 11 knob, rotation
//	sc 12 pedal, analog >= 100
func testTables() *ir.TableSet {
	return &ir.TableSet{
		Name:        "test",
		Version:     ir.TableVersion,
		MaxScanCode: 32,
		Capabilities: []ir.CapabilityDef{
			{Name: "out", Arity: 1},
			{Name: "layer.shift", Arity: 1},
			{Name: "layer.latch", Arity: 1},
			{Name: "fail", Arity: 0},
			{Name: "ghost", Arity: 0},
			{Name: "dial", Arity: 1},
		},
		Results: []ir.ResultMacro{
			{Name: "a", Calls: []ir.CapabilityCall{outCall(outA)}},
			{Name: "b", Calls: []ir.CapabilityCall{outCall(outB)}},
			{Name: "ab", Calls: []ir.CapabilityCall{outCall(outAB)}},
			{Name: "combo", Calls: []ir.CapabilityCall{outCall(outCombo)}},
			{Name: "fn", Calls: []ir.CapabilityCall{{Capability: 1, Params: []int32{layerFn}}}},
			{Name: "latch", Calls: []ir.CapabilityCall{{Capability: 2, Params: []int32{layerFn}}}},
			{Name: "broken", Calls: []ir.CapabilityCall{{Capability: 3}, outCall(outBroken), {Capability: 4}}},
			{Name: "repeat", Calls: []ir.CapabilityCall{outCall(outRepeat)}},
			{Name: "fn_a", Calls: []ir.CapabilityCall{outCall(outFnA)}},
			{Name: "dial", Calls: []ir.CapabilityCall{{Capability: 5, Params: []int32{1}}}},
			{Name: "pedal", Calls: []ir.CapabilityCall{outCall(outPedal)}},
		},
		Triggers: []ir.TriggerMacro{
			{Name: "a", Steps: []ir.TriggerStep{seqStep(1)}},
			{Name: "b", Steps: []ir.TriggerStep{seqStep(2)}},
			{Name: "ab", Steps: []ir.TriggerStep{seqStep(3), seqStep(4)}},
			{Name: "combo", WindowMS: 50, Steps: []ir.TriggerStep{{Kind: ir.StepCombo, Conditions: []ir.Condition{
				{ScanCode: 5, Edge: ir.EdgePress},
				{ScanCode: 6, Edge: ir.EdgePress},
			}}}},
			{Name: "fn", Steps: []ir.TriggerStep{seqStep(7)}},
			{Name: "latch", Steps: []ir.TriggerStep{seqStep(8)}},
			{Name: "broken", Steps: []ir.TriggerStep{seqStep(9)}},
			{Name: "repeat", Repeat: true, Steps: []ir.TriggerStep{seqStep(10)}},
			{Name: "fn_a", Steps: []ir.TriggerStep{seqStep(1)}},
			{Name: "knob", Steps: []ir.TriggerStep{{Kind: ir.StepSequential, Conditions: []ir.Condition{
				{ScanCode: 11, Edge: ir.EdgeRotation, Delta: 1},
			}}}},
			{Name: "pedal", Steps: []ir.TriggerStep{{Kind: ir.StepSequential, Conditions: []ir.Condition{
				{ScanCode: 12, Edge: ir.EdgeAnalog, Threshold: 100},
			}}}},
		},
		Guides: []ir.Guide{
			{Trigger: trigA, Result: 0, Release: ir.NoResult},
			{Trigger: trigB, Result: 1, Release: ir.NoResult},
			{Trigger: trigAB, Result: 2, Release: ir.NoResult},
			{Trigger: trigCombo, Result: 3, Release: ir.NoResult},
			{Trigger: trigFn, Result: 4, Release: 4},
			{Trigger: trigLatch, Result: 5, Release: ir.NoResult},
			{Trigger: trigBroken, Result: 6, Release: ir.NoResult},
			{Trigger: trigRepeat, Result: 7, Release: ir.NoResult},
			{Trigger: trigFnA, Result: 8, Release: ir.NoResult},
			{Trigger: trigKnob, Result: 9, Release: ir.NoResult},
			{Trigger: trigPedal, Result: 10, Release: ir.NoResult},
		},
		Layers: []ir.Layer{
			{Name: "base", Default: true, Triggers: map[ir.ScanCode][]int{
				1: {trigA}, 2: {trigB}, 3: {trigAB}, 4: {trigAB},
				5: {trigCombo}, 6: {trigCombo}, 7: {trigFn}, 8: {trigLatch},
				9: {trigBroken}, 10: {trigRepeat}, 11: {trigKnob}, 12: {trigPedal},
			}},
			{Name: "fn", Triggers: map[ir.ScanCode][]int{
				1: {trigFnA},
				2: {},
			}},
		},
		InterconnectOffsets: []ir.ScanCode{0, 16},
		RotationMax:         []int32{4},
	}
}

var errCapabilityFailed = errors.New("capability failed")

// testRegistry implements every capability of testTables except "ghost".
// Layer capabilities act on press and undo held shifts on release.
func testRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("out", func(inv *Invocation) error { return nil })
	r.MustRegister("layer.shift", func(inv *Invocation) error {
		if inv.Phase == ir.PhaseRelease {
			return inv.Layers().Pop(int(inv.Param(0)))
		}
		return inv.Layers().Push(int(inv.Param(0)), ModeHeld)
	})
	r.MustRegister("layer.latch", func(inv *Invocation) error {
		return inv.Layers().Push(int(inv.Param(0)), ModeLatched)
	})
	r.MustRegister("fail", func(inv *Invocation) error { return errCapabilityFailed })
	r.MustRegister("dial", func(inv *Invocation) error {
		pos, err := inv.Rotate(0, inv.Param(0))
		if err != nil {
			return err
		}
		inv.Params[0] = pos
		return nil
	})
	return r
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine creates an engine with testTables loaded.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithRegistry(testRegistry()), WithLogger(discardLogger())}
	e := New(append(base, opts...)...)
	require.NoError(t, e.Load(testTables()))
	return e
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func press(sc ir.ScanCode, at time.Duration) ir.InputEvent {
	return ir.InputEvent{ScanCode: sc, Edge: ir.EdgePress, Time: at}
}

func release(sc ir.ScanCode, at time.Duration) ir.InputEvent {
	return ir.InputEvent{ScanCode: sc, Edge: ir.EdgeRelease, Time: at}
}

// feedTick pushes evs, runs one tick at now and drains the output queue.
func feedTick(t *testing.T, e *Engine, now time.Duration, evs ...ir.InputEvent) []ir.Action {
	t.Helper()
	for _, ev := range evs {
		require.NoError(t, e.Push(ev))
	}
	e.Tick(now)
	return e.DrainActions()
}

// outs returns the first param of every "out" action, in order.
func outs(actions []ir.Action) []int32 {
	var got []int32
	for _, a := range actions {
		if a.Name == "out" {
			got = append(got, a.Params[0])
		}
	}
	return got
}

func requireStatus(t *testing.T, e *Engine, trigger int, want RecordStatus) {
	t.Helper()
	v, ok := e.Record(trigger)
	require.True(t, ok)
	require.Equal(t, want, v.Status, "trigger %d", trigger)
}

// manualTime is a TimeSource advanced by hand.
type manualTime struct {
	now atomic.Int64
}

func (m *manualTime) Now() time.Duration { return time.Duration(m.now.Load()) }

func (m *manualTime) Set(d time.Duration) { m.now.Store(int64(d)) }
