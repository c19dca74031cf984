package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/kllcore/internal/capability"
	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testTables maps scan code 1 to "a" and scan code 2 to a held "shift".
func testTables() *ir.TableSet {
	caps := capability.Definitions()
	idx := func(name string) int {
		for i, c := range caps {
			if c.Name == name {
				return i
			}
		}
		panic(name)
	}
	press := func(sc ir.ScanCode) []ir.TriggerStep {
		return []ir.TriggerStep{{Kind: ir.StepSequential, Conditions: []ir.Condition{{ScanCode: sc, Edge: ir.EdgePress}}}}
	}
	return &ir.TableSet{
		Name:         "store-test",
		Version:      ir.TableVersion,
		MaxScanCode:  8,
		Capabilities: caps,
		Results: []ir.ResultMacro{
			{Name: "a", Calls: []ir.CapabilityCall{{Capability: idx(capability.HIDKeyboard), Params: []int32{0x04}}}},
			{Name: "shift", Calls: []ir.CapabilityCall{{Capability: idx(capability.LayerShift), Params: []int32{1}}}},
		},
		Triggers: []ir.TriggerMacro{
			{Name: "a", Steps: press(1)},
			{Name: "shift", Steps: press(2)},
		},
		Guides: []ir.Guide{
			{Trigger: 0, Result: 0, Release: ir.NoResult},
			{Trigger: 1, Result: 1, Release: 1},
		},
		Layers: []ir.Layer{
			{Name: "base", Default: true, Triggers: map[ir.ScanCode][]int{1: {0}, 2: {1}}},
			{Name: "shifted", Triggers: map[ir.ScanCode][]int{}},
		},
	}
}

// createTestSession writes a session with a fixed ID.
func createTestSession(t *testing.T, s *Store, id string) Session {
	t.Helper()
	sess, err := newSession(id, testTables(), config.DefaultEngine())
	if err != nil {
		t.Fatalf("newSession() failed: %v", err)
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

func testEngineOpts() []engine.Option {
	return []engine.Option{
		engine.WithRegistry(capability.Standard()),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

// recordTestSession drives an engine recording into a new session: tap a,
// hold shift, tap a, release shift.
func recordTestSession(t *testing.T, s *Store, id string) (*SessionJournal, *engine.Engine) {
	t.Helper()
	sess, err := newSession(id, testTables(), config.DefaultEngine())
	if err != nil {
		t.Fatalf("newSession() failed: %v", err)
	}
	j, err := s.StartSession(context.Background(), sess)
	if err != nil {
		t.Fatalf("StartSession() failed: %v", err)
	}

	e := engine.New(append(testEngineOpts(), engine.WithJournal(j))...)
	if err := e.Load(testTables()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	steps := []struct {
		at   time.Duration
		sc   ir.ScanCode
		edge ir.EdgeKind
	}{
		{0, 1, ir.EdgePress},
		{5 * time.Millisecond, 1, ir.EdgeRelease},
		{10 * time.Millisecond, 2, ir.EdgePress},
		{15 * time.Millisecond, 1, ir.EdgePress},
		{20 * time.Millisecond, 1, ir.EdgeRelease},
		{25 * time.Millisecond, 2, ir.EdgeRelease},
	}
	for _, st := range steps {
		if err := e.Push(ir.InputEvent{ScanCode: st.sc, Edge: st.edge, Time: st.at}); err != nil {
			t.Fatalf("Push() failed: %v", err)
		}
		e.Tick(st.at)
		e.DrainActions()
	}
	// Idle tick, not journaled.
	e.Tick(30 * time.Millisecond)

	if n := e.Stats().JournalErrors; n != 0 {
		t.Fatalf("JournalErrors = %d, want 0", n)
	}
	return j, e
}

func pressEvent(sc ir.ScanCode) ir.InputEvent {
	return ir.InputEvent{ScanCode: sc, Edge: ir.EdgePress}
}
