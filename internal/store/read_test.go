package store

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/kllcore/internal/capability"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
	"github.com/roach88/kllcore/internal/queryir"
)

func TestReadTicks_Empty(t *testing.T) {
	s := createTestStore(t)
	createTestSession(t, s, "s-1")

	ticks, err := s.ReadTicks(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("ReadTicks() failed: %v", err)
	}
	if ticks == nil || len(ticks) != 0 {
		t.Errorf("ReadTicks() = %v, want empty slice", ticks)
	}
}

func TestReadTicks_GroupsByTick(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	first := sampleTick()
	second := engine.TickRecord{
		Tick:   9,
		Now:    20 * time.Millisecond,
		Events: []ir.InputEvent{{Seq: 4, ScanCode: 1, Edge: ir.EdgeRelease, Time: 19 * time.Millisecond}},
	}
	// Written out of order; reads come back by tick.
	if err := s.WriteTick(ctx, "s-1", second); err != nil {
		t.Fatalf("WriteTick() failed: %v", err)
	}
	if err := s.WriteTick(ctx, "s-1", first); err != nil {
		t.Fatalf("WriteTick() failed: %v", err)
	}

	ticks, err := s.ReadTicks(ctx, "s-1")
	if err != nil {
		t.Fatalf("ReadTicks() failed: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("len(ticks) = %d, want 2", len(ticks))
	}
	if ticks[0].Tick != 7 || ticks[1].Tick != 9 {
		t.Errorf("ticks = %d, %d; want 7, 9", ticks[0].Tick, ticks[1].Tick)
	}
	if len(ticks[0].Events) != 2 || len(ticks[0].Actions) != 1 {
		t.Errorf("tick 7 has %d events, %d actions; want 2, 1", len(ticks[0].Events), len(ticks[0].Actions))
	}
	if len(ticks[1].Events) != 1 || len(ticks[1].Actions) != 0 {
		t.Errorf("tick 9 has %d events, %d actions; want 1, 0", len(ticks[1].Events), len(ticks[1].Actions))
	}
	if ticks[0].Actions[0] != first.Actions[0] {
		t.Errorf("action = %+v, want %+v", ticks[0].Actions[0], first.Actions[0])
	}
	if ticks[0].Events[1] != first.Events[1] {
		t.Errorf("event = %+v, want %+v", ticks[0].Events[1], first.Events[1])
	}
}

func TestReadTicks_SessionsAreIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")
	createTestSession(t, s, "s-2")

	if err := s.WriteTick(ctx, "s-1", sampleTick()); err != nil {
		t.Fatalf("WriteTick() failed: %v", err)
	}

	ticks, err := s.ReadTicks(ctx, "s-2")
	if err != nil {
		t.Fatalf("ReadTicks() failed: %v", err)
	}
	if len(ticks) != 0 {
		t.Errorf("s-2 has %d ticks, want 0", len(ticks))
	}
}

func TestReadActions_SeqOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	j, _ := recordTestSession(t, s, "s-1")

	actions, err := s.ReadActions(ctx, j.SessionID())
	if err != nil {
		t.Fatalf("ReadActions() failed: %v", err)
	}
	want := []struct {
		name  string
		phase ir.Phase
	}{
		{capability.HIDKeyboard, ir.PhasePress},
		{capability.LayerShift, ir.PhasePress},
		{capability.HIDKeyboard, ir.PhasePress},
		{capability.LayerShift, ir.PhaseRelease},
	}
	if len(actions) != len(want) {
		t.Fatalf("len(actions) = %d, want %d: %+v", len(actions), len(want), actions)
	}
	for i, w := range want {
		if actions[i].Name != w.name || actions[i].Phase != w.phase {
			t.Errorf("actions[%d] = %s/%s, want %s/%s", i, actions[i].Name, actions[i].Phase, w.name, w.phase)
		}
		if i > 0 && actions[i].Seq <= actions[i-1].Seq {
			t.Errorf("actions[%d].Seq = %d not after %d", i, actions[i].Seq, actions[i-1].Seq)
		}
	}

	shifts, err := s.ReadActionsByName(ctx, j.SessionID(), capability.LayerShift)
	if err != nil {
		t.Fatalf("ReadActionsByName() failed: %v", err)
	}
	if len(shifts) != 2 {
		t.Errorf("len(shifts) = %d, want 2", len(shifts))
	}
}

func TestReadInputEvents(t *testing.T) {
	s := createTestStore(t)
	j, _ := recordTestSession(t, s, "s-1")

	events, err := s.ReadInputEvents(context.Background(), j.SessionID())
	if err != nil {
		t.Fatalf("ReadInputEvents() failed: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("len(events) = %d, want 6", len(events))
	}
	if events[2].ScanCode != 2 || events[2].Edge != ir.EdgePress || events[2].Time != 10*time.Millisecond {
		t.Errorf("events[2] = %+v", events[2])
	}
}

func TestQueryActions_Filter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	j, _ := recordTestSession(t, s, "s-1")

	releases, err := s.QueryActions(ctx, j.SessionID(), queryir.And{Predicates: []queryir.Predicate{
		queryir.Equals{Field: "name", Value: capability.LayerShift},
		queryir.Equals{Field: "phase", Value: ir.PhaseRelease},
	}})
	if err != nil {
		t.Fatalf("QueryActions() failed: %v", err)
	}
	if len(releases) != 1 || releases[0].Phase != ir.PhaseRelease {
		t.Errorf("QueryActions(shift release) = %+v, want one release", releases)
	}

	all, err := s.ReadActions(ctx, j.SessionID())
	if err != nil {
		t.Fatalf("ReadActions() failed: %v", err)
	}
	window, err := s.QueryActions(ctx, j.SessionID(), queryir.Between{Field: "seq", Lo: all[1].Seq, Hi: all[2].Seq})
	if err != nil {
		t.Fatalf("QueryActions() failed: %v", err)
	}
	if len(window) != 2 || window[0].Seq != all[1].Seq {
		t.Errorf("QueryActions(seq window) = %+v", window)
	}

	if _, err := s.QueryActions(ctx, j.SessionID(), queryir.Equals{Field: "bogus", Value: 1}); err == nil {
		t.Error("QueryActions() with unknown column should fail")
	}
}

func TestQueryInputEvents_Filter(t *testing.T) {
	s := createTestStore(t)
	j, _ := recordTestSession(t, s, "s-1")

	presses, err := s.QueryInputEvents(context.Background(), j.SessionID(), queryir.And{Predicates: []queryir.Predicate{
		queryir.Equals{Field: "scan_code", Value: ir.ScanCode(2)},
		queryir.Equals{Field: "edge", Value: ir.EdgePress},
	}})
	if err != nil {
		t.Fatalf("QueryInputEvents() failed: %v", err)
	}
	if len(presses) != 1 || presses[0].Time != 10*time.Millisecond {
		t.Errorf("QueryInputEvents(press 2) = %+v", presses)
	}
}

func TestGetLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "empty")
	j, e := recordTestSession(t, s, "s-1")

	last, err := s.GetLastSeq(ctx, j.SessionID())
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	// 6 events and 4 actions share one counter.
	if last != 10 {
		t.Errorf("GetLastSeq() = %d, want 10", last)
	}
	if got := e.Stats().EventsProcessed; got != 6 {
		t.Errorf("EventsProcessed = %d, want 6", got)
	}

	last, err = s.GetLastSeq(ctx, "empty")
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	if last != 0 {
		t.Errorf("GetLastSeq(empty) = %d, want 0", last)
	}
}
