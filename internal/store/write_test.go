package store

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

func sampleTick() engine.TickRecord {
	return engine.TickRecord{
		Tick: 7,
		Now:  12 * time.Millisecond,
		Events: []ir.InputEvent{
			{Seq: 1, ScanCode: 1, Edge: ir.EdgePress, Time: 11 * time.Millisecond},
			{Seq: 3, ScanCode: 4, Edge: ir.EdgeAnalog, Time: 12 * time.Millisecond, Value: 180},
		},
		Actions: []ir.Action{{
			Seq:        2,
			Time:       11 * time.Millisecond,
			Trigger:    0,
			Result:     0,
			Capability: 1,
			Name:       "hid.keyboard",
			Phase:      ir.PhasePress,
			Params:     [ir.MaxParams]int32{0x04},
			NParams:    1,
		}},
	}
}

func TestWriteTick_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	rec := sampleTick()
	if err := s.WriteTick(ctx, "s-1", rec); err != nil {
		t.Fatalf("WriteTick() failed: %v", err)
	}

	var now int64
	if err := s.db.QueryRow("SELECT now FROM ticks WHERE session_id = 's-1' AND tick = 7").Scan(&now); err != nil {
		t.Fatalf("query tick: %v", err)
	}
	if time.Duration(now) != rec.Now {
		t.Errorf("now = %d, want %d", now, rec.Now)
	}

	var params string
	if err := s.db.QueryRow("SELECT params FROM actions WHERE session_id = 's-1' AND seq = 2").Scan(&params); err != nil {
		t.Fatalf("query action: %v", err)
	}
	if params != "[4]" {
		t.Errorf("params = %s, want [4]", params)
	}
}

func TestWriteTick_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	for i := 0; i < 2; i++ {
		if err := s.WriteTick(ctx, "s-1", sampleTick()); err != nil {
			t.Fatalf("WriteTick() #%d failed: %v", i, err)
		}
	}

	var events, actions int
	s.db.QueryRow("SELECT COUNT(*) FROM input_events").Scan(&events)
	s.db.QueryRow("SELECT COUNT(*) FROM actions").Scan(&actions)
	if events != 2 || actions != 1 {
		t.Errorf("counts = %d events, %d actions; want 2, 1", events, actions)
	}
}

func TestWriteTick_UnknownSession(t *testing.T) {
	s := createTestStore(t)

	if err := s.WriteTick(context.Background(), "missing", sampleTick()); err == nil {
		t.Fatal("expected foreign key error for unknown session")
	}

	var ticks int
	s.db.QueryRow("SELECT COUNT(*) FROM ticks").Scan(&ticks)
	if ticks != 0 {
		t.Errorf("ticks = %d after failed write, want 0", ticks)
	}
}
