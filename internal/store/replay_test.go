package store

import (
	"context"
	"strings"
	"testing"

	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

func TestLoadReplay_Reproduces(t *testing.T) {
	s := createTestStore(t)
	j, _ := recordTestSession(t, s, "s-1")

	rec, err := s.LoadReplay(context.Background(), j.SessionID())
	if err != nil {
		t.Fatalf("LoadReplay() failed: %v", err)
	}
	if len(rec.Ticks) != 6 {
		t.Errorf("len(Ticks) = %d, want 6 (idle tick is not journaled)", len(rec.Ticks))
	}
	if rec.Tables.Name != "store-test" {
		t.Errorf("Tables.Name = %q", rec.Tables.Name)
	}

	res, err := rec.Replay(testEngineOpts()...)
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if !res.Match() {
		t.Fatalf("replay diverged at %d:\nexpected %+v\nactual   %+v", res.Divergence, res.Expected, res.Actual)
	}
	if len(res.Actual) != 4 {
		t.Errorf("len(Actual) = %d, want 4", len(res.Actual))
	}
	if res.ExpectedHash != res.ActualHash {
		t.Errorf("trace hashes differ: %s vs %s", res.ExpectedHash, res.ActualHash)
	}
}

func TestLoadReplay_UsesRecordedConfig(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cfg := config.DefaultEngine()
	cfg.EventQueueSize = 2
	sess, err := newSession("s-1", testTables(), cfg)
	if err != nil {
		t.Fatalf("newSession() failed: %v", err)
	}
	if err := s.WriteSession(ctx, sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}

	rec, err := s.LoadReplay(ctx, "s-1")
	if err != nil {
		t.Fatalf("LoadReplay() failed: %v", err)
	}
	if rec.Session.Config.EventQueueSize != 2 {
		t.Errorf("EventQueueSize = %d, want 2", rec.Session.Config.EventQueueSize)
	}

	// Three events in one tick overflow the recorded queue size.
	rec.Ticks = []engine.TickRecord{{
		Tick: 1,
		Events: []ir.InputEvent{
			{ScanCode: 1, Edge: ir.EdgePress},
			{ScanCode: 1, Edge: ir.EdgeRelease},
			{ScanCode: 1, Edge: ir.EdgePress},
		},
	}}
	if _, err := rec.Replay(testEngineOpts()...); !engine.IsQueueOverflow(err) {
		t.Errorf("Replay() error = %v, want queue overflow", err)
	}
}

func TestLoadReplay_RejectsTamperedTables(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	if _, err := s.db.Exec(
		"UPDATE sessions SET tables = replace(tables, '\"store-test\"', '\"tampered\"') WHERE id = 's-1'",
	); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := s.LoadReplay(ctx, "s-1")
	if err == nil || !strings.Contains(err.Error(), "does not match recorded") {
		t.Errorf("LoadReplay() error = %v, want hash mismatch", err)
	}
}

func TestLoadReplay_UnknownSession(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.LoadReplay(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}
