package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

// WriteTick appends one tick with its events and actions in a single
// transaction. Rows are keyed by (session, tick) and (session, seq) and
// inserted with ON CONFLICT DO NOTHING, so rewriting a tick is a no-op.
//
// The session must exist (foreign key constraint).
func (s *Store) WriteTick(ctx context.Context, sessionID string, rec engine.TickRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write tick %d: begin tx: %w", rec.Tick, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ticks (session_id, tick, now)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id, tick) DO NOTHING
	`, sessionID, rec.Tick, int64(rec.Now))
	if err != nil {
		return fmt.Errorf("write tick %d: %w", rec.Tick, err)
	}

	for _, ev := range rec.Events {
		if err := writeInputEvent(ctx, tx, sessionID, rec.Tick, ev); err != nil {
			return fmt.Errorf("write tick %d: %w", rec.Tick, err)
		}
	}
	for _, act := range rec.Actions {
		if err := writeAction(ctx, tx, sessionID, rec.Tick, act); err != nil {
			return fmt.Errorf("write tick %d: %w", rec.Tick, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write tick %d: commit: %w", rec.Tick, err)
	}
	return nil
}

func writeInputEvent(ctx context.Context, tx *sql.Tx, sessionID string, tick int64, ev ir.InputEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO input_events
		(session_id, seq, tick, scan_code, edge, ts, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		sessionID,
		ev.Seq,
		tick,
		int64(ev.ScanCode),
		string(ev.Edge),
		int64(ev.Time),
		ev.Value,
	)
	if err != nil {
		return fmt.Errorf("input event seq %d: %w", ev.Seq, err)
	}
	return nil
}

func writeAction(ctx context.Context, tx *sql.Tx, sessionID string, tick int64, act ir.Action) error {
	paramsJSON, err := marshalParams(act.Args())
	if err != nil {
		return fmt.Errorf("action seq %d: %w", act.Seq, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO actions
		(session_id, seq, tick, trigger_id, result_id, cap_id, name, phase, params, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		sessionID,
		act.Seq,
		tick,
		act.Trigger,
		act.Result,
		act.Capability,
		act.Name,
		string(act.Phase),
		paramsJSON,
		int64(act.Time),
	)
	if err != nil {
		return fmt.Errorf("action seq %d: %w", act.Seq, err)
	}
	return nil
}
