package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
	"github.com/roach88/kllcore/internal/queryir"
	"github.com/roach88/kllcore/internal/querysql"
)

// ReadTicks returns every recorded tick of a session with its events and
// actions, ordered by tick. Returns an empty slice (not nil) if the session
// recorded nothing.
func (s *Store) ReadTicks(ctx context.Context, sessionID string) ([]engine.TickRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, now
		FROM ticks
		WHERE session_id = ?
		ORDER BY tick ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []engine.TickRecord{}
	index := make(map[int64]int)
	for rows.Next() {
		var rec engine.TickRecord
		var now int64
		if err := rows.Scan(&rec.Tick, &now); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		rec.Now = time.Duration(now)
		index[rec.Tick] = len(ticks)
		ticks = append(ticks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}

	events, eventTicks, err := s.readInputEvents(ctx, sessionID, nil)
	if err != nil {
		return nil, err
	}
	for i, ev := range events {
		j, ok := index[eventTicks[i]]
		if !ok {
			return nil, fmt.Errorf("input event seq %d references missing tick %d", ev.Seq, eventTicks[i])
		}
		ticks[j].Events = append(ticks[j].Events, ev)
	}

	actions, actionTicks, err := s.readActions(ctx, sessionID, nil)
	if err != nil {
		return nil, err
	}
	for i, act := range actions {
		j, ok := index[actionTicks[i]]
		if !ok {
			return nil, fmt.Errorf("action seq %d references missing tick %d", act.Seq, actionTicks[i])
		}
		ticks[j].Actions = append(ticks[j].Actions, act)
	}

	return ticks, nil
}

// ReadInputEvents returns a session's accepted events ordered by seq.
func (s *Store) ReadInputEvents(ctx context.Context, sessionID string) ([]ir.InputEvent, error) {
	return s.QueryInputEvents(ctx, sessionID, nil)
}

// ReadActions returns a session's emitted actions ordered by seq.
func (s *Store) ReadActions(ctx context.Context, sessionID string) ([]ir.Action, error) {
	return s.QueryActions(ctx, sessionID, nil)
}

// ReadActionsByName returns the session's actions for one capability
// ordered by seq.
func (s *Store) ReadActionsByName(ctx context.Context, sessionID, name string) ([]ir.Action, error) {
	return s.QueryActions(ctx, sessionID, queryir.Equals{Field: "name", Value: name})
}

// QueryInputEvents returns the session's events matching filter, ordered
// by seq. A nil filter matches every event.
func (s *Store) QueryInputEvents(ctx context.Context, sessionID string, filter queryir.Predicate) ([]ir.InputEvent, error) {
	events, _, err := s.readInputEvents(ctx, sessionID, filter)
	return events, err
}

// QueryActions returns the session's actions matching filter, ordered by
// seq. A nil filter matches every action.
func (s *Store) QueryActions(ctx context.Context, sessionID string, filter queryir.Predicate) ([]ir.Action, error) {
	actions, _, err := s.readActions(ctx, sessionID, filter)
	return actions, err
}

// query compiles a journal read and runs it.
func (s *Store) query(ctx context.Context, sessionID string, q queryir.Select) (*sql.Rows, error) {
	stmt, params, err := querysql.NewSQLCompiler(sessionID).Compile(q)
	if err != nil {
		return nil, err
	}
	return s.db.QueryContext(ctx, stmt, params...)
}

func (s *Store) readInputEvents(ctx context.Context, sessionID string, filter queryir.Predicate) ([]ir.InputEvent, []int64, error) {
	rows, err := s.query(ctx, sessionID, queryir.Select{From: queryir.InputEvents, Filter: filter})
	if err != nil {
		return nil, nil, fmt.Errorf("query input events: %w", err)
	}
	defer rows.Close()

	events := []ir.InputEvent{}
	var ticks []int64
	for rows.Next() {
		var ev ir.InputEvent
		var tick, sc, ts int64
		var edge string
		if err := rows.Scan(&ev.Seq, &tick, &sc, &edge, &ts, &ev.Value); err != nil {
			return nil, nil, fmt.Errorf("scan input event: %w", err)
		}
		ev.ScanCode = ir.ScanCode(sc)
		ev.Edge = ir.EdgeKind(edge)
		ev.Time = time.Duration(ts)
		events = append(events, ev)
		ticks = append(ticks, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate input events: %w", err)
	}
	return events, ticks, nil
}

func (s *Store) readActions(ctx context.Context, sessionID string, filter queryir.Predicate) ([]ir.Action, []int64, error) {
	rows, err := s.query(ctx, sessionID, queryir.Select{From: queryir.Actions, Filter: filter})
	if err != nil {
		return nil, nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := []ir.Action{}
	var ticks []int64
	for rows.Next() {
		act, tick, err := scanAction(rows)
		if err != nil {
			return nil, nil, err
		}
		actions = append(actions, act)
		ticks = append(ticks, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, ticks, nil
}

func scanAction(rows *sql.Rows) (ir.Action, int64, error) {
	var act ir.Action
	var tick, ts int64
	var phase, paramsJSON string
	if err := rows.Scan(
		&act.Seq, &tick, &act.Trigger, &act.Result, &act.Capability,
		&act.Name, &phase, &paramsJSON, &ts,
	); err != nil {
		return ir.Action{}, 0, fmt.Errorf("scan action: %w", err)
	}
	act.Phase = ir.Phase(phase)
	act.Time = time.Duration(ts)

	params, n, err := unmarshalParams(paramsJSON)
	if err != nil {
		return ir.Action{}, 0, fmt.Errorf("action seq %d: %w", act.Seq, err)
	}
	act.Params = params
	act.NParams = n
	return act, tick, nil
}

// GetLastSeq returns the highest seq recorded for a session, or 0.
func (s *Store) GetLastSeq(ctx context.Context, sessionID string) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(seq) FROM input_events WHERE session_id = ?), 0),
			COALESCE((SELECT MAX(seq) FROM actions WHERE session_id = ?), 0)
		)
	`, sessionID, sessionID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return last, nil
}
