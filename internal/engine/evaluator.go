package engine

import (
	"time"

	"github.com/roach88/kllcore/internal/ir"
)

// outcome is what feeding one event to one record did.
type outcome uint8

const (
	// outIgnored: the event neither advanced nor broke the record.
	outIgnored outcome = iota
	// outProgress: the event satisfied an outstanding condition.
	outProgress
	// outMismatch: the event breaks the record's sequence.
	outMismatch
)

// matchCondition reports whether ev satisfies c.
func matchCondition(c *ir.Condition, ev *ir.InputEvent) bool {
	if c.ScanCode != ev.ScanCode || c.Edge != ev.Edge {
		return false
	}
	switch c.Edge {
	case ir.EdgeAnalog:
		return ev.Value >= c.Threshold
	case ir.EdgeRotation:
		switch {
		case c.Delta == 0:
			return ev.Value != 0
		case c.Delta > 0:
			return ev.Value > 0
		default:
			return ev.Value < 0
		}
	}
	return true
}

// breaks reports whether an unmatched event resets a Pending record.
// Only presses do: releases between steps are normal typing, and analog or
// rotation streams would otherwise reset every sequence in flight.
func breaks(ev *ir.InputEvent) bool {
	return ev.Edge == ir.EdgePress
}

// feed offers ev to the step at the record's cursor.
func (st *state) feed(ti int, ev *ir.InputEvent) outcome {
	rec := &st.records.records[ti]
	m := &st.tables.Triggers[ti]
	step := &m.Steps[rec.cursor]

	switch step.Kind {
	case ir.StepCombo:
		covered := false
		for ci := range step.Conditions {
			if !matchCondition(&step.Conditions[ci], ev) {
				continue
			}
			bit := uint32(1) << uint(ci)
			if rec.coverage&bit != 0 {
				covered = true
				continue
			}
			rec.coverage |= bit
			if !rec.armed {
				rec.armed = true
				rec.deadline = ev.Time + st.windows[ti]
			}
			if rec.coverage == fullMask(len(step.Conditions)) {
				advanceStep(rec)
			}
			return outProgress
		}
		if covered {
			return outIgnored
		}

	default:
		if matchCondition(&step.Conditions[rec.sub], ev) {
			rec.sub++
			if rec.sub == len(step.Conditions) {
				advanceStep(rec)
			}
			return outProgress
		}
	}

	if breaks(ev) {
		return outMismatch
	}
	return outIgnored
}

func fullMask(n int) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<uint(n) - 1
}

func advanceStep(rec *record) {
	rec.cursor++
	rec.sub = 0
	rec.coverage = 0
	rec.armed = false
	rec.deadline = 0
}

// start offers ev to an Idle record as a fresh first step.
// Returns true if the record left Idle.
func (st *state) start(ti int, ev *ir.InputEvent) bool {
	if st.feed(ti, ev) != outProgress {
		// A failed first step leaves nothing behind.
		st.records.resetRecord(ti)
		return false
	}
	st.settle(ti)
	return true
}

// settle moves a record that just progressed to Pending or Finished.
func (st *state) settle(ti int) {
	if st.records.records[ti].cursor == len(st.tables.Triggers[ti].Steps) {
		st.records.setStatus(ti, StatusFinished)
		return
	}
	st.records.setStatus(ti, StatusPending)
}

// evaluate runs one event through resolution, evaluation and dispatch.
func (e *Engine) evaluate(ev *ir.InputEvent) {
	st := e.st

	if int(ev.ScanCode) >= st.tables.MaxScanCode {
		// Queued before a reload that shrank the scan code space.
		e.stats.invalidScanCodes.Add(1)
		e.logger.Warn("dropping queued event",
			"error", NewInvalidScanCodeError(ev.ScanCode, st.tables.MaxScanCode),
			"seq", ev.Seq)
		return
	}

	switch ev.Edge {
	case ir.EdgePress:
		st.keys.assign(int(ev.ScanCode), true)
	case ir.EdgeRelease:
		st.keys.assign(int(ev.ScanCode), false)
		e.releaseHeld(ev.ScanCode, ev.Time)
	}

	candidates := st.resolver.resolve(ev.ScanCode, st.layers)
	for _, ti := range candidates {
		e.step(ti, ev)
	}
}

// step advances trigger ti with ev and dispatches on completion.
func (e *Engine) step(ti int, ev *ir.InputEvent) {
	st := e.st
	rec := &st.records.records[ti]

	switch rec.status {
	case StatusIdle:
		if !st.start(ti, ev) {
			return
		}

	case StatusPending:
		if rec.armed && ev.Time > rec.deadline {
			e.expire(ti)
			return
		}
		switch st.feed(ti, ev) {
		case outIgnored:
			return
		case outProgress:
			st.settle(ti)
		case outMismatch:
			if st.tables.Triggers[ti].Tolerant {
				return
			}
			st.records.resetRecord(ti)
			if !st.start(ti, ev) {
				return
			}
		}

	default:
		// HeldActive records wait for release; Finished is transient.
		return
	}

	if rec.status == StatusFinished {
		e.complete(ti, ev.Time)
	}
}

// expire drops a Pending record whose combo window elapsed.
func (e *Engine) expire(ti int) {
	e.st.records.resetRecord(ti)
	e.stats.expiredCombos.Add(1)
}

// expireCombos resets every armed record whose deadline is before now.
func (e *Engine) expireCombos(now time.Duration) int {
	st := e.st
	n := 0
	for ti := st.records.pending.next(0); ti >= 0; ti = st.records.pending.next(ti + 1) {
		rec := &st.records.records[ti]
		if rec.armed && now > rec.deadline {
			e.expire(ti)
			n++
		}
	}
	return n
}

// releaseHeld ends every HeldActive record holding sc.
func (e *Engine) releaseHeld(sc ir.ScanCode, now time.Duration) {
	st := e.st
	for ti := st.records.held.next(0); ti >= 0; ti = st.records.held.next(ti + 1) {
		if st.holdsKey(ti, sc) {
			e.release(ti, now)
		}
	}
}

// recheckHolds ends HeldActive records whose hold keys are no longer down.
func (e *Engine) recheckHolds(now time.Duration) {
	st := e.st
	for ti := st.records.held.next(0); ti >= 0; ti = st.records.held.next(ti + 1) {
		if !st.holding(ti) {
			e.release(ti, now)
		}
	}
}

// fireRepeats re-dispatches every HeldActive repeat macro once, except
// those completed in this tick.
func (e *Engine) fireRepeats(now time.Duration) {
	st := e.st
	for ti := st.records.held.next(0); ti >= 0; ti = st.records.held.next(ti + 1) {
		if !st.tables.Triggers[ti].Repeat || st.records.records[ti].completedTick == e.tick {
			continue
		}
		e.dispatch(ti, st.guides[ti].Result, ir.PhaseRepeat, now)
	}
}
