package engine

import (
	"time"

	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/ir"
)

// complete dispatches the press result of a Finished record and moves it on
// to HeldActive or Idle.
func (e *Engine) complete(ti int, now time.Duration) {
	st := e.st
	g := st.guides[ti]
	m := &st.tables.Triggers[ti]

	st.records.records[ti].completedTick = e.tick
	e.stats.completions.Add(1)

	ver := st.layers.Version()
	e.dispatch(ti, g.Result, ir.PhasePress, now)
	touched := st.layers.Version() != ver

	st.records.resetRecord(ti)
	if (m.Repeat || g.HasRelease()) && m.Holdable() && st.holding(ti) {
		st.records.setStatus(ti, StatusHeldActive)
	}

	// A latched layer lasts for one result that does not itself touch the
	// stack.
	if !touched && st.layers.PopLatched() {
		touched = true
	}
	if touched {
		e.layersChanged()
	}
}

// release ends a HeldActive record, dispatching its release result if any.
func (e *Engine) release(ti int, now time.Duration) {
	st := e.st
	g := st.guides[ti]
	st.records.resetRecord(ti)
	if !g.HasRelease() {
		return
	}
	ver := st.layers.Version()
	e.dispatch(ti, g.Release, ir.PhaseRelease, now)
	if st.layers.Version() != ver {
		e.layersChanged()
	}
}

// layersChanged applies the layer switch policy after a stack mutation.
func (e *Engine) layersChanged() {
	if e.cfg.LayerSwitch != config.LayerSwitchReset {
		return
	}
	st := e.st
	for ti := st.records.pending.next(0); ti >= 0; ti = st.records.pending.next(ti + 1) {
		st.records.resetRecord(ti)
	}
}

// dispatch invokes result ri's capabilities in order, emitting one action per
// successful invocation. Unbound or failing capabilities are skipped and the
// rest of the sequence still runs.
func (e *Engine) dispatch(ti, ri int, phase ir.Phase, now time.Duration) {
	st := e.st
	res := &st.tables.Results[ri]
	inv := &e.inv

	for _, call := range res.Calls {
		name := st.tables.Capabilities[call.Capability].Name
		fn := st.bound[call.Capability]
		if fn == nil {
			e.stats.unknownCapabilities.Add(1)
			e.logger.Warn("skipping action",
				"error", NewUnknownCapabilityError(call.Capability, name),
				"trigger", ti,
				"result", ri)
			continue
		}

		*inv = Invocation{
			Capability: call.Capability,
			Name:       name,
			Trigger:    ti,
			Phase:      phase,
			Time:       now,
			NParams:    len(call.Params),
			st:         st,
		}
		copy(inv.Params[:], call.Params)

		if err := fn(inv); err != nil {
			e.stats.capabilityErrors.Add(1)
			e.logger.Warn("capability failed",
				"capability", name,
				"trigger", ti,
				"result", ri,
				"phase", phase,
				"error", err)
			continue
		}

		e.emit(ir.Action{
			Trigger:    ti,
			Result:     ri,
			Capability: call.Capability,
			Name:       name,
			Phase:      phase,
			Time:       now,
			Params:     inv.Params,
			NParams:    inv.NParams,
		})
	}
}

// emit stamps an action and hands it to the output queue.
func (e *Engine) emit(a ir.Action) {
	a.Seq = e.clock.Next()
	e.stats.actions.Add(1)
	if e.journal != nil {
		e.tickActions = append(e.tickActions, a)
	}
	if !e.output.Push(a) {
		e.logger.Warn("dropping action",
			"error", NewQueueOverflowError("output", e.output.Cap()),
			"seq", a.Seq,
			"capability", a.Name)
	}
}
