package capability

import (
	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

// layerShift holds a layer while its trigger is held: the press pushes it
// Held and the release result pops it.
func layerShift(inv *engine.Invocation) error {
	id := int(inv.Param(0))
	switch inv.Phase {
	case ir.PhasePress:
		return inv.Layers().Push(id, engine.ModeHeld)
	case ir.PhaseRelease:
		return inv.Layers().Pop(id)
	}
	return nil
}

func layerLatch(inv *engine.Invocation) error {
	return inv.Layers().Push(int(inv.Param(0)), engine.ModeLatched)
}

func layerLock(inv *engine.Invocation) error {
	return inv.Layers().Lock(int(inv.Param(0)))
}

func layerToggle(inv *engine.Invocation) error {
	return inv.Layers().Toggle(int(inv.Param(0)))
}

func layerRelease(inv *engine.Invocation) error {
	return inv.Layers().Pop(int(inv.Param(0)))
}

func layerClear(inv *engine.Invocation) error {
	inv.Layers().Clear()
	return nil
}

// layerRotate steps through the layers; param 0 is the direction.
func layerRotate(inv *engine.Invocation) error {
	inv.Layers().Rotate(int(inv.Param(0)))
	return nil
}

// rotate moves rotary input param 0 by param 1 and replaces param 1 with
// the new position.
func rotate(inv *engine.Invocation) error {
	pos, err := inv.Rotate(int(inv.Param(0)), inv.Param(1))
	if err != nil {
		return err
	}
	inv.Params[1] = pos
	return nil
}
