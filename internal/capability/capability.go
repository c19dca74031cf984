// Package capability provides the standard capability set tables bind to by
// name.
//
// Capabilities run on the tick path. They validate their parameters, apply
// side effects the engine owns (layer stack, rotary positions) and return;
// HID and host side effects are carried to the host interface as the
// emitted action itself. An error skips that one action.
package capability

import (
	"fmt"

	"github.com/roach88/kllcore/internal/engine"
	"github.com/roach88/kllcore/internal/ir"
)

// Capability names.
const (
	NoOp         = "noop"
	HIDKeyboard  = "hid.keyboard"
	HIDConsumer  = "hid.consumer"
	HIDSystem    = "hid.system"
	HIDProtocol  = "hid.protocol"
	LayerShift   = "layer.shift"
	LayerLatch   = "layer.latch"
	LayerLock    = "layer.lock"
	LayerToggle  = "layer.toggle"
	LayerRelease = "layer.release"
	LayerClear   = "layer.clear"
	LayerRotate  = "layer.rotate"
	Rotate       = "rotate"
	UnicodeStr   = "unicode.string"
	UnicodeChar  = "unicode.char"
	URLOpen      = "url.open"
	MCUFlash     = "mcu.flash"
)

type entry struct {
	name  string
	arity int
	fn    engine.CapabilityFunc
}

// standard lists every capability in table order. Definitions keeps this
// order so generated tables get stable indices.
var standard = []entry{
	{NoOp, 0, noop},
	{HIDKeyboard, 1, usage(HIDKeyboard, KeyboardMin, KeyboardMax)},
	{HIDConsumer, 1, usage(HIDConsumer, ConsumerMin, ConsumerMax)},
	{HIDSystem, 1, usage(HIDSystem, SystemMin, SystemMax)},
	{HIDProtocol, 1, protocol},
	{LayerShift, 1, layerShift},
	{LayerLatch, 1, onPress(layerLatch)},
	{LayerLock, 1, onPress(layerLock)},
	{LayerToggle, 1, onPress(layerToggle)},
	{LayerRelease, 1, onPress(layerRelease)},
	{LayerClear, 0, onPress(layerClear)},
	{LayerRotate, 1, onPress(layerRotate)},
	{Rotate, 2, onPress(rotate)},
	{UnicodeStr, 1, unicodeString},
	{UnicodeChar, 1, unicodeChar},
	{URLOpen, 1, urlOpen},
	{MCUFlash, 0, noop},
}

// Standard returns a registry holding every standard capability.
func Standard() *engine.Registry {
	r := engine.NewRegistry()
	Install(r)
	return r
}

// Install registers the standard capabilities in r. It panics if r already
// holds one of their names.
func Install(r *engine.Registry) {
	for _, e := range standard {
		r.MustRegister(e.name, e.fn)
	}
}

// Definitions returns the capability table rows for the standard set.
func Definitions() []ir.CapabilityDef {
	defs := make([]ir.CapabilityDef, len(standard))
	for i, e := range standard {
		defs[i] = ir.CapabilityDef{Name: e.name, Arity: e.arity}
	}
	return defs
}

// Arity returns the parameter count of a standard capability.
func Arity(name string) (int, bool) {
	for _, e := range standard {
		if e.name == name {
			return e.arity, true
		}
	}
	return 0, false
}

func noop(*engine.Invocation) error { return nil }

// onPress runs fn for the press phase only; repeats and releases are no-ops.
func onPress(fn engine.CapabilityFunc) engine.CapabilityFunc {
	return func(inv *engine.Invocation) error {
		if inv.Phase != ir.PhasePress {
			return nil
		}
		return fn(inv)
	}
}

func paramRange(inv *engine.Invocation, i int, lo, hi int32) (int32, error) {
	v := inv.Param(i)
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s: param %d = %d out of range [%d, %d]", inv.Name, i, v, lo, hi)
	}
	return v, nil
}
