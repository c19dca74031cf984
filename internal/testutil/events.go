package testutil

import (
	"time"

	"github.com/roach88/kllcore/internal/ir"
)

// Press builds a press event at millisecond ms.
func Press(sc ir.ScanCode, ms int) ir.InputEvent {
	return ir.InputEvent{ScanCode: sc, Edge: ir.EdgePress, Time: Millis(ms)}
}

// Release builds a release event at millisecond ms.
func Release(sc ir.ScanCode, ms int) ir.InputEvent {
	return ir.InputEvent{ScanCode: sc, Edge: ir.EdgeRelease, Time: Millis(ms)}
}

// Analog builds an analog reading of value at millisecond ms.
func Analog(sc ir.ScanCode, value int32, ms int) ir.InputEvent {
	return ir.InputEvent{ScanCode: sc, Edge: ir.EdgeAnalog, Time: Millis(ms), Value: value}
}

// Rotation builds a rotation of delta detents at millisecond ms.
func Rotation(sc ir.ScanCode, delta int32, ms int) ir.InputEvent {
	return ir.InputEvent{ScanCode: sc, Edge: ir.EdgeRotation, Time: Millis(ms), Value: delta}
}

// Tap builds a press at ms followed by a release hold milliseconds later.
func Tap(sc ir.ScanCode, ms, hold int) []ir.InputEvent {
	return []ir.InputEvent{Press(sc, ms), Release(sc, ms+hold)}
}

// Millis converts a millisecond count to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
