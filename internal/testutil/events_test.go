package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/ir"
)

func TestEventBuilders(t *testing.T) {
	assert.Equal(t, ir.InputEvent{ScanCode: 3, Edge: ir.EdgePress, Time: 10 * time.Millisecond}, Press(3, 10))
	assert.Equal(t, ir.InputEvent{ScanCode: 3, Edge: ir.EdgeRelease, Time: 12 * time.Millisecond}, Release(3, 12))
	assert.Equal(t, ir.InputEvent{ScanCode: 4, Edge: ir.EdgeAnalog, Value: 90}, Analog(4, 90, 0))
	assert.Equal(t, int32(-1), Rotation(5, -1, 0).Value)
}

func TestTap(t *testing.T) {
	evs := Tap(1, 100, 30)
	require.Len(t, evs, 2)
	assert.Equal(t, ir.EdgePress, evs[0].Edge)
	assert.Equal(t, 100*time.Millisecond, evs[0].Time)
	assert.Equal(t, ir.EdgeRelease, evs[1].Edge)
	assert.Equal(t, 130*time.Millisecond, evs[1].Time)
}
