package engine

import (
	"errors"
	"fmt"
)

// LayerMode is the runtime activation mode of a layer.
type LayerMode uint8

const (
	ModeOff LayerMode = iota
	ModeHeld
	ModeLatched
	ModeLocked
)

func (m LayerMode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeld:
		return "held"
	case ModeLatched:
		return "latched"
	case ModeLocked:
		return "locked"
	}
	return fmt.Sprintf("LayerMode(%d)", uint8(m))
}

// ErrLayerStackFull is returned by Push when the stack is at capacity.
var ErrLayerStackFull = errors.New("layer stack full")

// LayerStack is the ordered set of active (non-Off) layers, most recently
// activated on top. The default layer is implicitly at the bottom and is
// never on the stack.
//
// Capacity is fixed when the stack is built; no operation allocates.
// Only dispatched capabilities mutate the stack.
type LayerStack struct {
	modes   []LayerMode
	stack   []int
	def     int
	version uint64
}

// NewLayerStack creates an empty stack for n layers with the given default
// layer and capacity.
func NewLayerStack(n, defaultLayer, depth int) *LayerStack {
	if depth < 1 {
		depth = 1
	}
	return &LayerStack{
		modes: make([]LayerMode, n),
		stack: make([]int, 0, depth),
		def:   defaultLayer,
	}
}

func (s *LayerStack) check(id int) error {
	if id < 0 || id >= len(s.modes) {
		return fmt.Errorf("layer %d out of range (%d layers)", id, len(s.modes))
	}
	if id == s.def {
		return fmt.Errorf("layer %d is the default layer", id)
	}
	return nil
}

// remove deletes id from the stack if present. Returns whether it was there.
func (s *LayerStack) remove(id int) bool {
	for i, l := range s.stack {
		if l == id {
			copy(s.stack[i:], s.stack[i+1:])
			s.stack = s.stack[:len(s.stack)-1]
			return true
		}
	}
	return false
}

// Push activates id with mode, moving it to the top if already active.
func (s *LayerStack) Push(id int, mode LayerMode) error {
	if err := s.check(id); err != nil {
		return err
	}
	if mode == ModeOff {
		return s.Pop(id)
	}
	if !s.remove(id) && len(s.stack) == cap(s.stack) {
		return ErrLayerStackFull
	}
	s.stack = append(s.stack, id)
	s.modes[id] = mode
	s.version++
	return nil
}

// Pop deactivates id. Popping an inactive layer is a no-op.
func (s *LayerStack) Pop(id int) error {
	if err := s.check(id); err != nil {
		return err
	}
	if s.remove(id) {
		s.modes[id] = ModeOff
		s.version++
	}
	return nil
}

// Toggle deactivates id if active, otherwise activates it Locked.
func (s *LayerStack) Toggle(id int) error {
	if err := s.check(id); err != nil {
		return err
	}
	if s.modes[id] != ModeOff {
		return s.Pop(id)
	}
	return s.Push(id, ModeLocked)
}

// Lock activates id Locked. It stays active until popped or toggled.
func (s *LayerStack) Lock(id int) error {
	return s.Push(id, ModeLocked)
}

// Clear deactivates every layer.
func (s *LayerStack) Clear() {
	if len(s.stack) == 0 {
		return
	}
	for _, id := range s.stack {
		s.modes[id] = ModeOff
	}
	s.stack = s.stack[:0]
	s.version++
}

// Rotate replaces the stack with the layer dir steps away from the current
// top (or the default layer when the stack is empty), locked. Landing on
// the default layer leaves the stack empty.
func (s *LayerStack) Rotate(dir int) {
	n := len(s.modes)
	if n < 2 || dir == 0 {
		return
	}
	cur := s.def
	if len(s.stack) > 0 {
		cur = s.stack[len(s.stack)-1]
	}
	next := ((cur+dir)%n + n) % n

	s.Clear()
	if next != s.def {
		s.stack = append(s.stack, next)
		s.modes[next] = ModeLocked
	}
	s.version++
}

// PopLatched deactivates every Latched layer. Returns whether any was popped.
func (s *LayerStack) PopLatched() bool {
	kept := s.stack[:0]
	popped := false
	for _, id := range s.stack {
		if s.modes[id] == ModeLatched {
			s.modes[id] = ModeOff
			popped = true
			continue
		}
		kept = append(kept, id)
	}
	s.stack = kept
	if popped {
		s.version++
	}
	return popped
}

// Mode returns the mode of id; the default layer and unknown ids report Off.
func (s *LayerStack) Mode(id int) LayerMode {
	if id < 0 || id >= len(s.modes) {
		return ModeOff
	}
	return s.modes[id]
}

// Active returns a copy of the active layers, bottom to top.
func (s *LayerStack) Active() []int {
	return append([]int(nil), s.stack...)
}

// Len returns the number of active layers.
func (s *LayerStack) Len() int {
	return len(s.stack)
}

// Default returns the default layer id.
func (s *LayerStack) Default() int {
	return s.def
}

// Version changes on every mutation of the stack.
func (s *LayerStack) Version() uint64 {
	return s.version
}
