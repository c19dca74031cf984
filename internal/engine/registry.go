package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/kllcore/internal/ir"
)

// CapabilityFunc implements one capability. It runs on the tick path and
// must not block. Returning an error skips the action it would have emitted.
type CapabilityFunc func(inv *Invocation) error

// Registry maps capability names to implementations.
//
// Tables reference capabilities by index; at load each index is bound to the
// implementation registered under the table's capability name. Names with no
// implementation stay unbound and surface as UNKNOWN_CAPABILITY at dispatch.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]CapabilityFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]CapabilityFunc)}
}

// Register adds an implementation. Registering a name twice is an error.
func (r *Registry) Register(name string, fn CapabilityFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("capability name and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.funcs[name]; dup {
		return fmt.Errorf("capability %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, fn CapabilityFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the implementation registered under name.
func (r *Registry) Lookup(name string) (CapabilityFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// bind resolves each capability definition to its implementation.
// Unbound entries are nil.
func (r *Registry) bind(defs []ir.CapabilityDef) (bound []CapabilityFunc, missing []string) {
	bound = make([]CapabilityFunc, len(defs))
	for i, d := range defs {
		fn, ok := r.Lookup(d.Name)
		if !ok {
			missing = append(missing, d.Name)
			continue
		}
		bound[i] = fn
	}
	return bound, missing
}

// Invocation is the context of one capability call.
//
// Params starts as a copy of the table's parameters; a capability may
// rewrite it and the emitted action carries the rewritten values.
// The engine reuses one Invocation; capabilities must not retain it.
type Invocation struct {
	Capability int
	Name       string
	Trigger    int
	Phase      ir.Phase
	Time       time.Duration
	Params     [ir.MaxParams]int32
	NParams    int

	st *state
}

// Param returns parameter i, or 0 when the call has fewer parameters.
func (inv *Invocation) Param(i int) int32 {
	if i < 0 || i >= inv.NParams {
		return 0
	}
	return inv.Params[i]
}

// Layers returns the live layer stack.
func (inv *Invocation) Layers() *LayerStack {
	return inv.st.layers
}

// Tables returns the loaded table set. It must not be modified.
func (inv *Invocation) Tables() *ir.TableSet {
	return inv.st.tables
}

// Rotate moves rotary input index by delta, wrapping within
// [0, RotationMax[index]), and returns the new position.
func (inv *Invocation) Rotate(index int, delta int32) (int32, error) {
	st := inv.st
	if index < 0 || index >= len(st.tables.RotationMax) {
		return 0, fmt.Errorf("rotation index %d out of range (%d inputs)", index, len(st.tables.RotationMax))
	}
	bound := st.tables.RotationMax[index]
	pos := (st.rotation[index] + delta) % bound
	if pos < 0 {
		pos += bound
	}
	st.rotation[index] = pos
	return pos, nil
}

// RotationPosition returns the current position of rotary input index.
func (inv *Invocation) RotationPosition(index int) int32 {
	if index < 0 || index >= len(inv.st.rotation) {
		return 0
	}
	return inv.st.rotation[index]
}
