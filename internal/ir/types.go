package ir

import (
	"fmt"
	"time"
)

// Table limits shared by the compiler and the engine.
const (
	// MaxParams is the maximum number of parameters a capability call carries.
	MaxParams = 4

	// MaxComboWidth is the maximum number of conditions in one trigger step.
	// Coverage of a step is tracked in a uint32 bitmask.
	MaxComboWidth = 32

	// MaxScanCodeLimit is the largest value MaxScanCode may take.
	MaxScanCodeLimit = 1 << 16

	// NoResult marks a guide without a release variant.
	NoResult = -1
)

// ScanCode identifies one physical input in the global scan code space.
type ScanCode uint16

// EdgeKind is the kind of input edge an event carries and a condition matches.
type EdgeKind string

const (
	EdgePress    EdgeKind = "press"
	EdgeRelease  EdgeKind = "release"
	EdgeAnalog   EdgeKind = "analog"
	EdgeRotation EdgeKind = "rotation"
)

// Valid reports whether k is one of the known edge kinds.
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgePress, EdgeRelease, EdgeAnalog, EdgeRotation:
		return true
	}
	return false
}

// ParseEdgeKind converts a string to an EdgeKind.
func ParseEdgeKind(s string) (EdgeKind, error) {
	k := EdgeKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown edge kind %q (want press, release, analog or rotation)", s)
	}
	return k, nil
}

// StepKind distinguishes ordered steps from order-independent combos.
type StepKind string

const (
	StepSequential StepKind = "sequential"
	StepCombo      StepKind = "combo"
)

// Valid reports whether k is a known step kind.
func (k StepKind) Valid() bool {
	return k == StepSequential || k == StepCombo
}

// Condition is one (scan code, edge) requirement of a trigger step.
//
// Threshold applies to analog edges: the event value must reach it.
// Delta applies to rotation edges: 0 accepts any direction, otherwise the
// event value must have the same sign.
type Condition struct {
	ScanCode  ScanCode `json:"scan_code"`
	Edge      EdgeKind `json:"edge"`
	Threshold int32    `json:"threshold,omitempty"`
	Delta     int32    `json:"delta,omitempty"`
}

// TriggerStep is one step of a trigger macro.
// A sequential step with several conditions is satisfied in listed order.
type TriggerStep struct {
	Kind       StepKind    `json:"kind"`
	Conditions []Condition `json:"conditions"`
}

// TriggerMacro defines a sequence of trigger steps.
type TriggerMacro struct {
	Name  string        `json:"name"`
	Steps []TriggerStep `json:"steps"`

	// WindowMS bounds combo steps; 0 uses the engine's configured default.
	WindowMS int64 `json:"window_ms,omitempty"`

	// Repeat marks hold-and-repeat macros.
	Repeat bool `json:"repeat,omitempty"`

	// Tolerant macros are not reset by a non-matching event.
	Tolerant bool `json:"tolerant,omitempty"`
}

// Window returns the combo window, falling back to def when unset.
func (m *TriggerMacro) Window(def time.Duration) time.Duration {
	if m.WindowMS > 0 {
		return time.Duration(m.WindowMS) * time.Millisecond
	}
	return def
}

// Holdable reports whether the final step contains a press condition.
// Only holdable macros can stay HeldActive after completion.
func (m *TriggerMacro) Holdable() bool {
	if len(m.Steps) == 0 {
		return false
	}
	for _, c := range m.Steps[len(m.Steps)-1].Conditions {
		if c.Edge == EdgePress {
			return true
		}
	}
	return false
}

// ScanCodes returns every scan code the macro references, in first-use order.
func (m *TriggerMacro) ScanCodes() []ScanCode {
	seen := make(map[ScanCode]bool)
	var out []ScanCode
	for _, step := range m.Steps {
		for _, c := range step.Conditions {
			if !seen[c.ScanCode] {
				seen[c.ScanCode] = true
				out = append(out, c.ScanCode)
			}
		}
	}
	return out
}

// CapabilityDef is one row of the capability table.
// The engine binds Name to a registered implementation at load.
type CapabilityDef struct {
	Name  string `json:"name"`
	Arity int    `json:"arity"`
}

// CapabilityCall invokes a capability by index with fixed parameters.
type CapabilityCall struct {
	Capability int     `json:"capability"`
	Params     []int32 `json:"params,omitempty"`
}

// ResultMacro is an ordered sequence of capability calls.
type ResultMacro struct {
	Name  string           `json:"name"`
	Calls []CapabilityCall `json:"calls"`
}

// Guide maps a trigger macro to its press result and optional release result.
type Guide struct {
	Trigger int `json:"trigger"`
	Result  int `json:"result"`
	Release int `json:"release"`
}

// HasRelease reports whether the guide carries a release variant.
func (g Guide) HasRelease() bool {
	return g.Release != NoResult
}

// Layer maps scan codes to candidate trigger macro indices.
//
// A scan code present in Triggers shadows every lower layer, even when its
// list is empty. An absent scan code falls through.
type Layer struct {
	Name     string             `json:"name"`
	Default  bool               `json:"default,omitempty"`
	Triggers map[ScanCode][]int `json:"triggers"`
}

// Position is the static placement of one key. Lengths are micrometres,
// angles are millidegrees.
type Position struct {
	X  int32 `json:"x"`
	Y  int32 `json:"y"`
	Z  int32 `json:"z"`
	RX int32 `json:"rx"`
	RY int32 `json:"ry"`
	RZ int32 `json:"rz"`
}

// TableSet is the complete, externally supplied table blob.
// Indices into Capabilities, Results and Triggers are positions in those slices.
type TableSet struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	MaxScanCode int    `json:"max_scan_code"`

	Capabilities []CapabilityDef `json:"capabilities"`
	Results      []ResultMacro   `json:"results"`
	Triggers     []TriggerMacro  `json:"triggers"`
	Guides       []Guide         `json:"guides"`
	Layers       []Layer         `json:"layers"`

	InterconnectOffsets []ScanCode `json:"interconnect_offsets,omitempty"`
	Positions           []Position `json:"positions,omitempty"`
	RotationMax         []int32    `json:"rotation_max,omitempty"`
	UnicodeStrings      []string   `json:"unicode_strings,omitempty"`
}

// EmptyTableSet returns the table set an engine runs on before any load:
// one empty default layer and no macros. Every scan code is out of range.
func EmptyTableSet() *TableSet {
	return &TableSet{
		Name:    "empty",
		Version: TableVersion,
		Layers: []Layer{{
			Name:     "default",
			Default:  true,
			Triggers: map[ScanCode][]int{},
		}},
	}
}

// DefaultLayer returns the index of the first layer flagged Default, or -1.
func (ts *TableSet) DefaultLayer() int {
	for i, l := range ts.Layers {
		if l.Default {
			return i
		}
	}
	return -1
}

// LayerIndex returns the index of the named layer, or -1.
func (ts *TableSet) LayerIndex(name string) int {
	for i, l := range ts.Layers {
		if l.Name == name {
			return i
		}
	}
	return -1
}
