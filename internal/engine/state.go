package engine

import (
	"time"

	"github.com/roach88/kllcore/internal/config"
	"github.com/roach88/kllcore/internal/ir"
)

// state is everything that belongs to one loaded table set. A reload builds
// a fresh state and swaps it in whole, so records never outlive their tables.
type state struct {
	tables *ir.TableSet
	hash   string

	resolver resolver
	records  recordStore
	layers   *LayerStack

	// Indexed by trigger.
	guides   []ir.Guide
	windows  []time.Duration
	holdKeys [][]ir.ScanCode

	// Indexed by capability; nil entries are unbound.
	bound []CapabilityFunc

	rotation []int32

	// keys has bit sc set while scan code sc is pressed.
	keys bitset
}

// ingress is the part of the live state Push needs, published atomically so
// producers never touch the tick mutex.
type ingress struct {
	maxScanCode int
	offsets     []ir.ScanCode
}

func buildState(ts *ir.TableSet, hash string, cfg config.Engine, bound []CapabilityFunc) *state {
	n := len(ts.Triggers)
	st := &state{
		tables:   ts,
		hash:     hash,
		resolver: newResolver(ts),
		records:  newRecordStore(n),
		layers:   NewLayerStack(len(ts.Layers), ts.DefaultLayer(), cfg.LayerStackDepth),
		guides:   make([]ir.Guide, n),
		windows:  make([]time.Duration, n),
		holdKeys: make([][]ir.ScanCode, n),
		bound:    bound,
		rotation: make([]int32, len(ts.RotationMax)),
		keys:     newBitset(ts.MaxScanCode),
	}
	for _, g := range ts.Guides {
		st.guides[g.Trigger] = g
	}
	for i := range ts.Triggers {
		m := &ts.Triggers[i]
		st.windows[i] = m.Window(cfg.ComboWindow)
		if len(m.Steps) == 0 {
			continue
		}
		for _, c := range m.Steps[len(m.Steps)-1].Conditions {
			if c.Edge == ir.EdgePress {
				st.holdKeys[i] = append(st.holdKeys[i], c.ScanCode)
			}
		}
	}
	return st
}

func (st *state) ingressInfo() *ingress {
	return &ingress{
		maxScanCode: st.tables.MaxScanCode,
		offsets:     st.tables.InterconnectOffsets,
	}
}

// holding reports whether every hold key of trigger ti is down.
func (st *state) holding(ti int) bool {
	keys := st.holdKeys[ti]
	if len(keys) == 0 {
		return false
	}
	for _, sc := range keys {
		if !st.keys.has(int(sc)) {
			return false
		}
	}
	return true
}

// holdsKey reports whether sc is one of the hold keys of trigger ti.
func (st *state) holdsKey(ti int, sc ir.ScanCode) bool {
	for _, k := range st.holdKeys[ti] {
		if k == sc {
			return true
		}
	}
	return false
}
