package engine

import (
	"github.com/roach88/kllcore/internal/ir"
)

// resolver selects the candidate trigger list for a scan code.
//
// Each layer gets a dense index over the scan code space built at load:
// index[layer][sc] is -1 when the layer has no entry for sc, otherwise the
// position of its list in lists. Present-but-empty entries have an index
// like any other, which is what lets them shadow lower layers.
type resolver struct {
	index [][]int32
	lists [][]int
	def   int
}

func newResolver(ts *ir.TableSet) resolver {
	r := resolver{
		index: make([][]int32, len(ts.Layers)),
		def:   ts.DefaultLayer(),
	}
	for li, layer := range ts.Layers {
		idx := make([]int32, ts.MaxScanCode)
		for i := range idx {
			idx[i] = -1
		}
		for sc, list := range layer.Triggers {
			if int(sc) >= ts.MaxScanCode {
				continue
			}
			idx[sc] = int32(len(r.lists))
			if list == nil {
				list = []int{}
			}
			r.lists = append(r.lists, list)
		}
		r.index[li] = idx
	}
	return r
}

// lookup returns the list layer defines for sc and whether it defines one.
func (r *resolver) lookup(layer int, sc ir.ScanCode) ([]int, bool) {
	if layer < 0 || layer >= len(r.index) || int(sc) >= len(r.index[layer]) {
		return nil, false
	}
	i := r.index[layer][sc]
	if i < 0 {
		return nil, false
	}
	return r.lists[i], true
}

// resolve walks the active layers top to bottom and returns the first list
// defined for sc, falling back to the default layer. A nil result means no
// layer maps sc and the event has no effect.
func (r *resolver) resolve(sc ir.ScanCode, layers *LayerStack) []int {
	for i := len(layers.stack) - 1; i >= 0; i-- {
		if list, ok := r.lookup(layers.stack[i], sc); ok {
			return list
		}
	}
	list, _ := r.lookup(r.def, sc)
	return list
}
