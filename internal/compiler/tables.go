package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/kllcore/internal/ir"
)

// CompileTables parses a CUE tables struct into a TableSet.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// Capabilities, results and triggers are referenced by label and receive
// indices in declaration order. Layers list trigger labels; each trigger is
// indexed under every scan code it references. Scan codes listed in a
// layer's block are mapped to an empty list, which shadows lower layers.
//
//	tables: {
//		name:          "demo"
//		max_scan_code: 128
//		capability: "hid.keyboard": arity: 1
//		result: a: [{cap: "hid.keyboard", params: [4]}]
//		trigger: a: {
//			steps: [{conditions: [{scan: 4}]}]
//			result: "a"
//		}
//		layer: [{name: "base", default: true, triggers: ["a"]}]
//	}
//
// The result is not validated; call ValidateTables.
func CompileTables(v cue.Value) (*ir.TableSet, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, &CompileError{Field: "tables", Message: "tables value does not exist"}
	}

	ts := &ir.TableSet{Version: ir.TableVersion}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		ts.Name = labels[len(labels)-1].String()
	}
	if name, ok, err := optString(v, "name"); err != nil {
		return nil, err
	} else if ok {
		ts.Name = name
	}

	maxVal := v.LookupPath(cue.ParsePath("max_scan_code"))
	if !maxVal.Exists() {
		return nil, &CompileError{Field: "max_scan_code", Message: "max_scan_code is required", Pos: v.Pos()}
	}
	maxScan, err := toInt(maxVal, "max_scan_code")
	if err != nil {
		return nil, err
	}
	ts.MaxScanCode = int(maxScan)

	caps, err := parseCapabilities(v)
	if err != nil {
		return nil, err
	}
	ts.Capabilities = caps.defs

	results, err := parseResults(v, caps.index)
	if err != nil {
		return nil, err
	}
	ts.Results = results.defs

	triggers, err := parseTriggers(v, ts, results.index)
	if err != nil {
		return nil, err
	}

	ts.Layers, err = parseLayers(v, ts, triggers)
	if err != nil {
		return nil, err
	}

	if err := parseAuxiliary(v, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// labelIndex maps declaration labels to indices.
type labelIndex map[string]int

type capabilityTable struct {
	defs  []ir.CapabilityDef
	index labelIndex
}

func parseCapabilities(v cue.Value) (capabilityTable, error) {
	out := capabilityTable{index: labelIndex{}}
	capVal := v.LookupPath(cue.ParsePath("capability"))
	if !capVal.Exists() {
		return out, nil
	}
	iter, err := capVal.Fields()
	if err != nil {
		return out, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		def := ir.CapabilityDef{Name: label}
		if arity, ok, err := optInt(iter.Value(), "arity"); err != nil {
			return out, err
		} else if ok {
			def.Arity = int(arity)
		}
		if name, ok, err := optString(iter.Value(), "name"); err != nil {
			return out, err
		} else if ok {
			def.Name = name
		}
		out.index[label] = len(out.defs)
		out.defs = append(out.defs, def)
	}
	return out, nil
}

type resultTable struct {
	defs  []ir.ResultMacro
	index labelIndex
}

func parseResults(v cue.Value, caps labelIndex) (resultTable, error) {
	out := resultTable{index: labelIndex{}}
	resVal := v.LookupPath(cue.ParsePath("result"))
	if !resVal.Exists() {
		return out, nil
	}
	iter, err := resVal.Fields()
	if err != nil {
		return out, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		calls, err := iter.Value().List()
		if err != nil {
			return out, &CompileError{
				Field:   "result." + label,
				Message: "result must be a list of capability calls",
				Pos:     iter.Value().Pos(),
			}
		}
		rm := ir.ResultMacro{Name: label}
		for calls.Next() {
			call, err := parseCall(calls.Value(), label, caps)
			if err != nil {
				return out, err
			}
			rm.Calls = append(rm.Calls, call)
		}
		out.index[label] = len(out.defs)
		out.defs = append(out.defs, rm)
	}
	return out, nil
}

func parseCall(v cue.Value, result string, caps labelIndex) (ir.CapabilityCall, error) {
	field := "result." + result
	capName, ok, err := optString(v, "cap")
	if err != nil {
		return ir.CapabilityCall{}, err
	}
	if !ok {
		return ir.CapabilityCall{}, &CompileError{Field: field, Message: "call is missing cap", Pos: v.Pos()}
	}
	idx, ok := caps[capName]
	if !ok {
		return ir.CapabilityCall{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unknown capability %q", capName),
			Pos:     v.Pos(),
		}
	}
	call := ir.CapabilityCall{Capability: idx}
	if pv := v.LookupPath(cue.ParsePath("params")); pv.Exists() {
		call.Params, err = int32List(pv, field+".params")
		if err != nil {
			return ir.CapabilityCall{}, err
		}
	}
	return call, nil
}

func parseTriggers(v cue.Value, ts *ir.TableSet, results labelIndex) (labelIndex, error) {
	index := labelIndex{}
	trigVal := v.LookupPath(cue.ParsePath("trigger"))
	if !trigVal.Exists() {
		return index, nil
	}
	iter, err := trigVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		tv := iter.Value()
		field := "trigger." + label

		m := ir.TriggerMacro{Name: label}
		steps, err := tv.LookupPath(cue.ParsePath("steps")).List()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "steps must be a list", Pos: tv.Pos()}
		}
		for steps.Next() {
			step, err := parseStep(steps.Value(), field)
			if err != nil {
				return nil, err
			}
			m.Steps = append(m.Steps, step)
		}
		if m.WindowMS, _, err = optInt(tv, "window_ms"); err != nil {
			return nil, err
		}
		if m.Repeat, _, err = optBool(tv, "repeat"); err != nil {
			return nil, err
		}
		if m.Tolerant, _, err = optBool(tv, "tolerant"); err != nil {
			return nil, err
		}

		g := ir.Guide{Trigger: len(ts.Triggers), Release: ir.NoResult}
		resName, ok, err := optString(tv, "result")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CompileError{Field: field + ".result", Message: "result is required", Pos: tv.Pos()}
		}
		if g.Result, ok = results[resName]; !ok {
			return nil, &CompileError{Field: field + ".result", Message: fmt.Sprintf("unknown result %q", resName), Pos: tv.Pos()}
		}

		hold, _, err := optBool(tv, "hold")
		if err != nil {
			return nil, err
		}
		if hold {
			g.Release = g.Result
		}
		if relName, ok, err := optString(tv, "release"); err != nil {
			return nil, err
		} else if ok {
			if g.Release, ok = results[relName]; !ok {
				return nil, &CompileError{Field: field + ".release", Message: fmt.Sprintf("unknown result %q", relName), Pos: tv.Pos()}
			}
		}

		index[label] = len(ts.Triggers)
		ts.Triggers = append(ts.Triggers, m)
		ts.Guides = append(ts.Guides, g)
	}
	return index, nil
}

func parseStep(v cue.Value, field string) (ir.TriggerStep, error) {
	step := ir.TriggerStep{Kind: ir.StepSequential}
	if kind, ok, err := optString(v, "kind"); err != nil {
		return step, err
	} else if ok {
		step.Kind = ir.StepKind(kind)
	}
	conds, err := v.LookupPath(cue.ParsePath("conditions")).List()
	if err != nil {
		return step, &CompileError{Field: field + ".steps", Message: "conditions must be a list", Pos: v.Pos()}
	}
	for conds.Next() {
		cv := conds.Value()
		scan, err := toInt(cv.LookupPath(cue.ParsePath("scan")), field+".scan")
		if err != nil {
			return step, err
		}
		c := ir.Condition{ScanCode: ir.ScanCode(scan), Edge: ir.EdgePress}
		if scan < 0 || scan >= ir.MaxScanCodeLimit {
			return step, &CompileError{Field: field + ".scan", Message: fmt.Sprintf("scan code %d out of range", scan), Pos: cv.Pos()}
		}
		if edge, ok, err := optString(cv, "edge"); err != nil {
			return step, err
		} else if ok {
			c.Edge = ir.EdgeKind(edge)
		}
		if th, ok, err := optInt(cv, "threshold"); err != nil {
			return step, err
		} else if ok {
			c.Threshold = int32(th)
		}
		if d, ok, err := optInt(cv, "delta"); err != nil {
			return step, err
		} else if ok {
			c.Delta = int32(d)
		}
		step.Conditions = append(step.Conditions, c)
	}
	return step, nil
}

func parseLayers(v cue.Value, ts *ir.TableSet, triggers labelIndex) ([]ir.Layer, error) {
	layerVal := v.LookupPath(cue.ParsePath("layer"))
	if !layerVal.Exists() {
		return nil, &CompileError{Field: "layer", Message: "at least one layer is required", Pos: v.Pos()}
	}
	iter, err := layerVal.List()
	if err != nil {
		return nil, &CompileError{Field: "layer", Message: "layer must be a list", Pos: layerVal.Pos()}
	}

	var layers []ir.Layer
	for iter.Next() {
		lv := iter.Value()
		l := ir.Layer{Triggers: map[ir.ScanCode][]int{}}
		name, ok, err := optString(lv, "name")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CompileError{Field: "layer", Message: "layer name is required", Pos: lv.Pos()}
		}
		l.Name = name
		field := "layer." + name
		if l.Default, _, err = optBool(lv, "default"); err != nil {
			return nil, err
		}

		if tl := lv.LookupPath(cue.ParsePath("triggers")); tl.Exists() {
			names, err := tl.List()
			if err != nil {
				return nil, &CompileError{Field: field, Message: "triggers must be a list", Pos: tl.Pos()}
			}
			for names.Next() {
				tn, err := names.Value().String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				ti, ok := triggers[tn]
				if !ok {
					return nil, &CompileError{Field: field, Message: fmt.Sprintf("unknown trigger %q", tn), Pos: names.Value().Pos()}
				}
				for _, sc := range ts.Triggers[ti].ScanCodes() {
					if !slices.Contains(l.Triggers[sc], ti) {
						l.Triggers[sc] = append(l.Triggers[sc], ti)
					}
				}
			}
		}

		if bl := lv.LookupPath(cue.ParsePath("block")); bl.Exists() {
			blocked, err := int32List(bl, field+".block")
			if err != nil {
				return nil, err
			}
			for _, b := range blocked {
				sc := ir.ScanCode(b)
				if len(l.Triggers[sc]) > 0 {
					return nil, &CompileError{
						Field:   field + ".block",
						Message: fmt.Sprintf("scan code %d is blocked but used by trigger %q", b, ts.Triggers[l.Triggers[sc][0]].Name),
						Pos:     bl.Pos(),
					}
				}
				l.Triggers[sc] = []int{}
			}
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func parseAuxiliary(v cue.Value, ts *ir.TableSet) error {
	if ov := v.LookupPath(cue.ParsePath("interconnect_offsets")); ov.Exists() {
		offsets, err := int32List(ov, "interconnect_offsets")
		if err != nil {
			return err
		}
		for _, o := range offsets {
			if o < 0 || o >= ir.MaxScanCodeLimit {
				return &CompileError{Field: "interconnect_offsets", Message: fmt.Sprintf("offset %d out of range", o), Pos: ov.Pos()}
			}
			ts.InterconnectOffsets = append(ts.InterconnectOffsets, ir.ScanCode(o))
		}
	}

	if rv := v.LookupPath(cue.ParsePath("rotation_max")); rv.Exists() {
		rot, err := int32List(rv, "rotation_max")
		if err != nil {
			return err
		}
		ts.RotationMax = rot
	}

	if pv := v.LookupPath(cue.ParsePath("positions")); pv.Exists() {
		iter, err := pv.List()
		if err != nil {
			return &CompileError{Field: "positions", Message: "positions must be a list", Pos: pv.Pos()}
		}
		for iter.Next() {
			var p ir.Position
			if err := iter.Value().Decode(&p); err != nil {
				return formatCUEError(err)
			}
			ts.Positions = append(ts.Positions, p)
		}
	}

	if uv := v.LookupPath(cue.ParsePath("unicode_strings")); uv.Exists() {
		iter, err := uv.List()
		if err != nil {
			return &CompileError{Field: "unicode_strings", Message: "unicode_strings must be a list", Pos: uv.Pos()}
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return formatCUEError(err)
			}
			ts.UnicodeStrings = append(ts.UnicodeStrings, norm.NFC.String(s))
		}
	}
	return nil
}

// toInt reads an integer. Floats are rejected: the tables are integer-only.
func toInt(v cue.Value, field string) (int64, error) {
	if !v.Exists() {
		return 0, &CompileError{Field: field, Message: "value is required", Pos: v.Pos()}
	}
	switch v.IncompleteKind() {
	case cue.FloatKind, cue.NumberKind:
		return 0, &CompileError{Field: field, Message: "float values are forbidden - use int instead", Pos: v.Pos()}
	}
	n, err := v.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

func int32List(v cue.Value, field string) ([]int32, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of integers", Pos: v.Pos()}
	}
	out := []int32{}
	for iter.Next() {
		n, err := toInt(iter.Value(), field)
		if err != nil {
			return nil, err
		}
		out = append(out, int32(n))
	}
	return out, nil
}

func optString(v cue.Value, name string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func optInt(v cue.Value, name string) (int64, bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return 0, false, nil
	}
	n, err := toInt(f, name)
	return n, err == nil, err
}

func optBool(v cue.Value, name string) (bool, bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, false, formatCUEError(err)
	}
	return b, true, nil
}
