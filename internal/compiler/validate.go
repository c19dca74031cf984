package compiler

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/roach88/kllcore/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Table bounds (E200-E203)
	ErrMaxScanCode  = "E200" // max_scan_code out of range
	ErrEmptyTrigger = "E201" // trigger or step with nothing to match
	ErrScanCode     = "E202" // condition scan code >= max_scan_code
	ErrKind         = "E203" // unknown edge or step kind

	// References, limits and auxiliary tables (E204-E223)
	ErrGuideTrigger   = "E204" // guide trigger index out of range
	ErrGuideResult    = "E205" // guide result index out of range
	ErrGuideRelease   = "E206" // guide release index out of range
	ErrCapabilityRef  = "E207" // call capability index out of range
	ErrLayerTrigger   = "E208" // layer trigger index out of range
	ErrLayerScanCode  = "E209" // layer scan code >= max_scan_code
	ErrDefaultLayer   = "E210" // not exactly one default layer
	ErrArity          = "E211" // params count differs from capability arity
	ErrComboWidth     = "E212" // step wider than MaxComboWidth
	ErrGuideCoverage  = "E213" // trigger without exactly one guide
	ErrUnicodeString  = "E214" // invalid UTF-8 or embedded NUL
	ErrInterconnect   = "E215" // interconnect offset >= max_scan_code
	ErrRotationBound  = "E216" // rotation bound not positive
	ErrPositions      = "E217" // more positions than scan codes
	ErrWindow         = "E218" // negative combo window
	ErrParamsLimit    = "E219" // more than MaxParams params
	ErrDuplicateName  = "E220" // duplicate capability/result/trigger/layer name
	ErrNotHoldable    = "E221" // repeat or release result on a macro with no final press
	ErrTableVersion   = "E222" // unsupported table version
	ErrEmptyLayerName = "E223" // layer without a name
)

// ValidationError represents a table validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateTables checks every cross-reference and bound of ts.
// Returns all errors found (does not fail-fast).
func ValidateTables(ts *ir.TableSet) []ValidationError {
	v := &validator{ts: ts}

	if ts.Version != ir.TableVersion {
		v.add(ErrTableVersion, "version", "unsupported table version %q (want %q)", ts.Version, ir.TableVersion)
	}
	if ts.MaxScanCode < 1 || ts.MaxScanCode > ir.MaxScanCodeLimit {
		v.add(ErrMaxScanCode, "max_scan_code", "must be in 1..%d, got %d", ir.MaxScanCodeLimit, ts.MaxScanCode)
	}

	v.capabilities()
	v.results()
	v.triggers()
	v.guides()
	v.layers()
	v.auxiliary()
	return v.errs
}

type validator struct {
	ts   *ir.TableSet
	errs []ValidationError
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) scanCodeOK(sc ir.ScanCode) bool {
	return int(sc) < v.ts.MaxScanCode
}

func (v *validator) unique(kind string, i int, name string, seen map[string]bool) {
	if name == "" {
		return
	}
	if seen[name] {
		v.add(ErrDuplicateName, fmt.Sprintf("%s[%d].name", kind, i), "duplicate %s name %q", kind, name)
	}
	seen[name] = true
}

func (v *validator) capabilities() {
	seen := map[string]bool{}
	for i, c := range v.ts.Capabilities {
		v.unique("capabilities", i, c.Name, seen)
		if c.Arity < 0 || c.Arity > ir.MaxParams {
			v.add(ErrArity, fmt.Sprintf("capabilities[%d].arity", i), "arity must be in 0..%d, got %d", ir.MaxParams, c.Arity)
		}
	}
}

func (v *validator) results() {
	seen := map[string]bool{}
	for i, r := range v.ts.Results {
		v.unique("results", i, r.Name, seen)
		for j, call := range r.Calls {
			field := fmt.Sprintf("results[%d].calls[%d]", i, j)
			if len(call.Params) > ir.MaxParams {
				v.add(ErrParamsLimit, field+".params", "%d params exceed the limit of %d", len(call.Params), ir.MaxParams)
			}
			if call.Capability < 0 || call.Capability >= len(v.ts.Capabilities) {
				v.add(ErrCapabilityRef, field+".capability", "capability index %d out of range (%d defined)", call.Capability, len(v.ts.Capabilities))
				continue
			}
			if arity := v.ts.Capabilities[call.Capability].Arity; len(call.Params) != arity {
				v.add(ErrArity, field+".params", "capability %q takes %d params, got %d",
					v.ts.Capabilities[call.Capability].Name, arity, len(call.Params))
			}
		}
	}
}

func (v *validator) triggers() {
	seen := map[string]bool{}
	for i := range v.ts.Triggers {
		m := &v.ts.Triggers[i]
		field := fmt.Sprintf("triggers[%d]", i)
		v.unique("triggers", i, m.Name, seen)

		if len(m.Steps) == 0 {
			v.add(ErrEmptyTrigger, field+".steps", "trigger %q has no steps", m.Name)
		}
		if m.WindowMS < 0 {
			v.add(ErrWindow, field+".window_ms", "window must not be negative, got %d", m.WindowMS)
		}

		for j, step := range m.Steps {
			sfield := fmt.Sprintf("%s.steps[%d]", field, j)
			if !step.Kind.Valid() {
				v.add(ErrKind, sfield+".kind", "unknown step kind %q", step.Kind)
			}
			if len(step.Conditions) == 0 {
				v.add(ErrEmptyTrigger, sfield+".conditions", "step has no conditions")
			}
			if len(step.Conditions) > ir.MaxComboWidth {
				v.add(ErrComboWidth, sfield+".conditions", "%d conditions exceed the limit of %d", len(step.Conditions), ir.MaxComboWidth)
			}
			for k, c := range step.Conditions {
				cfield := fmt.Sprintf("%s.conditions[%d]", sfield, k)
				if !c.Edge.Valid() {
					v.add(ErrKind, cfield+".edge", "unknown edge kind %q", c.Edge)
				}
				if !v.scanCodeOK(c.ScanCode) {
					v.add(ErrScanCode, cfield+".scan_code", "scan code %d >= max_scan_code %d", c.ScanCode, v.ts.MaxScanCode)
				}
			}
		}
	}
}

func (v *validator) guides() {
	nt, nr := len(v.ts.Triggers), len(v.ts.Results)
	count := make([]int, nt)

	for i, g := range v.ts.Guides {
		field := fmt.Sprintf("guides[%d]", i)
		if g.Result < 0 || g.Result >= nr {
			v.add(ErrGuideResult, field+".result", "result index %d out of range (%d defined)", g.Result, nr)
		}
		if g.Release != ir.NoResult && (g.Release < 0 || g.Release >= nr) {
			v.add(ErrGuideRelease, field+".release", "release index %d out of range (%d defined)", g.Release, nr)
		}
		if g.Trigger < 0 || g.Trigger >= nt {
			v.add(ErrGuideTrigger, field+".trigger", "trigger index %d out of range (%d defined)", g.Trigger, nt)
			continue
		}
		count[g.Trigger]++

		m := &v.ts.Triggers[g.Trigger]
		if (m.Repeat || g.HasRelease()) && len(m.Steps) > 0 && !m.Holdable() {
			v.add(ErrNotHoldable, field, "trigger %q repeats or has a release result but its final step has no press", m.Name)
		}
	}

	for ti, n := range count {
		if n != 1 {
			v.add(ErrGuideCoverage, fmt.Sprintf("triggers[%d]", ti), "trigger %q has %d guides, want exactly 1", v.ts.Triggers[ti].Name, n)
		}
	}
}

func (v *validator) layers() {
	if len(v.ts.Layers) == 0 {
		v.add(ErrDefaultLayer, "layers", "at least one layer is required")
		return
	}

	seen := map[string]bool{}
	defaults := 0
	for i, l := range v.ts.Layers {
		field := fmt.Sprintf("layers[%d]", i)
		if strings.TrimSpace(l.Name) == "" {
			v.add(ErrEmptyLayerName, field+".name", "layer name is required")
		}
		v.unique("layers", i, l.Name, seen)
		if l.Default {
			defaults++
		}
		scs := make([]ir.ScanCode, 0, len(l.Triggers))
		for sc := range l.Triggers {
			scs = append(scs, sc)
		}
		slices.Sort(scs)
		for _, sc := range scs {
			list := l.Triggers[sc]
			if !v.scanCodeOK(sc) {
				v.add(ErrLayerScanCode, field+".triggers", "scan code %d >= max_scan_code %d", sc, v.ts.MaxScanCode)
			}
			for _, ti := range list {
				if ti < 0 || ti >= len(v.ts.Triggers) {
					v.add(ErrLayerTrigger, fmt.Sprintf("%s.triggers[%d]", field, sc), "trigger index %d out of range (%d defined)", ti, len(v.ts.Triggers))
				}
			}
		}
	}
	if defaults != 1 {
		v.add(ErrDefaultLayer, "layers", "exactly one default layer is required, found %d", defaults)
	}
}

func (v *validator) auxiliary() {
	for i, off := range v.ts.InterconnectOffsets {
		if !v.scanCodeOK(off) {
			v.add(ErrInterconnect, fmt.Sprintf("interconnect_offsets[%d]", i), "offset %d >= max_scan_code %d", off, v.ts.MaxScanCode)
		}
	}
	for i, r := range v.ts.RotationMax {
		if r <= 0 {
			v.add(ErrRotationBound, fmt.Sprintf("rotation_max[%d]", i), "rotation bound must be positive, got %d", r)
		}
	}
	if v.ts.MaxScanCode > 0 && len(v.ts.Positions) > v.ts.MaxScanCode {
		v.add(ErrPositions, "positions", "%d positions for %d scan codes", len(v.ts.Positions), v.ts.MaxScanCode)
	}
	for i, s := range v.ts.UnicodeStrings {
		field := fmt.Sprintf("unicode_strings[%d]", i)
		if !utf8.ValidString(s) {
			v.add(ErrUnicodeString, field, "string is not valid UTF-8")
		}
		if strings.IndexByte(s, 0) >= 0 {
			v.add(ErrUnicodeString, field, "string contains a NUL terminator")
		}
	}
}
