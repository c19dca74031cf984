package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kllcore/internal/ir"
)

// TraceSnapshot captures the trace and final layer state of a scenario run.
// The table hash is left out so golden files survive cosmetic table edits.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Layers       []string     `json:"layers"`
}

// toCanonicalMap lowers the snapshot for ir.MarshalCanonical, which forbids
// null: every list is materialized.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		params := make([]any, len(ev.Params))
		for j, p := range ev.Params {
			params[j] = p
		}
		trace[i] = map[string]any{
			"seq":        ev.Seq,
			"at_ms":      ev.AtMS,
			"trigger":    ev.Trigger,
			"result":     ev.Result,
			"capability": ev.Capability,
			"phase":      ev.Phase,
			"params":     params,
		}
	}
	layers := make([]any, len(s.Layers))
	for i, l := range s.Layers {
		layers[i] = l
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"layers":        layers,
	}
}

// MarshalSnapshot renders a result as canonical JSON, the golden file format.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Layers:       result.State.Layers,
	}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the scenario cannot run. A snapshot mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
