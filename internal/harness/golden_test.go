package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"tap_a", "fn_layer", "latch_nav", "knob"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata/scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestMarshalSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Seq: 2, AtMS: 5, Trigger: "t", Result: "r", Capability: "noop", Phase: "press", Params: []int32{}},
	}

	data, err := MarshalSnapshot("empty-params", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"layers":[],"scenario_name":"empty-params","trace":[{"at_ms":5,"capability":"noop","params":[],"phase":"press","result":"r","seq":2,"trigger":"t"}]}`,
		string(data))
}

func TestMarshalSnapshot_NilListsAreEmpty(t *testing.T) {
	result := &Result{}

	data, err := MarshalSnapshot("nil", result)
	require.NoError(t, err)
	assert.Equal(t, `{"layers":[],"scenario_name":"nil","trace":[]}`, string(data))
}
