package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/ir"
)

func TestDecodeTablesRoundTrip(t *testing.T) {
	ts := validTables()
	blob, err := ir.MarshalTables(ts)
	require.NoError(t, err)

	got, err := DecodeTables(blob)
	require.NoError(t, err)

	assert.Equal(t, ir.MustTableHash(ts), ir.MustTableHash(got))
	assert.Empty(t, ValidateTables(got))

	list, present := got.Layers[1].Triggers[5]
	assert.True(t, present, "present-empty list survives the round trip")
	assert.Empty(t, list)
}

func TestDecodeTablesNormalizesStrings(t *testing.T) {
	ts := validTables()
	ts.UnicodeStrings = []string{"cafe\u0301"}
	blob, err := ir.MarshalTables(ts)
	require.NoError(t, err)

	got, err := DecodeTables(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"caf\u00e9"}, got.UnicodeStrings)
}

func TestDecodeTablesSchemaViolations(t *testing.T) {
	base := `"name":"x","version":"1","max_scan_code":8,"capabilities":[],"results":[],"guides":[],"layers":[{"name":"base","default":true,"triggers":{}}]`

	tests := []struct {
		name string
		json string
	}{
		{"unknown field", `{` + base + `,"triggers":[],"extra":1}`},
		{"float scan code", `{` + base + `,"triggers":[{"name":"t","steps":[{"kind":"sequential","conditions":[{"scan_code":1.5,"edge":"press"}]}]}]}`},
		{"bad edge", `{` + base + `,"triggers":[{"name":"t","steps":[{"kind":"sequential","conditions":[{"scan_code":1,"edge":"tap"}]}]}]}`},
		{"bad step kind", `{` + base + `,"triggers":[{"name":"t","steps":[{"kind":"chord","conditions":[]}]}]}`},
		{"missing triggers", `{` + base + `}`},
		{"null list", `{` + base + `,"triggers":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTables([]byte(tt.json))
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "schema", ce.Field)
		})
	}
}

func TestDecodeTablesMalformedJSON(t *testing.T) {
	_, err := DecodeTables([]byte(`{"name":`))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "json", ce.Field)
}

func TestDecodeTablesLeavesRangeChecksToValidation(t *testing.T) {
	ts := validTables()
	ts.Guides[0].Result = 9999
	blob, err := ir.MarshalTables(ts)
	require.NoError(t, err)

	got, err := DecodeTables(blob)
	require.NoError(t, err, "schema accepts structurally sound tables")
	assert.Contains(t, codesOf(ValidateTables(got)), ErrGuideResult)
}
