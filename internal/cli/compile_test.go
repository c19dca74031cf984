package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/compiler"
)

// writeTables writes a single-file CUE table source into a temp dir.
func writeTables(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

const badArityTables = `package tables

tables: {
	name:          "bad"
	max_scan_code: 16
	capability: "hid.keyboard": arity: 1
	result: a: [{cap: "hid.keyboard", params: [4, 5]}]
	trigger: a: {
		steps: [{conditions: [{scan: 1}]}]
		result: "a"
	}
	layer: [{name: "base", default: true, triggers: ["a"]}]
}
`

const unknownResultTables = `package tables

tables: {
	name:          "bad"
	max_scan_code: 16
	capability: "hid.keyboard": arity: 1
	result: a: [{cap: "hid.keyboard", params: [4]}]
	trigger: a: {
		steps: [{conditions: [{scan: 1}]}]
		result: "nope"
	}
	layer: [{name: "base", default: true, triggers: ["a"]}]
}
`

func TestCompile_Text(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{demoTables})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled demo: 10 trigger(s), 10 result(s), 3 layer(s)")
	assert.Contains(t, output, "hash: ")
	assert.NotContains(t, output, "Layers:")
}

func TestCompile_Verbose(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "text", Verbose: true})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{demoTables})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "base: 10 scan code(s) (default)")
}

func TestCompile_JSON(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{demoTables})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "demo", resp.Data.Name)
	assert.Equal(t, 64, resp.Data.MaxScanCode)
	assert.Equal(t, 10, resp.Data.Triggers)
	assert.Len(t, resp.Data.Hash, 64)
}

func TestCompile_WritesBlob(t *testing.T) {
	out := filepath.Join(t.TempDir(), "demo.json")

	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{demoTables, "-o", out})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Wrote table blob to "+out)

	blob, err := os.ReadFile(out)
	require.NoError(t, err)
	ts, err := compiler.DecodeTables(blob)
	require.NoError(t, err)
	assert.Equal(t, "demo", ts.Name)
	assert.Len(t, ts.Layers, 3)

	// The blob compiles back to the same summary.
	cmd = NewCompileCommand(&RootOptions{Format: "text"})
	again := &bytes.Buffer{}
	cmd.SetOut(again)
	cmd.SetArgs([]string{out})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, firstLine(buf.String()), firstLine(again.String()))
}

func TestCompile_MissingPath(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestCompile_UnknownReference(t *testing.T) {
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{writeTables(t, unknownResultTables)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error ["+ErrCodeTrigger+"]")
	assert.Contains(t, buf.String(), `unknown result "nope"`)
}

func TestCompile_InvalidTables(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bad.json")

	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{writeTables(t, badArityTables), "-o", out})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), compiler.ErrArity)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no blob is written for invalid tables")
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
