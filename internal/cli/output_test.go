package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/harness"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"triggers": 10}))
	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"triggers": float64(10)}, resp.Data)
	assert.Nil(t, resp.Error)

	buf.Reset()
	require.NoError(t, f.Error(ErrCodeTrigger, "unknown result", []string{"trigger.a.result"}))
	resp = decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTrigger, resp.Error.Code)
	assert.Equal(t, "unknown result", resp.Error.Message)
	assert.Equal(t, []any{"trigger.a.result"}, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    []string
		notWant []string
	}{
		{"quiet", false, []string{"Error [E211]: params count"}, []string{"Details:"}},
		{"verbose", true, []string{"Error [E211]: params count", "Details: [result.a.calls[0]]"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}
			require.NoError(t, f.Error("E211", "params count", []string{"result.a.calls[0]"}))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}

	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Success("Tables valid"))
	assert.Equal(t, "Tables valid\n", buf.String())
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	f.VerboseLog("loaded %d layer(s)", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "loaded 3 layer(s)\n", errOut.String())
	assert.Equal(t, errOut, f.GetErrWriter())

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("dropped")
	assert.Empty(t, out.String())
	assert.Equal(t, out, quiet.GetErrWriter())
}

func TestExitError(t *testing.T) {
	cause := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to load tables", cause)
	assert.Equal(t, "failed to load tables: no such file", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "diverged")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestCLIResponse_SessionID(t *testing.T) {
	data, err := json.Marshal(CLIResponse{Status: "ok"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "session_id")

	data, err = json.Marshal(CLIResponse{Status: "ok", SessionID: "0192"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id":"0192"`)
}

func TestFormatAction(t *testing.T) {
	ev := harness.TraceEvent{
		Seq:        7,
		AtMS:       30,
		Trigger:    "knob",
		Result:     "volume",
		Capability: "rotate",
		Phase:      "press",
		Params:     []int32{0, -2},
	}
	assert.Equal(t, "[7] 30ms knob/volume rotate(0, -2) press", formatAction(ev))

	ev.Params = nil
	assert.Equal(t, "[7] 30ms knob/volume rotate() press", formatAction(ev))
}

func TestOpenExisting_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	_, err := openExisting(path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
