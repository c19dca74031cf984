package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/compiler"
)

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"path", ErrCodeNotFound},
		{"scan", ErrCodeScanError},
		{"files", ErrCodeNoFiles},
		{"load", ErrCodeLoadFailed},
		{"build", ErrCodeBuildFailed},
		{"cue", ErrCodeBuildFailed},
		{"capability.hid.keyboard", ErrCodeCapability},
		{"result.a.0", ErrCodeResult},
		{"trigger.jk.result", ErrCodeTrigger},
		{"layer.fn.block", ErrCodeLayer},
		{"max_scan_code", ErrCodeAuxiliary},
		{"interconnect_offsets", ErrCodeAuxiliary},
		{"unicode_strings", ErrCodeAuxiliary},
		{"json", ErrCodeBlob},
		{"schema", ErrCodeBlob},
		{"something.else", ErrCodeGeneric},
		{"", ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}

func TestLoadTables_Directory(t *testing.T) {
	result, err := LoadTables(filepath.Dir(demoTables))
	require.NoError(t, err)
	assert.Equal(t, 1, result.FileCount)
	assert.Equal(t, "demo", result.Tables.Name)
}

func TestLoadTables_EmptyDirectory(t *testing.T) {
	_, err := LoadTables(t.TempDir())
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrCodeNoFiles, loadErr.Code)
}

func TestLoadTables_BadBlob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": 3}`), 0o644))

	_, err := LoadTables(path)
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrCodeBlob, loadErr.Code)
}

func TestLoadValidTables_FirstProblem(t *testing.T) {
	_, err := LoadValidTables(writeTables(t, badArityTables))
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, compiler.ErrArity, loadErr.Code)
}

func TestLoadError_Position(t *testing.T) {
	_, err := LoadTables(writeTables(t, unknownResultTables))
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, ErrCodeTrigger, loadErr.Code)
	assert.True(t, loadErr.Pos.IsValid())
	assert.Contains(t, loadErr.Error(), "tables.cue:")
}
