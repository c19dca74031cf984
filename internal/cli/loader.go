package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/kllcore/internal/compiler"
	"github.com/roach88/kllcore/internal/ir"
)

// LoadResult holds a compiled table set and where it came from.
type LoadResult struct {
	Tables    *ir.TableSet
	FileCount int // CUE files found; 0 for a JSON blob or a single file
}

// LoadError represents an error that occurred while loading tables.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadTables compiles the tables at path without validating them.
// path is a directory of CUE files, a .cue file or a compiled .json blob.
func LoadTables(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("tables not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing tables: %v", err)}
	}

	result := &LoadResult{}
	if info.IsDir() {
		files, err := compiler.FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		result.FileCount = len(files)
	}

	ts, err := compiler.Load(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	result.Tables = ts
	return result, nil
}

// LoadValidTables compiles and validates the tables at path. The first
// problem found is returned.
func LoadValidTables(path string) (*ir.TableSet, error) {
	result, err := LoadTables(path)
	if err != nil {
		return nil, err
	}
	if errs := compiler.ValidateTables(result.Tables); len(errs) > 0 {
		return nil, &LoadError{Code: errs[0].Code, Message: fmt.Sprintf("%s: %s", errs[0].Field, errs[0].Message)}
	}
	return result.Tables, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
// Validation problems use the compiler's E2xx codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Table compilation errors
	ErrCodeCapability = "E101" // Bad capability declaration
	ErrCodeResult     = "E102" // Bad result macro
	ErrCodeTrigger    = "E103" // Bad trigger macro
	ErrCodeLayer      = "E104" // Bad layer
	ErrCodeAuxiliary  = "E105" // Bad auxiliary table (offsets, rotation, positions, strings)
	ErrCodeBlob       = "E106" // JSON blob failed to decode or match the schema

	// Runtime errors
	ErrCodeBadEvent   = "E301" // Unparseable event
	ErrCodeDivergence = "E302" // Replay diverged from the journal
	ErrCodeTestFailed = "E303" // One or more scenarios failed
)

// MapFieldToErrorCode maps a compiler error field to an error code.
// Table fields are matched by their first path element.
func MapFieldToErrorCode(field string) string {
	head, _, _ := strings.Cut(field, ".")
	switch head {
	case "path":
		return ErrCodeNotFound
	case "scan":
		return ErrCodeScanError
	case "files":
		return ErrCodeNoFiles
	case "load":
		return ErrCodeLoadFailed
	case "build", "cue":
		return ErrCodeBuildFailed
	case "capability":
		return ErrCodeCapability
	case "result":
		return ErrCodeResult
	case "trigger":
		return ErrCodeTrigger
	case "layer":
		return ErrCodeLayer
	case "max_scan_code", "interconnect_offsets", "rotation_max", "positions", "unicode_strings":
		return ErrCodeAuxiliary
	case "json", "schema":
		return ErrCodeBlob
	default:
		return ErrCodeGeneric
	}
}
