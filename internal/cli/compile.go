package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kllcore/internal/compiler"
	"github.com/roach88/kllcore/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult summarizes a compiled table set.
type CompilationResult struct {
	Name         string `json:"name"`
	Hash         string `json:"hash"`
	MaxScanCode  int    `json:"max_scan_code"`
	Capabilities int    `json:"capabilities"`
	Results      int    `json:"results"`
	Triggers     int    `json:"triggers"`
	Layers       int    `json:"layers"`
	Output       string `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <tables>",
		Short: "Compile CUE tables to a canonical JSON blob",
		Long: `Compile CUE layout tables to the canonical JSON table blob.

The compiler parses the CUE source, validates every reference and bound,
and writes the blob the engine, the journal and replay load.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadResult, err := LoadTables(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, position(loadErr))
		}
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	if loadResult.FileCount > 0 {
		formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)
	}

	ts := loadResult.Tables
	if errs := compiler.ValidateTables(ts); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	blob, err := ir.MarshalTables(ts)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	hash, err := ir.TableHash(ts)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, blob, 0o644); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	result := CompilationResult{
		Name:         ts.Name,
		Hash:         hash,
		MaxScanCode:  ts.MaxScanCode,
		Capabilities: len(ts.Capabilities),
		Results:      len(ts.Results),
		Triggers:     len(ts.Triggers),
		Layers:       len(ts.Layers),
		Output:       opts.Output,
	}
	return outputCompileSuccess(formatter, result, ts)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult, ts *ir.TableSet) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %s: %d trigger(s), %d result(s), %d layer(s)\n",
		result.Name, result.Triggers, result.Results, result.Layers)
	fmt.Fprintf(w, "  hash: %s\n", result.Hash)

	if formatter.Verbose {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Layers:")
		for _, l := range ts.Layers {
			suffix := ""
			if l.Default {
				suffix = " (default)"
			}
			fmt.Fprintf(w, "  %s: %d scan code(s)%s\n", l.Name, len(l.Triggers), suffix)
		}
	}

	if result.Output != "" {
		fmt.Fprintf(w, "Wrote table blob to %s\n", result.Output)
	}
	return nil
}

// position renders a CUE source position, or nil when there is none.
func position(e *LoadError) any {
	if !e.Pos.IsValid() {
		return nil
	}
	return fmt.Sprintf("%s:%d:%d", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
