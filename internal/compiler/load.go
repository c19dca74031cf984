package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/kllcore/internal/ir"
)

// TablesPath is the CUE path the table struct is read from.
const TablesPath = "tables"

// Load reads a table set from path: a directory of CUE files, a single .cue
// file, or a .json blob. The result is not validated.
func Load(path string) (*ir.TableSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &CompileError{Field: "path", Message: fmt.Sprintf("tables not found: %v", err)}
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	switch filepath.Ext(path) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &CompileError{Field: "path", Message: fmt.Sprintf("read tables: %v", err)}
		}
		return DecodeTables(data)
	case ".cue":
		return loadInstance(filepath.Dir(path), []string{filepath.Base(path)})
	default:
		return nil, &CompileError{Field: "path", Message: fmt.Sprintf("unsupported tables file %s (want a directory, .cue or .json)", path)}
	}
}

// LoadDir loads every CUE file of dir as one instance and compiles its
// tables struct.
func LoadDir(dir string) (*ir.TableSet, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &CompileError{Field: "scan", Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &CompileError{Field: "files", Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}
	return loadInstance(dir, []string{"."})
}

func loadInstance(dir string, args []string) (*ir.TableSet, error) {
	ctx := cuecontext.New()
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &CompileError{Field: "load", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &CompileError{Field: "load", Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &CompileError{Field: "build", Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	tables := value.LookupPath(cue.ParsePath(TablesPath))
	if !tables.Exists() {
		return nil, &CompileError{Field: "tables", Message: fmt.Sprintf("no %q struct found in %s", TablesPath, dir)}
	}
	return CompileTables(tables)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
