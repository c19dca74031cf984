package compiler

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/kllcore/internal/ir"
)

//go:embed schema/tables.schema.json
var tablesSchemaJSON []byte

const tablesSchemaURL = "tables.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func tablesSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(tablesSchemaURL, bytes.NewReader(tablesSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = c.Compile(tablesSchemaURL)
	})
	return schema, schemaErr
}

// DecodeTables reads a JSON table blob, as written by ir.MarshalTables.
//
// The blob is checked against the embedded JSON Schema before decoding, so
// structural problems (unknown fields, wrong types, floats) are reported as
// schema violations. Index and range checks are left to ValidateTables.
func DecodeTables(data []byte) (*ir.TableSet, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CompileError{Field: "json", Message: err.Error()}
	}

	s, err := tablesSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, &CompileError{Field: "schema", Message: err.Error()}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var ts ir.TableSet
	if err := dec.Decode(&ts); err != nil {
		return nil, &CompileError{Field: "json", Message: err.Error()}
	}
	for i, s := range ts.UnicodeStrings {
		ts.UnicodeStrings[i] = norm.NFC.String(s)
	}
	return &ts, nil
}
