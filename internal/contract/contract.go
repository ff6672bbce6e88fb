// Package contract validates the three versioned JSON documents exchanged with
// the network engine: the dataset schema, the model specification, and the results.
package contract

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Kind identifies a contract document shape.
type Kind string

const (
	KindSchema    Kind = "schema"
	KindModelSpec Kind = "model_spec"
	KindResults   Kind = "results"
)

// ErrUnknownKind is returned for a kind that has no contract.
var ErrUnknownKind = errors.New("unknown contract kind")

// Kinds returns every supported contract kind.
func Kinds() []Kind {
	return []Kind{KindSchema, KindModelSpec, KindResults}
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if !slices.Contains(Kinds(), k) {
		return "", fmt.Errorf("%w: %q (expected schema, model_spec or results)", ErrUnknownKind, s)
	}
	return k, nil
}

// schemaURL is the identifier each contract is registered under.
func schemaURL(k Kind) string {
	return "https://hygeia-graph.local/contracts/" + string(k) + ".schema.json"
}

var (
	compileOnce sync.Once
	compiled    map[Kind]*jsonschema.Schema
	compileErr  error
)

// compileAll compiles the embedded contracts once per process.
func compileAll() (map[Kind]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.DefaultDraft(jsonschema.Draft2020)

		for _, k := range Kinds() {
			data, err := schemaFS.ReadFile("schemas/" + string(k) + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("read %s contract: %w", k, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				compileErr = fmt.Errorf("parse %s contract: %w", k, err)
				return
			}
			if err := c.AddResource(schemaURL(k), doc); err != nil {
				compileErr = fmt.Errorf("register %s contract: %w", k, err)
				return
			}
		}

		out := make(map[Kind]*jsonschema.Schema, len(Kinds()))
		for _, k := range Kinds() {
			sch, err := c.Compile(schemaURL(k))
			if err != nil {
				compileErr = fmt.Errorf("compile %s contract: %w", k, err)
				return
			}
			out[k] = sch
		}
		compiled = out
	})
	return compiled, compileErr
}

// Schema returns the compiled contract for kind. Repeated calls return the same value.
func Schema(kind Kind) (*jsonschema.Schema, error) {
	all, err := compileAll()
	if err != nil {
		return nil, err
	}
	sch, ok := all[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return sch, nil
}

// Raw returns the embedded JSON Schema text for kind.
func Raw(kind Kind) ([]byte, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return schemaFS.ReadFile("schemas/" + string(kind) + ".schema.json")
}

// Validate checks doc against the contract for kind. doc may be raw JSON
// ([]byte or json.RawMessage) or any value that marshals to JSON.
// A contract violation is returned as *ValidationError.
func Validate(kind Kind, doc any) error {
	sch, err := Schema(kind)
	if err != nil {
		return err
	}

	inst, err := toInstance(doc)
	if err != nil {
		return &ValidationError{
			Kind:   kind,
			Errors: []FieldError{{Path: "/", Message: "invalid JSON: " + err.Error()}},
		}
	}

	var fieldErrs []FieldError
	if err := sch.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return fmt.Errorf("validate %s: %w", kind, err)
		}
		fieldErrs = collect(ve)
	}

	if kind == KindSchema {
		fieldErrs = append(fieldErrs, duplicateVariableIDs(inst)...)
	}

	if len(fieldErrs) > 0 {
		return &ValidationError{Kind: kind, Errors: fieldErrs}
	}
	return nil
}

// ValidateFile reads path and validates it against kind. A missing or
// unreadable file is returned as a plain I/O error, never as *ValidationError.
func ValidateFile(kind Kind, path string) error {
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s document: %w", kind, err)
	}
	return Validate(kind, data)
}

// toInstance converts doc into the generic form the validator expects.
func toInstance(doc any) (any, error) {
	var data []byte
	switch v := doc.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// collect flattens a validation error tree into path/message pairs, one per
// leaf cause.
func collect(ve *jsonschema.ValidationError) []FieldError {
	seen := make(map[FieldError]bool)
	var errs []FieldError

	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		// Render the leaf on its own so wrapping $ref errors don't replace its message.
		leaf := &jsonschema.ValidationError{
			SchemaURL:        e.SchemaURL,
			InstanceLocation: e.InstanceLocation,
			ErrorKind:        e.ErrorKind,
		}
		out := leaf.BasicOutput()
		if out.Error == nil {
			return
		}
		fe := FieldError{Path: pointer(out.InstanceLocation), Message: out.Error.String()}
		if seen[fe] {
			return
		}
		seen[fe] = true
		errs = append(errs, fe)
	}
	walk(ve)

	slices.SortStableFunc(errs, func(a, b FieldError) int {
		return strings.Compare(a.Path, b.Path)
	})
	return errs
}

// pointer normalizes an instance location; the document root is "/".
func pointer(loc string) string {
	if loc == "" {
		return "/"
	}
	return loc
}

// duplicateVariableIDs reports variable ids that appear more than once.
func duplicateVariableIDs(inst any) []FieldError {
	obj, ok := inst.(map[string]any)
	if !ok {
		return nil
	}
	vars, ok := obj["variables"].([]any)
	if !ok {
		return nil
	}

	first := make(map[string]int, len(vars))
	var errs []FieldError
	for i, raw := range vars {
		v, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, ok := v["id"].(string)
		if !ok {
			continue
		}
		if j, dup := first[id]; dup {
			errs = append(errs, FieldError{
				Path:    fmt.Sprintf("/variables/%d/id", i),
				Message: fmt.Sprintf("duplicate variable id %q (first at /variables/%d)", id, j),
			})
			continue
		}
		first[id] = i
	}
	return errs
}
