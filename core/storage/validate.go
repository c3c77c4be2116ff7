package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/artpar/calm/core/apierr"
	"github.com/artpar/calm/core/convention"
)

// validator checks documents against the JSON Schema of a module.
type validator struct {
	create *jsonschema.Schema
	update *jsonschema.Schema
}

// newValidator compiles the create (required fields enforced) and update
// (types only) schemas for mod.
func newValidator(mod convention.Derived) (*validator, error) {
	create, err := compileSchema(mod.Collection+"-create.json", mod.Source.JSONSchema(true))
	if err != nil {
		return nil, err
	}
	update, err := compileSchema(mod.Collection+"-update.json", mod.Source.JSONSchema(false))
	if err != nil {
		return nil, err
	}
	return &validator{create: create, update: update}, nil
}

func compileSchema(url string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateCreate checks a full document body.
func (v *validator) validateCreate(doc map[string]any) error {
	return validateWith(v.create, doc)
}

// validateUpdate checks a partial document body.
func (v *validator) validateUpdate(doc map[string]any) error {
	return validateWith(v.update, doc)
}

func validateWith(schema *jsonschema.Schema, doc map[string]any) error {
	// The validator only understands decoded JSON values, so normalise
	// Go types (ints, slices of strings, time.Time) through a round trip.
	raw, err := json.Marshal(doc)
	if err != nil {
		return apierr.Validationf("invalid document: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return apierr.Validationf("invalid document: %v", err)
	}

	if err := schema.Validate(normalized); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return apierr.Validation(describe(verr))
		}
		return apierr.Validation(err.Error())
	}
	return nil
}

// describe flattens a validation error tree into "field: message" pairs.
func describe(err *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if field == "" {
				msgs = append(msgs, e.Message)
			} else {
				msgs = append(msgs, field+": "+e.Message)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(err)

	sort.Strings(msgs)
	return "Validation failed: " + strings.Join(msgs, "; ")
}
