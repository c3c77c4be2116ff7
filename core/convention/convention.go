// Package convention derives defaults from minimal resource definitions.
// It applies naming conventions, implicit fields, and default behaviors.
package convention

import (
	"strings"

	"github.com/artpar/calm/core/schema"
)

// Implicit field names managed by the store.
const (
	IDField        = "_id"
	CreatedAtField = "createdAt"
	UpdatedAtField = "updatedAt"
)

// Derived contains all derived information from a module definition.
// This is the fully-expanded form used by storage and routing.
type Derived struct {
	// Source is the original module definition.
	Source schema.Module

	// Name is the lowercased module name.
	Name string

	// Plural is the plural form of the module name.
	Plural string

	// Collection is the storage collection (table) name.
	Collection string

	// Segment is the path segment for the resource: Plural, or Name when
	// pluralization is disabled.
	Segment string

	// Fields contains all fields including implicit ones (_id, createdAt, updatedAt).
	Fields []DerivedField

	// Allowed is the allow-list of client-visible fields.
	Allowed []string
}

// DerivedField is a fully-derived field with all defaults applied.
type DerivedField struct {
	// Name of the field.
	Name string

	// Type is the resolved field type.
	Type schema.FieldType

	// Required indicates this field must be provided on create.
	Required bool

	// Implicit indicates this is a store-managed field.
	Implicit bool
}

// Derive expands a minimal module definition into a fully-derived form.
func Derive(mod schema.Module) Derived {
	name := strings.ToLower(mod.Name)
	d := Derived{
		Source:     mod,
		Name:       name,
		Plural:     Pluralize(name),
		Collection: Pluralize(name),
	}

	d.Segment = d.Plural
	if !mod.Routes.ShouldPluralize() {
		d.Segment = name
	}

	d.Fields = deriveFields(mod)
	d.Allowed = deriveAllowed(mod)

	return d
}

// deriveFields creates the full list of fields including implicit ones.
func deriveFields(mod schema.Module) []DerivedField {
	fields := make([]DerivedField, 0, len(mod.Schema)+3)

	fields = append(fields, DerivedField{
		Name:     IDField,
		Type:     schema.FieldTypeString,
		Implicit: true,
	})

	for _, name := range mod.FieldNames() {
		f := mod.Schema[name]
		fields = append(fields, DerivedField{
			Name:     name,
			Type:     f.Type,
			Required: f.Required,
		})
	}

	fields = append(fields,
		DerivedField{Name: CreatedAtField, Type: schema.FieldTypeTimestamp, Implicit: true},
		DerivedField{Name: UpdatedAtField, Type: schema.FieldTypeTimestamp, Implicit: true},
	)

	return fields
}

// deriveAllowed returns the declared allow-list, or every field when none is declared.
func deriveAllowed(mod schema.Module) []string {
	if len(mod.Fields) > 0 {
		allowed := make([]string, len(mod.Fields))
		copy(allowed, mod.Fields)
		return allowed
	}

	allowed := []string{IDField}
	allowed = append(allowed, mod.FieldNames()...)
	return append(allowed, CreatedAtField, UpdatedAtField)
}

// HasField reports whether name is a stored field of the module, implicit or not.
func (d Derived) HasField(name string) bool {
	for _, f := range d.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
