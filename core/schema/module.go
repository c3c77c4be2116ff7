package schema

import "sort"

// Module is the root definition for a declarative resource.
// Everything is derived from this minimal definition.
type Module struct {
	// Name is the singular name of the resource (e.g., "product", "person").
	// Plural form is derived by convention.
	Name string `yaml:"module"`

	// Schema defines the persisted fields of the resource.
	Schema map[string]Field `yaml:"schema"`

	// Fields is the allow-list of fields exposed to clients.
	// Empty means every schema field plus the implicit ones.
	Fields []string `yaml:"fields,omitempty"`

	// Routes tunes route generation.
	Routes Routes `yaml:"routes,omitempty"`

	// Meta contains optional metadata.
	Meta ModuleMeta `yaml:"meta,omitempty"`
}

// Routes configures the generated route table of a module.
type Routes struct {
	// Pluralize controls whether the path segment is pluralized.
	// Defaults to true when unset.
	Pluralize *bool `yaml:"pluralize,omitempty"`

	// Disable lists CRUD operations that get no route
	// (list, get, create, update, delete).
	Disable []string `yaml:"disable,omitempty"`
}

// ShouldPluralize reports whether the resource path is pluralized.
func (r Routes) ShouldPluralize() bool {
	if r.Pluralize != nil {
		return *r.Pluralize
	}
	return true
}

// ModuleMeta contains optional module metadata.
type ModuleMeta struct {
	// Version of the module definition.
	Version string `yaml:"version,omitempty"`

	// Description for documentation.
	Description string `yaml:"description,omitempty"`
}

// JSONSchema builds a JSON Schema document for stored records of the module.
// Required fields are enforced only when requireFields is true, so partial
// updates can be checked against the same types.
func (m Module) JSONSchema(requireFields bool) map[string]any {
	properties := make(map[string]any, len(m.Schema))
	var required []any

	for _, name := range m.FieldNames() {
		f := m.Schema[name]
		properties[name] = f.JSONSchema()
		if requireFields && f.Required {
			required = append(required, name)
		}
	}

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// FieldNames returns the schema field names in sorted order.
func (m Module) FieldNames() []string {
	names := make([]string, 0, len(m.Schema))
	for name := range m.Schema {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
