package schema

// Field defines a persisted field in a resource schema.
type Field struct {
	// Type is the field type. See FieldType constants.
	Type FieldType `yaml:"type"`

	// Required indicates this field must be present on create.
	Required bool `yaml:"required,omitempty"`

	// Values lists valid values for enum type fields.
	Values []string `yaml:"values,omitempty"`

	// Description provides human-readable documentation for this field.
	Description string `yaml:"description,omitempty"`
}

// FieldType represents the type of a schema field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeNumber    FieldType = "number"
	FieldTypeInt       FieldType = "int"
	FieldTypeBool      FieldType = "bool"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeEnum      FieldType = "enum" // Requires Values
	FieldTypeJSON      FieldType = "json"
	FieldTypeStrings   FieldType = "strings"
)

// JSONSchema returns the JSON Schema fragment describing values of this field.
func (f Field) JSONSchema() map[string]any {
	switch f.Type {
	case FieldTypeNumber:
		return map[string]any{"type": "number"}
	case FieldTypeInt:
		return map[string]any{"type": "integer"}
	case FieldTypeBool:
		return map[string]any{"type": "boolean"}
	case FieldTypeTimestamp:
		return map[string]any{"type": "string", "format": "date-time"}
	case FieldTypeEnum:
		values := make([]any, len(f.Values))
		for i, v := range f.Values {
			values[i] = v
		}
		return map[string]any{"type": "string", "enum": values}
	case FieldTypeJSON:
		return map[string]any{"type": "object"}
	case FieldTypeStrings:
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	default:
		return map[string]any{"type": "string"}
	}
}
