package schema

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// implicitFields are maintained by the store. A descriptor may expose them
// through fields but cannot declare them in its schema.
var implicitFields = map[string]bool{
	"_id":       true,
	"__v":       true,
	"createdAt": true,
	"updatedAt": true,
}

var operationNames = map[string]bool{
	"list":   true,
	"get":    true,
	"create": true,
	"update": true,
	"delete": true,
}

// ParseFS reads and parses the descriptor at path inside fsys.
func ParseFS(fsys fs.FS, path string) (Module, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return Module{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML descriptor and validates it.
func Parse(data []byte) (Module, error) {
	var mod Module
	if err := yaml.Unmarshal(data, &mod); err != nil {
		return Module{}, fmt.Errorf("decode descriptor: %w", err)
	}
	if err := Validate(mod); err != nil {
		return Module{}, fmt.Errorf("module %q: %w", mod.Name, err)
	}
	return mod, nil
}

// problems accumulates descriptor errors so a single pass reports all of them.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("invalid descriptor:\n  - %s", strings.Join(p, "\n  - "))
}

// Validate checks a descriptor. Problems are reported in a stable order:
// name, schema fields alphabetically, allowed fields, disabled routes.
func Validate(mod Module) error {
	var p problems

	switch {
	case mod.Name == "":
		p.addf("module name is required")
	case !IsValidIdentifier(mod.Name):
		p.addf("module name %q is not a valid identifier", mod.Name)
	}

	if len(mod.Schema) == 0 {
		p.addf("schema must have at least one field")
	}

	names := make([]string, 0, len(mod.Schema))
	for name := range mod.Schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := mod.Schema[name]
		switch {
		case implicitFields[name]:
			p.addf("schema field %q is reserved", name)
		case !IsValidIdentifier(name):
			p.addf("schema field %q is not a valid identifier", name)
		}
		if !f.Type.known() {
			p.addf("schema field %q: unknown type %q", name, f.Type)
		} else if f.Type == FieldTypeEnum && len(f.Values) == 0 {
			p.addf("schema field %q: enum type requires values", name)
		}
	}

	for _, name := range mod.Fields {
		if !IsValidIdentifier(name) {
			p.addf("allowed field %q is not a valid identifier", name)
		}
	}

	for _, op := range mod.Routes.Disable {
		if !operationNames[op] {
			p.addf("routes.disable: unknown operation %q", op)
		}
	}

	return p.err()
}

// IsValidIdentifier reports whether s is safe as a resource name, a field
// name or a SQL identifier: an ASCII letter or underscore followed by letters,
// digits or underscores.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		letter := c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
		if !letter && (i == 0 || c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func (t FieldType) known() bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeInt, FieldTypeBool,
		FieldTypeTimestamp, FieldTypeEnum, FieldTypeJSON, FieldTypeStrings:
		return true
	}
	return false
}
