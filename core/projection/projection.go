// Package projection enforces which fields of a resource are visible to clients.
//
// A Projector is an allow-list applied on the way in (create, update) and on
// the way out (responses). Unknown fields are dropped silently; projection
// never fails.
package projection

import "github.com/artpar/calm/core/convention"

// Record is a persisted record that can be viewed as a plain field map.
type Record interface {
	Map() map[string]any
}

// Projector is an immutable, ordered allow-list of public field names.
type Projector struct {
	fields   []string
	identity string
}

// New creates a projector exposing fields. The identity field is always
// includable and always comes first; duplicates keep their first position.
func New(fields ...string) Projector {
	return newWithIdentity(convention.IDField, fields)
}

func newWithIdentity(identity string, fields []string) Projector {
	p := Projector{identity: identity, fields: []string{identity}}
	seen := map[string]bool{identity: true}

	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		p.fields = append(p.fields, f)
	}
	return p
}

// Fields returns a copy of the allow-list.
func (p Projector) Fields() []string {
	out := make([]string, len(p.fields))
	copy(out, p.fields)
	return out
}

// Identity returns the identity field name.
func (p Projector) Identity() string {
	if p.identity == "" {
		return convention.IDField
	}
	return p.identity
}

// Extend returns a projector that also exposes fields.
func (p Projector) Extend(fields ...string) Projector {
	return newWithIdentity(p.Identity(), append(p.Fields(), fields...))
}

// Without returns a projector that no longer exposes fields.
// The identity field cannot be removed.
func (p Projector) Without(fields ...string) Projector {
	kept := make([]string, 0, len(p.fields))
	for _, f := range p.fields {
		if f != p.Identity() && contains(fields, f) {
			continue
		}
		kept = append(kept, f)
	}
	return newWithIdentity(p.Identity(), kept)
}

// ProjectForCreate returns the allowed keys present in in.
func (p Projector) ProjectForCreate(in map[string]any) map[string]any {
	return pick(in, p.fields)
}

// ProjectForUpdate is ProjectForCreate without the identity field, which is
// never client-settable.
func (p Projector) ProjectForUpdate(in map[string]any) map[string]any {
	rest := make(map[string]any, len(in))
	for k, v := range in {
		if k == p.Identity() {
			continue
		}
		rest[k] = v
	}

	fields := make([]string, 0, len(p.fields))
	for _, f := range p.fields {
		if f != p.Identity() {
			fields = append(fields, f)
		}
	}
	return pick(rest, fields)
}

// ProjectForResponse converts rec to a field map restricted to the allow-list.
// It returns nil when rec is nil.
func (p Projector) ProjectForResponse(rec Record) map[string]any {
	if rec == nil {
		return nil
	}
	m := rec.Map()
	if m == nil {
		return nil
	}
	return pick(m, p.fields)
}

// ProjectForResponseList applies ProjectForResponse to every record.
// The result has the same length as recs and is never nil.
func (p Projector) ProjectForResponseList(recs []Record) []map[string]any {
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, p.ProjectForResponse(rec))
	}
	return out
}

// Map adapts a plain map to Record.
type Map map[string]any

// Map returns m itself.
func (m Map) Map() map[string]any {
	return m
}

func pick(data map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	if data == nil {
		return out
	}
	for _, f := range fields {
		if v, ok := data[f]; ok {
			out[f] = v
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
