package projection

import (
	"reflect"
	"testing"
)

func productProjector() Projector {
	return New("_id", "name", "price", "description", "category", "createdAt", "updatedAt")
}

func TestNew_AddsIdentity(t *testing.T) {
	p := New("name", "price")

	want := []string{"_id", "name", "price"}
	if got := p.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
	if p.Identity() != "_id" {
		t.Errorf("Identity() = %q, want _id", p.Identity())
	}
}

func TestNew_IdentityFirstAndDeduplicated(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{"identity in the middle", []string{"name", "_id", "name", "price"}, []string{"_id", "name", "price"}},
		{"identity last", []string{"name", "price", "_id"}, []string{"_id", "name", "price"}},
		{"identity repeated", []string{"_id", "_id", "name"}, []string{"_id", "name"}},
		{"no fields", nil, []string{"_id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.fields...).Fields(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Fields() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectForCreate(t *testing.T) {
	p := productProjector()

	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "drops unknown keys",
			in:   map[string]any{"name": "Widget", "price": 9.99, "extra": "drop-me"},
			want: map[string]any{"name": "Widget", "price": 9.99},
		},
		{
			name: "keeps identity",
			in:   map[string]any{"_id": "abc", "name": "Widget"},
			want: map[string]any{"_id": "abc", "name": "Widget"},
		},
		{
			name: "keeps explicit nil",
			in:   map[string]any{"description": nil},
			want: map[string]any{"description": nil},
		},
		{
			name: "nil input",
			in:   nil,
			want: map[string]any{},
		},
		{
			name: "only unknown keys",
			in:   map[string]any{"__v": 3, "secret": true},
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.ProjectForCreate(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ProjectForCreate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectForCreate_SubsetOfAllowList(t *testing.T) {
	allowed := []string{"a", "b", "c"}
	p := New(allowed...)
	inputs := []map[string]any{
		{"a": 1, "z": 2},
		{"b": 1, "c": 2, "d": 3, "_id": "x"},
		{"y": 1},
	}

	for _, in := range inputs {
		out := p.ProjectForCreate(in)
		for k := range out {
			if _, ok := in[k]; !ok {
				t.Errorf("key %q not in input %v", k, in)
			}
			if k != "_id" && !contains(allowed, k) {
				t.Errorf("key %q outside allow-list", k)
			}
		}
		for _, f := range p.Fields() {
			if _, inInput := in[f]; inInput {
				if _, inOut := out[f]; !inOut {
					t.Errorf("allowed key %q present in input but missing from output", f)
				}
			}
		}
	}
}

func TestProjectForUpdate_NeverContainsIdentity(t *testing.T) {
	p := productProjector()

	in := map[string]any{"_id": "forged", "name": "Gadget", "extra": 1}
	got := p.ProjectForUpdate(in)

	if _, ok := got["_id"]; ok {
		t.Error("ProjectForUpdate() must never contain _id")
	}
	want := map[string]any{"name": "Gadget"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ProjectForUpdate() = %v, want %v", got, want)
	}
	if _, ok := in["_id"]; !ok {
		t.Error("ProjectForUpdate() must not mutate its input")
	}
}

func TestProjectForResponse(t *testing.T) {
	p := productProjector()

	if got := p.ProjectForResponse(nil); got != nil {
		t.Errorf("ProjectForResponse(nil) = %v, want nil", got)
	}

	rec := Map{"_id": "1", "name": "Widget", "__v": 0, "internal": "x"}
	got := p.ProjectForResponse(rec)
	want := map[string]any{"_id": "1", "name": "Widget"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ProjectForResponse() = %v, want %v", got, want)
	}
}

type nilRecord struct{}

func (nilRecord) Map() map[string]any { return nil }

func TestProjectForResponse_NilMap(t *testing.T) {
	if got := productProjector().ProjectForResponse(nilRecord{}); got != nil {
		t.Errorf("ProjectForResponse(nil map) = %v, want nil", got)
	}
}

func TestProjectForResponseList(t *testing.T) {
	p := productProjector()

	got := p.ProjectForResponseList(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("ProjectForResponseList(nil) = %#v, want empty slice", got)
	}

	recs := []Record{
		Map{"_id": "1", "name": "A", "x": 1},
		nil,
		Map{"_id": "3", "price": 2.5},
	}
	got = p.ProjectForResponseList(recs)
	if len(got) != len(recs) {
		t.Fatalf("len = %d, want %d", len(got), len(recs))
	}
	if got[1] != nil {
		t.Errorf("nil element should project to nil, got %v", got[1])
	}
	if _, ok := got[0]["x"]; ok {
		t.Error("unknown field leaked into response list")
	}
}

func TestExtendAndWithout(t *testing.T) {
	base := New("name")

	ext := base.Extend("price", "name")
	if want := []string{"_id", "name", "price"}; !reflect.DeepEqual(ext.Fields(), want) {
		t.Errorf("Extend() fields = %v, want %v", ext.Fields(), want)
	}
	if want := []string{"_id", "name"}; !reflect.DeepEqual(base.Fields(), want) {
		t.Errorf("Extend() mutated the receiver: %v", base.Fields())
	}

	trimmed := ext.Without("name", "_id")
	if want := []string{"_id", "price"}; !reflect.DeepEqual(trimmed.Fields(), want) {
		t.Errorf("Without() fields = %v, want %v", trimmed.Fields(), want)
	}
}
