// Package registry holds the route tables of every resource and owns the
// shared path prefix.
//
// A Registry is created per application and passed through startup. Tables
// are registered during startup and mounted once; mutating the registry after
// requests are being served is not supported.
package registry

import (
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/calm/core/route"
)

// Registry maps resource names to route tables.
type Registry struct {
	mu     sync.RWMutex
	logger zerolog.Logger

	prefix    string
	prefixSet bool

	// order preserves first registration for deterministic mounting
	order  []string
	tables map[string]*route.Table
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger,
		tables: make(map[string]*route.Table),
	}
}

// SetBasePrefix sets the prefix shared by every table, normalized the way
// route tables normalize theirs. Tables already registered are rebuilt with
// it, so paths are only frozen by MountAll.
func (r *Registry) SetBasePrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefix = route.NormalizePrefix(prefix)
	r.prefixSet = true
	for _, name := range r.order {
		r.tables[name].UpdatePrefix(r.prefix)
	}
}

// BasePrefix returns the shared prefix and whether it was set.
func (r *Registry) BasePrefix() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefix, r.prefixSet
}

// Register stores t under name. When a base prefix is set it is applied to
// t first. Registering an existing name replaces the table in place.
func (r *Registry) Register(name string, t *route.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prefixSet {
		t.UpdatePrefix(r.prefix)
	}

	if _, exists := r.tables[name]; exists {
		r.logger.Warn().Str("resource", name).Msg("replacing registered route table")
	} else {
		r.order = append(r.order, name)
	}
	r.tables[name] = t

	r.logger.Debug().
		Str("resource", name).
		Str("base_path", t.BasePath()).
		Int("routes", len(t.Routes())).
		Msg("registered routes")
}

// Get returns the table registered under name.
func (r *Registry) Get(name string) (*route.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Tables returns registered tables in registration order.
func (r *Registry) Tables() []*route.Table {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*route.Table, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tables[name])
	}
	return out
}

// Len returns the number of registered tables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear removes every table and the base prefix.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefix = ""
	r.prefixSet = false
	r.order = nil
	r.tables = make(map[string]*route.Table)
}

// MountAll registers every table on root in registration order.
func (r *Registry) MountAll(root chi.Router) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		t := r.tables[name]
		t.Mount(root)
		r.logger.Info().
			Str("resource", name).
			Str("path", t.BasePath()).
			Msg("mounted routes")
	}
}
