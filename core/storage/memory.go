package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/calm/adapters/clock"
	"github.com/artpar/calm/adapters/idgen"
	"github.com/artpar/calm/core/apierr"
	"github.com/artpar/calm/core/convention"
	"github.com/artpar/calm/core/schema"
)

// MemoryStore implements Database in process memory. It is used for tests
// and for the "memory" storage driver.
type MemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	newID       func() string
	collections map[string]*MemoryCollection
}

// NewMemoryStore creates an empty in-memory database.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         clock.Real{}.Now,
		newID:       idgen.UUID{}.New,
		collections: make(map[string]*MemoryCollection),
	}
}

// SetClock overrides the time source used for timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	for _, c := range s.collections {
		c.setClock(now)
	}
}

// SetIDGenerator overrides how ids of new records are generated.
func (s *MemoryStore) SetIDGenerator(g idgen.Generator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = g.New
	for _, c := range s.collections {
		c.mu.Lock()
		c.newID = g.New
		c.mu.Unlock()
	}
}

// Collection returns the collection for mod, creating it when missing.
func (s *MemoryStore) Collection(_ context.Context, mod convention.Derived) (Collection, error) {
	return s.Open(mod)
}

// Open is Collection with the concrete type, for tests that need failure injection.
func (s *MemoryStore) Open(mod convention.Derived) (*MemoryCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[mod.Collection]; ok {
		return c, nil
	}

	v, err := newValidator(mod)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", mod.Collection, err)
	}
	c := &MemoryCollection{
		mod:       mod,
		validator: v,
		now:       s.now,
		newID:     s.newID,
		docs:      make(map[string]*memoryDoc),
	}
	s.collections[mod.Collection] = c
	return c, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close drops all collections.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*MemoryCollection)
	return nil
}

type memoryDoc struct {
	seq int64
	doc Document
}

// MemoryCollection implements Collection over a map.
type MemoryCollection struct {
	mu        sync.RWMutex
	mod       convention.Derived
	validator *validator
	now       func() time.Time
	newID     func() string
	seq       int64
	docs      map[string]*memoryDoc

	// failures maps operation names to injected errors
	failures map[string]error
}

// FailOn makes every later call of op return err. Pass a nil err to clear it.
// Operation names are the method names: "Create", "Find", "Count",
// "FindByID", "FindByIDAndUpdate" and "FindByIDAndDelete".
func (c *MemoryCollection) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures == nil {
		c.failures = make(map[string]error)
	}
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// Len returns the number of stored records.
func (c *MemoryCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func (c *MemoryCollection) setClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCollection) failure(op string) error {
	return c.failures[op]
}

// Create validates and inserts a new record.
func (c *MemoryCollection) Create(_ context.Context, doc map[string]any) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failure("Create"); err != nil {
		return nil, err
	}

	fields := body(doc)
	if err := c.validator.validateCreate(fields); err != nil {
		return nil, err
	}

	id := c.newID()
	if raw, ok := doc[convention.IDField]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, apierr.Validation("_id must be a string")
		}
		if s != "" {
			id = s
		}
	}
	if _, exists := c.docs[id]; exists {
		return nil, apierr.Validationf("%s with _id %q already exists", c.mod.Name, id)
	}

	normalized, err := normalize(fields)
	if err != nil {
		return nil, err
	}

	now := c.now()
	c.seq++
	c.docs[id] = &memoryDoc{
		seq: c.seq,
		doc: Document{ID: id, CreatedAt: now, UpdatedAt: now, Fields: normalized},
	}
	return c.docs[id].doc.clone(), nil
}

// Find retrieves records matching filter.
func (c *MemoryCollection) Find(_ context.Context, filter Filter, opts FindOptions) ([]*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.failure("Find"); err != nil {
		return nil, err
	}

	matched, err := c.match(filter)
	if err != nil {
		return nil, err
	}

	sortBy := opts.Sort
	if len(sortBy) == 0 {
		sortBy = NewestFirst
	}
	for _, s := range sortBy {
		if !isImplicit(s.Field) && !schema.IsValidIdentifier(s.Field) {
			return nil, apierr.Validationf("invalid field name %q", s.Field)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		for _, s := range sortBy {
			cmp := compareValues(fieldValue(matched[i], s.Field), fieldValue(matched[j], s.Field))
			if cmp == 0 {
				continue
			}
			if s.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		if sortBy[0].Desc {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].seq < matched[j].seq
	})

	if opts.Skip > 0 {
		if opts.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	docs := make([]*Document, 0, len(matched))
	for _, m := range matched {
		docs = append(docs, m.doc.clone())
	}
	return docs, nil
}

// Count counts records matching filter.
func (c *MemoryCollection) Count(_ context.Context, filter Filter) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.failure("Count"); err != nil {
		return 0, err
	}

	matched, err := c.match(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// FindByID retrieves a record by id.
func (c *MemoryCollection) FindByID(_ context.Context, id string) (*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.failure("FindByID"); err != nil {
		return nil, err
	}
	if m, ok := c.docs[id]; ok {
		return m.doc.clone(), nil
	}
	return nil, nil
}

// FindByIDAndUpdate merges patch into a record and returns the updated record.
func (c *MemoryCollection) FindByIDAndUpdate(_ context.Context, id string, patch map[string]any) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failure("FindByIDAndUpdate"); err != nil {
		return nil, err
	}

	fields := body(patch)
	if err := c.validator.validateUpdate(fields); err != nil {
		return nil, err
	}

	m, ok := c.docs[id]
	if !ok {
		return nil, nil
	}

	normalized, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	for k, v := range normalized {
		m.doc.Fields[k] = v
	}
	m.doc.Version++
	m.doc.UpdatedAt = c.now()
	return m.doc.clone(), nil
}

// FindByIDAndDelete removes a record and returns it.
func (c *MemoryCollection) FindByIDAndDelete(_ context.Context, id string) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failure("FindByIDAndDelete"); err != nil {
		return nil, err
	}

	m, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	delete(c.docs, id)
	return m.doc.clone(), nil
}

func (c *MemoryCollection) match(filter Filter) ([]*memoryDoc, error) {
	for k := range filter {
		if !isImplicit(k) && !schema.IsValidIdentifier(k) {
			return nil, apierr.Validationf("invalid field name %q", k)
		}
	}

	var out []*memoryDoc
	for _, m := range c.docs {
		ok := true
		for k, want := range filter {
			if !equalLoose(fieldValue(m, k), want) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func fieldValue(m *memoryDoc, field string) any {
	switch field {
	case convention.IDField:
		return m.doc.ID
	case convention.CreatedAtField:
		return m.doc.CreatedAt.Format(timeLayout)
	case convention.UpdatedAtField:
		return m.doc.UpdatedAt.Format(timeLayout)
	case VersionField:
		return float64(m.doc.Version)
	}
	return m.doc.Fields[field]
}

// equalLoose compares a stored value with a filter value, which usually
// arrives as a query-string string.
func equalLoose(stored, want any) bool {
	if stored == nil || want == nil {
		return stored == nil && want == nil
	}
	if n, ok := stored.(float64); ok {
		w, err := toFloat(want)
		return err == nil && n == w
	}
	if b, ok := stored.(bool); ok {
		w, err := toBool(want)
		return err == nil && (w == 1) == b
	}
	return fmt.Sprint(stored) == fmt.Sprint(want)
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if x, ok := a.(float64); ok {
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// normalize converts Go values to their decoded JSON form so that memory and
// SQLite collections return the same types.
func normalize(fields map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, apierr.Validationf("invalid document: %v", err)
	}
	out := make(map[string]any, len(fields))
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apierr.Validationf("invalid document: %v", err)
	}
	return out, nil
}

func (d Document) clone() *Document {
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	d.Fields = fields
	return &d
}
