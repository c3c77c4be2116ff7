// Package storage provides the document persistence used by resources.
// Each resource gets one collection; records are schemaless JSON documents
// validated against the resource schema on write.
package storage

import (
	"context"
	"time"

	"github.com/artpar/calm/core/convention"
)

// VersionField is the internal revision key. It is tracked per record but
// never surfaced through Document.Map.
const VersionField = "__v"

// Database opens collections and owns the underlying connection.
type Database interface {
	// Collection returns the collection for a derived module, creating it
	// when missing.
	Collection(ctx context.Context, mod convention.Derived) (Collection, error)

	// Ping verifies the connection.
	Ping(ctx context.Context) error

	// Close closes the storage connection.
	Close() error
}

// Collection provides document operations for one resource.
// Lookups by id return (nil, nil) when the record does not exist.
type Collection interface {
	// Create validates and inserts a new record.
	Create(ctx context.Context, doc map[string]any) (*Document, error)

	// Find retrieves records matching filter.
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]*Document, error)

	// Count counts records matching filter.
	Count(ctx context.Context, filter Filter) (int64, error)

	// FindByID retrieves a record by id.
	FindByID(ctx context.Context, id string) (*Document, error)

	// FindByIDAndUpdate merges patch into a record and returns the updated record.
	FindByIDAndUpdate(ctx context.Context, id string, patch map[string]any) (*Document, error)

	// FindByIDAndDelete removes a record and returns it.
	FindByIDAndDelete(ctx context.Context, id string) (*Document, error)
}

// Filter is a set of exact-match conditions, field name to value.
type Filter map[string]any

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// NewestFirst sorts by creation time, most recent first.
var NewestFirst = []SortField{{Field: convention.CreatedAtField, Desc: true}}

// FindOptions configures Find.
type FindOptions struct {
	// Sort defines the ordering. Empty means NewestFirst.
	Sort []SortField

	// Skip is the number of records to skip.
	Skip int

	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
}

// Document is a persisted record.
type Document struct {
	ID        string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	// Fields holds the user-defined fields.
	Fields map[string]any
}

// Map returns the record as a plain field map including _id, createdAt and
// updatedAt. The version key is not included. A nil document maps to nil.
func (d *Document) Map() map[string]any {
	if d == nil {
		return nil
	}

	m := make(map[string]any, len(d.Fields)+3)
	for k, v := range d.Fields {
		m[k] = v
	}
	m[convention.IDField] = d.ID
	m[convention.CreatedAtField] = d.CreatedAt
	m[convention.UpdatedAtField] = d.UpdatedAt
	return m
}

// isImplicit reports whether name is managed by the store rather than stored in the body.
func isImplicit(name string) bool {
	switch name {
	case convention.IDField, convention.CreatedAtField, convention.UpdatedAtField, VersionField:
		return true
	default:
		return false
	}
}

// body returns doc without store-managed keys.
func body(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if isImplicit(k) {
			continue
		}
		out[k] = v
	}
	return out
}
