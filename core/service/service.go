// Package service implements the generic CRUD operations of a resource.
//
// A Store is built by composition from a storage collection and a
// projection.Projector. Every write funnels through the projector before
// reaching storage, and every read is projected before it is returned.
package service

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/calm/core/apierr"
	"github.com/artpar/calm/core/projection"
	"github.com/artpar/calm/core/storage"
)

const (
	// DefaultPage is the page used when none or an invalid one is requested.
	DefaultPage = 1

	// DefaultLimit is the page size used when none or an invalid one is requested.
	DefaultLimit = 10
)

// ListOptions configures List.
type ListOptions struct {
	Page  int
	Limit int
	Sort  []storage.SortField
}

// Pagination describes the page returned by List.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

// Page is the result of List.
type Page struct {
	Records    []map[string]any `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// Store provides CRUD operations for one resource.
type Store struct {
	coll         storage.Collection
	projector    projection.Projector
	defaultLimit int
	logger       zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultLimit sets the page size used when a request gives none.
func WithDefaultLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store over coll exposing the fields allowed by p.
func New(coll storage.Collection, p projection.Projector, opts ...Option) *Store {
	s := &Store{
		coll:         coll,
		projector:    p,
		defaultLimit: DefaultLimit,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Projector returns the projector of the store.
func (s *Store) Projector() projection.Projector {
	return s.projector
}

// Create projects data, persists it and returns the projected record.
func (s *Store) Create(ctx context.Context, data map[string]any) (map[string]any, error) {
	doc, err := s.coll.Create(ctx, s.projector.ProjectForCreate(data))
	if err != nil {
		return nil, passThrough(err, "create")
	}
	return s.projector.ProjectForResponse(doc), nil
}

// List returns one page of records matching filter. The page fetch and the
// total count run concurrently; if either fails, List fails.
func (s *Store) List(ctx context.Context, filter storage.Filter, opts ListOptions) (*Page, error) {
	page := opts.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := opts.Limit
	if limit < 1 {
		limit = s.defaultLimit
	}
	sortBy := opts.Sort
	if len(sortBy) == 0 {
		sortBy = storage.NewestFirst
	}

	var (
		docs  []*storage.Document
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	// A skip past math.MaxInt cannot address any record.
	if page-1 <= math.MaxInt/limit {
		g.Go(func() error {
			var err error
			docs, err = s.coll.Find(gctx, filter, storage.FindOptions{
				Sort:  sortBy,
				Skip:  (page - 1) * limit,
				Limit: limit,
			})
			return err
		})
	}
	g.Go(func() error {
		var err error
		total, err = s.coll.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, passThrough(err, "list")
	}

	recs := make([]projection.Record, len(docs))
	for i, doc := range docs {
		recs[i] = doc
	}

	s.logger.Debug().
		Int("page", page).
		Int("limit", limit).
		Int64("total", total).
		Int("returned", len(docs)).
		Msg("list")

	return &Page{
		Records: s.projector.ProjectForResponseList(recs),
		Pagination: Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

// GetByID returns the projected record with id.
func (s *Store) GetByID(ctx context.Context, id string) (map[string]any, error) {
	doc, err := s.coll.FindByID(ctx, id)
	if err != nil {
		return nil, passThrough(err, "get")
	}
	if doc == nil {
		return nil, apierr.NotFound("Record not found")
	}
	return s.projector.ProjectForResponse(doc), nil
}

// Update projects data without the identity field, merges it into the record
// with id and returns the projected result.
func (s *Store) Update(ctx context.Context, id string, data map[string]any) (map[string]any, error) {
	doc, err := s.coll.FindByIDAndUpdate(ctx, id, s.projector.ProjectForUpdate(data))
	if err != nil {
		return nil, passThrough(err, "update")
	}
	if doc == nil {
		return nil, apierr.NotFound("Record not found")
	}
	return s.projector.ProjectForResponse(doc), nil
}

// DeleteByID removes the record with id.
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	doc, err := s.coll.FindByIDAndDelete(ctx, id)
	if err != nil {
		return false, passThrough(err, "delete")
	}
	if doc == nil {
		return false, apierr.NotFound("Record not found")
	}
	return true, nil
}

// passThrough returns classified errors untouched and annotates the rest.
func passThrough(err error, op string) error {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return err
	}
	return errors.WithMessage(err, op)
}
