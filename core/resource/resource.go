// Package resource wires a module descriptor into a servable route table:
// collection, projector, store, handler and routes.
package resource

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/calm/core/convention"
	"github.com/artpar/calm/core/handler"
	"github.com/artpar/calm/core/projection"
	"github.com/artpar/calm/core/registry"
	"github.com/artpar/calm/core/route"
	"github.com/artpar/calm/core/schema"
	"github.com/artpar/calm/core/service"
	"github.com/artpar/calm/core/storage"
)

// Options configures resources built from modules.
type Options struct {
	// DefaultLimit is the page size used when a list request gives none.
	DefaultLimit int

	// Middleware runs before every route of every resource.
	Middleware []route.Middleware

	Logger zerolog.Logger
}

// Resource is a module wired for serving.
type Resource struct {
	Derived   convention.Derived
	Projector projection.Projector
	Store     *service.Store
	Handler   *handler.Handler
	Table     *route.Table
}

// Build validates mod and wires it against db.
func Build(ctx context.Context, mod schema.Module, db storage.Database, opts Options) (*Resource, error) {
	if err := schema.Validate(mod); err != nil {
		return nil, fmt.Errorf("module %q: %w", mod.Name, err)
	}

	derived := convention.Derive(mod)

	coll, err := db.Collection(ctx, derived)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", mod.Name, err)
	}

	projector := projection.New(derived.Allowed...)
	store := service.New(coll, projector,
		service.WithDefaultLimit(opts.DefaultLimit),
		service.WithLogger(opts.Logger.With().Str("resource", derived.Name).Logger()),
	)
	h := handler.New(store)

	tableOpts := []route.Option{
		route.WithPluralize(mod.Routes.ShouldPluralize()),
		route.WithGlobalMiddleware(opts.Middleware...),
	}
	for _, name := range mod.Routes.Disable {
		op, err := route.ParseOp(name)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", mod.Name, err)
		}
		tableOpts = append(tableOpts, route.Disable(op))
	}

	return &Resource{
		Derived:   derived,
		Projector: projector,
		Store:     store,
		Handler:   h,
		Table:     route.New(derived.Name, h, tableOpts...),
	}, nil
}

// Register builds mod and registers its route table under the module name.
func Register(ctx context.Context, reg *registry.Registry, mod schema.Module, db storage.Database, opts Options) (*Resource, error) {
	res, err := Build(ctx, mod, db, opts)
	if err != nil {
		return nil, err
	}
	reg.Register(res.Derived.Name, res.Table)
	return res, nil
}
