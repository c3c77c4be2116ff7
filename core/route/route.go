// Package route builds the route table of a resource.
//
// A Table derives its paths from a prefix and the resource name:
//
//	list    GET    {prefix}/{plural}
//	create  POST   {prefix}/{plural}
//	get     GET    {prefix}/{plural}/{id}
//	update  PUT    {prefix}/{plural}/{id}
//	delete  DELETE {prefix}/{plural}/{id}
//
// The route list is derived state. Every change to the options record, such
// as UpdatePrefix, rebuilds it from scratch, custom routes included.
package route

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/calm/core/convention"
	"github.com/artpar/calm/core/httpapi"
)

// Op names a generated CRUD operation.
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Ops lists the generated operations in table order.
var Ops = []Op{OpList, OpGet, OpCreate, OpUpdate, OpDelete}

// Middleware is standard net/http middleware.
type Middleware = func(http.Handler) http.Handler

// Controller provides the handlers of the generated operations.
type Controller interface {
	List(w http.ResponseWriter, r *http.Request) error
	Get(w http.ResponseWriter, r *http.Request) error
	Create(w http.ResponseWriter, r *http.Request) error
	Update(w http.ResponseWriter, r *http.Request) error
	Delete(w http.ResponseWriter, r *http.Request) error
}

// Route is one entry of a route table.
type Route struct {
	Method string
	Path   string

	// Op is empty for custom routes.
	Op Op

	// Middleware runs before Handler, global middleware first.
	Middleware []Middleware
	Handler    httpapi.HandlerFunc
}

// String returns "METHOD path".
func (r Route) String() string {
	return r.Method + " " + r.Path
}

type options struct {
	prefix     string
	pluralize  bool
	disabled   map[Op]bool
	middleware map[Op][]Middleware
	global     []Middleware
}

// Option configures a Table.
type Option func(*options)

// WithPrefix sets the path prefix, e.g. "/api/v1".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = NormalizePrefix(prefix)
	}
}

// WithoutPluralize uses the raw resource name as the path segment.
func WithoutPluralize() Option {
	return func(o *options) {
		o.pluralize = false
	}
}

// WithPluralize sets whether the path segment is pluralized.
func WithPluralize(enabled bool) Option {
	return func(o *options) {
		o.pluralize = enabled
	}
}

// Disable suppresses the given operations.
func Disable(ops ...Op) Option {
	return func(o *options) {
		for _, op := range ops {
			o.disabled[op] = true
		}
	}
}

// WithMiddleware adds middleware run before the handler of op.
func WithMiddleware(op Op, mw ...Middleware) Option {
	return func(o *options) {
		o.middleware[op] = append(o.middleware[op], mw...)
	}
}

// WithGlobalMiddleware adds middleware run before every route of the table.
func WithGlobalMiddleware(mw ...Middleware) Option {
	return func(o *options) {
		o.global = append(o.global, mw...)
	}
}

type customRoute struct {
	method     string
	path       string
	middleware []Middleware
	handler    httpapi.HandlerFunc
}

// Table is the route table of one resource.
type Table struct {
	name       string
	controller Controller
	opts       options
	custom     []customRoute
	routes     []Route
}

// New creates the route table for the resource name served by c.
func New(name string, c Controller, opts ...Option) *Table {
	t := &Table{
		name:       strings.ToLower(name),
		controller: c,
		opts: options{
			pluralize:  true,
			disabled:   make(map[Op]bool),
			middleware: make(map[Op][]Middleware),
		},
	}
	for _, opt := range opts {
		opt(&t.opts)
	}
	t.build()
	return t
}

// Name returns the resource name.
func (t *Table) Name() string {
	return t.name
}

// Prefix returns the current path prefix.
func (t *Table) Prefix() string {
	return t.opts.prefix
}

// Segment returns the path segment of the resource.
func (t *Table) Segment() string {
	if t.opts.pluralize {
		return convention.Pluralize(t.name)
	}
	return t.name
}

// BasePath returns the collection path.
func (t *Table) BasePath() string {
	return t.opts.prefix + "/" + t.Segment()
}

// Enabled reports whether op is generated.
func (t *Table) Enabled(op Op) bool {
	return !t.opts.disabled[op]
}

// methods are the HTTP methods chi can route.
var methods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodConnect: true,
	http.MethodTrace:   true,
}

// AddRoute adds a custom route. A path starting with "/" is relative to the
// prefix; any other path is placed under the base path. Unknown methods and
// nil handlers are rejected and leave the table unchanged.
func (t *Table) AddRoute(method, path string, h httpapi.HandlerFunc, mw ...Middleware) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !methods[method] {
		return fmt.Errorf("route %s: unsupported method %q", t.name, method)
	}
	if h == nil {
		return fmt.Errorf("route %s %s: nil handler", method, path)
	}

	t.custom = append(t.custom, customRoute{
		method:     method,
		path:       path,
		middleware: mw,
		handler:    h,
	})
	t.build()
	return nil
}

// UpdatePrefix sets a new prefix and rebuilds every route.
func (t *Table) UpdatePrefix(prefix string) {
	t.opts.prefix = NormalizePrefix(prefix)
	t.build()
}

// Routes returns a copy of the route list.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Mount registers every route on r.
func (t *Table) Mount(r chi.Router) {
	for _, rt := range t.routes {
		r.With(rt.Middleware...).Method(rt.Method, rt.Path, httpapi.Adapt(rt.Handler))
	}
}

func (t *Table) build() {
	base := t.BasePath()
	item := base + "/{id}"

	generated := []struct {
		op      Op
		method  string
		path    string
		handler httpapi.HandlerFunc
	}{
		{OpList, http.MethodGet, base, t.controller.List},
		{OpGet, http.MethodGet, item, t.controller.Get},
		{OpCreate, http.MethodPost, base, t.controller.Create},
		{OpUpdate, http.MethodPut, item, t.controller.Update},
		{OpDelete, http.MethodDelete, item, t.controller.Delete},
	}

	routes := make([]Route, 0, len(generated)+len(t.custom))
	for _, g := range generated {
		if t.opts.disabled[g.op] {
			continue
		}
		routes = append(routes, Route{
			Method:     g.method,
			Path:       g.path,
			Op:         g.op,
			Middleware: t.chain(t.opts.middleware[g.op]),
			Handler:    g.handler,
		})
	}

	for _, c := range t.custom {
		routes = append(routes, Route{
			Method:     c.method,
			Path:       t.resolve(c.path),
			Middleware: t.chain(c.middleware),
			Handler:    c.handler,
		})
	}

	t.routes = routes
}

func (t *Table) resolve(path string) string {
	if strings.HasPrefix(path, "/") {
		return t.opts.prefix + path
	}
	if path == "" {
		return t.BasePath()
	}
	return t.BasePath() + "/" + path
}

// chain returns the global middleware followed by mw, in a fresh slice.
func (t *Table) chain(mw []Middleware) []Middleware {
	out := make([]Middleware, 0, len(t.opts.global)+len(mw))
	out = append(out, t.opts.global...)
	return append(out, mw...)
}

// NormalizePrefix trims surrounding space and trailing slashes and ensures a
// leading slash. An empty or "/" prefix normalizes to "".
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

// ParseOp converts a name such as "list" to an Op.
func ParseOp(name string) (Op, error) {
	op := Op(strings.ToLower(name))
	for _, known := range Ops {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", name)
}
