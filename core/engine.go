package core

import (
	"errors"
	"fmt"

	"github.com/searchktools/tiny-server/core/extensions"
	"github.com/searchktools/tiny-server/core/http"
	"github.com/searchktools/tiny-server/core/middleware"
	"github.com/searchktools/tiny-server/core/router"
)

// Errors
var (
	// ErrBuilt is the panic value raised when a Builder is used after Build
	ErrBuilt = errors.New("core: application already built")
	// ErrNoResponse is returned when a handler yields neither a response nor an error
	ErrNoResponse = errors.New("core: handler returned no response")
)

type route struct {
	method  http.Method
	pattern string
	handler http.Handler
	wrapped http.Handler
}

// Builder collects routes, middleware, shared state and the fallback
// handler. It is owned by a single goroutine until Build turns it into an
// Engine; after that every method panics with ErrBuilt.
type Builder struct {
	table    *router.Table[*route]
	routes   []*route
	state    *extensions.Extensions
	chain    *middleware.Chain
	fallback http.Handler
	built    bool
}

// New creates a builder whose fallback answers 404 Not Found
func New() *Builder {
	return &Builder{
		table:    router.NewTable[*route](),
		state:    extensions.New(),
		chain:    middleware.NewChain(),
		fallback: http.NotFoundHandler(),
	}
}

func (b *Builder) mutable() {
	if b.built {
		panic(ErrBuilt)
	}
}

// Route registers h for method and path. Registering the same pair again
// replaces the earlier handler.
func (b *Builder) Route(method http.Method, path string, h http.Handler) *Builder {
	b.mutable()
	if h == nil {
		panic(fmt.Sprintf("core: nil handler for %s %s", method, path))
	}
	r := &route{method: method, pattern: path, handler: h}
	b.table.Insert(method, path, r)
	b.routes = append(b.routes, r)
	return b
}

// HandleFunc registers an ordinary function as the handler for method and path
func (b *Builder) HandleFunc(method http.Method, path string, fn http.HandlerFunc) *Builder {
	return b.Route(method, path, fn)
}

// GET registers a GET route
func (b *Builder) GET(path string, fn http.HandlerFunc) *Builder {
	return b.Route(http.MethodGet, path, fn)
}

// POST registers a POST route
func (b *Builder) POST(path string, fn http.HandlerFunc) *Builder {
	return b.Route(http.MethodPost, path, fn)
}

// PUT registers a PUT route
func (b *Builder) PUT(path string, fn http.HandlerFunc) *Builder {
	return b.Route(http.MethodPut, path, fn)
}

// DELETE registers a DELETE route
func (b *Builder) DELETE(path string, fn http.HandlerFunc) *Builder {
	return b.Route(http.MethodDelete, path, fn)
}

// PATCH registers a PATCH route
func (b *Builder) PATCH(path string, fn http.HandlerFunc) *Builder {
	return b.Route(http.MethodPatch, path, fn)
}

// HEAD registers a HEAD route
func (b *Builder) HEAD(path string, fn http.HandlerFunc) *Builder {
	return b.Route(http.MethodHead, path, fn)
}

// OPTIONS registers an OPTIONS route
func (b *Builder) OPTIONS(path string, fn http.HandlerFunc) *Builder {
	return b.Route(http.MethodOptions, path, fn)
}

// Default replaces the handler used when no route matches
func (b *Builder) Default(h http.Handler) *Builder {
	b.mutable()
	if h == nil {
		panic("core: nil default handler")
	}
	b.fallback = h
	return b
}

// State stores v in the shared state under its dynamic type, replacing any
// earlier value of that type.
func (b *Builder) State(v any) *Builder {
	b.mutable()
	b.state.Set(v)
	return b
}

// WithState stores v under the static type T. Use it to key a value by an
// interface type.
func WithState[T any](b *Builder, v T) *Builder {
	b.mutable()
	extensions.Insert(b.state, v)
	return b
}

// Use appends middleware; the first one added is the outermost
func (b *Builder) Use(mws ...middleware.Middleware) *Builder {
	b.mutable()
	b.chain.Append(mws...)
	return b
}

// Build freezes the configuration into an Engine. It may be called once.
func (b *Builder) Build() *Engine {
	b.mutable()
	b.built = true

	e := &Engine{
		table:    b.table,
		routes:   b.routes,
		state:    b.state.Freeze(),
		chain:    b.chain,
		fallback: b.fallback,
	}
	for _, r := range e.routes {
		r.wrapped = e.chain.Then(r.handler)
	}
	e.wrappedFallback = e.chain.Then(e.fallback)

	b.table, b.routes, b.state, b.chain, b.fallback = nil, nil, nil, nil, nil
	return e
}

// Engine is the frozen application. Nothing in it is written after Build,
// so any number of goroutines may dispatch through one *Engine without
// locking; copying the pointer is all it takes to share it.
type Engine struct {
	table           *router.Table[*route]
	routes          []*route
	state           *extensions.Frozen
	chain           *middleware.Chain
	fallback        http.Handler
	wrappedFallback http.Handler
}

// Lookup returns the handler registered for method and path exactly as it
// was registered, without middleware.
func (e *Engine) Lookup(method http.Method, path string) (http.Handler, http.Params, bool) {
	r, params, ok := e.table.Match(method, path)
	if !ok {
		return nil, nil, false
	}
	return r.handler, params, true
}

// Default returns the fallback handler, without middleware
func (e *Engine) Default() http.Handler {
	return e.fallback
}

// State returns the shared state
func (e *Engine) State() *extensions.Frozen {
	return e.state
}

// Middleware returns the number of middleware in the chain
func (e *Engine) Middleware() int {
	return e.chain.Len()
}

// RouteInfo describes one registered route
type RouteInfo struct {
	Method  http.Method
	Pattern string
}

// Routes lists the registered routes, grouped by method in method order
// and sorted by pattern within a method.
func (e *Engine) Routes() []RouteInfo {
	var out []RouteInfo
	for _, m := range e.table.Methods() {
		for _, p := range e.table.Tree(m).Patterns() {
			out = append(out, RouteInfo{Method: m, Pattern: p})
		}
	}
	return out
}

// Dispatch routes req to its handler, or to the fallback when nothing
// matches, through the middleware chain. Handler errors are returned as is.
func (e *Engine) Dispatch(req *http.Request) (*http.Response, error) {
	h := e.wrappedFallback
	var params http.Params
	if r, ps, ok := e.table.Match(req.Method, req.Path); ok {
		h, params = r.wrapped, ps
	}
	req.Attach(params, e.state)

	res, err := h.Serve(req)
	if err == nil && res == nil {
		return nil, ErrNoResponse
	}
	return res, err
}

// Serve makes the Engine itself an http.Handler, so a frozen application
// can be mounted inside another one.
func (e *Engine) Serve(req *http.Request) (*http.Response, error) {
	return e.Dispatch(req)
}
