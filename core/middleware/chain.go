// Package middleware provides handler wrapping and the built-in middleware.
package middleware

import (
	"github.com/searchktools/tiny-server/core/http"
)

// Middleware wraps the next handler in the chain with extra behavior
type Middleware interface {
	Wrap(next http.Handler) http.Handler
}

// Func adapts an ordinary function to Middleware
type Func func(next http.Handler) http.Handler

// Wrap calls f(next)
func (f Func) Wrap(next http.Handler) http.Handler {
	return f(next)
}

// Chain is an ordered list of middleware. The first appended is the
// outermost: it sees the request first and the response last.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain from mws in declaration order
func NewChain(mws ...Middleware) *Chain {
	c := &Chain{middlewares: make([]Middleware, 0, len(mws))}
	return c.Append(mws...)
}

// Append adds middleware to the inner end of the chain. Nil entries are
// skipped.
func (c *Chain) Append(mws ...Middleware) *Chain {
	for _, mw := range mws {
		if mw != nil {
			c.middlewares = append(c.middlewares, mw)
		}
	}
	return c
}

// Len returns the number of middleware in the chain
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.middlewares)
}

// Then wraps final with every middleware in the chain
func (c *Chain) Then(final http.Handler) http.Handler {
	if c == nil {
		return final
	}
	h := final
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i].Wrap(h)
	}
	return h
}

// Clone returns an independent copy of the chain
func (c *Chain) Clone() *Chain {
	if c == nil {
		return NewChain()
	}
	return NewChain(c.middlewares...)
}
