// Package router provides the route table: one path tree per HTTP method.
package router

import (
	"github.com/searchktools/tiny-server/core/http"
)

// Table maps (method, path pattern) pairs to values. Trees are created
// lazily the first time a method is used and kept in a fixed array indexed
// by method, so iteration order never depends on registration order.
type Table[V any] struct {
	trees [http.MethodCount]*Tree[V]
}

// NewTable creates an empty route table
func NewTable[V any]() *Table[V] {
	return &Table[V]{}
}

// Insert registers v for method and pattern; a later insert for the same
// pair silently replaces the earlier one.
func (t *Table[V]) Insert(method http.Method, pattern string, v V) {
	if !method.Valid() {
		panic("router: cannot register routes for method " + method.String())
	}
	tree := t.trees[method]
	if tree == nil {
		tree = NewTree[V]()
		t.trees[method] = tree
	}
	tree.Insert(pattern, v)
}

// Match finds the value registered for method and path
func (t *Table[V]) Match(method http.Method, path string) (v V, params http.Params, ok bool) {
	if !method.Valid() {
		return v, nil, false
	}
	tree := t.trees[method]
	if tree == nil {
		return v, nil, false
	}
	return tree.Match(path)
}

// Tree returns the tree for method, or nil if nothing was registered for it
func (t *Table[V]) Tree(method http.Method) *Tree[V] {
	if !method.Valid() {
		return nil
	}
	return t.trees[method]
}

// Methods returns the methods that have routes, in method order
func (t *Table[V]) Methods() []http.Method {
	var out []http.Method
	for m, tree := range t.trees {
		if tree != nil {
			out = append(out, http.Method(m))
		}
	}
	return out
}

// Len returns the total number of registered routes
func (t *Table[V]) Len() int {
	n := 0
	for _, tree := range t.trees {
		if tree != nil {
			n += tree.Len()
		}
	}
	return n
}
