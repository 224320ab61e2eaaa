package router

import (
	"slices"
	"strings"

	"github.com/searchktools/tiny-server/core/http"
)

// Tree maps path patterns to values of type V.
//
// Patterns are split on '/'. A segment is either static, a named parameter
// (":id", matches exactly one segment) or a trailing catch-all ("*rest",
// matches the remainder of the path, slashes included). When several
// patterns could match, static segments win over parameters and parameters
// win over catch-alls; the search backtracks if a preferred branch
// dead-ends.
//
// A Tree is built by a single goroutine and may then be matched from any
// number of goroutines as long as nobody inserts.
type Tree[V any] struct {
	root     node[V]
	patterns []string
}

type node[V any] struct {
	static map[string]*node[V]

	param     *node[V]
	paramName string

	catchAll  *node[V]
	catchName string

	value    V
	hasValue bool
}

// NewTree creates an empty tree
func NewTree[V any]() *Tree[V] {
	return &Tree[V]{}
}

// Insert registers v under pattern. Inserting the same pattern again
// replaces the earlier value. Malformed patterns panic.
func (t *Tree[V]) Insert(pattern string, v V) {
	if pattern == "" || pattern[0] != '/' {
		panic("router: path must begin with '/': " + pattern)
	}

	n := &t.root
	segments := strings.Split(pattern[1:], "/")
	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, ":"):
			name := wildcardName(pattern, seg)
			if n.param == nil {
				n.param = &node[V]{}
				n.paramName = name
			} else if n.paramName != name {
				panic("router: parameter :" + name + " conflicts with :" + n.paramName + " in " + pattern)
			}
			n = n.param

		case strings.HasPrefix(seg, "*"):
			name := wildcardName(pattern, seg)
			if i != len(segments)-1 {
				panic("router: catch-all is only allowed at the end of the path: " + pattern)
			}
			if n.catchAll == nil {
				n.catchAll = &node[V]{}
				n.catchName = name
			} else if n.catchName != name {
				panic("router: catch-all *" + name + " conflicts with *" + n.catchName + " in " + pattern)
			}
			n = n.catchAll

		default:
			if strings.ContainsAny(seg, ":*") {
				panic("router: wildcards must start a path segment: " + pattern)
			}
			child, ok := n.static[seg]
			if !ok {
				if n.static == nil {
					n.static = make(map[string]*node[V])
				}
				child = &node[V]{}
				n.static[seg] = child
			}
			n = child
		}
	}

	if !n.hasValue {
		t.patterns = append(t.patterns, pattern)
	}
	n.value = v
	n.hasValue = true
}

func wildcardName(pattern, seg string) string {
	name := seg[1:]
	if name == "" {
		panic("router: wildcards must be named: " + pattern)
	}
	if strings.ContainsAny(name, ":*") {
		panic("router: only one wildcard per path segment is allowed: " + pattern)
	}
	return name
}

// Match looks up path. The returned params are in pattern order.
func (t *Tree[V]) Match(path string) (v V, params http.Params, ok bool) {
	if path == "" || path[0] != '/' {
		return v, nil, false
	}
	segments := strings.Split(path[1:], "/")
	n, params := t.root.find(segments, params)
	if n == nil {
		return v, nil, false
	}
	return n.value, params, true
}

func (n *node[V]) find(segments []string, params http.Params) (*node[V], http.Params) {
	if len(segments) == 0 {
		if n.hasValue {
			return n, params
		}
		return nil, params
	}

	seg, rest := segments[0], segments[1:]

	if child, ok := n.static[seg]; ok {
		if found, ps := child.find(rest, params); found != nil {
			return found, ps
		}
	}

	if n.param != nil && seg != "" {
		mark := len(params)
		params = append(params, http.Param{Key: n.paramName, Value: seg})
		if found, ps := n.param.find(rest, params); found != nil {
			return found, ps
		}
		params = params[:mark]
	}

	if n.catchAll != nil && n.catchAll.hasValue {
		params = append(params, http.Param{Key: n.catchName, Value: strings.Join(segments, "/")})
		return n.catchAll, params
	}

	return nil, params
}

// Len returns the number of distinct registered patterns
func (t *Tree[V]) Len() int {
	return len(t.patterns)
}

// Patterns returns the registered patterns in sorted order
func (t *Tree[V]) Patterns() []string {
	out := slices.Clone(t.patterns)
	slices.Sort(out)
	return out
}
