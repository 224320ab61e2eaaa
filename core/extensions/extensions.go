// Package extensions implements a type-indexed store holding at most one
// value per distinct Go type.
//
// A store is filled while an application is being configured and then
// frozen. The frozen store only supports reads and can be shared by any
// number of goroutines without synchronization.
package extensions

import (
	"errors"
	"reflect"
)

// ErrFrozen is the panic value raised when a store is modified after Freeze.
var ErrFrozen = errors.New("extensions: store is frozen")

// Reader is implemented by both the mutable and the frozen store.
type Reader interface {
	lookup(t reflect.Type) (any, bool)
}

// Extensions is the mutable store. The zero value is ready to use.
type Extensions struct {
	values map[reflect.Type]any
	frozen bool
}

// New creates an empty store
func New() *Extensions {
	return &Extensions{}
}

// Insert stores v under the type T. If a value of exactly T was already
// present it is returned with replaced set to true.
func Insert[T any](e *Extensions, v T) (prev T, replaced bool) {
	old, ok := e.put(reflect.TypeFor[T](), v)
	if !ok {
		return prev, false
	}
	prev, replaced = old.(T)
	return prev, replaced
}

// Set stores v under its dynamic type. It is the non-generic form of Insert
// used where the static type is not known, e.g. values passed as any.
func (e *Extensions) Set(v any) (prev any, replaced bool) {
	if v == nil {
		return nil, false
	}
	return e.put(reflect.TypeOf(v), v)
}

func (e *Extensions) put(t reflect.Type, v any) (any, bool) {
	if e.frozen {
		panic(ErrFrozen)
	}
	if e.values == nil {
		e.values = make(map[reflect.Type]any)
	}
	old, ok := e.values[t]
	e.values[t] = v
	return old, ok
}

func (e *Extensions) lookup(t reflect.Type) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.values[t]
	return v, ok
}

// Len returns the number of stored types
func (e *Extensions) Len() int {
	return len(e.values)
}

// Freeze moves the contents into a read-only store. The receiver becomes
// unusable for writes: any later Insert or Set panics with ErrFrozen.
func (e *Extensions) Freeze() *Frozen {
	if e.frozen {
		panic(ErrFrozen)
	}
	f := &Frozen{values: e.values}
	e.values = nil
	e.frozen = true
	return f
}

// Frozen is the read-only store produced by Freeze.
type Frozen struct {
	values map[reflect.Type]any
}

func (f *Frozen) lookup(t reflect.Type) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.values[t]
	return v, ok
}

// Len returns the number of stored types
func (f *Frozen) Len() int {
	if f == nil {
		return 0
	}
	return len(f.values)
}

// Get returns the value stored under exactly T. Absence is reported through
// ok, never as an error. Lookups match type identity, not shape: two named
// types with the same underlying type are distinct keys.
func Get[T any](r Reader) (v T, ok bool) {
	if r == nil {
		return v, false
	}
	raw, found := r.lookup(reflect.TypeFor[T]())
	if !found {
		return v, false
	}
	v, ok = raw.(T)
	return v, ok
}

// MustGet is Get for values the application cannot run without.
func MustGet[T any](r Reader) T {
	v, ok := Get[T](r)
	if !ok {
		panic("extensions: no value of type " + reflect.TypeFor[T]().String())
	}
	return v
}
