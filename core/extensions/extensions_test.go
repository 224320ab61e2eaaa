package extensions

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ n int }

type userID int
type orderID int

func TestInsertAndGet(t *testing.T) {
	e := New()

	_, replaced := Insert(e, &counter{n: 1})
	assert.False(t, replaced)

	c, ok := Get[*counter](e)
	require.True(t, ok)
	assert.Equal(t, 1, c.n)
}

func TestInsertReplacesSameType(t *testing.T) {
	e := New()
	Insert(e, "first")

	prev, replaced := Insert(e, "second")
	require.True(t, replaced)
	assert.Equal(t, "first", prev)

	v, ok := Get[string](e)
	require.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, e.Len())
}

func TestDistinctTypesDoNotInterfere(t *testing.T) {
	e := New()
	Insert(e, userID(7))
	Insert(e, orderID(9))
	Insert(e, 42)

	u, ok := Get[userID](e)
	require.True(t, ok)
	assert.Equal(t, userID(7), u)

	o, ok := Get[orderID](e)
	require.True(t, ok)
	assert.Equal(t, orderID(9), o)

	i, ok := Get[int](e)
	require.True(t, ok)
	assert.Equal(t, 42, i)

	_, ok = Get[int64](e)
	assert.False(t, ok, "same shape is not the same type")
}

func TestGetMissing(t *testing.T) {
	e := New()
	v, ok := Get[*counter](e)
	assert.False(t, ok)
	assert.Nil(t, v)

	var f *Frozen
	_, ok = Get[string](f)
	assert.False(t, ok)

	_, ok = Get[string](nil)
	assert.False(t, ok)
}

func TestSetUsesDynamicType(t *testing.T) {
	e := New()
	var v any = &counter{n: 3}

	_, replaced := e.Set(v)
	assert.False(t, replaced)

	c, ok := Get[*counter](e)
	require.True(t, ok)
	assert.Equal(t, 3, c.n)

	prev, replaced := e.Set(&counter{n: 4})
	require.True(t, replaced)
	assert.Equal(t, 3, prev.(*counter).n)

	_, replaced = e.Set(nil)
	assert.False(t, replaced)
}

func TestFreeze(t *testing.T) {
	e := New()
	Insert(e, "value")
	Insert(e, 1)

	f := e.Freeze()
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, 0, e.Len())

	v, ok := Get[string](f)
	require.True(t, ok)
	assert.Equal(t, "value", v)

	assert.PanicsWithValue(t, ErrFrozen, func() { Insert(e, "late") })
	assert.PanicsWithValue(t, ErrFrozen, func() { e.Set(2) })
	assert.PanicsWithValue(t, ErrFrozen, func() { e.Freeze() })

	_, ok = Get[string](f)
	assert.True(t, ok, "frozen copy is unaffected by rejected writes")
}

func TestMustGet(t *testing.T) {
	e := New()
	Insert(e, 5)
	f := e.Freeze()

	assert.Equal(t, 5, MustGet[int](f))
	assert.Panics(t, func() { MustGet[string](f) })
}

func TestFrozenConcurrentReads(t *testing.T) {
	e := New()
	Insert(e, &counter{n: 10})
	Insert(e, "shared")
	f := e.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c, ok := Get[*counter](f)
				if !ok || c.n != 10 {
					t.Error("unexpected counter")
					return
				}
				if s, _ := Get[string](f); s != "shared" {
					t.Error("unexpected string")
					return
				}
			}
		}()
	}
	wg.Wait()
}
