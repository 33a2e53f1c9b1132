package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("x", "first"))
	err := r.Register("x", "second")
	assert.Error(t, err)

	v, _ := r.Get("x")
	assert.Equal(t, "first", v)
}

func TestRegisterEmptyNameFails(t *testing.T) {
	r := NewBaseRegistry[int]()
	assert.Error(t, r.Register("", 1))
}

func TestListPreservesInsertionOrder(t *testing.T) {
	r := NewBaseRegistry[int]()

	for i, name := range []string{"zebra", "apple", "mango"} {
		require.NoError(t, r.Register(name, i))
	}

	assert.Equal(t, []string{"zebra", "apple", "mango"}, r.Names())
	assert.Equal(t, []int{0, 1, 2}, r.List())
}

func TestRemove(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	require.NoError(t, r.Remove("a"))
	assert.Equal(t, []string{"b"}, r.Names())
	assert.Error(t, r.Remove("a"))
}

func TestConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("item-%d", i), i)
			r.Get("item-0")
			r.List()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Count())
}
